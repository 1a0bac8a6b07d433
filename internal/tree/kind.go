package tree

// Kind identifies a node's grammar role.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Query structure
	KindSelect       // scope boundary
	KindSelectList   // projection
	KindSelectItem   // <expr> [AS alias]
	KindStar         // * or t.*
	KindFrom         // source list
	KindTable        // <table> [AS alias]
	KindDerivedTable // (SELECT ...) AS alias
	KindJoin         // left JOIN right [ON ...]
	KindOn           // join condition
	KindWhere        // row filter
	KindGroupBy      // grouping terms
	KindHaving       // group filter
	KindOrderBy      // ordering terms
	KindOrder        // one ordering term
	KindLimit        // row count [, offset]

	// Expressions
	KindColumn       // [qualifier.]name
	KindKeyword      // reserved word in a function argument
	KindFunc         // name(args)
	KindComparison   // left op right
	KindAnd          // left AND right
	KindOr           // left OR right
	KindNot          // NOT expr
	KindBinary       // arithmetic / bitwise
	KindUnary        // -expr, ~expr
	KindIs           // expr IS [NOT] NULL/TRUE/FALSE
	KindRange        // expr [NOT] BETWEEN a AND b
	KindTuple        // (a, b, ...)
	KindCase         // CASE ... END
	KindWhen         // WHEN cond THEN val
	KindLiteral      // string / number
	KindParam        // :name or ?
	KindNull         // NULL
	KindBool         // TRUE / FALSE
	KindSubqueryExpr // (SELECT ...) in an expression
	KindExists       // EXISTS (SELECT ...)
	KindInterval     // INTERVAL expr unit
	KindCollate      // expr COLLATE charset
	KindCast         // CAST / CONVERT

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:      "invalid",
	KindSelect:       "select",
	KindSelectList:   "select_list",
	KindSelectItem:   "select_item",
	KindStar:         "star",
	KindFrom:         "from",
	KindTable:        "table",
	KindDerivedTable: "derived_table",
	KindJoin:         "join",
	KindOn:           "on",
	KindWhere:        "where",
	KindGroupBy:      "group_by",
	KindHaving:       "having",
	KindOrderBy:      "order_by",
	KindOrder:        "order",
	KindLimit:        "limit",
	KindColumn:       "column",
	KindKeyword:      "keyword",
	KindFunc:         "func",
	KindComparison:   "comparison",
	KindAnd:          "and",
	KindOr:           "or",
	KindNot:          "not",
	KindBinary:       "binary",
	KindUnary:        "unary",
	KindIs:           "is",
	KindRange:        "range",
	KindTuple:        "tuple",
	KindCase:         "case",
	KindWhen:         "when",
	KindLiteral:      "literal",
	KindParam:        "param",
	KindNull:         "null",
	KindBool:         "bool",
	KindSubqueryExpr: "subquery",
	KindExists:       "exists",
	KindInterval:     "interval",
	KindCollate:      "collate",
	KindCast:         "cast",
}

// String returns the kind's tag.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "invalid"
}

// IsScopeBoundary reports whether nodes of this kind open a scope.
func (k Kind) IsScopeBoundary() bool {
	return k == KindSelect
}

// IsClause reports whether the kind is a clause of a SELECT. A column's
// clause decides which policy rule applies to it.
func (k Kind) IsClause() bool {
	switch k {
	case KindSelectList, KindFrom, KindOn, KindWhere, KindGroupBy, KindHaving, KindOrderBy, KindLimit:
		return true
	}
	return false
}

// aggregates are the functions that fold many rows into one.
var aggregates = map[string]bool{
	"count":        true,
	"sum":          true,
	"avg":          true,
	"min":          true,
	"max":          true,
	"total":        true,
	"group_concat": true,
	"bit_and":      true,
	"bit_or":       true,
	"bit_xor":      true,
	"std":          true,
	"stddev":       true,
	"stddev_pop":   true,
	"stddev_samp":  true,
	"var_pop":      true,
	"var_samp":     true,
	"variance":     true,
}

// IsAggregate reports whether name is an aggregate function.
func IsAggregate(name string) bool {
	return aggregates[name]
}
