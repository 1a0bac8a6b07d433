package tree

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/ir"
)

// Annotate picks a single derivation from the forest and converts it into an
// annotated Tree.
//
// Returns PARSE_AMBIGUOUS when the preferred derivations disagree and
// PARSE_REJECTED for statements or constructs outside the restricted grammar.
func Annotate(forest *grammar.Forest) (*Tree, error) {
	if forest == nil || len(forest.Derivations) == 0 {
		return nil, ir.NewParseRejected("no derivation to annotate")
	}
	d, err := choose(forest.Derivations)
	if err != nil {
		return nil, err
	}

	a := &annotator{
		tree: &Tree{
			Source:       d.Source,
			Statement:    sqlparser.String(d.Statement),
			Placeholders: d.Placeholders,
		},
		keywords: forest.Keywords,
	}
	if err := a.statement(d.Statement); err != nil {
		return nil, err
	}
	a.tree.Scopes = int(a.nextScope)
	return a.tree, nil
}

// choose keeps the derivations with the fewest placeholders. Equally ranked
// derivations that render identically are the same reading.
//
// grammar.Engine emits at most one derivation per placeholder count, so
// PARSE_AMBIGUOUS is only reachable with forests from another producer.
func choose(ds []grammar.Derivation) (grammar.Derivation, error) {
	best := ds[0].Placeholders
	for _, d := range ds[1:] {
		if d.Placeholders < best {
			best = d.Placeholders
		}
	}

	var chosen []grammar.Derivation
	seen := make(map[string]bool)
	for _, d := range ds {
		if d.Placeholders != best {
			continue
		}
		rendered := sqlparser.String(d.Statement)
		if seen[rendered] {
			continue
		}
		seen[rendered] = true
		chosen = append(chosen, d)
	}
	if len(chosen) > 1 {
		return grammar.Derivation{}, ir.NewParseAmbiguous(len(chosen))
	}
	return chosen[0], nil
}

type annotator struct {
	tree      *Tree
	keywords  *grammar.Keywords
	nextScope ScopeID
}

// add appends a node under parent and returns its id.
func (a *annotator) add(parent int, n Node) int {
	n.ID = len(a.tree.Nodes)
	n.Parent = parent
	a.tree.Nodes = append(a.tree.Nodes, n)
	if parent != NoParent {
		a.tree.Nodes[parent].Children = append(a.tree.Nodes[parent].Children, n.ID)
	}
	return n.ID
}

func rejectf(format string, args ...any) error {
	return ir.NewParseRejected(fmt.Sprintf(format, args...))
}

func (a *annotator) statement(stmt sqlparser.Statement) error {
	switch s := stmt.(type) {
	case *sqlparser.Select, *sqlparser.ParenSelect, *sqlparser.Union:
		return a.selectStatement(NoParent, s.(sqlparser.SelectStatement))
	default:
		return rejectf("only SELECT statements are allowed, found %s", statementName(stmt))
	}
}

func statementName(stmt sqlparser.Statement) string {
	name := fmt.Sprintf("%T", stmt)
	return strings.ToUpper(strings.TrimPrefix(name, "*sqlparser."))
}

func (a *annotator) selectStatement(parent int, stmt sqlparser.SelectStatement) error {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return a.selectNode(parent, s)
	case *sqlparser.ParenSelect:
		return a.selectStatement(parent, s.Select)
	case *sqlparser.Union:
		return rejectf("%s is not allowed", strings.ToUpper(s.Type))
	default:
		return rejectf("unsupported select statement %T", stmt)
	}
}

func (a *annotator) selectNode(parent int, sel *sqlparser.Select) error {
	if sel.Lock != "" {
		return rejectf("locking clause %q is not allowed", strings.TrimSpace(sel.Lock))
	}

	a.nextScope++
	id := a.add(parent, Node{
		Kind:     KindSelect,
		Scope:    a.nextScope,
		Distinct: sel.Distinct != "",
		Text:     sqlparser.String(sel),
	})

	list := a.add(id, Node{Kind: KindSelectList})
	for _, se := range sel.SelectExprs {
		if err := a.selectExpr(list, se); err != nil {
			return err
		}
	}

	if from := withoutDual(sel.From); len(from) > 0 {
		fromID := a.add(id, Node{Kind: KindFrom})
		for _, te := range from {
			if err := a.tableExpr(fromID, te); err != nil {
				return err
			}
		}
	}

	if sel.Where != nil && sel.Where.Expr != nil {
		where := a.add(id, Node{Kind: KindWhere})
		if err := a.expr(where, sel.Where.Expr); err != nil {
			return err
		}
	}

	if len(sel.GroupBy) > 0 {
		group := a.add(id, Node{Kind: KindGroupBy})
		for _, e := range sel.GroupBy {
			if err := a.expr(group, e); err != nil {
				return err
			}
		}
	}

	if sel.Having != nil && sel.Having.Expr != nil {
		having := a.add(id, Node{Kind: KindHaving})
		if err := a.expr(having, sel.Having.Expr); err != nil {
			return err
		}
	}

	if len(sel.OrderBy) > 0 {
		orderBy := a.add(id, Node{Kind: KindOrderBy})
		if err := a.orders(orderBy, sel.OrderBy); err != nil {
			return err
		}
	}

	if sel.Limit != nil {
		limit := a.add(id, Node{Kind: KindLimit, Text: strings.TrimSpace(sqlparser.String(sel.Limit))})
		if err := a.expr(limit, sel.Limit.Rowcount); err != nil {
			return err
		}
		if sel.Limit.Offset != nil {
			if err := a.expr(limit, sel.Limit.Offset); err != nil {
				return err
			}
		}
	}
	return nil
}

// withoutDual drops the implicit DUAL source of a FROM-less SELECT.
func withoutDual(from sqlparser.TableExprs) sqlparser.TableExprs {
	if len(from) != 1 {
		return from
	}
	if ate, ok := from[0].(*sqlparser.AliasedTableExpr); ok {
		if tn, ok := ate.Expr.(sqlparser.TableName); ok && tn.Qualifier.IsEmpty() &&
			strings.EqualFold(tn.Name.String(), "dual") && ate.As.IsEmpty() {
			return nil
		}
	}
	return from
}

func (a *annotator) orders(parent int, orderBy sqlparser.OrderBy) error {
	for _, o := range orderBy {
		order := a.add(parent, Node{Kind: KindOrder, Op: o.Direction})
		if err := a.expr(order, o.Expr); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) selectExpr(parent int, se sqlparser.SelectExpr) error {
	switch e := se.(type) {
	case *sqlparser.StarExpr:
		a.add(parent, Node{
			Kind:      KindStar,
			Qualifier: tableNameString(e.TableName),
			Text:      sqlparser.String(e),
		})
		return nil
	case *sqlparser.AliasedExpr:
		item := a.add(parent, Node{
			Kind:  KindSelectItem,
			Alias: e.As.Lowered(),
			Text:  sqlparser.String(e),
		})
		return a.expr(item, e.Expr)
	default:
		return rejectf("unsupported select expression %s", sqlparser.String(se))
	}
}

func (a *annotator) tableExpr(parent int, te sqlparser.TableExpr) error {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		if t.Hints != nil {
			return rejectf("index hints are not allowed")
		}
		if len(t.Partitions) > 0 {
			return rejectf("partition selection is not allowed")
		}
		switch src := t.Expr.(type) {
		case sqlparser.TableName:
			a.add(parent, Node{
				Kind:  KindTable,
				Name:  tableNameString(src),
				Alias: strings.ToLower(t.As.String()),
				Text:  sqlparser.String(t),
			})
			return nil
		case *sqlparser.Subquery:
			derived := a.add(parent, Node{
				Kind:  KindDerivedTable,
				Alias: strings.ToLower(t.As.String()),
				Text:  sqlparser.String(t),
			})
			return a.selectStatement(derived, src.Select)
		default:
			return rejectf("unsupported table source %s", sqlparser.String(t))
		}
	case *sqlparser.JoinTableExpr:
		if t.Condition.Using != nil {
			return rejectf("JOIN ... USING is not allowed, use ON")
		}
		join := a.add(parent, Node{Kind: KindJoin, Op: t.Join, Text: sqlparser.String(t)})
		if err := a.tableExpr(join, t.LeftExpr); err != nil {
			return err
		}
		if err := a.tableExpr(join, t.RightExpr); err != nil {
			return err
		}
		if t.Condition.On != nil {
			on := a.add(join, Node{Kind: KindOn})
			return a.expr(on, t.Condition.On)
		}
		return nil
	case *sqlparser.ParenTableExpr:
		if len(t.Exprs) != 1 {
			return rejectf("parenthesized table lists are not allowed")
		}
		return a.tableExpr(parent, t.Exprs[0])
	default:
		return rejectf("unsupported table expression %s", sqlparser.String(te))
	}
}

func (a *annotator) expr(parent int, e sqlparser.Expr) error {
	switch x := e.(type) {
	case *sqlparser.ColName:
		a.column(parent, x)
		return nil
	case *sqlparser.FuncExpr:
		fn := a.add(parent, Node{
			Kind:     KindFunc,
			Name:     x.Name.Lowered(),
			Distinct: x.Distinct,
			Text:     sqlparser.String(x),
		})
		for _, arg := range x.Exprs {
			if err := a.funcArg(fn, arg); err != nil {
				return err
			}
		}
		return nil
	case *sqlparser.GroupConcatExpr:
		fn := a.add(parent, Node{
			Kind:     KindFunc,
			Name:     "group_concat",
			Distinct: x.Distinct != "",
			Text:     sqlparser.String(x),
		})
		for _, arg := range x.Exprs {
			if err := a.funcArg(fn, arg); err != nil {
				return err
			}
		}
		return a.orders(fn, x.OrderBy)
	case *sqlparser.SubstrExpr:
		fn := a.add(parent, Node{Kind: KindFunc, Name: "substr", Text: sqlparser.String(x)})
		a.column(fn, x.Name)
		return a.exprs(fn, x.From, x.To)
	case *sqlparser.ComparisonExpr:
		cmp := a.add(parent, Node{Kind: KindComparison, Op: x.Operator, Text: sqlparser.String(x)})
		return a.exprs(cmp, x.Left, x.Right, x.Escape)
	case *sqlparser.AndExpr:
		and := a.add(parent, Node{Kind: KindAnd})
		return a.exprs(and, x.Left, x.Right)
	case *sqlparser.OrExpr:
		or := a.add(parent, Node{Kind: KindOr})
		return a.exprs(or, x.Left, x.Right)
	case *sqlparser.NotExpr:
		not := a.add(parent, Node{Kind: KindNot})
		return a.expr(not, x.Expr)
	case *sqlparser.ParenExpr:
		return a.expr(parent, x.Expr)
	case *sqlparser.BinaryExpr:
		bin := a.add(parent, Node{Kind: KindBinary, Op: x.Operator})
		return a.exprs(bin, x.Left, x.Right)
	case *sqlparser.UnaryExpr:
		un := a.add(parent, Node{Kind: KindUnary, Op: x.Operator})
		return a.expr(un, x.Expr)
	case *sqlparser.IsExpr:
		is := a.add(parent, Node{Kind: KindIs, Op: x.Operator})
		return a.expr(is, x.Expr)
	case *sqlparser.RangeCond:
		rng := a.add(parent, Node{Kind: KindRange, Op: x.Operator})
		return a.exprs(rng, x.Left, x.From, x.To)
	case sqlparser.ValTuple:
		tuple := a.add(parent, Node{Kind: KindTuple})
		return a.exprs(tuple, x...)
	case *sqlparser.CaseExpr:
		c := a.add(parent, Node{Kind: KindCase})
		if err := a.exprs(c, x.Expr); err != nil {
			return err
		}
		for _, w := range x.Whens {
			when := a.add(c, Node{Kind: KindWhen})
			if err := a.exprs(when, w.Cond, w.Val); err != nil {
				return err
			}
		}
		return a.exprs(c, x.Else)
	case *sqlparser.SQLVal:
		if x.Type == sqlparser.ValArg {
			a.add(parent, Node{
				Kind: KindParam,
				Name: strings.TrimPrefix(string(x.Val), ":"),
				Text: string(x.Val),
			})
			return nil
		}
		a.add(parent, Node{Kind: KindLiteral, Op: literalType(x.Type), Text: string(x.Val)})
		return nil
	case *sqlparser.NullVal:
		a.add(parent, Node{Kind: KindNull, Text: "null"})
		return nil
	case sqlparser.BoolVal:
		a.add(parent, Node{Kind: KindBool, Text: sqlparser.String(x)})
		return nil
	case *sqlparser.Subquery:
		sub := a.add(parent, Node{Kind: KindSubqueryExpr, Text: sqlparser.String(x)})
		return a.selectStatement(sub, x.Select)
	case *sqlparser.ExistsExpr:
		exists := a.add(parent, Node{Kind: KindExists, Text: sqlparser.String(x)})
		sub := a.add(exists, Node{Kind: KindSubqueryExpr, Text: sqlparser.String(x.Subquery)})
		return a.selectStatement(sub, x.Subquery.Select)
	case *sqlparser.IntervalExpr:
		iv := a.add(parent, Node{Kind: KindInterval, Op: strings.ToLower(x.Unit)})
		return a.expr(iv, x.Expr)
	case *sqlparser.CollateExpr:
		col := a.add(parent, Node{Kind: KindCollate, Op: x.Charset})
		return a.expr(col, x.Expr)
	case *sqlparser.ConvertExpr:
		cast := a.add(parent, Node{Kind: KindCast, Name: castType(x.Type), Text: sqlparser.String(x)})
		return a.expr(cast, x.Expr)
	default:
		return rejectf("unsupported expression %s", sqlparser.String(e))
	}
}

// exprs annotates each non-nil expression in order.
func (a *annotator) exprs(parent int, es ...sqlparser.Expr) error {
	for _, e := range es {
		if e == nil {
			continue
		}
		if err := a.expr(parent, e); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) funcArg(fn int, arg sqlparser.SelectExpr) error {
	switch x := arg.(type) {
	case *sqlparser.StarExpr:
		a.add(fn, Node{Kind: KindStar, Qualifier: tableNameString(x.TableName), Text: sqlparser.String(x)})
		return nil
	case *sqlparser.AliasedExpr:
		return a.expr(fn, x.Expr)
	default:
		return rejectf("unsupported function argument %s", sqlparser.String(arg))
	}
}

// column adds a column reference. A bare reserved word directly inside a
// function call is a keyword argument, not a column.
func (a *annotator) column(parent int, c *sqlparser.ColName) {
	if c == nil {
		return
	}
	qualifier := tableNameString(c.Qualifier)
	if qualifier == "" && a.tree.Nodes[parent].Kind == KindFunc && a.keywords.Contains(c.Name.String()) {
		a.add(parent, Node{Kind: KindKeyword, Name: c.Name.Lowered(), Text: c.Name.String()})
		return
	}
	a.add(parent, Node{
		Kind:      KindColumn,
		Name:      c.Name.Lowered(),
		Qualifier: qualifier,
		Text:      sqlparser.String(c),
	})
}

// tableNameString renders [db.]table lowercased, or "" for an empty name.
func tableNameString(tn sqlparser.TableName) string {
	if tn.Name.IsEmpty() {
		return ""
	}
	name := strings.ToLower(tn.Name.String())
	if !tn.Qualifier.IsEmpty() {
		return strings.ToLower(tn.Qualifier.String()) + "." + name
	}
	return name
}

func literalType(t sqlparser.ValType) string {
	switch t {
	case sqlparser.StrVal:
		return "string"
	case sqlparser.IntVal:
		return "int"
	case sqlparser.FloatVal:
		return "float"
	case sqlparser.HexNum, sqlparser.HexVal:
		return "hex"
	case sqlparser.BitVal:
		return "bit"
	default:
		return "value"
	}
}

func castType(ct *sqlparser.ConvertType) string {
	if ct == nil {
		return ""
	}
	return strings.ToLower(ct.Type)
}
