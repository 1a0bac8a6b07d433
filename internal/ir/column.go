package ir

import (
	"slices"
	"strings"
)

// Column is a fully-qualified column reference: an unambiguous
// (table, column) pair.
//
// Column is a value type. Resolution never mutates a recorded Column; a
// column whose table part is still an alias is replaced by a new value once
// the alias is resolved.
type Column struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// NewColumn builds a Column with lowercased identifiers.
// SQL identifiers are compared case-insensitively throughout the guard.
func NewColumn(table, column string) Column {
	return Column{Table: strings.ToLower(table), Column: strings.ToLower(column)}
}

// ParseColumn parses "table.column". A missing dot yields an unqualified
// column with an empty table.
func ParseColumn(s string) Column {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return NewColumn(s[:i], s[i+1:])
	}
	return NewColumn("", s)
}

// Qualified reports whether the column carries a table part.
func (c Column) Qualified() bool {
	return c.Table != ""
}

// String renders the column as "table.column".
func (c Column) String() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Compare orders columns by table, then column.
func (c Column) Compare(other Column) int {
	if r := strings.Compare(c.Table, other.Table); r != 0 {
		return r
	}
	return strings.Compare(c.Column, other.Column)
}

// ColumnSet is a set of columns with deterministic iteration.
type ColumnSet map[Column]struct{}

// NewColumnSet builds a set from the given columns.
func NewColumnSet(cols ...Column) ColumnSet {
	s := make(ColumnSet, len(cols))
	for _, c := range cols {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts a column.
func (s ColumnSet) Add(c Column) {
	s[c] = struct{}{}
}

// Contains reports whether c is in the set.
func (s ColumnSet) Contains(c Column) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members ordered by Column.Compare.
func (s ColumnSet) Sorted() []Column {
	out := make([]Column, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.SortFunc(out, Column.Compare)
	return out
}

// ParamConstraint requires a condition of the form `table.column = :param`.
type ParamConstraint struct {
	Column Column `json:"column"`
	Param  string `json:"param"`
}

// String renders the constraint the way it must appear in a query.
func (p ParamConstraint) String() string {
	return p.Column.String() + " = :" + p.Param
}
