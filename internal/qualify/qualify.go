// Package qualify turns column references into fully-qualified columns using
// the alias tables of their enclosing scope.
package qualify

import (
	"github.com/roach88/bifrost/internal/alias"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/tree"
)

// Resolution is the qualified form of one column reference.
type Resolution struct {
	NodeID  int          `json:"node"`
	Raw     string       `json:"raw"`
	Scope   tree.ScopeID `json:"scope"`
	Clause  string       `json:"clause"`
	Columns []ir.Column  `json:"columns"`
}

// Qualifier resolves column references of one tree.
type Qualifier struct {
	tree     *tree.Tree
	registry *alias.Registry
}

// New creates a Qualifier over a resolved tree.
func New(t *tree.Tree, reg *alias.Registry) *Qualifier {
	return &Qualifier{tree: t, registry: reg}
}

// Resolve returns the columns a column node denotes, sorted and
// de-duplicated. A reference through a composite alias yields every
// contributing column.
//
// Lookup order: subquery alias, column alias (bare names outside the select
// list), table alias, default table (bare names not inside a scalar function
// call), then the table part taken literally.
// Returns UNQUALIFIED_COLUMN when no table can be determined.
func (q *Qualifier) Resolve(nodeID int) ([]ir.Column, error) {
	n := q.tree.Node(nodeID)
	if n.Kind != tree.KindColumn {
		return nil, ir.NewInternalScope(nodeID)
	}
	s, err := q.registry.Lookup(q.tree, nodeID)
	if err != nil {
		return nil, err
	}

	var cols []ir.Column
	if n.Qualifier != "" {
		cols, err = q.qualified(s, n.Qualifier, n.Name, n.Text)
	} else {
		cols, err = q.bare(s, nodeID, n.Name, n.Text)
	}
	if err != nil {
		return nil, err
	}
	return ir.NewColumnSet(cols...).Sorted(), nil
}

// ResolveAll resolves every column node in pre-order and stops at the first
// failure.
func (q *Qualifier) ResolveAll() ([]Resolution, error) {
	var out []Resolution
	err := q.tree.Walk(func(n *tree.Node) (bool, error) {
		if n.Kind != tree.KindColumn {
			return true, nil
		}
		cols, err := q.Resolve(n.ID)
		if err != nil {
			return false, err
		}
		scope, _, _ := q.tree.EnclosingScope(n.ID)
		r := Resolution{NodeID: n.ID, Raw: n.Text, Scope: scope, Columns: cols}
		if clause, ok := q.tree.Clause(n.ID); ok {
			r.Clause = clause.Kind.String()
		}
		out = append(out, r)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// insideScalarFunc reports whether a bare column sits anywhere inside a
// non-aggregate function call of its scope. Such an argument may be a
// dialect token rather than a column, so it is never default-qualified.
func (q *Qualifier) insideScalarFunc(nodeID int) bool {
	for cur := q.tree.Node(nodeID).Parent; cur != tree.NoParent; cur = q.tree.Node(cur).Parent {
		n := q.tree.Node(cur)
		if n.Kind.IsScopeBoundary() {
			return false
		}
		if n.Kind == tree.KindFunc && !tree.IsAggregate(n.Name) {
			return true
		}
	}
	return false
}

func (q *Qualifier) qualified(s *alias.ScopeAliases, qualifier, name, raw string) ([]ir.Column, error) {
	if s.IsSubquery(qualifier) {
		return q.table(s, qualifier, name, raw)
	}
	return []ir.Column{ir.NewColumn(s.TableFor(qualifier), name)}, nil
}

// bare resolves an unqualified name in its own scope. Column aliases are
// not visible in the select list: there a bare name is always a real column
// of the default table.
func (q *Qualifier) bare(s *alias.ScopeAliases, nodeID int, name, raw string) ([]ir.Column, error) {
	if clause, ok := q.tree.Clause(nodeID); !ok || clause.Kind != tree.KindSelectList {
		if a, ok := s.Columns[name]; ok {
			return q.expand(s, a, raw)
		}
	}
	if q.insideScalarFunc(nodeID) {
		return nil, ir.NewUnqualifiedColumn(raw)
	}
	return q.fromDefault(s, name, raw)
}

// exposed resolves a name an outer query reaches through a subquery alias.
func (q *Qualifier) exposed(s *alias.ScopeAliases, name, raw string) ([]ir.Column, error) {
	if a, ok := s.Columns[name]; ok {
		return q.expand(s, a, raw)
	}
	if a, ok := s.Exposed[name]; ok {
		return q.expand(s, a, raw)
	}
	return q.fromDefault(s, name, raw)
}

func (q *Qualifier) fromDefault(s *alias.ScopeAliases, name, raw string) ([]ir.Column, error) {
	if s.DefaultTable == "" {
		return nil, ir.NewUnqualifiedColumn(raw)
	}
	return q.table(s, s.DefaultTable, name, raw)
}

// table qualifies name with a resolved table, descending into the nested
// scope when the table is a subquery alias.
func (q *Qualifier) table(s *alias.ScopeAliases, table, name, raw string) ([]ir.Column, error) {
	sub, ok := s.Subqueries[table]
	if !ok {
		return []ir.Column{ir.NewColumn(table, name)}, nil
	}
	nested, ok := q.registry.Scope(sub)
	if !ok {
		return nil, ir.NewInternalScope(-1)
	}
	return q.exposed(nested, name, raw)
}

// expand substitutes a column alias. Every member applies.
func (q *Qualifier) expand(s *alias.ScopeAliases, a alias.ColumnAlias, raw string) ([]ir.Column, error) {
	if !a.Resolvable() {
		return nil, ir.NewUnqualifiedColumn(raw)
	}
	var out []ir.Column
	for _, m := range a.Columns {
		cols, err := q.table(s, m.Table, m.Column, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}
