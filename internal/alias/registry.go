package alias

import (
	"slices"

	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/tree"
)

// ColumnAlias is what a column alias (or an exposed select item) denotes.
type ColumnAlias struct {
	// Expression marks an alias bound to something other than columns: a
	// count aggregate or an expression with no column reference. Such an
	// alias never resolves.
	Expression bool

	// Columns are the contributing columns, sorted and de-duplicated. A
	// column whose table is a subquery alias resolves through that
	// subquery's scope.
	Columns []ir.Column

	// Unresolved holds the raw text of contributing bare columns for which
	// the scope has no default table.
	Unresolved []string
}

// Resolvable reports whether the alias can stand in for columns.
func (c ColumnAlias) Resolvable() bool {
	return !c.Expression && len(c.Unresolved) == 0 && len(c.Columns) > 0
}

// ScopeAliases holds the alias tables of one scope.
// It is read-only once Resolve returns.
type ScopeAliases struct {
	Scope  tree.ScopeID
	Parent tree.ScopeID // 0 for the outermost query

	// Tables maps a table alias to its table.
	Tables map[string]string

	// Columns maps a column alias to the columns it denotes.
	Columns map[string]ColumnAlias

	// Subqueries maps a derived-table alias to the subquery's scope.
	Subqueries map[string]tree.ScopeID

	// Exposed maps the names of unaliased column items to their column, so
	// an outer query can reach them through the subquery alias.
	Exposed map[string]ColumnAlias

	// Sources lists the scope's FROM sources: table names and subquery
	// aliases, in source order.
	Sources []string

	// DefaultTable is set when the scope has exactly one source. For a
	// derived table it is the subquery alias.
	DefaultTable string
}

func newScopeAliases(scope, parent tree.ScopeID) *ScopeAliases {
	return &ScopeAliases{
		Scope:      scope,
		Parent:     parent,
		Tables:     make(map[string]string),
		Columns:    make(map[string]ColumnAlias),
		Subqueries: make(map[string]tree.ScopeID),
		Exposed:    make(map[string]ColumnAlias),
	}
}

// TableFor maps a table part to an authoritative table name: through the
// table alias map when it is an alias, unchanged otherwise.
func (s *ScopeAliases) TableFor(qualifier string) string {
	if table, ok := s.Tables[qualifier]; ok {
		return table
	}
	return qualifier
}

// IsSubquery reports whether name is a derived-table alias of this scope.
func (s *ScopeAliases) IsSubquery(name string) bool {
	_, ok := s.Subqueries[name]
	return ok
}

// Registry maps scope ids to their alias tables.
type Registry struct {
	scopes map[tree.ScopeID]*ScopeAliases
}

func newRegistry() *Registry {
	return &Registry{scopes: make(map[tree.ScopeID]*ScopeAliases)}
}

// Scope returns the alias tables of a scope.
func (r *Registry) Scope(id tree.ScopeID) (*ScopeAliases, bool) {
	s, ok := r.scopes[id]
	return s, ok
}

// Lookup returns the alias tables of the scope enclosing a node.
// Returns an INTERNAL_SCOPE GuardError when the node has no registered scope.
func (r *Registry) Lookup(t *tree.Tree, nodeID int) (*ScopeAliases, error) {
	scope, _, ok := t.EnclosingScope(nodeID)
	if !ok {
		return nil, ir.NewInternalScope(nodeID)
	}
	s, ok := r.scopes[scope]
	if !ok {
		return nil, ir.NewInternalScope(nodeID)
	}
	return s, nil
}

// Scopes returns the registered scope ids in ascending order.
func (r *Registry) Scopes() []tree.ScopeID {
	ids := make([]tree.ScopeID, 0, len(r.scopes))
	for id := range r.scopes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered scopes.
func (r *Registry) Len() int {
	return len(r.scopes)
}
