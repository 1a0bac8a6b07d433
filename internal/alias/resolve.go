package alias

import (
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/tree"
)

// ref is a column reference with its table part as written.
type ref struct {
	qualifier string
	name      string
	raw       string
}

// pending is a column alias recorded by the first pass.
type pending struct {
	expression bool
	refs       []ref
}

// merge folds another definition of the same alias into p. An expression
// alias stays an expression alias.
func (p pending) merge(other pending) pending {
	if p.expression || other.expression {
		return pending{expression: true}
	}
	return pending{refs: append(append([]ref(nil), p.refs...), other.refs...)}
}

// scopeState is the first-pass record of one scope.
type scopeState struct {
	aliases *ScopeAliases
	columns map[string]pending
	exposed map[string]pending
}

type resolver struct {
	tree   *tree.Tree
	scopes map[tree.ScopeID]*scopeState
	order  []tree.ScopeID
}

// Resolve builds the alias registry of an annotated tree.
//
// Resolution never rejects a query. The only error is INTERNAL_SCOPE, for a
// node that has no enclosing scope.
func Resolve(t *tree.Tree) (*Registry, error) {
	r := &resolver{tree: t, scopes: make(map[tree.ScopeID]*scopeState)}
	if err := t.Walk(r.record); err != nil {
		return nil, err
	}

	reg := newRegistry()
	for _, id := range r.order {
		st := r.scopes[id]
		st.finalize()
		reg.scopes[id] = st.aliases
	}
	return reg, nil
}

// scopeOf returns the first-pass state of the scope enclosing a node.
func (r *resolver) scopeOf(id int) (*scopeState, error) {
	scope, _, ok := r.tree.EnclosingScope(id)
	if !ok {
		return nil, ir.NewInternalScope(id)
	}
	st, ok := r.scopes[scope]
	if !ok {
		return nil, ir.NewInternalScope(id)
	}
	return st, nil
}

// record is the first pass.
func (r *resolver) record(n *tree.Node) (bool, error) {
	switch n.Kind {
	case tree.KindSelect:
		var parent tree.ScopeID
		if n.Parent != tree.NoParent {
			if scope, _, ok := r.tree.EnclosingScope(n.Parent); ok {
				parent = scope
			}
		}
		r.scopes[n.Scope] = &scopeState{
			aliases: newScopeAliases(n.Scope, parent),
			columns: make(map[string]pending),
			exposed: make(map[string]pending),
		}
		r.order = append(r.order, n.Scope)

	case tree.KindTable:
		st, err := r.scopeOf(n.ID)
		if err != nil {
			return false, err
		}
		st.aliases.Sources = append(st.aliases.Sources, n.Name)
		if n.Alias != "" {
			st.aliases.Tables[n.Alias] = n.Name
		}

	case tree.KindDerivedTable:
		st, err := r.scopeOf(n.ID)
		if err != nil {
			return false, err
		}
		// An unaliased derived table still counts as a source, but one
		// nothing can name.
		st.aliases.Sources = append(st.aliases.Sources, n.Alias)
		if n.Alias != "" {
			if sub := r.tree.Child(n.ID, 0); sub != nil && sub.Kind == tree.KindSelect {
				st.aliases.Subqueries[n.Alias] = sub.Scope
			}
		}

	case tree.KindSelectItem:
		st, err := r.scopeOf(n.ID)
		if err != nil {
			return false, err
		}
		r.recordItem(st, n)
	}
	return true, nil
}

// recordItem records a column alias, or exposes an unaliased plain column.
func (r *resolver) recordItem(st *scopeState, item *tree.Node) {
	expr := r.tree.Child(item.ID, 0)
	if expr == nil {
		return
	}

	if item.Alias == "" {
		if expr.Kind == tree.KindColumn {
			name := expr.Name
			st.exposed[name] = st.exposed[name].merge(pending{refs: []ref{refOf(expr)}})
		}
		return
	}

	def := pending{expression: true}
	if !(expr.Kind == tree.KindFunc && expr.Name == "count") {
		var refs []ref
		for _, id := range r.tree.Collect(expr.ID, tree.KindColumn) {
			refs = append(refs, refOf(r.tree.Node(id)))
		}
		if len(refs) > 0 {
			def = pending{refs: refs}
		}
	}

	if prev, ok := st.columns[item.Alias]; ok {
		def = prev.merge(def)
	}
	st.columns[item.Alias] = def
}

func refOf(n *tree.Node) ref {
	return ref{qualifier: n.Qualifier, name: n.Name, raw: n.Text}
}

// finalize is the second pass for one scope. Every table part is mapped
// through the scope's complete table alias map.
func (st *scopeState) finalize() {
	a := st.aliases
	if len(a.Sources) == 1 {
		a.DefaultTable = a.Sources[0]
	}
	for name, p := range st.columns {
		a.Columns[name] = st.resolve(p)
	}
	for name, p := range st.exposed {
		a.Exposed[name] = st.resolve(p)
	}
}

func (st *scopeState) resolve(p pending) ColumnAlias {
	if p.expression {
		return ColumnAlias{Expression: true}
	}
	set := ir.NewColumnSet()
	var unresolved []string
	for _, r := range p.refs {
		table := st.aliases.DefaultTable
		if r.qualifier != "" {
			table = st.aliases.TableFor(r.qualifier)
		}
		if table == "" {
			unresolved = append(unresolved, r.raw)
			continue
		}
		set.Add(ir.NewColumn(table, r.name))
	}
	return ColumnAlias{Columns: set.Sorted(), Unresolved: unresolved}
}
