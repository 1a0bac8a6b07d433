package tree

import "fmt"

// ScopeID identifies one query scope. Zero means "not a scope boundary".
type ScopeID uint32

// NoParent is the parent index of the root node.
const NoParent = -1

// Node is one annotated syntax node.
//
// Field use depends on Kind:
//   - Name: table, column, function, keyword or parameter name (lowercased
//     identifiers)
//   - Qualifier: a column's table part, a star's table part
//   - Alias: a table, derived table or select item alias
//   - Op: operator, join type, order direction, literal type, interval unit
//   - Text: the source rendering, used in error messages
type Node struct {
	ID       int
	Parent   int
	Kind     Kind
	Children []int
	Scope    ScopeID

	Name      string
	Qualifier string
	Alias     string
	Op        string
	Text      string
	Distinct  bool
}

// Tree is an annotated, disambiguated syntax tree.
// Nodes are stored in pre-order; the root is node 0.
type Tree struct {
	Nodes []Node

	// Source is the text of the chosen derivation.
	Source string

	// Statement is the parser's canonical rendering of the chosen derivation.
	Statement string

	// Placeholders is the chosen derivation's placeholder count.
	Placeholders int

	// Scopes is the number of scopes minted.
	Scopes int
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) *Node {
	return &t.Nodes[id]
}

// Parent returns the parent of a node, or nil for the root.
func (t *Tree) Parent(id int) *Node {
	p := t.Nodes[id].Parent
	if p == NoParent {
		return nil
	}
	return &t.Nodes[p]
}

// Child returns the i-th child of a node, or nil if there is none.
func (t *Tree) Child(id, i int) *Node {
	children := t.Nodes[id].Children
	if i < 0 || i >= len(children) {
		return nil
	}
	return &t.Nodes[children[i]]
}

// EnclosingScope returns the scope of the nearest scope boundary at or above
// id, along with that boundary's node id.
func (t *Tree) EnclosingScope(id int) (ScopeID, int, bool) {
	for cur := id; cur != NoParent; cur = t.Nodes[cur].Parent {
		if t.Nodes[cur].Kind.IsScopeBoundary() {
			return t.Nodes[cur].Scope, cur, true
		}
	}
	return 0, NoParent, false
}

// ScopeNode returns the node id of the boundary that minted scope.
func (t *Tree) ScopeNode(scope ScopeID) (int, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].Kind.IsScopeBoundary() && t.Nodes[i].Scope == scope {
			return i, true
		}
	}
	return NoParent, false
}

// Clause returns the nearest clause node above id within the same scope.
func (t *Tree) Clause(id int) (*Node, bool) {
	for cur := t.Nodes[id].Parent; cur != NoParent; cur = t.Nodes[cur].Parent {
		k := t.Nodes[cur].Kind
		if k.IsScopeBoundary() {
			return nil, false
		}
		if k.IsClause() {
			return &t.Nodes[cur], true
		}
	}
	return nil, false
}

// Ancestor returns the nearest node above id of the given kind, stopping at
// the enclosing scope boundary.
func (t *Tree) Ancestor(id int, kind Kind) (*Node, bool) {
	for cur := t.Nodes[id].Parent; cur != NoParent; cur = t.Nodes[cur].Parent {
		n := &t.Nodes[cur]
		if n.Kind == kind {
			return n, true
		}
		if n.Kind.IsScopeBoundary() {
			return nil, false
		}
	}
	return nil, false
}

// VisitFunc is called for each node in pre-order. Returning false skips the
// node's children.
type VisitFunc func(n *Node) (descend bool, err error)

// Walk visits the whole tree in pre-order.
func (t *Tree) Walk(fn VisitFunc) error {
	if len(t.Nodes) == 0 {
		return nil
	}
	return t.WalkFrom(0, fn)
}

// WalkFrom visits the subtree rooted at id in pre-order.
func (t *Tree) WalkFrom(id int, fn VisitFunc) error {
	descend, err := fn(&t.Nodes[id])
	if err != nil || !descend {
		return err
	}
	for _, c := range t.Nodes[id].Children {
		if err := t.WalkFrom(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Collect returns the ids of nodes of the given kind in the subtree rooted at
// id, without entering nested scopes.
func (t *Tree) Collect(id int, kind Kind) []int {
	var out []int
	_ = t.WalkFrom(id, func(n *Node) (bool, error) {
		if n.ID != id && n.Kind.IsScopeBoundary() {
			return false, nil
		}
		if n.Kind == kind {
			out = append(out, n.ID)
		}
		return true, nil
	})
	return out
}

// String renders a node for diagnostics.
func (n *Node) String() string {
	switch n.Kind {
	case KindColumn:
		if n.Qualifier != "" {
			return fmt.Sprintf("%s(%s.%s)", n.Kind, n.Qualifier, n.Name)
		}
		return fmt.Sprintf("%s(%s)", n.Kind, n.Name)
	case KindSelect:
		return fmt.Sprintf("%s#%d", n.Kind, n.Scope)
	case KindTable, KindDerivedTable, KindSelectItem:
		if n.Alias != "" {
			return fmt.Sprintf("%s(%s AS %s)", n.Kind, n.Name, n.Alias)
		}
		return fmt.Sprintf("%s(%s)", n.Kind, n.Name)
	}
	return n.Kind.String()
}
