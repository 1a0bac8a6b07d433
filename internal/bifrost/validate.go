package bifrost

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/bifrost/internal/alias"
	"github.com/roach88/bifrost/internal/constraint"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/qualify"
	"github.com/roach88/bifrost/internal/tree"
)

// checker walks one resolved tree against one validator.
type checker struct {
	tree     *tree.Tree
	registry *alias.Registry
	columns  map[int][]ir.Column
	v        constraint.Validator
}

func newChecker(t *tree.Tree, reg *alias.Registry, resolutions []qualify.Resolution, v constraint.Validator) *checker {
	columns := make(map[int][]ir.Column, len(resolutions))
	for _, r := range resolutions {
		columns[r.NodeID] = r.Columns
	}
	return &checker{tree: t, registry: reg, columns: columns, v: v}
}

// check returns the first violation. Tables come first, then joins and
// subqueries, then the identifiers in pre-order, then required conditions
// and the row limit.
func (c *checker) check() error {
	if err := c.tree.Walk(c.visitTables); err != nil {
		return err
	}
	if err := c.tree.Walk(c.visitStructure); err != nil {
		return err
	}
	if err := c.tree.Walk(c.visitIdentifiers); err != nil {
		return err
	}
	if err := c.checkRequired(); err != nil {
		return err
	}
	return c.checkLimit()
}

func (c *checker) visitTables(n *tree.Node) (bool, error) {
	if n.Kind == tree.KindTable && !c.v.TableAllowed(n.Name) {
		return false, ir.NewIllegalTable(n.Name)
	}
	return true, nil
}

func (c *checker) visitStructure(n *tree.Node) (bool, error) {
	switch n.Kind {
	case tree.KindFrom:
		if len(n.Children) > 1 {
			return false, ir.NewIllegalJoin(c.fromText(n), "comma join has no join condition")
		}
	case tree.KindJoin:
		return true, c.checkJoin(n)
	case tree.KindSubqueryExpr:
		return false, ir.NewIllegalSubquery(n.Text)
	}
	return true, nil
}

func (c *checker) visitIdentifiers(n *tree.Node) (bool, error) {
	switch n.Kind {
	case tree.KindStar:
		return false, c.checkStar(n)
	case tree.KindColumn:
		return false, c.checkColumn(n)
	case tree.KindFunc:
		if fc, ok := c.v.(constraint.FunctionChecker); ok && !fc.FunctionAllowed(n.Name) {
			return false, ir.NewIllegalFunction(n.Name)
		}
	}
	return true, nil
}

func (c *checker) fromText(from *tree.Node) string {
	text := ""
	for i, id := range from.Children {
		if i > 0 {
			text += ", "
		}
		text += c.tree.Node(id).Text
	}
	return text
}

// checkJoin allows inner joins whose ON clause equates allowed column pairs.
// At least one pair must sit in the top-level AND chain, so the condition
// always constrains the join.
func (c *checker) checkJoin(n *tree.Node) error {
	switch n.Op {
	case sqlparser.JoinStr, sqlparser.StraightJoinStr:
	default:
		return ir.NewIllegalJoinType(n.Op)
	}

	var on *tree.Node
	for _, id := range n.Children {
		if c.tree.Node(id).Kind == tree.KindOn {
			on = c.tree.Node(id)
		}
	}
	if on == nil || len(on.Children) == 0 {
		return ir.NewIllegalJoin(n.Text, "join has no ON condition")
	}

	pairs := 0
	for _, term := range c.conjuncts(on.Children[0]) {
		cmp := c.tree.Node(term)
		if cmp.Kind != tree.KindComparison || cmp.Op != sqlparser.EqualStr {
			continue
		}
		left, right := c.tree.Child(term, 0), c.tree.Child(term, 1)
		if left == nil || right == nil || left.Kind != tree.KindColumn || right.Kind != tree.KindColumn {
			continue
		}
		for _, l := range c.columns[left.ID] {
			for _, r := range c.columns[right.ID] {
				if !c.v.JoinAllowed(l, r) {
					return ir.NewIllegalJoin(cmp.Text, fmt.Sprintf("join on %s = %s is not allowed", l, r))
				}
			}
		}
		pairs++
	}
	if pairs == 0 {
		return ir.NewIllegalJoin(n.Text, "join condition must equate columns")
	}
	return nil
}

// conjuncts flattens the top-level AND chain under id.
func (c *checker) conjuncts(id int) []int {
	n := c.tree.Node(id)
	if n.Kind != tree.KindAnd {
		return []int{id}
	}
	var out []int
	for _, child := range n.Children {
		out = append(out, c.conjuncts(child)...)
	}
	return out
}

// checkStar allows "*" and "t.*" in the select list only through a
// StarChecker. Stars inside function calls, as in COUNT(*), name no column.
func (c *checker) checkStar(n *tree.Node) error {
	if parent := c.tree.Parent(n.ID); parent != nil && parent.Kind == tree.KindFunc {
		return nil
	}
	sc, ok := c.v.(constraint.StarChecker)
	if !ok {
		return ir.NewIllegalSelectedColumn(n.Text, nil)
	}
	s, err := c.registry.Lookup(c.tree, n.ID)
	if err != nil {
		return err
	}

	var tables []string
	if n.Qualifier != "" {
		tables = []string{n.Qualifier}
	} else {
		tables = s.Sources
	}
	for _, t := range tables {
		// Columns reached through a derived table are checked inside it.
		if t == "" || s.IsSubquery(t) {
			continue
		}
		table := s.TableFor(t)
		if !sc.SelectStarAllowed(table) {
			return ir.NewIllegalSelectedColumn(n.Text, &ir.Column{Table: table, Column: "*"})
		}
	}
	return nil
}

// checkColumn applies the select rule in the select list and the condition
// rule everywhere else.
func (c *checker) checkColumn(n *tree.Node) error {
	cols, ok := c.columns[n.ID]
	if !ok {
		return ir.NewInternalScope(n.ID)
	}
	clause, _ := c.tree.Clause(n.ID)
	for _, col := range cols {
		if clause != nil && clause.Kind == tree.KindSelectList {
			if !c.v.SelectColumnAllowed(col) {
				return ir.NewIllegalSelectedColumn(n.Text, &col)
			}
			continue
		}
		if !c.v.ConditionColumnAllowed(col) {
			return ir.NewIllegalConditionColumn(n.Text, col)
		}
	}
	return nil
}

// checkRequired makes every scope that reads a constrained table carry the
// required `table.column = :param` in its top-level WHERE conjunction.
func (c *checker) checkRequired() error {
	cr, ok := c.v.(constraint.ConstraintRequirer)
	if !ok {
		return nil
	}
	for _, pc := range cr.RequiredConstraints() {
		for _, id := range c.registry.Scopes() {
			s, _ := c.registry.Scope(id)
			if !readsTable(s, pc.Column.Table) {
				continue
			}
			if !c.scopeHasConstraint(id, pc) {
				return ir.NewMissingConstraint(pc)
			}
		}
	}
	return nil
}

func readsTable(s *alias.ScopeAliases, table string) bool {
	for _, src := range s.Sources {
		if src == table {
			return true
		}
	}
	return false
}

func (c *checker) scopeHasConstraint(scope tree.ScopeID, pc ir.ParamConstraint) bool {
	sel, ok := c.tree.ScopeNode(scope)
	if !ok {
		return false
	}
	for _, child := range c.tree.Node(sel).Children {
		where := c.tree.Node(child)
		if where.Kind != tree.KindWhere || len(where.Children) == 0 {
			continue
		}
		for _, term := range c.conjuncts(where.Children[0]) {
			if c.bindsParam(term, pc) {
				return true
			}
		}
	}
	return false
}

// bindsParam matches `col = :param` in either order.
func (c *checker) bindsParam(id int, pc ir.ParamConstraint) bool {
	cmp := c.tree.Node(id)
	if cmp.Kind != tree.KindComparison || cmp.Op != sqlparser.EqualStr {
		return false
	}
	left, right := c.tree.Child(id, 0), c.tree.Child(id, 1)
	if left == nil || right == nil {
		return false
	}
	if left.Kind == tree.KindParam {
		left, right = right, left
	}
	if left.Kind != tree.KindColumn || right.Kind != tree.KindParam || right.Name != pc.Param {
		return false
	}
	cols := c.columns[left.ID]
	return len(cols) == 1 && cols[0] == pc.Column
}

// checkLimit requires the outer query to carry a literal LIMIT within the
// validator's cap.
func (c *checker) checkLimit() error {
	lc, ok := c.v.(constraint.LimitChecker)
	if !ok || lc.MaxLimit() <= 0 {
		return nil
	}
	maxRows := lc.MaxLimit()

	for _, id := range c.tree.Root().Children {
		limit := c.tree.Node(id)
		if limit.Kind != tree.KindLimit {
			continue
		}
		count := c.tree.Child(id, 0)
		if count == nil || count.Kind != tree.KindLiteral || count.Op != "int" {
			return ir.NewIllegalLimit(limit.Text, maxRows)
		}
		n, err := cast.ToInt64E(count.Text)
		if err != nil || n < 0 || n > int64(maxRows) {
			return ir.NewIllegalLimit(limit.Text, maxRows)
		}
		return nil
	}
	return ir.NewIllegalLimit("", maxRows)
}
