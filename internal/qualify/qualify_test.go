package qualify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bifrost/internal/alias"
	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/tree"
)

func qualifier(t *testing.T, query string) (*tree.Tree, *Qualifier) {
	t.Helper()
	engine, err := grammar.New(grammar.DialectMySQL)
	require.NoError(t, err)
	forest, err := engine.Parse(query)
	require.NoError(t, err)
	tr, err := tree.Annotate(forest)
	require.NoError(t, err)
	reg, err := alias.Resolve(tr)
	require.NoError(t, err)
	return tr, New(tr, reg)
}

// columnIn returns the first column node under the given clause kind of the
// outermost query.
func columnIn(t *testing.T, tr *tree.Tree, clause tree.Kind) int {
	t.Helper()
	for _, id := range tr.Collect(0, tree.KindColumn) {
		if c, ok := tr.Clause(id); ok && c.Kind == clause {
			return id
		}
	}
	t.Fatalf("no column under %s", clause)
	return -1
}

func cols(specs ...string) []ir.Column {
	out := make([]ir.Column, len(specs))
	for i, s := range specs {
		out[i] = ir.ParseColumn(s)
	}
	return out
}

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		clause   tree.Kind
		expected []ir.Column
	}{
		{"qualified", "SELECT t1.col FROM t1", tree.KindSelectList, cols("t1.col")},
		{"table alias", "SELECT x.col FROM t1 AS x", tree.KindSelectList, cols("t1.col")},
		{"default table", "SELECT col FROM t1", tree.KindSelectList, cols("t1.col")},
		{"column alias", "SELECT t1.col AS thing FROM t1 WHERE thing = 42", tree.KindWhere, cols("t1.col")},
		{"column alias over table alias", "SELECT x.col AS thing FROM t1 AS x WHERE thing = 42", tree.KindWhere, cols("t1.col")},
		{"literal qualifier", "SELECT t2.col FROM t1", tree.KindSelectList, cols("t2.col")},
		{"aggregate argument", "SELECT sum(col) FROM t1", tree.KindSelectList, cols("t1.col")},
		{"join condition", "SELECT a.x FROM t1 AS a JOIN t2 AS b ON a.id = b.t1_id", tree.KindOn, cols("t1.id")},
		{"case folding", "SELECT X.Col FROM T1 AS x", tree.KindSelectList, cols("t1.col")},
		{"column alias in scalar function", "SELECT t1.col AS thing FROM t1 ORDER BY lower(thing)", tree.KindOrderBy, cols("t1.col")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, q := qualifier(t, tt.query)
			got, err := q.Resolve(columnIn(t, tr, tt.clause))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolve_Unqualified(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		clause tree.Kind
		raw    string
	}{
		{"bare column in scalar function", "SELECT whatever(col) FROM t1", tree.KindSelectList, "col"},
		{"bare column in scalar function outside select", "SELECT t1.col AS thing FROM t1 ORDER BY lower(other)", tree.KindOrderBy, "other"},
		{"bare column with two tables", "SELECT col FROM t1 JOIN t2 ON t1.id = t2.id", tree.KindSelectList, "col"},
		{"expression alias", "SELECT 1 + 1 AS x FROM t1 WHERE x = 2", tree.KindWhere, "x"},
		{"count alias", "SELECT COUNT(*) AS n FROM t1 GROUP BY t1.a HAVING n > 1", tree.KindHaving, "n"},
		{"count alias without AS", "SELECT COUNT(t1.a) n FROM t1 ORDER BY n", tree.KindOrderBy, "n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, q := qualifier(t, tt.query)
			_, err := q.Resolve(columnIn(t, tr, tt.clause))
			require.Error(t, err)
			require.True(t, ir.IsUnqualifiedColumn(err))
			ge, ok := ir.AsGuardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.raw, ge.Raw)
		})
	}
}

func TestResolve_SelectListIgnoresColumnAlias(t *testing.T) {
	tr, q := qualifier(t, "SELECT users.name AS password, password FROM users")
	ids := tr.Collect(0, tree.KindColumn)
	require.Len(t, ids, 2)

	got, err := q.Resolve(ids[1])
	require.NoError(t, err)
	assert.Equal(t, cols("users.password"), got)

	// The alias still applies outside the select list.
	tr, q = qualifier(t, "SELECT users.name AS password FROM users WHERE password = 'x'")
	got, err = q.Resolve(columnIn(t, tr, tree.KindWhere))
	require.NoError(t, err)
	assert.Equal(t, cols("users.name"), got)
}

func TestResolve_CompositeAlias(t *testing.T) {
	tr, q := qualifier(t, "SELECT (a.x + b.y) AS total FROM t1 AS a JOIN t2 AS b ON a.id = b.id ORDER BY total")

	got, err := q.Resolve(columnIn(t, tr, tree.KindOrderBy))
	require.NoError(t, err)
	assert.Equal(t, cols("t1.x", "t2.y"), got)
}

func TestResolve_GroupByAliasOfFunction(t *testing.T) {
	tr, q := qualifier(t, "SELECT COUNT(*) num, strftime('%Y', rental.rental_date) AS rental_year "+
		"FROM rental JOIN customer ON rental.customer_id = customer.customer_id "+
		"WHERE customer.customer_id = :p GROUP BY rental_year LIMIT 20")

	got, err := q.Resolve(columnIn(t, tr, tree.KindGroupBy))
	require.NoError(t, err)
	assert.Equal(t, cols("rental.rental_date"), got)
}

func TestResolve_ThroughSubqueryAlias(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []ir.Column
	}{
		{"aliased item", "SELECT sq.c FROM (SELECT x.col AS c FROM t1 AS x) AS sq", cols("t1.col")},
		{"exposed item", "SELECT sq.col FROM (SELECT x.col FROM t1 AS x) AS sq", cols("t1.col")},
		{"inner default table", "SELECT sq.col FROM (SELECT * FROM t1) AS sq", cols("t1.col")},
		{"outer default table", "SELECT c FROM (SELECT t1.col AS c FROM t1) AS sq", cols("t1.col")},
		{"composite through subquery", "SELECT sq.total FROM (SELECT a.x + b.y AS total FROM t1 AS a JOIN t2 AS b ON a.id = b.id) AS sq", cols("t1.x", "t2.y")},
		{"two levels", "SELECT o.c FROM (SELECT i.c FROM (SELECT t1.col AS c FROM t1) AS i) AS o", cols("t1.col")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, q := qualifier(t, tt.query)
			got, err := q.Resolve(columnIn(t, tr, tree.KindSelectList))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolve_SubqueryExpressionAlias(t *testing.T) {
	tr, q := qualifier(t, "SELECT sq.n FROM (SELECT COUNT(*) AS n FROM t1) AS sq")

	_, err := q.Resolve(columnIn(t, tr, tree.KindSelectList))
	assert.True(t, ir.IsUnqualifiedColumn(err))
}

func TestResolve_ScopeIsolation(t *testing.T) {
	// The inner query's alias x must not resolve the outer reference.
	tr, q := qualifier(t, "SELECT x.a FROM t1 WHERE t1.id IN (SELECT x.id FROM t2 AS x)")

	got, err := q.Resolve(columnIn(t, tr, tree.KindSelectList))
	require.NoError(t, err)
	assert.Equal(t, cols("x.a"), got, "outer x is taken literally, not as t2")

	inner, ok := tr.ScopeNode(2)
	require.True(t, ok)
	innerCols := tr.Collect(inner, tree.KindColumn)
	require.Len(t, innerCols, 1)
	got, err = q.Resolve(innerCols[0])
	require.NoError(t, err)
	assert.Equal(t, cols("t2.id"), got)
}

func TestResolve_ParentAliasDoesNotLeakIn(t *testing.T) {
	tr, q := qualifier(t, "SELECT o.a FROM t1 AS o WHERE o.id IN (SELECT o.id FROM t2)")

	inner, ok := tr.ScopeNode(2)
	require.True(t, ok)
	innerCols := tr.Collect(inner, tree.KindColumn)
	require.Len(t, innerCols, 1)
	got, err := q.Resolve(innerCols[0])
	require.NoError(t, err)
	assert.Equal(t, cols("o.id"), got)
}

func TestResolveAll(t *testing.T) {
	tr, q := qualifier(t, "SELECT t1.col AS thing FROM t1 WHERE thing = 42")

	res, err := q.ResolveAll()
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "t1.col", res[0].Raw)
	assert.Equal(t, "select_list", res[0].Clause)
	assert.Equal(t, "thing", res[1].Raw)
	assert.Equal(t, "where", res[1].Clause)
	assert.Equal(t, tree.ScopeID(1), res[1].Scope)
	for _, r := range res {
		assert.Equal(t, cols("t1.col"), r.Columns)
		assert.Equal(t, tree.KindColumn, tr.Node(r.NodeID).Kind)
	}
}

func TestResolveAll_StopsAtFirstFailure(t *testing.T) {
	_, q := qualifier(t, "SELECT whatever(col) FROM t1")

	_, err := q.ResolveAll()
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeUnqualifiedColumn, ir.CodeOf(err))
}

func TestResolve_NotAColumn(t *testing.T) {
	_, q := qualifier(t, "SELECT t1.a FROM t1")
	_, err := q.Resolve(0)
	assert.True(t, ir.IsInternal(err))
}
