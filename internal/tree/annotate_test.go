package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/ir"
)

func annotate(t *testing.T, d grammar.Dialect, text string, opts ...grammar.Option) (*Tree, error) {
	t.Helper()
	engine, err := grammar.New(d, opts...)
	require.NoError(t, err)
	forest, err := engine.Parse(text)
	if err != nil {
		return nil, err
	}
	return Annotate(forest)
}

func mustAnnotate(t *testing.T, text string) *Tree {
	t.Helper()
	tr, err := annotate(t, grammar.DialectMySQL, text)
	require.NoError(t, err)
	return tr
}

func kindsOf(tr *Tree, ids []int) []Kind {
	out := make([]Kind, len(ids))
	for i, id := range ids {
		out[i] = tr.Node(id).Kind
	}
	return out
}

func TestAnnotate_SimpleSelect(t *testing.T) {
	tr := mustAnnotate(t, "SELECT t1.col FROM t1 WHERE t1.col = 1")

	root := tr.Root()
	assert.Equal(t, KindSelect, root.Kind)
	assert.Equal(t, ScopeID(1), root.Scope)
	assert.Equal(t, NoParent, root.Parent)
	assert.Equal(t, 1, tr.Scopes)
	assert.Equal(t, []Kind{KindSelectList, KindFrom, KindWhere}, kindsOf(tr, root.Children))

	cols := tr.Collect(0, KindColumn)
	require.Len(t, cols, 2)
	for _, id := range cols {
		n := tr.Node(id)
		assert.Equal(t, "t1", n.Qualifier)
		assert.Equal(t, "col", n.Name)
		scope, boundary, ok := tr.EnclosingScope(id)
		require.True(t, ok)
		assert.Equal(t, ScopeID(1), scope)
		assert.Equal(t, 0, boundary)
	}

	clause, ok := tr.Clause(cols[0])
	require.True(t, ok)
	assert.Equal(t, KindSelectList, clause.Kind)
	clause, ok = tr.Clause(cols[1])
	require.True(t, ok)
	assert.Equal(t, KindWhere, clause.Kind)

	tables := tr.Collect(0, KindTable)
	require.Len(t, tables, 1)
	assert.Equal(t, "t1", tr.Node(tables[0]).Name)
}

func TestAnnotate_ParentLinksAreConsistent(t *testing.T) {
	tr := mustAnnotate(t, "SELECT a.x, count(*) AS n FROM a JOIN b ON a.id = b.a_id GROUP BY a.x ORDER BY n DESC LIMIT 10")

	for i := range tr.Nodes {
		n := tr.Node(i)
		assert.Equal(t, i, n.ID)
		for _, c := range n.Children {
			assert.Equal(t, i, tr.Node(c).Parent, "child %d of %s", c, n)
			assert.Greater(t, c, i, "nodes are stored in pre-order")
		}
	}

	joins := tr.Collect(0, KindJoin)
	require.Len(t, joins, 1)
	join := tr.Node(joins[0])
	assert.Equal(t, sqlparser.JoinStr, join.Op)
	assert.Equal(t, []Kind{KindTable, KindTable, KindOn}, kindsOf(tr, join.Children))

	items := tr.Collect(0, KindSelectItem)
	require.Len(t, items, 2)
	assert.Equal(t, "n", tr.Node(items[1]).Alias)

	orders := tr.Collect(0, KindOrder)
	require.Len(t, orders, 1)
	assert.Equal(t, "desc", tr.Node(orders[0]).Op)

	limits := tr.Collect(0, KindLimit)
	require.Len(t, limits, 1)
	lit := tr.Child(limits[0], 0)
	require.NotNil(t, lit)
	assert.Equal(t, KindLiteral, lit.Kind)
	assert.Equal(t, "10", lit.Text)
}

func TestAnnotate_ScopesMintedInPreOrder(t *testing.T) {
	tr := mustAnnotate(t, "SELECT s.a FROM (SELECT t.a FROM t) AS s WHERE s.a IN (SELECT u.a FROM u)")

	assert.Equal(t, 3, tr.Scopes)

	var scopes []ScopeID
	_ = tr.Walk(func(n *Node) (bool, error) {
		if n.Kind == KindSelect {
			scopes = append(scopes, n.Scope)
		}
		return true, nil
	})
	assert.Equal(t, []ScopeID{1, 2, 3}, scopes)

	derived := tr.Collect(0, KindDerivedTable)
	require.Len(t, derived, 1)
	assert.Equal(t, "s", tr.Node(derived[0]).Alias)

	// Collect does not enter nested scopes.
	assert.Len(t, tr.Collect(0, KindTable), 0)

	inner, ok := tr.ScopeNode(2)
	require.True(t, ok)
	innerTables := tr.Collect(inner, KindTable)
	require.Len(t, innerTables, 1)
	assert.Equal(t, "t", tr.Node(innerTables[0]).Name)

	scope, _, ok := tr.EnclosingScope(innerTables[0])
	require.True(t, ok)
	assert.Equal(t, ScopeID(2), scope)
}

func TestAnnotate_Idempotent(t *testing.T) {
	const q = "SELECT s.a FROM (SELECT t.a FROM t) AS s WHERE s.a IN (SELECT u.a FROM u)"
	first := mustAnnotate(t, q)
	second := mustAnnotate(t, q)
	assert.Equal(t, first, second)
}

func TestAnnotate_KeywordArguments(t *testing.T) {
	tr, err := annotate(t, grammar.DialectMySQL, "SELECT convert_tz(t.d, utc) FROM t",
		grammar.WithKeywords(grammar.NewKeywords("utc")))
	require.NoError(t, err)

	keywords := tr.Collect(0, KindKeyword)
	require.Len(t, keywords, 1)
	assert.Equal(t, "utc", tr.Node(keywords[0]).Name)
	assert.Len(t, tr.Collect(0, KindColumn), 1)
}

func TestAnnotate_BareColumnInFunctionStaysColumn(t *testing.T) {
	tr := mustAnnotate(t, "SELECT whatever(col) FROM t1")

	cols := tr.Collect(0, KindColumn)
	require.Len(t, cols, 1)
	col := tr.Node(cols[0])
	assert.Equal(t, "col", col.Name)
	assert.Empty(t, col.Qualifier)
	assert.Equal(t, KindFunc, tr.Parent(col.ID).Kind)
	assert.Equal(t, "whatever", tr.Parent(col.ID).Name)
}

func TestAnnotate_ParamsAndLiterals(t *testing.T) {
	tr := mustAnnotate(t, "SELECT t.a FROM t WHERE t.id = :user_id AND t.kind = 'x'")

	params := tr.Collect(0, KindParam)
	require.Len(t, params, 1)
	assert.Equal(t, "user_id", tr.Node(params[0]).Name)

	lits := tr.Collect(0, KindLiteral)
	require.Len(t, lits, 1)
	assert.Equal(t, "string", tr.Node(lits[0]).Op)
	assert.Equal(t, "x", tr.Node(lits[0]).Text)
}

func TestAnnotate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"delete", "DELETE FROM t WHERE t.a = 1"},
		{"union", "SELECT t.a FROM t UNION SELECT u.a FROM u"},
		{"locking read", "SELECT t.a FROM t FOR UPDATE"},
		{"join using", "SELECT a.x FROM a JOIN b USING (id)"},
		{"index hint", "SELECT t.a FROM t USE INDEX (i_a)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := annotate(t, grammar.DialectMySQL, tt.query)
			require.Error(t, err)
			assert.Equal(t, ir.ErrCodeParseRejected, ir.CodeOf(err))
		})
	}
}

func TestAnnotate_PrefersFewestPlaceholders(t *testing.T) {
	tr, err := annotate(t, grammar.DialectSQLite, `SELECT t.a FROM t WHERE t.kind = "a"`)
	require.NoError(t, err)

	assert.Equal(t, 0, tr.Placeholders)
	assert.Equal(t, "SELECT t.a FROM t WHERE t.kind = `a`", tr.Source)
	// The identifier reading compares two columns.
	assert.Len(t, tr.Collect(0, KindColumn), 3)
	assert.Empty(t, tr.Collect(0, KindLiteral))
}

func derivation(t *testing.T, text string, placeholders int) grammar.Derivation {
	t.Helper()
	stmt, err := sqlparser.Parse(text)
	require.NoError(t, err)
	return grammar.Derivation{Statement: stmt, Source: text, Placeholders: placeholders}
}

func TestChoose(t *testing.T) {
	t.Run("equal renderings collapse", func(t *testing.T) {
		d, err := choose([]grammar.Derivation{
			derivation(t, "SELECT t.a FROM t", 0),
			derivation(t, "select t.a from t", 0),
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT t.a FROM t", d.Source)
	})

	t.Run("fewer placeholders wins", func(t *testing.T) {
		d, err := choose([]grammar.Derivation{
			derivation(t, "SELECT t.a FROM t WHERE t.b = 'x'", 1),
			derivation(t, "SELECT t.a FROM t WHERE t.b = t.x", 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, d.Placeholders)
	})

	t.Run("distinct ties are ambiguous", func(t *testing.T) {
		_, err := choose([]grammar.Derivation{
			derivation(t, "SELECT t.a FROM t", 0),
			derivation(t, "SELECT t.b FROM t", 0),
		})
		require.Error(t, err)
		assert.Equal(t, ir.ErrCodeParseAmbiguous, ir.CodeOf(err))
	})
}

func TestAnnotate_EmptyForest(t *testing.T) {
	_, err := Annotate(&grammar.Forest{})
	assert.Equal(t, ir.ErrCodeParseRejected, ir.CodeOf(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "select", KindSelect.String())
	assert.Equal(t, "derived_table", KindDerivedTable.String())
	assert.Equal(t, "invalid", Kind(200).String())
	assert.True(t, KindSelect.IsScopeBoundary())
	assert.False(t, KindDerivedTable.IsScopeBoundary())
	assert.True(t, IsAggregate("count"))
	assert.False(t, IsAggregate("lower"))
}
