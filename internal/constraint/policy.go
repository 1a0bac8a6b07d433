package constraint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bifrost/internal/ir"
)

// PolicySpec is the plain data of an allow-list policy, as read from policy
// files.
type PolicySpec struct {
	Name string

	// Tables lists the tables a query may read.
	Tables []string

	// SelectColumns lists "table.column" or "table.*" entries allowed in the
	// select list.
	SelectColumns []string

	// ConditionColumns lists the entries allowed in WHERE, HAVING, ON,
	// GROUP BY and ORDER BY. Nil means the same as SelectColumns.
	ConditionColumns []string

	// Joins lists allowed join conditions as column pairs. Order within a
	// pair does not matter.
	Joins [][2]string

	// Functions lists the callable functions. Nil allows any function; an
	// empty list allows none.
	Functions []string

	// MaxRows caps the outer LIMIT. Zero means no cap.
	MaxRows int

	// Required lists conditions every query must carry.
	Required []ir.ParamConstraint

	// StarTables lists the tables that may be selected with "*".
	StarTables []string
}

// Policy is a compiled allow-list validator.
type Policy struct {
	name       string
	tables     map[string]bool
	selects    columnMatcher
	conditions columnMatcher
	joins      map[[2]ir.Column]bool
	functions  map[string]bool // nil allows any
	maxRows    int
	required   []ir.ParamConstraint
	stars      map[string]bool
}

var (
	_ Validator          = (*Policy)(nil)
	_ FunctionChecker    = (*Policy)(nil)
	_ LimitChecker       = (*Policy)(nil)
	_ ConstraintRequirer = (*Policy)(nil)
	_ StarChecker        = (*Policy)(nil)
)

// NewPolicy compiles a PolicySpec. Entries are lowercased; malformed column
// entries are an error.
func NewPolicy(spec PolicySpec) (*Policy, error) {
	if spec.MaxRows < 0 {
		return nil, fmt.Errorf("max rows must not be negative, got %d", spec.MaxRows)
	}

	p := &Policy{
		name:    spec.Name,
		tables:  lowerSet(spec.Tables),
		joins:   make(map[[2]ir.Column]bool, len(spec.Joins)),
		maxRows: spec.MaxRows,
		stars:   lowerSet(spec.StarTables),
	}

	var err error
	if p.selects, err = newColumnMatcher(spec.SelectColumns); err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}
	p.conditions = p.selects
	if spec.ConditionColumns != nil {
		if p.conditions, err = newColumnMatcher(spec.ConditionColumns); err != nil {
			return nil, fmt.Errorf("condition columns: %w", err)
		}
	}

	for i, pair := range spec.Joins {
		left, err := parseColumnEntry(pair[0], false)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		right, err := parseColumnEntry(pair[1], false)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		p.joins[joinKey(left, right)] = true
	}

	if spec.Functions != nil {
		p.functions = lowerSet(spec.Functions)
	}

	for _, pc := range spec.Required {
		if !pc.Column.Qualified() || pc.Column.Column == "" || pc.Param == "" {
			return nil, fmt.Errorf("required constraint %q is incomplete", pc.String())
		}
		p.required = append(p.required, ir.ParamConstraint{
			Column: ir.NewColumn(pc.Column.Table, pc.Column.Column),
			Param:  pc.Param,
		})
	}
	return p, nil
}

// Name returns the policy's name.
func (p *Policy) Name() string { return p.name }

func (p *Policy) TableAllowed(table string) bool {
	return p.tables[strings.ToLower(table)]
}

func (p *Policy) SelectColumnAllowed(col ir.Column) bool {
	return p.selects.match(col)
}

func (p *Policy) ConditionColumnAllowed(col ir.Column) bool {
	return p.conditions.match(col)
}

func (p *Policy) JoinAllowed(left, right ir.Column) bool {
	return p.joins[joinKey(left, right)]
}

func (p *Policy) FunctionAllowed(name string) bool {
	return p.functions == nil || p.functions[strings.ToLower(name)]
}

func (p *Policy) MaxLimit() int { return p.maxRows }

func (p *Policy) RequiredConstraints() []ir.ParamConstraint {
	return slices.Clone(p.required)
}

func (p *Policy) SelectStarAllowed(table string) bool {
	return p.stars[strings.ToLower(table)]
}

// columnMatcher matches exact columns and whole-table wildcards.
type columnMatcher struct {
	columns ir.ColumnSet
	tables  map[string]bool
}

func newColumnMatcher(entries []string) (columnMatcher, error) {
	m := columnMatcher{columns: ir.NewColumnSet(), tables: make(map[string]bool)}
	for _, e := range entries {
		col, err := parseColumnEntry(e, true)
		if err != nil {
			return columnMatcher{}, err
		}
		if col.Column == "*" {
			m.tables[col.Table] = true
			continue
		}
		m.columns.Add(col)
	}
	return m, nil
}

func (m columnMatcher) match(col ir.Column) bool {
	col = ir.NewColumn(col.Table, col.Column)
	return m.tables[col.Table] || m.columns.Contains(col)
}

// parseColumnEntry parses "table.column", and "table.*" when wildcard is set.
func parseColumnEntry(entry string, wildcard bool) (ir.Column, error) {
	col := ir.ParseColumn(strings.TrimSpace(entry))
	if !col.Qualified() || col.Column == "" {
		return ir.Column{}, fmt.Errorf("column %q must be written as table.column", entry)
	}
	if col.Column == "*" && !wildcard {
		return ir.Column{}, fmt.Errorf("column %q: wildcard not allowed here", entry)
	}
	return col, nil
}

// joinKey orders a pair so that (a, b) and (b, a) share a key.
func joinKey(a, b ir.Column) [2]ir.Column {
	a = ir.NewColumn(a.Table, a.Column)
	b = ir.NewColumn(b.Table, b.Column)
	if b.Compare(a) < 0 {
		a, b = b, a
	}
	return [2]ir.Column{a, b}
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return set
}
