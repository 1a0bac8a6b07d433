package constraint

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/bifrost/internal/ir"
)

// Rules are boolean expr-lang programs that narrow a base validator.
// An empty rule leaves the base decision unchanged.
//
// Variables:
//   - Table: table
//   - SelectColumn, ConditionColumn: table, column
//   - Join: left_table, left_column, right_table, right_column
type Rules struct {
	Table           string
	SelectColumn    string
	ConditionColumn string
	Join            string
}

// RuleValidator narrows a base validator with compiled rules. A rule that
// fails at run time denies.
type RuleValidator struct {
	name      string
	base      Validator
	table     *vm.Program
	selectCol *vm.Program
	condCol   *vm.Program
	join      *vm.Program
}

var (
	_ Validator          = (*RuleValidator)(nil)
	_ FunctionChecker    = (*RuleValidator)(nil)
	_ LimitChecker       = (*RuleValidator)(nil)
	_ ConstraintRequirer = (*RuleValidator)(nil)
	_ StarChecker        = (*RuleValidator)(nil)
)

var (
	tableEnv  = map[string]any{"table": ""}
	columnEnv = map[string]any{"table": "", "column": ""}
	joinEnv   = map[string]any{"left_table": "", "left_column": "", "right_table": "", "right_column": ""}
)

// NewRuleValidator compiles rules over base. A nil base is Permissive.
func NewRuleValidator(name string, base Validator, rules Rules) (*RuleValidator, error) {
	if base == nil {
		base = Permissive{}
	}
	rv := &RuleValidator{name: name, base: base}

	var err error
	if rv.table, err = compileRule(rules.Table, tableEnv); err != nil {
		return nil, fmt.Errorf("table rule: %w", err)
	}
	if rv.selectCol, err = compileRule(rules.SelectColumn, columnEnv); err != nil {
		return nil, fmt.Errorf("select column rule: %w", err)
	}
	if rv.condCol, err = compileRule(rules.ConditionColumn, columnEnv); err != nil {
		return nil, fmt.Errorf("condition column rule: %w", err)
	}
	if rv.join, err = compileRule(rules.Join, joinEnv); err != nil {
		return nil, fmt.Errorf("join rule: %w", err)
	}
	return rv, nil
}

func compileRule(code string, env map[string]any) (*vm.Program, error) {
	if code == "" {
		return nil, nil
	}
	return expr.Compile(code, expr.Env(env), expr.AsBool())
}

func run(program *vm.Program, env map[string]any) bool {
	if program == nil {
		return true
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Name returns the validator's name, falling back to the base's.
func (rv *RuleValidator) Name() string {
	if rv.name != "" {
		return rv.name
	}
	return Name(rv.base)
}

func (rv *RuleValidator) TableAllowed(table string) bool {
	return rv.base.TableAllowed(table) && run(rv.table, map[string]any{"table": table})
}

func (rv *RuleValidator) SelectColumnAllowed(col ir.Column) bool {
	return rv.base.SelectColumnAllowed(col) && run(rv.selectCol, columnFacts(col))
}

func (rv *RuleValidator) ConditionColumnAllowed(col ir.Column) bool {
	return rv.base.ConditionColumnAllowed(col) && run(rv.condCol, columnFacts(col))
}

func (rv *RuleValidator) JoinAllowed(left, right ir.Column) bool {
	return rv.base.JoinAllowed(left, right) && run(rv.join, map[string]any{
		"left_table":   left.Table,
		"left_column":  left.Column,
		"right_table":  right.Table,
		"right_column": right.Column,
	})
}

func columnFacts(col ir.Column) map[string]any {
	return map[string]any{"table": col.Table, "column": col.Column}
}

// The optional capabilities pass through to the base validator.

func (rv *RuleValidator) FunctionAllowed(name string) bool {
	if fc, ok := rv.base.(FunctionChecker); ok {
		return fc.FunctionAllowed(name)
	}
	return true
}

func (rv *RuleValidator) MaxLimit() int {
	if lc, ok := rv.base.(LimitChecker); ok {
		return lc.MaxLimit()
	}
	return 0
}

func (rv *RuleValidator) RequiredConstraints() []ir.ParamConstraint {
	if cr, ok := rv.base.(ConstraintRequirer); ok {
		return cr.RequiredConstraints()
	}
	return nil
}

func (rv *RuleValidator) SelectStarAllowed(table string) bool {
	if sc, ok := rv.base.(StarChecker); ok {
		return sc.SelectStarAllowed(table)
	}
	return false
}
