// Package policy compiles CUE policy files into validators.
//
// A policy file declares named policies under the "policy" field:
//
//	policy: analytics: {
//		tables: ["rental", "customer"]
//		select: ["rental.*", "customer.name"]
//		conditions: ["customer.customer_id", "rental.customer_id"]
//		joins: [["rental.customer_id", "customer.customer_id"]]
//		functions: ["count", "strftime"]
//		max_rows: 100
//		require: ["customer.customer_id = :customer"]
//		star: ["rental"]
//		rules: table: "table != \"staff\""
//	}
//
// A policy with `permissive: true` allows everything its rules do not deny.
package policy

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bifrost/internal/constraint"
	"github.com/roach88/bifrost/internal/ir"
)

// Definition is one compiled policy declaration.
type Definition struct {
	Name       string
	Permissive bool
	Spec       constraint.PolicySpec
	Rules      constraint.Rules
}

// Validator builds the definition's validator. Rules, when present, narrow
// the allow-list (or the permissive base).
func (d *Definition) Validator() (constraint.Validator, error) {
	var base constraint.Validator = constraint.Permissive{}
	if !d.Permissive {
		p, err := constraint.NewPolicy(d.Spec)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", d.Name, err)
		}
		base = p
	}
	if d.Rules == (constraint.Rules{}) && !d.Permissive {
		return base, nil
	}
	rv, err := constraint.NewRuleValidator(d.Name, base, d.Rules)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", d.Name, err)
	}
	return rv, nil
}

// CompilePolicy parses one policy struct. The policy's name is the last
// selector of the value's path.
func CompilePolicy(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: "policy", Message: "policy must be a struct", Pos: v.Pos()}
	}

	def := &Definition{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}
	def.Spec.Name = def.Name

	var err error
	if def.Permissive, err = optionalBool(v, "permissive"); err != nil {
		return nil, err
	}
	if def.Spec.Tables, err = stringList(v, "tables"); err != nil {
		return nil, err
	}
	if def.Spec.SelectColumns, err = stringList(v, "select"); err != nil {
		return nil, err
	}
	if def.Spec.ConditionColumns, err = stringList(v, "conditions"); err != nil {
		return nil, err
	}
	if def.Spec.Functions, err = stringList(v, "functions"); err != nil {
		return nil, err
	}
	if def.Spec.StarTables, err = stringList(v, "star"); err != nil {
		return nil, err
	}
	if def.Spec.Joins, err = parseJoins(v); err != nil {
		return nil, err
	}
	if def.Spec.MaxRows, err = parseMaxRows(v); err != nil {
		return nil, err
	}
	if def.Spec.Required, err = parseRequired(v); err != nil {
		return nil, err
	}
	if def.Rules, err = parseRules(v); err != nil {
		return nil, err
	}

	if !def.Permissive && len(def.Spec.Tables) == 0 {
		return nil, &CompileError{
			Field:   "tables",
			Message: "at least one table is required unless the policy is permissive",
			Pos:     v.Pos(),
		}
	}
	// Catch malformed column entries with a position now rather than at
	// guard construction.
	if _, err := def.Validator(); err != nil {
		return nil, &CompileError{Field: "policy", Message: err.Error(), Pos: v.Pos()}
	}
	return def, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a bool", Pos: fv.Pos()}
	}
	return b, nil
}

// stringList reads an optional list of strings. An absent field is nil; an
// empty list is non-nil.
func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: fv.Pos()}
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func parseJoins(v cue.Value) ([][2]string, error) {
	fv := v.LookupPath(cue.ParsePath("joins"))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: "joins", Message: "must be a list of column pairs", Pos: fv.Pos()}
	}
	var joins [][2]string
	for iter.Next() {
		var pair []string
		if err := iter.Value().Decode(&pair); err != nil || len(pair) != 2 {
			return nil, &CompileError{
				Field:   "joins",
				Message: "each join must be a pair [\"a.col\", \"b.col\"]",
				Pos:     iter.Value().Pos(),
			}
		}
		joins = append(joins, [2]string{pair[0], pair[1]})
	}
	return joins, nil
}

func parseMaxRows(v cue.Value) (int, error) {
	fv := v.LookupPath(cue.ParsePath("max_rows"))
	if !fv.Exists() {
		return 0, nil
	}
	if fv.IncompleteKind() != cue.IntKind {
		return 0, &CompileError{Field: "max_rows", Message: "must be an int", Pos: fv.Pos()}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n < 0 {
		return 0, &CompileError{Field: "max_rows", Message: "must not be negative", Pos: fv.Pos()}
	}
	return int(n), nil
}

// parseRequired reads "table.column = :param" strings or
// {column, param} structs.
func parseRequired(v cue.Value) ([]ir.ParamConstraint, error) {
	fv := v.LookupPath(cue.ParsePath("require"))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: "require", Message: "must be a list", Pos: fv.Pos()}
	}
	var out []ir.ParamConstraint
	for iter.Next() {
		item := iter.Value()
		var pc ir.ParamConstraint
		var ok bool
		if s, err := item.String(); err == nil {
			pc, ok = ParseConstraint(s)
		} else {
			var raw struct {
				Column string `json:"column"`
				Param  string `json:"param"`
			}
			if item.Decode(&raw) == nil {
				pc, ok = ParseConstraint(raw.Column + " = :" + strings.TrimPrefix(raw.Param, ":"))
			}
		}
		if !ok {
			return nil, &CompileError{
				Field:   "require",
				Message: "each requirement must read \"table.column = :param\"",
				Pos:     item.Pos(),
			}
		}
		out = append(out, pc)
	}
	return out, nil
}

// ParseConstraint parses "table.column = :param".
func ParseConstraint(s string) (ir.ParamConstraint, bool) {
	left, right, found := strings.Cut(s, "=")
	if !found {
		return ir.ParamConstraint{}, false
	}
	col := ir.ParseColumn(strings.TrimSpace(left))
	right = strings.TrimSpace(right)
	if !col.Qualified() || col.Column == "" || !strings.HasPrefix(right, ":") || len(right) < 2 {
		return ir.ParamConstraint{}, false
	}
	return ir.ParamConstraint{Column: col, Param: right[1:]}, true
}

func parseRules(v cue.Value) (constraint.Rules, error) {
	var rules constraint.Rules
	fv := v.LookupPath(cue.ParsePath("rules"))
	if !fv.Exists() {
		return rules, nil
	}
	targets := map[string]*string{
		"table":     &rules.Table,
		"select":    &rules.SelectColumn,
		"condition": &rules.ConditionColumn,
		"join":      &rules.Join,
	}
	iter, err := fv.Fields()
	if err != nil {
		return rules, &CompileError{Field: "rules", Message: "must be a struct", Pos: fv.Pos()}
	}
	for iter.Next() {
		target, ok := targets[iter.Label()]
		if !ok {
			return rules, &CompileError{
				Field:   "rules",
				Message: fmt.Sprintf("unknown rule %q (want table, select, condition or join)", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
		s, err := iter.Value().String()
		if err != nil {
			return rules, &CompileError{Field: "rules", Message: "rules must be strings", Pos: iter.Value().Pos()}
		}
		*target = s
	}
	return rules, nil
}

// CompileError is a policy compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
