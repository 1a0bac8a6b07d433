// Package constraint defines the access-policy contract the guard checks a
// query against, and the stock validators.
//
// Validators are pure predicates: no mutation, no I/O, the same answer for
// the same input. A Validator is safe for concurrent use once built.
package constraint

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/roach88/bifrost/internal/ir"
)

// Validator decides which identifiers and joins a query may use.
type Validator interface {
	TableAllowed(table string) bool
	SelectColumnAllowed(col ir.Column) bool
	ConditionColumnAllowed(col ir.Column) bool
	JoinAllowed(left, right ir.Column) bool
}

// FunctionChecker restricts function calls. Validators without it allow
// every function.
type FunctionChecker interface {
	FunctionAllowed(name string) bool
}

// LimitChecker caps the outer query's row count. Zero means no cap.
type LimitChecker interface {
	MaxLimit() int
}

// ConstraintRequirer lists the parameterized conditions a query must carry,
// e.g. "orders.customer_id = :customer".
type ConstraintRequirer interface {
	RequiredConstraints() []ir.ParamConstraint
}

// StarChecker allows "*" and "t.*" projections. Validators without it reject
// every star.
type StarChecker interface {
	SelectStarAllowed(table string) bool
}

// Name returns a validator's display name.
func Name(v Validator) string {
	if n, ok := v.(interface{ Name() string }); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

// Permissive allows everything. Embed it to override single rules.
type Permissive struct{}

var (
	_ Validator       = Permissive{}
	_ FunctionChecker = Permissive{}
	_ StarChecker     = Permissive{}
)

func (Permissive) Name() string                          { return "permissive" }
func (Permissive) TableAllowed(string) bool              { return true }
func (Permissive) SelectColumnAllowed(ir.Column) bool    { return true }
func (Permissive) ConditionColumnAllowed(ir.Column) bool { return true }
func (Permissive) JoinAllowed(ir.Column, ir.Column) bool { return true }
func (Permissive) FunctionAllowed(string) bool           { return true }
func (Permissive) SelectStarAllowed(string) bool         { return true }

// ErrNoValidators is returned when a validator set would be empty.
var ErrNoValidators = errors.New("at least one validator is required")

// Set is an ordered, non-empty collection of validators. A query is
// accepted when any single validator accepts all of it; acceptance is never
// assembled from parts granted by different validators.
type Set struct {
	validators []Validator
}

// AnyOf builds a Set from the given validators, in order.
func AnyOf(validators ...Validator) (*Set, error) {
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}
	for i, v := range validators {
		if v == nil {
			return nil, fmt.Errorf("validator %d is nil", i)
		}
	}
	return &Set{validators: append([]Validator(nil), validators...)}, nil
}

// Len returns the number of validators.
func (s *Set) Len() int {
	return len(s.validators)
}

// Validators returns the validators in order.
func (s *Set) Validators() []Validator {
	return append([]Validator(nil), s.validators...)
}

// Check runs check against each validator in order and returns the index of
// the first one it passes for.
//
// When every validator rejects, the rejections are combined; errors.As on
// the result yields the first validator's error. An error that is not a
// policy violation stops the loop and is returned as is.
func (s *Set) Check(check func(Validator) error) (int, error) {
	var errs []error
	for i, v := range s.validators {
		err := check(v)
		if err == nil {
			return i, nil
		}
		if !ir.IsPolicyViolation(err) {
			return -1, err
		}
		errs = append(errs, err)
	}
	return -1, multierr.Combine(errs...)
}
