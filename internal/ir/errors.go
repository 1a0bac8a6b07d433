package ir

import (
	"errors"
	"fmt"
)

// GuardError is a structured rejection of a query.
//
// Every code except ErrCodeInternalScope is an expected outcome of untrusted
// input and carries enough context (raw text, resolved identifier) for the
// caller to explain the rejection.
type GuardError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Raw is the offending text as written in the query.
	Raw string

	// Column is the resolved identifier, when resolution succeeded.
	Column *Column

	// Table is the offending table, for table-level rejections.
	Table string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes guard errors.
type ErrorCode string

const (
	// ErrCodeParseAmbiguous indicates several derivations survived disambiguation.
	ErrCodeParseAmbiguous ErrorCode = "PARSE_AMBIGUOUS"

	// ErrCodeParseRejected indicates the text is outside the restricted grammar.
	ErrCodeParseRejected ErrorCode = "PARSE_REJECTED"

	// ErrCodeUnqualifiedColumn indicates a column could not be tied to a table.
	ErrCodeUnqualifiedColumn ErrorCode = "UNQUALIFIED_COLUMN"

	// ErrCodeIllegalConditionColumn indicates a rejected column in a
	// condition, grouping or ordering position.
	ErrCodeIllegalConditionColumn ErrorCode = "ILLEGAL_CONDITION_COLUMN"

	// ErrCodeIllegalSelectedColumn indicates a rejected column in the select list.
	ErrCodeIllegalSelectedColumn ErrorCode = "ILLEGAL_SELECTED_COLUMN"

	// ErrCodeIllegalTable indicates a rejected source table.
	ErrCodeIllegalTable ErrorCode = "ILLEGAL_TABLE"

	// ErrCodeIllegalJoin indicates an unconstrained or disallowed join condition.
	ErrCodeIllegalJoin ErrorCode = "ILLEGAL_JOIN"

	// ErrCodeIllegalJoinType indicates an outer or natural join.
	ErrCodeIllegalJoinType ErrorCode = "ILLEGAL_JOIN_TYPE"

	// ErrCodeIllegalFunction indicates a rejected function call.
	ErrCodeIllegalFunction ErrorCode = "ILLEGAL_FUNCTION"

	// ErrCodeIllegalSubquery indicates a subquery outside the FROM clause.
	ErrCodeIllegalSubquery ErrorCode = "ILLEGAL_SUBQUERY"

	// ErrCodeIllegalLimit indicates a missing, non-literal or too large LIMIT.
	ErrCodeIllegalLimit ErrorCode = "ILLEGAL_LIMIT"

	// ErrCodeMissingConstraint indicates a required parameterized condition
	// is absent.
	ErrCodeMissingConstraint ErrorCode = "MISSING_REQUIRED_CONSTRAINT"

	// ErrCodeInternalScope indicates a node with no enclosing scope. This is
	// a resolver bug, never a property of the input.
	ErrCodeInternalScope ErrorCode = "INTERNAL_SCOPE"
)

// Error implements the error interface.
func (e *GuardError) Error() string {
	switch {
	case e.Column != nil:
		return fmt.Sprintf("%s: %s (column=%s)", e.Code, e.Message, e.Column)
	case e.Table != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	case e.Raw != "":
		return fmt.Sprintf("%s: %s (%q)", e.Code, e.Message, e.Raw)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the error code. Returns "" when err is not a GuardError.
// Uses errors.As to handle wrapped and combined errors.
func CodeOf(err error) ErrorCode {
	var ge *GuardError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// AsGuardError unwraps err to a *GuardError.
func AsGuardError(err error) (*GuardError, bool) {
	var ge *GuardError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsUnqualifiedColumn returns true if the error is an unqualified column error.
func IsUnqualifiedColumn(err error) bool {
	return CodeOf(err) == ErrCodeUnqualifiedColumn
}

// IsParseError returns true for both rejected and ambiguous parses.
func IsParseError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeParseRejected || code == ErrCodeParseAmbiguous
}

// IsInternal returns true if the error signals a guard bug.
func IsInternal(err error) bool {
	return CodeOf(err) == ErrCodeInternalScope
}

// IsPolicyViolation returns true if resolution succeeded but the policy
// rejected the query.
func IsPolicyViolation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeIllegalConditionColumn, ErrCodeIllegalSelectedColumn, ErrCodeIllegalTable,
		ErrCodeIllegalJoin, ErrCodeIllegalJoinType, ErrCodeIllegalFunction,
		ErrCodeIllegalSubquery, ErrCodeIllegalLimit, ErrCodeMissingConstraint:
		return true
	}
	return false
}

// NewParseRejected creates a GuardError for text outside the grammar.
func NewParseRejected(message string) *GuardError {
	return &GuardError{Code: ErrCodeParseRejected, Message: message}
}

// NewParseAmbiguous creates a GuardError for an unresolvable ambiguity.
func NewParseAmbiguous(candidates int) *GuardError {
	return &GuardError{
		Code:    ErrCodeParseAmbiguous,
		Message: fmt.Sprintf("%d equally ranked derivations", candidates),
		Details: map[string]string{"candidates": fmt.Sprintf("%d", candidates)},
	}
}

// NewUnqualifiedColumn creates a GuardError for an unresolvable column.
func NewUnqualifiedColumn(raw string) *GuardError {
	return &GuardError{
		Code:    ErrCodeUnqualifiedColumn,
		Message: "column cannot be resolved to a table",
		Raw:     raw,
	}
}

// NewIllegalConditionColumn creates a GuardError for a rejected condition column.
func NewIllegalConditionColumn(raw string, col Column) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalConditionColumn,
		Message: "column not allowed in a condition",
		Raw:     raw,
		Column:  &col,
	}
}

// NewIllegalSelectedColumn creates a GuardError for a rejected selected column.
func NewIllegalSelectedColumn(raw string, col *Column) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalSelectedColumn,
		Message: "column not allowed in the select list",
		Raw:     raw,
		Column:  col,
	}
}

// NewIllegalTable creates a GuardError for a rejected table.
func NewIllegalTable(table string) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalTable,
		Message: "table not allowed",
		Raw:     table,
		Table:   table,
	}
}

// NewIllegalJoin creates a GuardError for a disallowed join condition.
func NewIllegalJoin(raw, reason string) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalJoin,
		Message: reason,
		Raw:     raw,
	}
}

// NewIllegalJoinType creates a GuardError for an outer or natural join.
func NewIllegalJoinType(joinType string) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalJoinType,
		Message: "only inner joins are allowed",
		Raw:     joinType,
	}
}

// NewIllegalFunction creates a GuardError for a rejected function.
func NewIllegalFunction(name string) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalFunction,
		Message: "function not allowed",
		Raw:     name,
	}
}

// NewIllegalSubquery creates a GuardError for a subquery outside FROM.
func NewIllegalSubquery(raw string) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalSubquery,
		Message: "subqueries are only allowed as FROM sources",
		Raw:     raw,
	}
}

// NewIllegalLimit creates a GuardError for a LIMIT violation.
func NewIllegalLimit(raw string, maxLimit int) *GuardError {
	return &GuardError{
		Code:    ErrCodeIllegalLimit,
		Message: fmt.Sprintf("a literal LIMIT of at most %d is required", maxLimit),
		Raw:     raw,
		Details: map[string]string{"max_limit": fmt.Sprintf("%d", maxLimit)},
	}
}

// NewMissingConstraint creates a GuardError for an absent required condition.
func NewMissingConstraint(pc ParamConstraint) *GuardError {
	col := pc.Column
	return &GuardError{
		Code:    ErrCodeMissingConstraint,
		Message: "required condition missing: " + pc.String(),
		Column:  &col,
		Details: map[string]string{"param": pc.Param},
	}
}

// NewInternalScope creates a GuardError for a node without an enclosing scope.
func NewInternalScope(nodeID int) *GuardError {
	return &GuardError{
		Code:    ErrCodeInternalScope,
		Message: fmt.Sprintf("node %d has no enclosing scope", nodeID),
		Details: map[string]string{"node": fmt.Sprintf("%d", nodeID)},
	}
}
