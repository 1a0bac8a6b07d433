package harness

import (
	"github.com/roach88/bifrost/internal/qualify"
)

// StepOutcome is what the guard did with one step's query.
type StepOutcome struct {
	Query   string `json:"query"`
	Verdict string `json:"verdict"`

	// Rejections only.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Raw     string `json:"raw,omitempty"`
	Table   string `json:"table,omitempty"`
	Column  string `json:"column,omitempty"`

	// Accepted queries only.
	Validator   string               `json:"validator,omitempty"`
	Resolutions []qualify.Resolution `json:"resolutions,omitempty"`

	// AuditID is the id of the evaluation's audit row.
	AuditID string `json:"audit_id"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step matched its expectation.
	Pass bool `json:"pass"`

	Steps []StepOutcome `json:"steps"`

	// Errors contains expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
