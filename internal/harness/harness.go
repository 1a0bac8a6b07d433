package harness

import (
	"context"
	"fmt"

	"github.com/roach88/bifrost/internal/bifrost"
	"github.com/roach88/bifrost/internal/constraint"
	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/logger"
	"github.com/roach88/bifrost/internal/policy"
	"github.com/roach88/bifrost/internal/store"
)

// Harness evaluates the steps of one scenario.
type Harness struct {
	guard *bifrost.Guard
	store *store.Store
}

// Run executes a scenario and returns the result.
//
// Each scenario runs with its own guard and a fresh in-memory audit store.
// Expectation mismatches are reported in the result; an error means the
// scenario could not be run at all.
func Run(scenario *Scenario) (*Result, error) {
	g, err := NewGuard(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{guard: g, store: st}
	ctx := context.Background()

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Steps = append(result.Steps, outcome)
		for _, mismatch := range checkExpect(outcome, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] %q: %s", i, step.Query, mismatch))
		}
	}
	return result, nil
}

// NewGuard builds the guard a scenario describes.
func NewGuard(scenario *Scenario) (*bifrost.Guard, error) {
	dialect := grammar.DialectMySQL
	if scenario.Dialect != "" {
		d, err := grammar.ParseDialect(scenario.Dialect)
		if err != nil {
			return nil, err
		}
		dialect = d
	}

	validators, err := scenarioValidators(scenario)
	if err != nil {
		return nil, err
	}

	opts := []bifrost.Option{bifrost.WithLogger(logger.Nop())}
	if len(scenario.Keywords) > 0 {
		opts = append(opts, bifrost.WithKeywords(grammar.NewKeywords(scenario.Keywords...)))
	}
	return bifrost.New(dialect, validators, opts...)
}

func scenarioValidators(scenario *Scenario) ([]constraint.Validator, error) {
	if scenario.Permissive {
		return []constraint.Validator{constraint.Permissive{}}, nil
	}

	var (
		loaded *policy.LoadResult
		errs   []error
	)
	if scenario.PolicyDir != "" {
		loaded, errs = policy.Load(scenario.PolicyDir, policy.LoadModeFailFast)
	} else {
		loaded, errs = policy.CompileString(scenario.Policy)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compiling policy: %w", errs[0])
	}
	return loaded.Validators(scenario.Validators...)
}

func (h *Harness) runStep(ctx context.Context, step Step) (StepOutcome, error) {
	res, evalErr := h.guard.Evaluate(step.Query)

	rec, err := h.guard.AuditRecord(step.Query, res, evalErr)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("building audit record: %w", err)
	}
	stored, err := h.store.RecordEvaluation(ctx, rec)
	if err != nil {
		return StepOutcome{}, err
	}

	outcome := StepOutcome{Query: step.Query, AuditID: stored.ID}
	if evalErr != nil {
		outcome.Verdict = VerdictRejected
		outcome.Code = string(ir.CodeOf(evalErr))
		outcome.Message = evalErr.Error()
		if ge, ok := ir.AsGuardError(evalErr); ok {
			outcome.Message = ge.Message
			outcome.Raw = ge.Raw
			outcome.Table = ge.Table
			if ge.Column != nil {
				outcome.Column = ge.Column.String()
			}
		}
		return outcome, nil
	}

	outcome.Verdict = VerdictAccepted
	outcome.Validator = res.ValidatorName
	outcome.Resolutions = res.Resolutions
	return outcome, nil
}
