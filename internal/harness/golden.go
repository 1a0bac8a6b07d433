package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bifrost/internal/ir"
)

// snapshot converts a result to a map[string]any for canonical JSON
// serialization. Audit ids and messages are left out; they are not
// deterministic or not part of the contract.
func snapshot(name string, r *Result) map[string]any {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		step := map[string]any{
			"query":   s.Query,
			"verdict": s.Verdict,
		}
		if s.Code != "" {
			step["code"] = s.Code
		}
		if s.Table != "" {
			step["table"] = s.Table
		}
		if s.Column != "" {
			step["column"] = s.Column
		}
		if s.Verdict == VerdictAccepted {
			step["validator"] = s.Validator
			resolutions := make([]any, len(s.Resolutions))
			for j, res := range s.Resolutions {
				cols := make([]string, len(res.Columns))
				for k, c := range res.Columns {
					cols[k] = c.String()
				}
				resolutions[j] = map[string]any{
					"raw":     res.Raw,
					"clause":  res.Clause,
					"scope":   int(res.Scope),
					"columns": cols,
				}
			}
			step["resolutions"] = resolutions
		}
		steps[i] = step
	}

	return map[string]any{
		"scenario": name,
		"steps":    steps,
	}
}

// Snapshot renders a result as the canonical JSON stored in golden files.
func Snapshot(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(snapshot(name, result))
}

// RunWithGolden executes a scenario and compares its step outcomes against
// testdata/golden/{scenario.Name}.golden.
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the outcomes don't match the golden file; expectation
// mismatches are left to the caller, through the returned result.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
