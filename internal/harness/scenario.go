package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bifrost/internal/grammar"
)

// Scenario is a list of queries evaluated by one guard.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dialect is "mysql" (default) or "sqlite".
	Dialect string `yaml:"dialect,omitempty"`

	// Keywords replaces the dialect's reserved words when non-empty.
	Keywords []string `yaml:"keywords,omitempty"`

	// Policy is inline CUE source declaring one or more policies.
	Policy string `yaml:"policy,omitempty"`

	// PolicyDir is a directory of CUE policy files. Relative paths are
	// resolved against the scenario file by LoadScenario.
	PolicyDir string `yaml:"policy_dir,omitempty"`

	// Permissive evaluates against the allow-everything validator.
	Permissive bool `yaml:"permissive,omitempty"`

	// Validators selects policies by name, in order. Empty means all.
	Validators []string `yaml:"validators,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one query and its expected outcome.
type Step struct {
	Query  string `yaml:"query"`
	Expect Expect `yaml:"expect"`
}

// Expect describes the expected outcome of a step. Only the fields given
// are compared.
type Expect struct {
	// Verdict is "accepted" or "rejected".
	Verdict string `yaml:"verdict"`

	// Code is the expected error code of a rejection.
	Code string `yaml:"code,omitempty"`

	// Column is the offending column of a rejection, as "table.column".
	Column string `yaml:"column,omitempty"`

	// Table is the offending table of a rejection.
	Table string `yaml:"table,omitempty"`

	// Raw is the offending text of a rejection.
	Raw string `yaml:"raw,omitempty"`

	// Validator is the name of the validator expected to accept.
	Validator string `yaml:"validator,omitempty"`

	// Resolutions maps a raw column reference to the column (a string) or
	// columns (a list) it must resolve to.
	Resolutions map[string]any `yaml:"resolutions,omitempty"`
}

// Verdict values.
const (
	VerdictAccepted = "accepted"
	VerdictRejected = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.PolicyDir != "" && !filepath.IsAbs(scenario.PolicyDir) {
		scenario.PolicyDir = filepath.Join(filepath.Dir(path), scenario.PolicyDir)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml file of a directory, in name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Dialect != "" {
		if _, err := grammar.ParseDialect(s.Dialect); err != nil {
			return err
		}
	}

	sources := 0
	for _, set := range []bool{s.Policy != "", s.PolicyDir != "", s.Permissive} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of policy, policy_dir or permissive is required")
	}

	if s.PolicyDir != "" {
		if _, err := os.Stat(s.PolicyDir); err != nil {
			return fmt.Errorf("policy_dir not found: %s", s.PolicyDir)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Query == "" {
			return fmt.Errorf("steps[%d]: query is required", i)
		}
		if err := validateExpect(i, &step.Expect); err != nil {
			return err
		}
	}

	return nil
}

func validateExpect(index int, e *Expect) error {
	switch e.Verdict {
	case VerdictAccepted:
		if e.Code != "" || e.Column != "" || e.Table != "" || e.Raw != "" {
			return fmt.Errorf("steps[%d].expect: code, column, table and raw only apply to rejections", index)
		}
	case VerdictRejected:
		if e.Code == "" {
			return fmt.Errorf("steps[%d].expect: code is required for a rejection", index)
		}
		if len(e.Resolutions) > 0 || e.Validator != "" {
			return fmt.Errorf("steps[%d].expect: resolutions and validator only apply to accepted queries", index)
		}
	case "":
		return fmt.Errorf("steps[%d].expect: verdict is required", index)
	default:
		return fmt.Errorf("steps[%d].expect: unknown verdict %q", index, e.Verdict)
	}
	return nil
}
