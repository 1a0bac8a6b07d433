package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bifrost/internal/policy"
)

// PolicyIssue is one load or compile problem.
type PolicyIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// PolicyValidation holds validation results.
type PolicyValidation struct {
	Valid    bool          `json:"valid"`
	Files    int           `json:"files"`
	Policies []string      `json:"policies"`
	Errors   []PolicyIssue `json:"errors,omitempty"`
}

func (v PolicyValidation) String() string {
	return fmt.Sprintf("✓ All policies valid (%d policy(ies) in %d file(s))", len(v.Policies), v.Files)
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with CUE policy files",
	}
	cmd.AddCommand(newPolicyValidateCommand(rootOpts))
	return cmd
}

func newPolicyValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy-dir>",
		Short: "Validate policy files",
		Long: `Load and compile every policy of a directory and report all problems.

Exit codes:
  0 - All policies valid
  1 - One or more policies are invalid
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(rootOpts, args[0], cmd)
		},
	}
}

func runPolicyValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, errs := policy.Load(dir, policy.LoadModeCollectAll)

	// Nothing compiled at all: the directory itself is the problem.
	if loaded == nil && len(errs) > 0 {
		issue := issueOf(errs[0])
		_ = formatter.Error(issue.Code, issue.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}

	result := PolicyValidation{Valid: len(errs) == 0, Files: loaded.FileCount, Policies: []string{}}
	for _, def := range loaded.Policies {
		formatter.VerboseLog("Compiled policy: %s", def.Name)
		result.Policies = append(result.Policies, def.Name)
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, issueOf(err))
	}

	if result.Valid {
		return formatter.Success(result)
	}
	return outputPolicyErrors(formatter, result)
}

func issueOf(err error) PolicyIssue {
	var loadErr *policy.LoadError
	if errors.As(err, &loadErr) {
		issue := PolicyIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.File = loadErr.Pos.Filename()
			issue.Line = loadErr.Pos.Line()
		}
		return issue
	}
	return PolicyIssue{Code: policy.ErrCodeGeneric, Message: err.Error()}
}

// outputPolicyErrors outputs every validation error. Invalid policies are a
// validation failure (exit code 1).
func outputPolicyErrors(formatter *OutputFormatter, result PolicyValidation) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(w, "%s:%d\n", issue.File, issue.Line)
		}
		fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return failure
}
