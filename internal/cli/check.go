package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/bifrost/internal/bifrost"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/logger"
	"github.com/roach88/bifrost/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	File       string
	Permissive bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [query]",
		Short: "Check one query against the policies",
		Long: `Check one SQL query against the loaded policies.

The query is read from the argument, from --file, or from stdin.
When --audit-db is set, the evaluation is appended to the audit log and
its id is reported as the trace id.

Exit codes:
  0 - Query accepted
  1 - Query rejected
  2 - Command error (bad flags, unreadable policy, etc.)

Examples:
  bifrost check --policy-dir ./policies "SELECT t1.col FROM t1"
  bifrost check --permissive --dialect sqlite --file query.sql
  echo "SELECT t1.col FROM t1" | bifrost check --permissive --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file")
	cmd.Flags().BoolVar(&opts.Permissive, "permissive", false, "allow everything (resolution only)")

	return cmd
}

// CheckResult is the text-mode view of an accepted query.
type CheckResult struct {
	Validator   string
	Statement   string
	Resolutions []string
}

func (r CheckResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Accepted by %s\n", r.Validator)
	fmt.Fprintf(&b, "  %s", r.Statement)
	for _, res := range r.Resolutions {
		fmt.Fprintf(&b, "\n  %s", res)
	}
	return b.String()
}

func runCheck(opts *CheckOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	log := logger.GetLogger("cli")

	query, err := readQuery(opts, args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	g, err := buildGuard(opts.RootOptions, opts.Permissive, formatter)
	if err != nil {
		return err
	}

	res, evalErr := g.Evaluate(query)

	traceID, err := audit(cmd.Context(), opts.RootOptions, g, query, res, evalErr)
	if err != nil {
		return err
	}
	log.Debug().Str("trace_id", traceID).Bool("accepted", evalErr == nil).Msg("query checked")

	if evalErr != nil {
		code := string(ir.CodeOf(evalErr))
		message := evalErr.Error()
		var details map[string]string
		if ge, ok := ir.AsGuardError(evalErr); ok {
			message = ge.Message
			details = rejectionDetails(ge)
		}
		if err := formatter.ErrorWithTrace(code, message, details, traceID); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
	}

	if formatter.Format == "json" {
		return formatter.SuccessWithTrace(res.Report(), traceID)
	}
	return formatter.Success(checkResultOf(res))
}

func readQuery(opts *CheckOptions, args []string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case len(args) == 1 && opts.File != "":
		return "", NewExitError(ExitCommandError, "give the query as an argument or with --file, not both")
	case len(args) == 1:
		data = []byte(args[0])
	case opts.File != "":
		if data, err = os.ReadFile(opts.File); err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read query file", err)
		}
	default:
		if data, err = io.ReadAll(stdin); err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read query from stdin", err)
		}
	}

	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", NewExitError(ExitCommandError, "no query given")
	}
	return query, nil
}

// audit records the evaluation when an audit log is configured and returns
// the trace id: the audit row id, or a fresh UUID without a log.
func audit(ctx context.Context, opts *RootOptions, g *bifrost.Guard, query string, res *bifrost.Result, evalErr error) (string, error) {
	if opts.AuditDB == "" {
		return uuid.NewString(), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := g.AuditRecord(query, res, evalErr)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to build audit record", err)
	}

	st, err := store.Open(opts.AuditDB)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to open audit database", err)
	}
	defer st.Close()

	stored, err := st.RecordEvaluation(ctx, rec)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to record evaluation", err)
	}
	return stored.ID, nil
}

func rejectionDetails(ge *ir.GuardError) map[string]string {
	details := make(map[string]string, len(ge.Details)+3)
	for k, v := range ge.Details {
		details[k] = v
	}
	if ge.Raw != "" {
		details["raw"] = ge.Raw
	}
	if ge.Table != "" {
		details["table"] = ge.Table
	}
	if ge.Column != nil {
		details["column"] = ge.Column.String()
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func checkResultOf(res *bifrost.Result) CheckResult {
	out := CheckResult{Validator: res.ValidatorName, Statement: res.Statement}
	for _, r := range res.Resolutions {
		cols := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = c.String()
		}
		out.Resolutions = append(out.Resolutions,
			fmt.Sprintf("%-12s %s -> %s", r.Clause, r.Raw, strings.Join(cols, ", ")))
	}
	return out
}
