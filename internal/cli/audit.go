package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bifrost/internal/store"
)

// AuditOptions holds flags for the audit commands.
type AuditOptions struct {
	*RootOptions
	Limit       int
	Fingerprint string
}

// AuditList is the output of audit list.
type AuditList struct {
	Evaluations []store.Evaluation `json:"evaluations"`
}

func (l AuditList) String() string {
	if len(l.Evaluations) == 0 {
		return "No evaluations recorded."
	}
	var b strings.Builder
	for i, ev := range l.Evaluations {
		if i > 0 {
			b.WriteString("\n")
		}
		outcome := string(ev.Verdict)
		switch {
		case ev.Code != "":
			outcome += " " + ev.Code
		case ev.Validator != "":
			outcome += " by " + ev.Validator
		}
		fmt.Fprintf(&b, "%5d  %s  %s  %-8s %s\n       %s",
			ev.Seq, ev.CreatedAt.Format(time.RFC3339), ev.ID, ev.Dialect, outcome, ev.Query)
	}
	return b.String()
}

// AuditStats is the output of audit stats.
type AuditStats struct {
	Rejections map[string]int `json:"rejections"`
}

func (s AuditStats) String() string {
	if len(s.Rejections) == 0 {
		return "No rejections recorded."
	}
	codes := make([]string, 0, len(s.Rejections))
	for code := range s.Rejections {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	var b strings.Builder
	for i, code := range codes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-28s %d", code, s.Rejections[code])
	}
	return b.String()
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the evaluation audit log",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent evaluations, newest first",
		Example: `  bifrost audit list --audit-db ./bifrost.db --limit 20
  bifrost audit list --audit-db ./bifrost.db --fingerprint 3f2a...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditList(opts, cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of evaluations (0 for all)")
	list.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "only evaluations of this query fingerprint")

	stats := &cobra.Command{
		Use:           "stats",
		Short:         "Count rejections per error code",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditStats(opts, cmd)
		},
	}

	cmd.AddCommand(list, stats)
	return cmd
}

func openAudit(opts *AuditOptions) (*store.Store, error) {
	if opts.AuditDB == "" {
		return nil, NewExitError(ExitCommandError, "--audit-db is required")
	}
	st, err := store.Open(opts.AuditDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open audit database", err)
	}
	return st, nil
}

func runAuditList(opts *AuditOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openAudit(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	var evals []store.Evaluation
	if opts.Fingerprint != "" {
		evals, err = st.ListByFingerprint(cmd.Context(), opts.Fingerprint)
	} else {
		evals, err = st.ListEvaluations(cmd.Context(), opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read audit log", err)
	}
	formatter.VerboseLog("Read %d evaluation(s) from %s", len(evals), opts.AuditDB)

	return formatter.Success(AuditList{Evaluations: evals})
}

func runAuditStats(opts *AuditOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openAudit(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.CountByCode(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read audit log", err)
	}
	return formatter.Success(AuditStats{Rejections: counts})
}
