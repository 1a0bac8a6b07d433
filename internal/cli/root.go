package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	LogLevel string
	Dialect  string

	// PolicyDir holds the CUE policy files; Policies selects policies by
	// name (all when empty).
	PolicyDir string
	Policies  []string

	// AuditDB is the SQLite audit log. Empty disables auditing.
	AuditDB string

	// Keywords is an optional YAML file overriding reserved words.
	Keywords string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the Bifrost CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bifrost",
		Short: "Bifrost - SQL query guard",
		Long: `Bifrost checks untrusted SQL SELECT queries against an access policy
before they reach a database. Every column reference is resolved through
table and column aliases to a fully qualified column, then checked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.LogLevel, "log-level", logger.DefaultLevel, "log level (debug|info|warn|error)")
	flags.StringVar(&opts.Dialect, "dialect", string(grammar.DialectMySQL), "SQL dialect (mysql|sqlite)")
	flags.StringVar(&opts.PolicyDir, "policy-dir", "", "directory of CUE policy files")
	flags.StringSliceVar(&opts.Policies, "policy", nil, "policy names to enforce (default all)")
	flags.StringVar(&opts.AuditDB, "audit-db", "", "path to the SQLite audit log")
	flags.StringVar(&opts.Keywords, "keywords", "", "YAML file of reserved words")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// setup validates global flags and configures logging.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if _, err := grammar.ParseDialect(o.Dialect); err != nil {
		return WrapExitError(ExitCommandError, "invalid --dialect", err)
	}

	level := o.LogLevel
	if o.Verbose && level == logger.DefaultLevel {
		level = "debug"
	}
	format := logger.FormatText
	if o.Format == "json" {
		format = logger.FormatJSON
	}
	if err := logger.Init(logger.Logging{Level: level, Format: format, Writer: cmd.ErrOrStderr()}); err != nil {
		return WrapExitError(ExitCommandError, "invalid logging configuration", err)
	}
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
