package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/bifrost/internal/bifrost"
	"github.com/roach88/bifrost/internal/constraint"
	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/logger"
	"github.com/roach88/bifrost/internal/policy"
)

// buildGuard assembles a guard from the global flags. Without --policy-dir
// the guard is permissive only when explicitly asked for.
func buildGuard(opts *RootOptions, permissive bool, formatter *OutputFormatter) (*bifrost.Guard, error) {
	dialect, err := grammar.ParseDialect(opts.Dialect)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --dialect", err)
	}

	validators, err := loadValidators(opts, permissive, formatter)
	if err != nil {
		return nil, err
	}

	guardOpts := []bifrost.Option{bifrost.WithLogger(logger.GetLogger("bifrost"))}
	if opts.Keywords != "" {
		kw, err := grammar.LoadKeywordsFile(opts.Keywords, dialect)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load keywords", err)
		}
		formatter.VerboseLog("Loaded %d reserved word(s) from %s", kw.Len(), opts.Keywords)
		guardOpts = append(guardOpts, bifrost.WithKeywords(kw))
	}

	g, err := bifrost.New(dialect, validators, guardOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build guard", err)
	}
	return g, nil
}

func loadValidators(opts *RootOptions, permissive bool, formatter *OutputFormatter) ([]constraint.Validator, error) {
	switch {
	case opts.PolicyDir != "" && permissive:
		return nil, NewExitError(ExitCommandError, "--permissive and --policy-dir are mutually exclusive")
	case permissive:
		formatter.VerboseLog("Using the permissive validator")
		return []constraint.Validator{constraint.Permissive{}}, nil
	case opts.PolicyDir == "":
		return nil, NewExitError(ExitCommandError, "--policy-dir is required (or --permissive)")
	}

	loaded, errs := policy.Load(opts.PolicyDir, policy.LoadModeFailFast)
	if len(errs) > 0 {
		var loadErr *policy.LoadError
		if errors.As(errs[0], &loadErr) {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load policies (%s)", loadErr.Code), loadErr)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load policies", errs[0])
	}
	formatter.VerboseLog("Loaded %d policy(ies) from %d file(s) in %s", len(loaded.Policies), loaded.FileCount, opts.PolicyDir)

	validators, err := loaded.Validators(opts.Policies...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to select policies", err)
	}
	return validators, nil
}
