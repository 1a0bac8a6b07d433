// Package bifrost is the guard's orchestrator: it drives a query through
// parsing, annotation, alias resolution, qualification and policy checks,
// and stops at the first violation.
package bifrost

import (
	"fmt"

	"github.com/roach88/bifrost/internal/alias"
	"github.com/roach88/bifrost/internal/constraint"
	"github.com/roach88/bifrost/internal/grammar"
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/logger"
	"github.com/roach88/bifrost/internal/qualify"
	"github.com/roach88/bifrost/internal/tree"
)

// Guard evaluates untrusted queries against a set of validators.
// A Guard is read-only after New and safe for concurrent use; each
// evaluation builds its own tree and alias registry.
type Guard struct {
	engine     *grammar.Engine
	validators *constraint.Set
	log        *logger.Logger
}

// Option configures a Guard.
type Option func(*options)

type options struct {
	keywords *grammar.Keywords
	log      *logger.Logger
}

// WithKeywords overrides the dialect's reserved words.
func WithKeywords(k *grammar.Keywords) Option {
	return func(o *options) {
		o.keywords = k
	}
}

// WithLogger sets the logger. Defaults to the BIFROST module logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New builds a Guard. At least one validator is required; a query is
// accepted when any one of them accepts all of it.
func New(dialect grammar.Dialect, validators []constraint.Validator, opts ...Option) (*Guard, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	set, err := constraint.AnyOf(validators...)
	if err != nil {
		return nil, err
	}

	var engineOpts []grammar.Option
	if o.keywords != nil {
		engineOpts = append(engineOpts, grammar.WithKeywords(o.keywords))
	}
	engine, err := grammar.New(dialect, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("building grammar engine: %w", err)
	}

	if o.log == nil {
		o.log = logger.GetLogger("bifrost")
	}
	return &Guard{engine: engine, validators: set, log: o.log}, nil
}

// Dialect returns the guard's dialect.
func (g *Guard) Dialect() grammar.Dialect {
	return g.engine.Dialect()
}

// Fingerprint identifies an evaluation input: the guard's dialect and the
// normalized text. It does not require the text to parse.
func (g *Guard) Fingerprint(text string) (string, error) {
	return ir.QueryFingerprint(string(g.Dialect()), grammar.Normalize(text))
}

// Result is an accepted query.
type Result struct {
	Stage       Stage
	Dialect     grammar.Dialect
	Tree        *tree.Tree
	Registry    *alias.Registry
	Statement   string // parser's canonical SQL for the accepted reading
	Fingerprint string

	// Validator is the index of the first validator that accepted the
	// query; ValidatorName is its display name.
	Validator     int
	ValidatorName string

	Resolutions []qualify.Resolution
}

// Evaluate runs the full pipeline on one query text. It returns a Result
// only when some validator accepts the whole query; otherwise the first
// violation, as an *ir.GuardError.
func (g *Guard) Evaluate(text string) (*Result, error) {
	ev := &evaluation{guard: g, stage: StageNew}
	res, err := ev.run(text)
	if err != nil {
		ev.reject(err)
		return nil, err
	}
	return res, nil
}

// evaluation is the private state of one Evaluate call.
type evaluation struct {
	guard       *Guard
	stage       Stage
	fingerprint string
}

func (ev *evaluation) advance(to Stage) {
	ev.guard.log.Debug().
		Str("from", ev.stage.String()).
		Str("to", to.String()).
		Str("fingerprint", ev.fingerprint).
		Msg("stage transition")
	ev.stage = to
}

func (ev *evaluation) reject(err error) {
	event := ev.guard.log.Info()
	if ir.IsInternal(err) {
		event = ev.guard.log.Error()
	}
	event.
		Str("stage", ev.stage.String()).
		Str("code", string(ir.CodeOf(err))).
		Str("fingerprint", ev.fingerprint).
		Err(err).
		Msg("query rejected")
	ev.stage = StageRejected
}

func (ev *evaluation) run(text string) (*Result, error) {
	g := ev.guard

	fingerprint, err := g.Fingerprint(text)
	if err != nil {
		return nil, err
	}
	ev.fingerprint = fingerprint

	forest, err := g.engine.Parse(text)
	if err != nil {
		return nil, err
	}
	ev.advance(StageParsed)

	t, err := tree.Annotate(forest)
	if err != nil {
		return nil, err
	}
	ev.advance(StageAnnotated)

	reg, err := alias.Resolve(t)
	if err != nil {
		return nil, err
	}
	ev.advance(StageAliasesResolved)

	resolutions, err := qualify.New(t, reg).ResolveAll()
	if err != nil {
		return nil, err
	}

	idx, err := g.validators.Check(func(v constraint.Validator) error {
		return newChecker(t, reg, resolutions, v).check()
	})
	if err != nil {
		return nil, err
	}
	ev.advance(StageValidated)

	name := constraint.Name(g.validators.Validators()[idx])
	g.log.Debug().
		Str("fingerprint", ev.fingerprint).
		Str("validator", name).
		Int("columns", len(resolutions)).
		Msg("query accepted")

	return &Result{
		Stage:         StageValidated,
		Dialect:       forest.Dialect,
		Tree:          t,
		Registry:      reg,
		Statement:     t.Statement,
		Fingerprint:   ev.fingerprint,
		Validator:     idx,
		ValidatorName: name,
		Resolutions:   resolutions,
	}, nil
}
