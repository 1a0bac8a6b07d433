package grammar

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bifrost/internal/ir"
)

// Derivation is one complete reading of the query text.
type Derivation struct {
	// Statement is the parser's syntax tree for Source.
	Statement sqlparser.Statement

	// Source is the text that was handed to the parser.
	Source string

	// Placeholders counts tokens reinterpreted as literal placeholders to
	// reach this reading. Lower is preferred.
	Placeholders int
}

// Forest is the parse result of one query: every derivation that parsed.
type Forest struct {
	Text        string
	Dialect     Dialect
	Keywords    *Keywords
	Derivations []Derivation
}

// Engine parses query text for one dialect.
// An Engine is read-only after New and safe for concurrent use.
type Engine struct {
	dialect  Dialect
	keywords *Keywords
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeywords replaces the dialect's built-in reserved words.
func WithKeywords(k *Keywords) Option {
	return func(e *Engine) {
		e.keywords = k
	}
}

// New builds an Engine for the given dialect.
func New(d Dialect, opts ...Option) (*Engine, error) {
	if _, err := ParseDialect(string(d)); err != nil {
		return nil, err
	}
	e := &Engine{dialect: d}
	for _, opt := range opts {
		opt(e)
	}
	if e.keywords == nil {
		k, err := LoadKeywords(d)
		if err != nil {
			return nil, err
		}
		e.keywords = k
	}
	return e, nil
}

// Dialect returns the engine's dialect.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// Keywords returns the engine's reserved words.
func (e *Engine) Keywords() *Keywords {
	return e.keywords
}

// candidate is a rewritten source text awaiting a parse attempt.
type candidate struct {
	source       string
	placeholders int
}

// Parse normalizes text and returns every derivation that parses.
// Returns a PARSE_REJECTED GuardError when none does.
func (e *Engine) Parse(text string) (*Forest, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, ir.NewParseRejected("empty query")
	}
	if err := singleStatement(normalized); err != nil {
		return nil, err
	}

	forest := &Forest{Text: normalized, Dialect: e.dialect, Keywords: e.keywords}
	var firstErr error
	for _, c := range e.candidates(normalized) {
		stmt, err := sqlparser.Parse(c.source)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		forest.Derivations = append(forest.Derivations, Derivation{
			Statement:    stmt,
			Source:       c.source,
			Placeholders: c.placeholders,
		})
	}
	if len(forest.Derivations) == 0 {
		rejected := ir.NewParseRejected(firstErr.Error())
		rejected.Raw = normalized
		return nil, rejected
	}
	return forest, nil
}

// candidates lists the source texts to parse, most preferred first.
func (e *Engine) candidates(text string) []candidate {
	if !e.dialect.doubleQuotedIsAmbiguous() {
		return []candidate{{source: text}}
	}
	spans := scanDoubleQuoted(text)
	if len(spans) == 0 {
		return []candidate{{source: text}}
	}
	return []candidate{
		{source: rewriteQuoted(text, spans, asIdentifier)},
		{source: rewriteQuoted(text, spans, asLiteral), placeholders: len(spans)},
	}
}

// Normalize applies NFC normalization, trims surrounding whitespace and
// drops trailing semicolons.
func Normalize(text string) string {
	s := strings.TrimSpace(norm.NFC.String(text))
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// singleStatement rejects texts holding more than one statement.
func singleStatement(text string) error {
	pieces, err := sqlparser.SplitStatementToPieces(text)
	if err != nil {
		return ir.NewParseRejected(fmt.Sprintf("split statements: %v", err))
	}
	n := 0
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	if n > 1 {
		rejected := ir.NewParseRejected("only a single statement is allowed")
		rejected.Details = map[string]string{"statements": fmt.Sprintf("%d", n)}
		return rejected
	}
	return nil
}
