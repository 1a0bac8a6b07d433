// Package grammar turns raw query text into a parse forest.
//
// The grammar engine is github.com/xwb1989/sqlparser, consumed as a black
// box: text in, statement out. This package adds what the guard needs around
// it:
//
//   - Text normalization (NFC, surrounding whitespace, one trailing ';')
//   - Single-statement enforcement
//   - Dialect reserved keywords, used to tell keywords from identifiers
//   - Explicit ambiguity: when the dialect lets one text mean two things,
//     every derivation that parses is returned instead of silently picking one
//
// AMBIGUITY:
//
// SQLite accepts a double-quoted token as an identifier when a matching
// column exists and as a string literal otherwise. The guard cannot see the
// schema, so for SQLite the forest carries both readings. Each derivation
// records how many tokens it had to reinterpret as literal placeholders; the
// tree annotator prefers the fewest.
//
// MySQL (without ANSI_QUOTES) always reads double quotes as strings and
// produces a single derivation.
//
// An Engine is built once per dialect and is safe for concurrent use.
package grammar
