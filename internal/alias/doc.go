// Package alias builds the per-scope alias tables of an annotated query.
//
// Resolution runs in two passes. The first pass walks the tree in pre-order
// and records every table alias, subquery alias and column alias of each
// scope, keeping each column alias's table part exactly as written. The
// second pass maps every recorded table part through the scope's complete
// table alias map. Because the second pass sees every binding in the scope,
// a column alias may use a table alias that is declared later in the text.
//
// Recorded columns are immutable ir.Column values. Nothing recorded in the
// first pass is rewritten; the second pass produces new values.
package alias
