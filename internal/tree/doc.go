// Package tree annotates a parse forest into the guard's syntax tree.
//
// The tree is an arena: nodes live in one slice, identified by their index,
// with an explicit parent index (-1 for the root). Scope lookup is an index
// walk up the parent chain with no pointers to keep alive.
//
// Node kinds form a closed enum. Every pass over the tree switches on Kind
// exhaustively, so a construct the guard does not understand is rejected
// while annotating instead of being skipped by a later pass.
//
// SCOPES:
//
// Every SELECT (the top-level query and each subquery) is a scope boundary
// and carries a ScopeID minted when the node is annotated. Scope ids start at
// 1 and increase in pre-order, so annotating the same text twice yields the
// same ids.
//
// DISAMBIGUATION:
//
// Annotate keeps the derivations with the fewest placeholders. If more than
// one survives and they render differently, the query is rejected with
// PARSE_AMBIGUOUS rather than guessed at.
package tree
