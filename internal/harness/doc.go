// Package harness runs YAML query scenarios against the guard.
//
// A scenario names a dialect, a policy source and a list of steps. Each step
// is one query with its expected outcome:
//
//	name: condition_through_alias
//	description: a WHERE reference to a column alias is checked as its column
//	policy: |
//	  policy: t1_only: {
//	    tables: ["t1"]
//	    select: ["t1.col"]
//	  }
//	steps:
//	  - query: SELECT t1.col AS thing FROM t1 WHERE thing = 42
//	    expect:
//	      verdict: accepted
//	      resolutions:
//	        thing: t1.col
//
// The policy is inline CUE (policy), a directory of CUE files relative to
// the scenario (policy_dir), or the built-in permissive validator
// (permissive: true). Every evaluation is also recorded in a throwaway
// in-memory audit store, so a run exercises the same path as the CLI.
//
// RunWithGolden snapshots the outcome of every step as canonical JSON under
// testdata/golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
