package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// checkExpect compares a step outcome against its expectation and returns
// one message per mismatch.
func checkExpect(got StepOutcome, want Expect) []string {
	var mismatches []string
	mismatch := func(field, expected, actual string) {
		mismatches = append(mismatches, fmt.Sprintf("%s: expected %q, got %q", field, expected, actual))
	}

	if got.Verdict != want.Verdict {
		detail := got.Verdict
		if got.Code != "" {
			detail = fmt.Sprintf("%s (%s: %s)", got.Verdict, got.Code, got.Message)
		}
		mismatch("verdict", want.Verdict, detail)
		return mismatches
	}

	if want.Code != "" && got.Code != want.Code {
		mismatch("code", want.Code, got.Code)
	}
	if want.Column != "" && got.Column != strings.ToLower(want.Column) {
		mismatch("column", want.Column, got.Column)
	}
	if want.Table != "" && got.Table != strings.ToLower(want.Table) {
		mismatch("table", want.Table, got.Table)
	}
	if want.Raw != "" && got.Raw != want.Raw {
		mismatch("raw", want.Raw, got.Raw)
	}
	if want.Validator != "" && got.Validator != want.Validator {
		mismatch("validator", want.Validator, got.Validator)
	}

	raws := make([]string, 0, len(want.Resolutions))
	for raw := range want.Resolutions {
		raws = append(raws, raw)
	}
	slices.Sort(raws)
	for _, raw := range raws {
		if msg := checkResolution(got, raw, want.Resolutions[raw]); msg != "" {
			mismatches = append(mismatches, msg)
		}
	}

	return mismatches
}

// checkResolution requires every reference written as raw to resolve to
// exactly the expected columns.
func checkResolution(got StepOutcome, raw string, expected any) string {
	want, err := cast.ToStringSliceE(expected)
	if err != nil {
		return fmt.Sprintf("resolutions[%s]: %v", raw, err)
	}
	for i := range want {
		want[i] = strings.ToLower(want[i])
	}
	slices.Sort(want)

	found := false
	for _, res := range got.Resolutions {
		if res.Raw != raw {
			continue
		}
		found = true
		actual := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			actual[i] = c.String()
		}
		slices.Sort(actual)
		if !slices.Equal(actual, want) {
			return fmt.Sprintf("resolutions[%s] in %s: expected %v, got %v", raw, res.Clause, want, actual)
		}
	}
	if !found {
		return fmt.Sprintf("resolutions[%s]: no such column reference", raw)
	}
	return ""
}
