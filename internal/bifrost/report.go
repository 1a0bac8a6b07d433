package bifrost

import (
	"github.com/roach88/bifrost/internal/ir"
)

// Report renders the accepted query as a canonical-JSON-ready map: the
// canonical statement, the accepting validator and every column
// resolution in tree order.
func (r *Result) Report() map[string]any {
	resolutions := make([]any, 0, len(r.Resolutions))
	for _, res := range r.Resolutions {
		cols := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			cols[i] = c.String()
		}
		resolutions = append(resolutions, map[string]any{
			"raw":     res.Raw,
			"clause":  res.Clause,
			"scope":   int(res.Scope),
			"columns": cols,
		})
	}

	return map[string]any{
		"version":     ir.ReportVersion,
		"dialect":     string(r.Dialect),
		"stage":       r.Stage.String(),
		"statement":   r.Statement,
		"fingerprint": r.Fingerprint,
		"validator":   r.ValidatorName,
		"scopes":      r.Tree.Scopes,
		"resolutions": resolutions,
	}
}

// ReportJSON returns the report as canonical JSON.
func (r *Result) ReportJSON() ([]byte, error) {
	return ir.MarshalCanonical(r.Report())
}

// Columns returns every distinct column the query touches, sorted.
func (r *Result) Columns() []ir.Column {
	set := ir.NewColumnSet()
	for _, res := range r.Resolutions {
		for _, c := range res.Columns {
			set.Add(c)
		}
	}
	return set.Sorted()
}
