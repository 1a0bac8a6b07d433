package bifrost

import (
	"github.com/roach88/bifrost/internal/ir"
	"github.com/roach88/bifrost/internal/store"
)

// AuditRecord turns the outcome of Evaluate into an audit log row.
// Exactly one of res and evalErr is expected to be non-nil.
func (g *Guard) AuditRecord(text string, res *Result, evalErr error) (store.Evaluation, error) {
	ev := store.Evaluation{
		Dialect: string(g.Dialect()),
		Query:   text,
	}

	if evalErr != nil {
		fp, err := g.Fingerprint(text)
		if err != nil {
			return store.Evaluation{}, err
		}
		ev.Fingerprint = fp
		ev.Verdict = store.VerdictRejected
		ev.Code = string(ir.CodeOf(evalErr))
		ev.Message = evalErr.Error()
		if ge, ok := ir.AsGuardError(evalErr); ok {
			ev.Message = ge.Message
		}
		return ev, nil
	}

	report, err := res.ReportJSON()
	if err != nil {
		return store.Evaluation{}, err
	}
	ev.Fingerprint = res.Fingerprint
	ev.Verdict = store.VerdictAccepted
	ev.Validator = res.ValidatorName
	ev.Report = string(report)
	return ev, nil
}
