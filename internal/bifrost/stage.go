package bifrost

// Stage is a step of one evaluation. Stages advance strictly in order; any
// stage may end in StageRejected.
type Stage int

const (
	StageNew Stage = iota
	StageParsed
	StageAnnotated
	StageAliasesResolved
	StageValidated
	StageRejected
)

var stageNames = [...]string{
	StageNew:             "new",
	StageParsed:          "parsed",
	StageAnnotated:       "annotated",
	StageAliasesResolved: "aliases_resolved",
	StageValidated:       "validated",
	StageRejected:        "rejected",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageValidated || s == StageRejected
}
