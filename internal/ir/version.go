package ir

// Version constants for reports and the audit log.
const (
	// ReportVersion is the schema version of resolution reports.
	ReportVersion = "1"

	// GuardVersion is the Bifrost guard version.
	GuardVersion = "0.1.0"
)
