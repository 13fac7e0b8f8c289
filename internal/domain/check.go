package domain

// Severity grades a single comparison.
type Severity string

const (
	SeverityGreen Severity = "GREEN"
	SeverityAmber Severity = "AMBER"
	SeverityRed   Severity = "RED"
)

// Valid reports whether s is one of GREEN, AMBER or RED.
func (s Severity) Valid() bool {
	return s == SeverityGreen || s == SeverityAmber || s == SeverityRed
}

// Verdict is the overall outcome of a cross-check.
type Verdict string

const (
	VerdictCompliant          Verdict = "COMPLIANT"
	VerdictCompliantWithNotes Verdict = "COMPLIANT_WITH_NOTES"
	VerdictDiscrepancies      Verdict = "DISCREPANCIES_FOUND"
)

// CheckResult is one atomic comparison outcome.
type CheckResult struct {
	Field         string       `json:"field"`
	LCValue       string       `json:"lcValue"`
	DocumentValue string       `json:"documentValue"`
	DocumentType  DocumentType `json:"documentType,omitempty"`
	Severity      Severity     `json:"severity"`
	Rule          string       `json:"rule"`
	Explanation   string       `json:"explanation"`
}

// CheckSummary aggregates a result list. Verdict is derived from the
// results and never set on its own.
type CheckSummary struct {
	Matches     int     `json:"matches"`
	Warnings    int     `json:"warnings"`
	Criticals   int     `json:"criticals"`
	TotalChecks int     `json:"totalChecks"`
	PassRate    int     `json:"passRate"`
	Verdict     Verdict `json:"verdict"`
}
