package domain

import (
	"time"
)

// Report is a persisted cross-check run.
type Report struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	TradeID     string    `json:"tradeId"`
	LCReference string    `json:"lcReference"`
	CreatedAt   time.Time `json:"createdAt"`

	LC        LCTerms         `json:"lc"`
	Documents []TradeDocument `json:"documents"`

	Results []CheckResult `json:"results"`
	Summary CheckSummary  `json:"summary"`

	// Digest is the hex SHA-256 of the canonical {results, summary} pair.
	Digest string `json:"digest"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID          string `json:"traceId"`
	DocumentsChecked int    `json:"documentsChecked"`
	CustomRules      int    `json:"customRules"`
	CheckMs          int64  `json:"checkMs"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
}

// ReportResponse is the API response for a cross-check.
type ReportResponse struct {
	ReportID      string         `json:"reportId"`
	TradeID       string         `json:"tradeId"`
	TenantID      string         `json:"tenantId"`
	Verdict       Verdict        `json:"verdict"`
	Summary       CheckSummary   `json:"summary"`
	Results       []CheckResult  `json:"results"`
	Discrepancies []string       `json:"discrepancies,omitempty"`
	Digest        string         `json:"digest"`
	AuditEventID  string         `json:"auditEventId,omitempty"`
	Metadata      ReportMetadata `json:"metadata"`
}

// ToResponse converts a Report to an API response.
func (r *Report) ToResponse() *ReportResponse {
	var discrepancies []string
	for _, res := range r.Results {
		if res.Severity != SeverityGreen {
			discrepancies = append(discrepancies, res.Field+": "+res.Explanation)
		}
	}

	return &ReportResponse{
		ReportID:      r.ID,
		TradeID:       r.TradeID,
		TenantID:      r.TenantID,
		Verdict:       r.Summary.Verdict,
		Summary:       r.Summary,
		Results:       r.Results,
		Discrepancies: discrepancies,
		Digest:        r.Digest,
		Metadata:      r.Metadata,
	}
}
