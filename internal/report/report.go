// Package report turns cross-check output into a persisted verification
// report with a tamper-evident digest.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/domain"
)

// DefaultEngineVersion is stamped on reports when none is configured.
const DefaultEngineVersion = "tradeproof-1.0"

// Processor builds reports from engine results.
type Processor struct {
	// Version recorded in report metadata
	EngineVersion string

	now func() time.Time
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		EngineVersion: DefaultEngineVersion,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Input contains everything needed to build a report.
type Input struct {
	TenantID    string
	TradeID     string
	TraceID     string
	LC          domain.LCTerms
	Documents   []domain.TradeDocument
	Results     []domain.CheckResult
	Summary     domain.CheckSummary
	CheckMs     int64
	CustomRules int
	StartTime   time.Time
}

// digestBody is the hashed part of a report.
type digestBody struct {
	Results []domain.CheckResult `json:"results"`
	Summary domain.CheckSummary  `json:"summary"`
}

// Process builds a report. The digest covers only results and summary, so
// two runs over the same presentation produce the same digest.
func (p *Processor) Process(ctx context.Context, input *Input) (*domain.Report, error) {
	results := input.Results
	if results == nil {
		results = []domain.CheckResult{}
	}

	digest, err := Digest(results, input.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to digest report: %w", err)
	}

	var totalMs int64
	if !input.StartTime.IsZero() {
		totalMs = time.Since(input.StartTime).Milliseconds()
	}

	return &domain.Report{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		TradeID:     input.TradeID,
		LCReference: input.LC.Reference,
		CreatedAt:   p.now(),
		LC:          input.LC,
		Documents:   input.Documents,
		Results:     results,
		Summary:     input.Summary,
		Digest:      digest,
		Metadata: domain.ReportMetadata{
			TraceID:          input.TraceID,
			DocumentsChecked: len(input.Documents),
			CustomRules:      input.CustomRules,
			CheckMs:          input.CheckMs,
			TotalMs:          totalMs,
			EngineVersion:    p.EngineVersion,
		},
	}, nil
}

// Digest returns the hex SHA-256 of the canonical {results, summary} pair.
func Digest(results []domain.CheckResult, summary domain.CheckSummary) (string, error) {
	return audit.Digest(digestBody{Results: results, Summary: summary})
}

// VerifyDigest recomputes a stored report's digest.
func VerifyDigest(r *domain.Report) (bool, error) {
	d, err := Digest(r.Results, r.Summary)
	if err != nil {
		return false, err
	}
	return d == r.Digest, nil
}

// ShouldAlert returns true if the report found discrepancies.
func ShouldAlert(r *domain.Report) bool {
	return r.Summary.Verdict == domain.VerdictDiscrepancies
}

// Discrepancies extracts the AMBER and RED explanations from a report.
func Discrepancies(r *domain.Report) []string {
	var out []string
	for _, res := range r.Results {
		if res.Severity != domain.SeverityGreen && res.Explanation != "" {
			out = append(out, res.Explanation)
		}
	}
	return out
}

// AuditPayload is the body of the crosscheck.completed audit event.
type AuditPayload struct {
	ReportID    string         `json:"reportId"`
	Digest      string         `json:"digest"`
	Verdict     domain.Verdict `json:"verdict"`
	TotalChecks int            `json:"totalChecks"`
	Criticals   int            `json:"criticals"`
	Warnings    int            `json:"warnings"`
}

// NewAuditPayload summarizes r for the audit chain.
func NewAuditPayload(r *domain.Report) AuditPayload {
	return AuditPayload{
		ReportID:    r.ID,
		Digest:      r.Digest,
		Verdict:     r.Summary.Verdict,
		TotalChecks: r.Summary.TotalChecks,
		Criticals:   r.Summary.Criticals,
		Warnings:    r.Summary.Warnings,
	}
}
