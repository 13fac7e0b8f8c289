package report

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
)

func sampleResults() []domain.CheckResult {
	return []domain.CheckResult{
		{Field: "Beneficiary Name", LCValue: "Acme Ltd", DocumentValue: "ACME LTD", DocumentType: domain.DocCommercialInvoice, Severity: domain.SeverityGreen, Rule: "UCP 600 Art. 18(a)", Explanation: "Case-insensitive match."},
		{Field: "Currency", LCValue: "USD", DocumentValue: "EUR", DocumentType: domain.DocCommercialInvoice, Severity: domain.SeverityRed, Rule: "UCP 600 Art. 18(a)(iii)", Explanation: "Currency EUR does not match LC currency USD."},
		{Field: "Quantity", LCValue: "100", DocumentValue: "97", DocumentType: domain.DocCommercialInvoice, Severity: domain.SeverityAmber, Rule: "UCP 600 Art. 30(b)", Explanation: "Quantity differs by 3.0%; within 5% tolerance."},
	}
}

func TestProcessor(t *testing.T) {
	proc := NewProcessor()
	ctx := context.Background()

	t.Run("ReportPopulated", func(t *testing.T) {
		results := sampleResults()
		input := &Input{
			TenantID:    "tenant-001",
			TradeID:     "trade-001",
			TraceID:     "trace-001",
			LC:          domain.LCTerms{Reference: "LC-2025-0042"},
			Documents:   []domain.TradeDocument{{Type: domain.DocCommercialInvoice}},
			Results:     results,
			Summary:     crosscheck.Summarize(results),
			CustomRules: 2,
			StartTime:   time.Now(),
		}

		r, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if r.ID == "" {
			t.Error("missing report ID")
		}
		if r.TenantID != "tenant-001" {
			t.Errorf("expected tenantID 'tenant-001', got '%s'", r.TenantID)
		}
		if r.LCReference != "LC-2025-0042" {
			t.Errorf("expected LC reference copied, got '%s'", r.LCReference)
		}
		if r.Summary.Verdict != domain.VerdictDiscrepancies {
			t.Errorf("expected DISCREPANCIES_FOUND, got %s", r.Summary.Verdict)
		}
		if len(r.Digest) != 64 {
			t.Errorf("expected hex sha256 digest, got %q", r.Digest)
		}
		if r.Metadata.TraceID != "trace-001" {
			t.Error("missing traceID in metadata")
		}
		if r.Metadata.DocumentsChecked != 1 {
			t.Errorf("expected 1 document checked, got %d", r.Metadata.DocumentsChecked)
		}
		if r.Metadata.CustomRules != 2 {
			t.Errorf("expected 2 custom rules, got %d", r.Metadata.CustomRules)
		}
		if r.Metadata.EngineVersion != DefaultEngineVersion {
			t.Errorf("expected engine version %s, got %s", DefaultEngineVersion, r.Metadata.EngineVersion)
		}
		if r.Metadata.TotalMs < 0 {
			t.Error("TotalMs should be non-negative")
		}
	})

	t.Run("DigestIsStable", func(t *testing.T) {
		results := sampleResults()
		input := &Input{TradeID: "trade-001", Results: results, Summary: crosscheck.Summarize(results)}

		a, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		b, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if a.ID == b.ID {
			t.Error("report IDs should differ between runs")
		}
		if a.Digest != b.Digest {
			t.Errorf("digest differs between identical runs: %s vs %s", a.Digest, b.Digest)
		}
	})

	t.Run("DigestCoversResults", func(t *testing.T) {
		results := sampleResults()
		r, err := proc.Process(ctx, &Input{Results: results, Summary: crosscheck.Summarize(results)})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		ok, err := VerifyDigest(r)
		if err != nil || !ok {
			t.Fatalf("fresh report should verify: ok=%v err=%v", ok, err)
		}

		r.Results[1].Severity = domain.SeverityGreen
		ok, err = VerifyDigest(r)
		if err != nil {
			t.Fatalf("VerifyDigest failed: %v", err)
		}
		if ok {
			t.Error("edited results should not verify")
		}
	})

	t.Run("EmptyResults", func(t *testing.T) {
		r, err := proc.Process(ctx, &Input{TradeID: "trade-002", Summary: crosscheck.Summarize(nil)})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if r.Results == nil {
			t.Error("results should be an empty slice, not nil")
		}
		if r.Summary.Verdict != domain.VerdictCompliant {
			t.Errorf("expected COMPLIANT for empty results, got %s", r.Summary.Verdict)
		}
	})
}

func TestShouldAlert(t *testing.T) {
	alert := &domain.Report{Summary: domain.CheckSummary{Verdict: domain.VerdictDiscrepancies}}
	notes := &domain.Report{Summary: domain.CheckSummary{Verdict: domain.VerdictCompliantWithNotes}}

	if !ShouldAlert(alert) {
		t.Error("expected true for DISCREPANCIES_FOUND")
	}
	if ShouldAlert(notes) {
		t.Error("expected false for COMPLIANT_WITH_NOTES")
	}
}

func TestDiscrepancies(t *testing.T) {
	r := &domain.Report{Results: sampleResults()}

	got := Discrepancies(r)

	if len(got) != 2 {
		t.Fatalf("expected 2 discrepancies, got %d", len(got))
	}
	if got[0] != "Currency EUR does not match LC currency USD." {
		t.Errorf("unexpected first discrepancy: %s", got[0])
	}
}

func TestAuditPayload(t *testing.T) {
	results := sampleResults()
	r, err := NewProcessor().Process(context.Background(), &Input{
		Results: results,
		Summary: crosscheck.Summarize(results),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	p := NewAuditPayload(r)

	if p.ReportID != r.ID || p.Digest != r.Digest {
		t.Error("payload should reference the report")
	}
	if p.TotalChecks != 3 || p.Criticals != 1 || p.Warnings != 1 {
		t.Errorf("unexpected counts: %+v", p)
	}
}
