package crosscheck

import (
	"fmt"
	"math"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// Summarize counts results by severity and derives the verdict. The
// verdict is never set any other way.
func Summarize(results []domain.CheckResult) domain.CheckSummary {
	var s domain.CheckSummary
	for _, r := range results {
		switch r.Severity {
		case domain.SeverityGreen:
			s.Matches++
		case domain.SeverityAmber:
			s.Warnings++
		case domain.SeverityRed:
			s.Criticals++
		default:
			panic(fmt.Sprintf("crosscheck: unknown severity %q on %s", r.Severity, r.Field))
		}
	}

	s.TotalChecks = len(results)
	if s.TotalChecks > 0 {
		s.PassRate = int(math.Round(100 * float64(s.Matches) / float64(s.TotalChecks)))
	}
	s.Verdict = DeriveVerdict(s.Criticals, s.Warnings)
	return s
}

// DeriveVerdict maps severity counts to a verdict.
func DeriveVerdict(criticals, warnings int) domain.Verdict {
	switch {
	case criticals > 0:
		return domain.VerdictDiscrepancies
	case warnings > 0:
		return domain.VerdictCompliantWithNotes
	default:
		return domain.VerdictCompliant
	}
}
