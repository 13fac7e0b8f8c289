package readiness

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		in          domain.ReadinessInputs
		wantScore   int
		wantVerdict domain.Severity
		wantPrimary domain.RiskCategory
	}{
		{
			name:        "No signals",
			in:          domain.ReadinessInputs{},
			wantScore:   100,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name:        "One overlay",
			in:          domain.ReadinessInputs{TriggerFlags: map[string]bool{"eudr": true}},
			wantScore:   92,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name:        "Two overlays",
			in:          domain.ReadinessInputs{TriggerFlags: map[string]bool{"eudr": true, "cbam": true}},
			wantScore:   84,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name: "Three overlays capped",
			in: domain.ReadinessInputs{TriggerFlags: map[string]bool{
				"eudr": true, "cbam": true, "cites": true, "reach": true,
			}},
			wantScore:   70,
			wantVerdict: domain.SeverityAmber,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name: "Unknown and false flags ignored",
			in: domain.ReadinessInputs{TriggerFlags: map[string]bool{
				"eudr": false, "made_up": true,
			}},
			wantScore:   100,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name:        "High hazard",
			in:          domain.ReadinessInputs{HazardTags: []string{"aflatoxin"}},
			wantScore:   85,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskHazard,
		},
		{
			name:        "Hazards capped at 30",
			in:          domain.ReadinessInputs{HazardTags: []string{"aflatoxin", "salmonella", "listeria", "moisture"}},
			wantScore:   70,
			wantVerdict: domain.SeverityAmber,
			wantPrimary: domain.RiskHazard,
		},
		{
			name:        "Sentinels excluded",
			in:          domain.ReadinessInputs{HazardTags: []string{"none", "none_significant", " "}},
			wantScore:   100,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name:        "Document volume bands",
			in:          domain.ReadinessInputs{RequirementCount: 11},
			wantScore:   80,
			wantVerdict: domain.SeverityGreen,
			wantPrimary: domain.RiskDocumentVolume,
		},
		{
			name: "Everything maxed",
			in: domain.ReadinessInputs{
				TriggerFlags:     map[string]bool{"eudr": true, "cbam": true, "cites": true},
				HazardTags:       []string{"explosive", "radiation"},
				RestrictionFlags: map[string]bool{"sanctions": true},
				RequirementCount: 15,
			},
			wantScore:   0,
			wantVerdict: domain.SeverityRed,
			wantPrimary: domain.RiskRegulatory,
		},
		{
			name: "Regulatory and hazard tied",
			in: domain.ReadinessInputs{
				TriggerFlags: map[string]bool{"eudr": true, "cbam": true, "sps": true},
				HazardTags:   []string{"aflatoxin", "salmonella"},
			},
			wantScore:   40,
			wantVerdict: domain.SeverityRed,
			wantPrimary: domain.RiskRegulatory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
			if got.Verdict != tt.wantVerdict {
				t.Errorf("verdict = %s, want %s", got.Verdict, tt.wantVerdict)
			}
			if got.PrimaryRiskFactor != tt.wantPrimary {
				t.Errorf("primary = %s, want %s", got.PrimaryRiskFactor, tt.wantPrimary)
			}

			sum := 0
			for _, f := range got.Factors {
				if f.Penalty > f.Max {
					t.Errorf("%s penalty %d exceeds max %d", f.Category, f.Penalty, f.Max)
				}
				sum += f.Penalty
			}
			if want := max(0, 100-sum); got.Score != want {
				t.Errorf("score %d != max(0, 100 - %d)", got.Score, sum)
			}
		})
	}
}

func TestVolumeBands(t *testing.T) {
	bands := map[int]int{0: 0, 4: 0, 5: 8, 7: 8, 8: 14, 10: 14, 11: 20, 40: 20}
	for count, want := range bands {
		if got := volumeFactor(count).Penalty; got != want {
			t.Errorf("volumeFactor(%d) = %d, want %d", count, got, want)
		}
	}
}

func TestRestrictionOverride(t *testing.T) {
	in := domain.ReadinessInputs{RestrictionFlags: map[string]bool{"embargo": true}}
	got := Score(in)

	if got.Score != 80 {
		t.Errorf("expected score 80, got %d", got.Score)
	}
	if got.Verdict != domain.SeverityRed {
		t.Errorf("restriction must force RED, got %s", got.Verdict)
	}
	if got.PrimaryRiskFactor != domain.RiskRestriction {
		t.Errorf("expected restriction as primary, got %s", got.PrimaryRiskFactor)
	}
	if got.Summary != summaries[domain.RiskRestriction] {
		t.Errorf("expected restriction summary, got %q", got.Summary)
	}

	// A flag counts when present, whatever its value.
	if Score(domain.ReadinessInputs{RestrictionFlags: map[string]bool{"licence": false}}).Verdict != domain.SeverityRed {
		t.Error("a present restriction flag must force RED")
	}
}

func TestSummaryPriorityDiffersFromTieBreak(t *testing.T) {
	// Hazard 16 and regulatory 16 tie. The primary factor follows the
	// tie-break order (regulatory) while the summary prefers hazard.
	in := domain.ReadinessInputs{
		TriggerFlags:     map[string]bool{"eudr": true, "cbam": true},
		HazardTags:       []string{"moisture", "allergen"},
		RequirementCount: 5,
	}
	got := Score(in)

	if got.Score != 60 || got.Verdict != domain.SeverityAmber {
		t.Fatalf("expected AMBER 60, got %s %d", got.Verdict, got.Score)
	}
	if got.PrimaryRiskFactor != domain.RiskRegulatory {
		t.Errorf("expected regulatory primary, got %s", got.PrimaryRiskFactor)
	}
	if got.Summary != summaries[domain.RiskHazard] {
		t.Errorf("expected hazard summary, got %q", got.Summary)
	}
}

func TestGreenSummary(t *testing.T) {
	got := Score(domain.ReadinessInputs{HazardTags: []string{"aflatoxin"}})
	if got.Summary != lowRiskSummary {
		t.Errorf("GREEN verdict should use the low-risk summary, got %q", got.Summary)
	}
}

func TestPrimaryHazard(t *testing.T) {
	got := Score(domain.ReadinessInputs{HazardTags: []string{"moisture", " Aflatoxin ", "salmonella", "odour"}})
	if got.PrimaryHazard != "aflatoxin" {
		t.Errorf("expected aflatoxin as primary hazard, got %q", got.PrimaryHazard)
	}
}

func TestHighHazardMonotonic(t *testing.T) {
	tags := []string{}
	prev := Score(domain.ReadinessInputs{HazardTags: tags, RequirementCount: 6})

	for _, h := range []string{"aflatoxin", "salmonella", "listeria", "e_coli"} {
		tags = append(tags, h)
		next := Score(domain.ReadinessInputs{HazardTags: tags, RequirementCount: 6})

		hazard := next.Factors[1]
		if hazard.Penalty < MaxHazard || prev.Factors[1].Penalty < MaxHazard {
			if next.Score >= prev.Score {
				t.Errorf("adding %s should lower the score: %d -> %d", h, prev.Score, next.Score)
			}
		}
		if prev.Verdict == domain.SeverityGreen && next.Verdict == domain.SeverityRed {
			t.Errorf("adding %s jumped from GREEN to RED", h)
		}
		prev = next
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := domain.ReadinessInputs{
		TriggerFlags:     map[string]bool{"eudr": true, "sps": true, "cites": false},
		HazardTags:       []string{"aflatoxin", "moisture"},
		RestrictionFlags: map[string]bool{"sanctions": true, "dual_use_licence": true},
		RequirementCount: 9,
	}

	first := Score(in)
	for i := 0; i < 50; i++ {
		if got := Score(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
