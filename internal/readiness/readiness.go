// Package readiness turns regulatory risk signals into a bounded 0-100
// readiness score with a per-category breakdown.
package readiness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// Overlays are the regulatory regimes counted towards the regulatory
// penalty, in reporting order.
var Overlays = []string{
	"eudr",
	"cbam",
	"cites",
	"reach",
	"csddd",
	"uflpa",
	"conflict_minerals",
	"fgas",
	"ods",
	"kimberley",
	"sps",
	"dual_use",
}

var highHazards = map[string]bool{
	"aflatoxin":         true,
	"salmonella":        true,
	"listeria":          true,
	"e_coli":            true,
	"pesticide_residue": true,
	"heavy_metals":      true,
	"radiation":         true,
	"explosive":         true,
}

var mediumHazards = map[string]bool{
	"mycotoxin":      true,
	"ochratoxin":     true,
	"moisture":       true,
	"foreign_matter": true,
	"allergen":       true,
	"sulphites":      true,
	"infestation":    true,
	"flammable":      true,
}

// Penalty caps per category.
const (
	MaxRegulatory     = 30
	MaxHazard         = 30
	MaxDocumentVolume = 20
	MaxRestriction    = 20
)

// Hazard points.
const (
	HighHazardPoints   = 15
	MediumHazardPoints = 8
	OtherHazardPoints  = 3
)

// Verdict thresholds.
const (
	GreenThreshold = 80
	AmberThreshold = 50
)

// tieBreakOrder decides the primary risk factor when penalties tie.
var tieBreakOrder = []domain.RiskCategory{
	domain.RiskRegulatory,
	domain.RiskHazard,
	domain.RiskDocumentVolume,
	domain.RiskRestriction,
}

// summaryPriority picks the summary sentence among tied categories. It is
// not tieBreakOrder; keep the two separate.
var summaryPriority = []domain.RiskCategory{
	domain.RiskRestriction,
	domain.RiskHazard,
	domain.RiskRegulatory,
	domain.RiskDocumentVolume,
}

var summaries = map[domain.RiskCategory]string{
	domain.RiskRestriction:    "Trade restrictions apply to this corridor; obtain licences or clearance before shipping.",
	domain.RiskHazard:         "Product hazards drive the risk; arrange testing and certification before shipment.",
	domain.RiskRegulatory:     "Multiple regulatory overlays apply; plan for extra compliance evidence.",
	domain.RiskDocumentVolume: "A large document set is required; start collecting documents early.",
}

const lowRiskSummary = "Low compliance risk; standard documentation should suffice."

// Score computes the readiness result. It is pure: the same inputs always
// give the same result.
func Score(in domain.ReadinessInputs) domain.ReadinessResult {
	regulatory := regulatoryFactor(in.TriggerFlags)
	hazard, primaryHazard := hazardFactor(in.HazardTags)
	volume := volumeFactor(in.RequirementCount)
	restriction := restrictionFactor(in.RestrictionFlags)

	factors := []domain.RiskFactor{regulatory, hazard, volume, restriction}

	total := 0
	for _, f := range factors {
		total += f.Penalty
	}
	score := max(0, 100-total)

	restricted := len(in.RestrictionFlags) > 0
	verdict := verdictFor(score, restricted)
	primary := primaryFactor(factors)

	return domain.ReadinessResult{
		Score:             score,
		Verdict:           verdict,
		Summary:           summaryFor(verdict, factors),
		Factors:           factors,
		PrimaryRiskFactor: primary,
		PrimaryHazard:     primaryHazard,
	}
}

func verdictFor(score int, restricted bool) domain.Severity {
	switch {
	case restricted:
		return domain.SeverityRed
	case score >= GreenThreshold:
		return domain.SeverityGreen
	case score >= AmberThreshold:
		return domain.SeverityAmber
	default:
		return domain.SeverityRed
	}
}

func regulatoryFactor(flags map[string]bool) domain.RiskFactor {
	var active []string
	for _, name := range Overlays {
		if flags[name] {
			active = append(active, name)
		}
	}

	penalty := 0
	switch n := len(active); {
	case n >= 3:
		penalty = 30
	case n == 2:
		penalty = 16
	case n == 1:
		penalty = 8
	}

	detail := "No regulatory overlays triggered."
	if len(active) > 0 {
		detail = fmt.Sprintf("%d overlay(s): %s.", len(active), strings.Join(active, ", "))
	}
	return domain.RiskFactor{Category: domain.RiskRegulatory, Penalty: penalty, Max: MaxRegulatory, Detail: detail}
}

// hazardPoints grades one tag. ok is false for sentinels and blanks.
func hazardPoints(tag string) (int, bool) {
	switch {
	case tag == "", tag == "none", tag == "none_significant":
		return 0, false
	case highHazards[tag]:
		return HighHazardPoints, true
	case mediumHazards[tag]:
		return MediumHazardPoints, true
	default:
		return OtherHazardPoints, true
	}
}

func hazardFactor(tags []string) (domain.RiskFactor, string) {
	sum, top, primary := 0, 0, ""
	var counted []string
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		pts, ok := hazardPoints(tag)
		if !ok {
			continue
		}
		sum += pts
		counted = append(counted, tag)
		if pts > top {
			top, primary = pts, tag
		}
	}

	detail := "No significant hazards."
	if len(counted) > 0 {
		detail = fmt.Sprintf("%d hazard(s): %s.", len(counted), strings.Join(counted, ", "))
	}
	return domain.RiskFactor{
		Category: domain.RiskHazard,
		Penalty:  min(sum, MaxHazard),
		Max:      MaxHazard,
		Detail:   detail,
	}, primary
}

func volumeFactor(count int) domain.RiskFactor {
	penalty := 0
	switch {
	case count >= 11:
		penalty = 20
	case count >= 8:
		penalty = 14
	case count >= 5:
		penalty = 8
	}
	return domain.RiskFactor{
		Category: domain.RiskDocumentVolume,
		Penalty:  penalty,
		Max:      MaxDocumentVolume,
		Detail:   fmt.Sprintf("%d applicable document requirement(s).", max(count, 0)),
	}
}

func restrictionFactor(flags map[string]bool) domain.RiskFactor {
	if len(flags) == 0 {
		return domain.RiskFactor{Category: domain.RiskRestriction, Max: MaxRestriction, Detail: "No trade restrictions."}
	}

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	return domain.RiskFactor{
		Category: domain.RiskRestriction,
		Penalty:  MaxRestriction,
		Max:      MaxRestriction,
		Detail:   "Restricted: " + strings.Join(names, ", ") + ".",
	}
}

func penalties(factors []domain.RiskFactor) map[domain.RiskCategory]int {
	m := make(map[domain.RiskCategory]int, len(factors))
	for _, f := range factors {
		m[f.Category] = f.Penalty
	}
	return m
}

// primaryFactor returns the category with the largest penalty; the first
// in tieBreakOrder wins ties.
func primaryFactor(factors []domain.RiskFactor) domain.RiskCategory {
	p := penalties(factors)
	best := tieBreakOrder[0]
	for _, c := range tieBreakOrder[1:] {
		if p[c] > p[best] {
			best = c
		}
	}
	return best
}

func summaryFor(verdict domain.Severity, factors []domain.RiskFactor) string {
	if verdict == domain.SeverityGreen {
		return lowRiskSummary
	}

	p := penalties(factors)
	top := 0
	for _, v := range p {
		top = max(top, v)
	}
	for _, c := range summaryPriority {
		if p[c] == top {
			return summaries[c]
		}
	}
	return lowRiskSummary
}
