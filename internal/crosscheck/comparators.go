package crosscheck

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/normalize"
)

// Outcome is what a comparator decides about one field.
type Outcome struct {
	Severity    domain.Severity
	Explanation string
}

func green(msg string) Outcome { return Outcome{domain.SeverityGreen, msg} }
func amber(msg string) Outcome { return Outcome{domain.SeverityAmber, msg} }
func red(msg string) Outcome   { return Outcome{domain.SeverityRed, msg} }

// Thresholds used by the comparators.
const (
	// QuantityTolerance is the relative difference accepted with a warning.
	QuantityTolerance = 0.05

	// PresentationDays is the UCP 600 presentation period in calendar days.
	PresentationDays = 21

	// DescriptionOverlap is the share of LC description words a document
	// must repeat to be treated as a warning rather than a discrepancy.
	DescriptionOverlap = 0.5

	toleranceEpsilon = 1e-9
)

// CompareNames grades a document name against the LC name. The ladder
// stops at the first rung that applies.
func CompareNames(reference, candidate string) Outcome {
	ref := strings.TrimSpace(reference)
	cand := strings.TrimSpace(candidate)

	switch {
	case cand == "":
		return red("Document field empty.")
	case ref == cand:
		return green("Exact match.")
	case strings.EqualFold(ref, cand):
		return green("Case-insensitive match.")
	}

	nr, nc := normalize.Name(ref), normalize.Name(cand)
	if nr != "" && nr == nc {
		return green("Match after normalizing abbreviations.")
	}
	if nr != "" && nc != "" && (strings.Contains(nr, nc) || strings.Contains(nc, nr)) {
		return amber("Partial match; review before presentation.")
	}
	return red("Mismatch; likely rejection.")
}

// CompareAmount checks a document amount against the LC amount. There is
// no warning tier: any overage is a rejection risk.
func CompareAmount(lcAmount, docAmount float64) Outcome {
	switch {
	case docAmount == 0:
		return red("Amount missing or zero; cannot verify.")
	case docAmount > lcAmount:
		return red(fmt.Sprintf("Document amount %s exceeds LC amount %s; a credit amount may never be exceeded.",
			formatNumber(docAmount), formatNumber(lcAmount)))
	default:
		return green("Amount within LC amount.")
	}
}

// CompareQuantity checks a document quantity against the LC quantity.
// The 5% boundary is inclusive on the warning side.
func CompareQuantity(lcQty, docQty float64) Outcome {
	if lcQty <= 0 {
		return amber("LC quantity not declared; cannot apply tolerance.")
	}
	if docQty == 0 {
		return amber("Quantity not specified.")
	}

	diff := math.Abs(docQty-lcQty) / lcQty
	switch {
	case diff == 0:
		return green("Quantity matches LC.")
	case diff <= QuantityTolerance+toleranceEpsilon:
		return amber(fmt.Sprintf("Quantity differs by %.2f%%; within 5%% tolerance, verify LC tolerance clause.", diff*100))
	default:
		return red(fmt.Sprintf("Quantity differs by %.2f%%; exceeds tolerance.", diff*100))
	}
}

// CompareShipmentDate checks the on-board date against the latest shipment date.
func CompareShipmentDate(latest, shipped time.Time) Outcome {
	if shipped.After(latest) {
		days := daysBetween(latest, shipped)
		return red(fmt.Sprintf("Late shipment: shipped %d day(s) after the latest shipment date.", days))
	}
	return green("Shipped on or before the latest shipment date.")
}

// ComparePresentation checks the days elapsed since shipment against the
// presentation period.
func ComparePresentation(shipped, now time.Time) Outcome {
	days := daysBetween(shipped, now)
	if days > PresentationDays {
		return red(fmt.Sprintf("%d days since shipment; documents must be presented within %d calendar days.", days, PresentationDays))
	}
	return green(fmt.Sprintf("%d days since shipment; within the %d-day presentation period.", max(days, 0), PresentationDays))
}

// CompareDescription grades goods descriptions by the share of LC words the
// document repeats. ok is false when the LC description has no words.
func CompareDescription(lcDesc, docDesc string) (Outcome, bool) {
	if strings.EqualFold(strings.Join(strings.Fields(lcDesc), " "), strings.Join(strings.Fields(docDesc), " ")) {
		return green("Description matches LC."), true
	}

	lcWords := normalize.Tokens(lcDesc)
	if len(lcWords) == 0 {
		return Outcome{}, false
	}

	docWords := make(map[string]struct{})
	for _, w := range normalize.Tokens(docDesc) {
		docWords[w] = struct{}{}
	}

	found := 0
	for _, w := range lcWords {
		if _, ok := docWords[w]; ok {
			found++
		}
	}
	overlap := float64(found) / float64(len(lcWords))
	pct := int(math.Round(overlap * 100))

	switch {
	case found == len(lcWords):
		return green("All LC description terms present."), true
	case overlap >= DescriptionOverlap:
		return amber(fmt.Sprintf("%d%% of LC description terms present; description must not conflict with the credit.", pct)), true
	default:
		return red(fmt.Sprintf("Only %d%% of LC description terms present; description does not correspond.", pct)), true
	}
}

// CompareCode compares coded references such as HS codes on their digits.
// ok is false when either side has no digits.
func CompareCode(lcCode, docCode string) (Outcome, bool) {
	a, b := digitsOnly(lcCode), digitsOnly(docCode)
	if a == "" || b == "" {
		return Outcome{}, false
	}

	switch {
	case a == b:
		return green("Code matches LC."), true
	case len(a) >= 6 && len(b) >= 6 && a[:6] == b[:6]:
		return amber("Same 6-digit subheading; national suffix differs."), true
	case strings.HasPrefix(a, b) || strings.HasPrefix(b, a):
		return amber("One code is a less specific form of the other."), true
	default:
		return red("Code does not match LC."), true
	}
}

// CompareCurrency compares ISO currency codes.
func CompareCurrency(lcCcy, docCcy string) Outcome {
	if strings.EqualFold(strings.TrimSpace(lcCcy), strings.TrimSpace(docCcy)) {
		return green("Currency matches LC.")
	}
	return red("Currency differs from LC currency.")
}

// CompareIncoterms compares the trade term and its named place.
func CompareIncoterms(lcTerm, docTerm string) Outcome {
	a := strings.Fields(strings.ToUpper(lcTerm))
	b := strings.Fields(strings.ToUpper(docTerm))
	switch {
	case len(a) == 0 || len(b) == 0:
		return red("Incoterms missing.")
	case strings.Join(a, " ") == strings.Join(b, " "):
		return green("Incoterms match LC.")
	case a[0] == b[0]:
		return amber("Same trade term; named place differs.")
	default:
		return red(fmt.Sprintf("Trade term %s differs from LC term %s.", b[0], a[0]))
	}
}

var chedPattern = regexp.MustCompile(`^GBCHD\d{4}\.\d{7}$`)

// CheckCHEDReference validates the format of a CHED reference. A mismatch
// is only a warning since the reference may be optional for the corridor.
func CheckCHEDReference(ref string) Outcome {
	if chedPattern.MatchString(strings.TrimSpace(ref)) {
		return green("CHED reference format valid.")
	}
	return amber("CHED reference does not match GBCHDyyyy.nnnnnnn; check the IPAFFS notification.")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
