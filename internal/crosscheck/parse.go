package crosscheck

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numberField is an optional currency or unit label, one number, and an
// optional trailing unit: "USD 52,400.00", "105 MT", "$1,200".
var numberField = regexp.MustCompile(`^(?:[A-Za-z$€£¥]+\.?\s*)?([0-9][0-9.,]*)(?:\s*[A-Za-z%]+\.?)?$`)

var (
	plainNumber   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	groupedNumber = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)

	// "52.400" reads as 52.4 or 52400 depending on locale.
	ambiguousDot = regexp.MustCompile(`^[1-9]\d{0,2}\.\d{3}$`)
)

// parseNumber reads a single number written with comma thousands
// separators and a dot decimal point. Anything else is unparseable,
// including negative values, space or dot grouping ("52 400", "52.400,00")
// and a lone dot followed by three digits.
func parseNumber(s string) (float64, bool) {
	m := numberField.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	tok := m[1]
	if ambiguousDot.MatchString(tok) {
		return 0, false
	}
	if !plainNumber.MatchString(tok) && !groupedNumber.MatchString(tok) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"20060102",
}

// parseDate reads a calendar date and returns it as UTC midnight.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	return time.Time{}, false
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(day(b).Sub(day(a)).Hours() / 24)
}

// parseFlag reads a yes/no style document value.
func parseFlag(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1", "allowed", "permitted":
		return true, true
	case "no", "n", "false", "0", "prohibited", "not allowed", "not permitted":
		return false, true
	default:
		return false, false
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFlag(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "allowed"
	default:
		return "prohibited"
	}
}
