// Package normalize canonicalizes company and entity names so that
// equivalent spellings compare equal.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalForm maps a punctuated or abbreviated legal suffix to its long form.
type legalForm struct {
	pattern *regexp.Regexp
	form    string
}

// Order matters: sarl must be tried before sa, and every pattern runs
// before punctuation is stripped so "co." and "s.a.r.l." are still seen.
var legalForms = []legalForm{
	{regexp.MustCompile(`\bs\.?\s?a\.?\s?r\.?\s?l\b\.?`), "sarl"},
	{regexp.MustCompile(`\bl\.?l\.?c\b\.?`), "llc"},
	{regexp.MustCompile(`\bp\.?l\.?c\b\.?`), "plc"},
	{regexp.MustCompile(`\b(?:ltd|limited)\b\.?`), "limited"},
	{regexp.MustCompile(`\b(?:inc|incorporated)\b\.?`), "incorporated"},
	{regexp.MustCompile(`\b(?:corp|corporation)\b\.?`), "corporation"},
	{regexp.MustCompile(`\b(?:co|company)\b\.?`), "company"},
	{regexp.MustCompile(`\bgmbh\b\.?`), "gmbh"},
	{regexp.MustCompile(`\bs\.?a\b\.?`), "sa"},
}

// innerHyphen joins hyphenated words ("co-operative") before legal forms
// are matched, so a word prefix is not read as a suffix.
var innerHyphen = regexp.MustCompile(`\b-\b`)

// Name returns the canonical form of an entity name. It never fails:
// empty input yields "".
func Name(s string) string {
	s = strings.ToLower(strings.TrimSpace(fold(s)))
	if s == "" {
		return ""
	}

	s = innerHyphen.ReplaceAllString(s, "")
	for _, lf := range legalForms {
		s = lf.pattern.ReplaceAllString(s, lf.form)
	}

	s = strings.ReplaceAll(s, "&", " and ")

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

// fold strips diacritics so "Société" and "Societe" compare equal.
// A transformer chain is stateful, so one is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens splits s into lowercase alphanumeric words, dropping duplicates
// and keeping first-seen order.
func Tokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(fold(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
