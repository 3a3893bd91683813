// Package match implements the compatibility scoring engine: two eliminator
// gates followed by fifteen binary criteria over a deal profile and a CDE
// profile. Scoring is a pure function of its two inputs.
package match

import "strings"

// NormalizeText lower-cases a free-text field, turns underscores and hyphens
// into spaces, and collapses runs of whitespace. Every substring and equality
// comparison in the engine runs on normalized text so that data-entry
// variance ("Real_Estate", "real estate", "REAL ESTATE") compares equal.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// splitTokens splits free text on commas and semicolons and normalizes each
// token. Empty tokens are dropped.
func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		if t := NormalizeText(tok); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// containsWholeWord reports whether needle appears in haystack bounded by
// non-letter characters on both sides. Both arguments must already be
// normalized. Guards against "indiana" matching inside "indianapolis metro"
// style false positives when scanning predominant-market text for full
// state names.
func containsWholeWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
