package util

import (
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ContainsAnyCaseInsensitive returns true if text contains any of the needles (case-insensitive).
func ContainsAnyCaseInsensitive(text string, needles []string) bool {
	lt := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lt, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// IsMissing reports whether a raw CSV cell should be treated as absent.
// Mirrors the tokens a dataframe reader maps to NaN.
func IsMissing(cell string) bool {
	switch strings.ToLower(NormalizeWhitespace(cell)) {
	case "", "nan", "na", "n/a", "null", "none", "<na>":
		return true
	}
	return false
}
