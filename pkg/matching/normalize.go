// Package matching provides name/identifier canonicalization and the hybrid
// score combination used to rank screening candidates.
package matching

import (
	"strings"
	"unicode"
)

// NormalizeIdentifier canonicalizes an external identifier for exact-match
// lookup: uppercase, with whitespace and punctuation stripped. "P-123 456"
// and "p123456" normalize to the same key.
func NormalizeIdentifier(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeName canonicalizes a name for fuzzy comparison: lowercase,
// punctuation dropped, interior whitespace collapsed to single spaces.
func NormalizeName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := true
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
