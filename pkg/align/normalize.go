package align

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison form of s: lower-cased, with every
// character other than a Unicode letter, a Unicode digit or an apostrophe
// removed. Typographic apostrophes (’ and ʼ) are folded to '.
//
// The input is composed to NFC first so that a letter written as a base
// character plus combining accent survives as a single letter.
func Normalize(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case isApostrophe(r):
			b.WriteByte('\'')
		}
	}
	return strings.TrimSpace(b.String())
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’' || r == 'ʼ'
}
