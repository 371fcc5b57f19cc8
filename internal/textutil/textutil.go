// Package textutil holds the accent-insensitive string helpers shared by the
// identifier derivation and the keyword detectors.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlug    = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRun    = regexp.MustCompile(`-{2,}`)
	spaceRun   = regexp.MustCompile(`\s+`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// StripDiacritics removes combining marks ("pão" -> "pao").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	s = strings.ToLower(StripDiacritics(s))
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Slug derives the protocol-safe form of s: folded, spaces as hyphens and
// anything outside [a-z0-9-] dropped.
func Slug(s string) string {
	s = strings.ReplaceAll(Fold(s), " ", "-")
	s = nonSlug.ReplaceAllString(s, "")
	s = dashRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ContainsAny reports whether any of the phrases occurs in text as whole
// words. Both sides are folded first.
func ContainsAny(text string, phrases ...string) bool {
	padded := " " + wordsOnly(Fold(text)) + " "
	for _, p := range phrases {
		p = wordsOnly(Fold(p))
		if p == "" {
			continue
		}
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// IsDigitsOnly reports whether the trimmed text is a bare run of digits.
func IsDigitsOnly(s string) bool {
	return digitsOnly.MatchString(strings.TrimSpace(s))
}

// HasDigit reports whether s contains at least one decimal digit.
func HasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func wordsOnly(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
