// Package normalize cleans OCR text before it is compared, classified or stored.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespace      = regexp.MustCompile(`\s+`)
	nonFieldChars   = regexp.MustCompile(`[^a-z0-9]+`)
	multipleUnders  = regexp.MustCompile(`_+`)
	leadingNonAlpha = regexp.MustCompile(`^[^a-z]+`)
)

//nolint:gochecknoglobals // Stateless caser, safe for concurrent use via String.
var folder = cases.Fold()

// Text applies NFC, drops control characters and null bytes, collapses runs
// of whitespace and trims. Scanners frequently emit both composed and
// decomposed forms of the same Cyrillic or Greek letter.
func Text(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == 0 || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Fold returns Text(s) with Unicode case folding applied, for
// case-insensitive equality.
func Fold(s string) string {
	return folder.String(Text(s))
}

// StripMarks removes combining marks after canonical decomposition.
// "Ιωάννης" -> "Ιωαννης", "Йосиф" keeps its letters but loses the breve.
func StripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key is the comparison form used for keyword matching: folded and unmarked.
func Key(s string) string {
	return StripMarks(Fold(s))
}

// FieldName converts a free-form label into a snake_case field name.
// "Burial Location" -> "burial_location", "Witness #1" -> "witness_1".
func FieldName(label string) string {
	s := strings.ToLower(Key(label))
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = nonFieldChars.ReplaceAllString(s, "_")
	s = multipleUnders.ReplaceAllString(s, "_")
	s = leadingNonAlpha.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}
