// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/normalize"
)

// maxOrgSlug matches the longest organization identifier accepted by the API.
const maxOrgSlug = 64

var (
	// Matches spaces, underscores, dots and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_./]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
)

// OrgSlug converts a parish or organization name to an organization
// identifier. Diacritics are dropped and anything outside [a-z0-9-]
// removed, so the result may be empty.
//
// Examples:
//
//	"St. Nicholas"        → "st-nicholas"
//	"Holy_Trinity"        → "holy-trinity"
//	"São Jorge"           → "sao-jorge"
//	"  Christ the King  " → "christ-the-king"
//	"--leading--"         → "leading"
func OrgSlug(input string) string {
	s := strings.ToLower(normalize.Key(strings.TrimSpace(input)))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxOrgSlug {
		s = strings.TrimRight(s[:maxOrgSlug], "-")
	}
	return s
}
