package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrgSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic normalization
		{"lowercase", "HOLY-TRINITY", "holy-trinity"},
		{"abbreviation dot", "St. Nicholas", "st-nicholas"},
		{"underscores to dashes", "holy_trinity", "holy-trinity"},
		{"already normalized", "st-nicholas", "st-nicholas"},

		// Whitespace handling
		{"trim whitespace", "  christ the king  ", "christ-the-king"},
		{"tabs and spaces", "st\t george", "st-george"},

		// Non-ASCII
		{"diacritics", "São Jorge", "sao-jorge"},
		{"greek letters removed", "Άγιος Νικόλαος", ""},
		{"punctuation removal", "St. Mary's (Old)", "st-marys-old"},

		// Dash handling
		{"multiple dashes", "st--anne", "st-anne"},
		{"leading and trailing", "--leading--", "leading"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OrgSlug(tt.input))
		})
	}
}

func TestOrgSlug_Truncates(t *testing.T) {
	got := OrgSlug(strings.Repeat("a", 63) + " b")
	assert.Equal(t, strings.Repeat("a", 63), got, "trailing dash is trimmed after truncation")
	assert.LessOrEqual(t, len(OrgSlug(strings.Repeat("parish ", 20))), 64)
}
