package store

import (
	"strings"
	"sync"
)

// Key prefixes. Every organization's data lives under its own prefix so an
// organization can be listed or exported with one prefix scan.
const (
	PrefixSuggest      = "suggest:"
	PrefixFieldSuggest = "fieldsuggest:"
	PrefixTemplate     = "template:"
)

// Suggestion engine key suffixes.
const (
	SuffixHistory = "history"
	SuffixRules   = "rules"
	SuffixStats   = "stats"
)

// SuggestKey returns the key of one suggestion-engine document for org,
// e.g. "suggest:st-nicholas:rules".
func SuggestKey(org, suffix string) string {
	return PrefixSuggest + org + ":" + suffix
}

// FieldSuggestKey returns the autocomplete list key for org.
func FieldSuggestKey(org string) string {
	return PrefixFieldSuggest + org
}

// TemplateKey returns the key of a custom document template,
// e.g. "template:confirmation".
func TemplateKey(docType string) string {
	return PrefixTemplate + docType
}

// OrgFromSuggestKey extracts the organization from a suggest key.
func OrgFromSuggestKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, PrefixSuggest)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// keyPool provides reusable byte slices for building Badger keys.
var keyPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 128)
	},
}

// buildKey copies key into a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(key string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	return append(buf, key...)
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	// Only pool buffers that have reasonable capacity.
	if cap(key) <= 512 {
		keyPool.Put(key[:0]) //nolint:staticcheck // slice header allocation is acceptable here
	}
}
