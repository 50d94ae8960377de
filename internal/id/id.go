// Package id generates identifiers for records, history entries, rules and sessions.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the identifiers minted by the engine.
const (
	PrefixRecord  = "rec"
	PrefixMapping = "map"
	PrefixRule    = "rule"
)

// Generate creates a prefixed NanoID, e.g. "rec-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics if the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Record returns a fresh record id.
func Record() string { return MustGenerate(PrefixRecord) }

// Session returns a fresh correction-session id. Sessions travel in URLs
// and logs shared with the ingestion collaborator, which keys on UUIDs.
func Session() string { return uuid.NewString() }
