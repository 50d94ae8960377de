package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	// Match lists the base-name globs a file must match to be reported.
	// Nil means "*.json".
	Match          []string
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.Match == nil {
		o.Match = []string{"*.json"}
	}

	// Set default ignore patterns if none specified (nil, not just empty).
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.part",
			"*.swp",
		}
		// Editors and copy tools write hidden temporaries first; skip them
		// unless patterns were configured explicitly.
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks if a path is hidden, matches an ignore pattern, or
// matches none of the Match globs.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if o.IgnoreHidden && strings.HasPrefix(base, ".") {
		return true
	}

	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}

	for _, pattern := range o.Match {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return false
		}
	}
	return true
}
