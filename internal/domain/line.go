package domain

import (
	"encoding/json"
	"math"
)

// OcrLine is one recognized line of text. Index is its position in the
// session's LineStore and never changes.
type OcrLine struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// LineStore is the immutable, ordered list of lines a session works on.
// The zero value is an empty store.
type LineStore struct {
	lines []OcrLine
}

// NewLineStore copies lines into a store. Each line is re-indexed by its
// position and its confidence clamped to [0,1]; NaN becomes 0.
func NewLineStore(lines []OcrLine) LineStore {
	out := make([]OcrLine, len(lines))
	for i, l := range lines {
		out[i] = OcrLine{Index: i, Text: l.Text, Confidence: clamp01(l.Confidence)}
	}
	return LineStore{lines: out}
}

// LinesFromText builds a store from plain strings at full confidence.
func LinesFromText(texts ...string) LineStore {
	lines := make([]OcrLine, len(texts))
	for i, t := range texts {
		lines[i] = OcrLine{Text: t, Confidence: 1}
	}
	return NewLineStore(lines)
}

// Len returns the number of lines.
func (s LineStore) Len() int { return len(s.lines) }

// At returns the line at index i.
func (s LineStore) At(i int) (OcrLine, bool) {
	if i < 0 || i >= len(s.lines) {
		return OcrLine{}, false
	}
	return s.lines[i], true
}

// All returns a copy of every line in order.
func (s LineStore) All() []OcrLine {
	out := make([]OcrLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// MarshalJSON encodes the store as a plain array of lines.
func (s LineStore) MarshalJSON() ([]byte, error) {
	if s.lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.lines)
}

// UnmarshalJSON decodes an array of lines, normalizing it like NewLineStore.
func (s *LineStore) UnmarshalJSON(data []byte) error {
	var lines []OcrLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*s = NewLineStore(lines)
	return nil
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
