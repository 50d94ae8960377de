// Package mapping maintains the assignment of OCR lines to record fields for
// one correction session.
//
// A State is a value: every operation returns a new State and leaves its
// input untouched, so a caller can keep any earlier State as an undo point.
// Operations given an unknown record, an out-of-range line or a field outside
// the template return the input state unchanged.
package mapping

import (
	"sort"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

// SuggestionCap is the number of autocomplete values kept per field.
const SuggestionCap = 20

// State is the mapping of one document.
type State struct {
	template    *domain.Template
	lines       domain.LineStore
	records     []domain.Record
	used        map[int]struct{}
	suggestions map[domain.Field][]string
	gen         uint64 // bumped on every clone
}

// Template returns the record template of the session.
func (s State) Template() *domain.Template { return s.template }

// Lines returns the session's line store.
func (s State) Lines() domain.LineStore { return s.lines }

// Len returns the number of records.
func (s State) Len() int { return len(s.records) }

// Records returns deep copies of the records in order.
func (s State) Records() []domain.Record {
	out := make([]domain.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Record returns a copy of the record with id.
func (s State) Record(id string) (domain.Record, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return domain.Record{}, false
	}
	return s.records[i].Clone(), true
}

// RecordIDs returns record ids in order.
func (s State) RecordIDs() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.ID
	}
	return out
}

// IsUsed reports whether line backs some field.
func (s State) IsUsed(line int) bool {
	_, ok := s.used[line]
	return ok
}

// UsedLines returns the used line indices in ascending order.
func (s State) UsedLines() []int {
	out := make([]int, 0, len(s.used))
	for i := range s.used {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Suggestions returns the autocomplete values of f, most recent last.
func (s State) Suggestions(f domain.Field) []string {
	return append([]string(nil), s.suggestions[f]...)
}

// FieldSuggestions returns a copy of every autocomplete list.
func (s State) FieldSuggestions() map[domain.Field][]string {
	return cloneSuggestions(s.suggestions)
}

// Owner reports which record field currently holds line.
func (s State) Owner(line int) (recordID string, field domain.Field, ok bool) {
	if line < 0 {
		return "", "", false
	}
	for _, r := range s.records {
		for f, m := range r.Fields {
			if m.IsOCR() && m.SourceLine == line {
				return r.ID, f, true
			}
		}
	}
	return "", "", false
}

// Changed reports whether s was produced from prev by an operation that
// did something. Operations given an invalid reference return their input.
func (s State) Changed(prev State) bool { return s.gen != prev.gen }

func (s State) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// clone returns a State sharing no mutable containers with s.
func (s State) clone() State {
	c := State{
		template:    s.template,
		lines:       s.lines,
		records:     make([]domain.Record, len(s.records)),
		used:        make(map[int]struct{}, len(s.used)),
		suggestions: cloneSuggestions(s.suggestions),
		gen:         s.gen + 1,
	}
	for i, r := range s.records {
		c.records[i] = r.Clone()
	}
	for k := range s.used {
		c.used[k] = struct{}{}
	}
	return c
}

func cloneSuggestions(in map[domain.Field][]string) map[domain.Field][]string {
	out := make(map[domain.Field][]string, len(in))
	for f, v := range in {
		out[f] = append([]string(nil), v...)
	}
	return out
}
