package mapping

import (
	"context"
	"log/slog"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/id"
	"github.com/parishrecords/ocrmapper/internal/logger"
)

// Options configures a Manager.
type Options struct {
	Template    *domain.Template
	Org         string
	Suggestions FieldSuggestionStore // nil keeps autocomplete values in memory only
	Logger      *slog.Logger
	NewID       func() string // record id generator, defaults to id.Record
}

// Manager applies mapping operations for one template and organization.
// It holds no session state and is safe for concurrent use.
type Manager struct {
	template    *domain.Template
	org         string
	suggestions FieldSuggestionStore
	logger      *slog.Logger
	newID       func() string
}

// NewManager creates a Manager. Without a template it maps funeral records.
func NewManager(opts Options) *Manager {
	if opts.Template == nil {
		opts.Template, _ = domain.BuiltinTemplate(domain.Funeral)
	}
	if opts.NewID == nil {
		opts.NewID = id.Record
	}
	return &Manager{
		template:    opts.Template,
		org:         opts.Org,
		suggestions: opts.Suggestions,
		logger:      logger.OrDiscard(opts.Logger),
		newID:       opts.NewID,
	}
}

// Template returns the manager's template.
func (m *Manager) Template() *domain.Template { return m.template }

// Org returns the organization the manager persists suggestions for.
func (m *Manager) Org() string { return m.org }

// CreateInitialState starts a session over lines with one empty record.
// Autocomplete values come from the suggestion store, or the built-in
// defaults when nothing usable is stored.
func (m *Manager) CreateInitialState(ctx context.Context, lines domain.LineStore) State {
	s := State{
		template:    m.template,
		lines:       lines,
		used:        map[int]struct{}{},
		suggestions: m.loadSuggestions(ctx),
	}
	s.records = []domain.Record{domain.NewRecord(m.uniqueID(s), m.template)}
	return s
}

func (m *Manager) loadSuggestions(ctx context.Context) map[domain.Field][]string {
	if m.suggestions == nil {
		return DefaultFieldSuggestions(m.template)
	}
	stored, err := m.suggestions.Load(ctx, m.org)
	if err != nil {
		m.logger.Warn("field suggestions unreadable, using defaults", "org", m.org, "error", err)
		return DefaultFieldSuggestions(m.template)
	}
	if len(stored) == 0 {
		return DefaultFieldSuggestions(m.template)
	}
	return capSuggestions(stored)
}

// AddRecord appends an empty record with a fresh id.
func (m *Manager) AddRecord(s State) State {
	next := s.clone()
	next.records = append(next.records, domain.NewRecord(m.uniqueID(s), next.template))
	return next
}

func (m *Manager) uniqueID(s State) string {
	for {
		rid := m.newID()
		if s.indexOf(rid) < 0 {
			return rid
		}
	}
}

// RemoveRecord deletes a record and releases the lines it held.
func (m *Manager) RemoveRecord(s State, recordID string) State {
	i := s.indexOf(recordID)
	if i < 0 {
		return s
	}
	next := s.clone()
	for _, line := range next.records[i].SourceLines() {
		delete(next.used, line)
	}
	next.records = append(next.records[:i], next.records[i+1:]...)
	return next
}

// MapLineToField assigns line to field of the record. The line is first
// taken away from whichever field held it, in any record, and the field's
// previous line is released.
func (m *Manager) MapLineToField(s State, recordID string, field domain.Field, line int) State {
	ocr, ok := s.lines.At(line)
	if !ok || !s.template.Has(field) {
		return s
	}
	ri := s.indexOf(recordID)
	if ri < 0 {
		return s
	}

	next := s.clone()
	for _, r := range next.records {
		for f, fm := range r.Fields {
			if fm.IsOCR() && fm.SourceLine == line {
				delete(r.Fields, f)
			}
		}
	}

	target := next.records[ri]
	if prev := target.Fields[field]; prev.IsOCR() {
		delete(next.used, prev.SourceLine)
	}
	target.Fields[field] = &domain.FieldMapping{
		Value:      ocr.Text,
		SourceLine: line,
		Confidence: ocr.Confidence,
	}
	next.used[line] = struct{}{}
	return next
}

// ClearFieldMapping sets field to null and releases its line.
func (m *Manager) ClearFieldMapping(s State, recordID string, field domain.Field) State {
	ri := s.indexOf(recordID)
	if ri < 0 {
		return s
	}
	if _, set := s.records[ri].Fields[field]; !set {
		return s
	}

	next := s.clone()
	r := next.records[ri]
	if prev := r.Fields[field]; prev.IsOCR() {
		delete(next.used, prev.SourceLine)
	}
	delete(r.Fields, field)
	return next
}

// UpdateFieldValue overwrites the value of field and marks it edited. An
// existing mapping keeps its source line and confidence; a new one is a
// manual entry at full confidence.
func (m *Manager) UpdateFieldValue(s State, recordID string, field domain.Field, value string) State {
	ri := s.indexOf(recordID)
	if ri < 0 || !s.template.Has(field) {
		return s
	}

	next := s.clone()
	r := next.records[ri]
	fm := r.Fields[field]
	if fm == nil {
		fm = &domain.FieldMapping{SourceLine: domain.ManualLine, Confidence: 1}
		r.Fields[field] = fm
	}
	fm.Value = value
	fm.IsEdited = true
	return next
}

// ResetMappings clears every field of every record and frees all lines.
// Records and their ids are kept.
func (m *Manager) ResetMappings(s State) State {
	next := s.clone()
	for i := range next.records {
		next.records[i].Fields = map[domain.Field]*domain.FieldMapping{}
	}
	next.used = map[int]struct{}{}
	return next
}

// SaveSuggestion records value as an autocomplete entry for field. Blank and
// already-known values are ignored; only the newest SuggestionCap survive.
// The list is then persisted; a failed write is logged and does not affect
// the returned state.
func (m *Manager) SaveSuggestion(ctx context.Context, s State, field domain.Field, value string) State {
	value = strings.TrimSpace(value)
	if value == "" || !s.template.Has(field) {
		return s
	}
	for _, existing := range s.suggestions[field] {
		if existing == value {
			return s
		}
	}

	next := s.clone()
	list := append(next.suggestions[field], value)
	if len(list) > SuggestionCap {
		list = list[len(list)-SuggestionCap:]
	}
	next.suggestions[field] = list

	if m.suggestions != nil {
		if err := m.suggestions.Save(ctx, m.org, next.FieldSuggestions()); err != nil {
			m.logger.Warn("failed to persist field suggestions", "org", m.org, "field", field, "error", err)
		}
	}
	return next
}

// AvailableLines returns the lines not backing any field, in order.
func AvailableLines(s State) []domain.OcrLine {
	all := s.lines.All()
	out := make([]domain.OcrLine, 0, max(0, len(all)-len(s.used)))
	for _, l := range all {
		if !s.IsUsed(l.Index) {
			out = append(out, l)
		}
	}
	return out
}
