package domain

import "strings"

// ManualLine is the SourceLine of a value typed by hand.
const ManualLine = -1

// FieldMapping is the value currently assigned to one field of one record.
type FieldMapping struct {
	Value       string   `json:"value"`
	SourceLine  int      `json:"sourceLine"`
	Confidence  float64  `json:"confidence"`
	IsEdited    bool     `json:"isEdited"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// IsOCR reports whether the value is backed by an OCR line.
func (m *FieldMapping) IsOCR() bool {
	return m != nil && m.SourceLine >= 0
}

// Filled reports whether the mapping holds a non-blank value.
func (m *FieldMapping) Filled() bool {
	return m != nil && strings.TrimSpace(m.Value) != ""
}

// Clone returns a deep copy of m.
func (m *FieldMapping) Clone() *FieldMapping {
	if m == nil {
		return nil
	}
	c := *m
	if m.Suggestions != nil {
		c.Suggestions = append([]string(nil), m.Suggestions...)
	}
	return &c
}

// Record is one logical church record. A field absent from Fields is null.
type Record struct {
	ID       string                  `json:"id"`
	Template *Template               `json:"-"`
	Fields   map[Field]*FieldMapping `json:"fields"`
}

// NewRecord creates an empty record.
func NewRecord(id string, t *Template) Record {
	return Record{ID: id, Template: t, Fields: map[Field]*FieldMapping{}}
}

// Get returns the mapping of f, or nil.
func (r Record) Get(f Field) *FieldMapping {
	return r.Fields[f]
}

// Clone returns a record sharing nothing mutable with r.
func (r Record) Clone() Record {
	c := Record{ID: r.ID, Template: r.Template, Fields: make(map[Field]*FieldMapping, len(r.Fields))}
	for f, m := range r.Fields {
		if m != nil {
			c.Fields[f] = m.Clone()
		}
	}
	return c
}

// SourceLines returns the OCR line indices the record holds.
func (r Record) SourceLines() []int {
	var out []int
	for _, m := range r.Fields {
		if m.IsOCR() {
			out = append(out, m.SourceLine)
		}
	}
	return out
}
