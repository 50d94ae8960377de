// Package search provides full-text search over mapping history using
// Bleve. It lets a reviewer find how similar OCR text was mapped before,
// with fuzzy and prefix matching for misread characters.
package search

import (
	"github.com/parishrecords/ocrmapper/internal/domain"
)

// Document is one history entry as stored in the index.
type Document struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"org_id"`
	OCRText       string  `json:"ocr_text"`
	CorrectedText string  `json:"corrected_text,omitempty"`
	FieldName     string  `json:"field_name"`
	Confidence    float64 `json:"confidence"`
	Timestamp     int64   `json:"timestamp"` // Unix milliseconds
}

// FromHistory converts a history entry into an index document.
func FromHistory(h domain.HistoryEntry) *Document {
	return &Document{
		ID:            h.ID,
		OrgID:         h.OrgID,
		OCRText:       h.OCRText,
		CorrectedText: h.CorrectedText,
		FieldName:     string(h.FieldName),
		Confidence:    h.Confidence,
		Timestamp:     h.Timestamp.UnixMilli(),
	}
}

// docID scopes an entry id to its organization. Imported histories may
// reuse ids across organizations.
func docID(org, id string) string {
	return org + "/" + id
}

// ToMap converts the document to the field map Bleve indexes, keyed by the
// names used in the index mapping.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"org_id":     d.OrgID,
		"ocr_text":   d.OCRText,
		"field_name": d.FieldName,
		"confidence": d.Confidence,
		"timestamp":  float64(d.Timestamp),
	}
	if d.CorrectedText != "" {
		m["corrected_text"] = d.CorrectedText
	}
	return m
}
