package mapping

import (
	"strings"
	"time"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

// FieldMetadata traces an exported value back to its source.
type FieldMetadata struct {
	SourceLine int     `json:"sourceLine"`
	Confidence float64 `json:"confidence"`
	IsEdited   bool    `json:"isEdited"`
}

// ExportedRecord is a flat field -> value map. Every non-empty field also
// has a "<field>_metadata" entry holding a FieldMetadata.
type ExportedRecord map[string]any

// Metadata describes the exported session.
type Metadata struct {
	TotalRecords int    `json:"totalRecords"`
	UsedLines    []int  `json:"usedLines"`
	Timestamp    string `json:"timestamp"`
}

// Submission is the payload handed to the record-ingestion API.
type Submission struct {
	Records         []ExportedRecord `json:"records"`
	OcrLines        []domain.OcrLine `json:"ocrLines"`
	MappingMetadata Metadata         `json:"mappingMetadata"`
}

// MetadataSuffix is appended to a field name to form its metadata key.
const MetadataSuffix = "_metadata"

// Export flattens s for submission. Values are trimmed; unset fields export
// as "" without metadata.
func Export(s State, at time.Time) Submission {
	sub := Submission{
		Records:  make([]ExportedRecord, 0, len(s.records)),
		OcrLines: s.lines.All(),
		MappingMetadata: Metadata{
			TotalRecords: len(s.records),
			UsedLines:    s.UsedLines(),
			Timestamp:    at.UTC().Format(time.RFC3339Nano),
		},
	}

	for _, r := range s.records {
		out := ExportedRecord{}
		for _, f := range s.template.Names() {
			fm := r.Get(f)
			value := ""
			if fm != nil {
				value = strings.TrimSpace(fm.Value)
			}
			out[string(f)] = value
			if value != "" {
				out[string(f)+MetadataSuffix] = FieldMetadata{
					SourceLine: fm.SourceLine,
					Confidence: fm.Confidence,
					IsEdited:   fm.IsEdited,
				}
			}
		}
		sub.Records = append(sub.Records, out)
	}
	return sub
}

// Value returns the exported value of field.
func (r ExportedRecord) Value(field domain.Field) string {
	v, _ := r[string(field)].(string)
	return v
}

// Metadata returns the exported metadata of field.
func (r ExportedRecord) Metadata(field domain.Field) (FieldMetadata, bool) {
	m, ok := r[string(field)+MetadataSuffix].(FieldMetadata)
	return m, ok
}
