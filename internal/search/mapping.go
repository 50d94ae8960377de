package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for history documents.
// OCR text keeps digits and punctuation-separated tokens, so it uses the
// standard analyzer rather than a stemming one; dates like 12/25/2023
// index as three terms.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	ocrFieldMapping := bleve.NewTextFieldMapping()
	ocrFieldMapping.Analyzer = standard.Name
	ocrFieldMapping.Store = true
	ocrFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("ocr_text", ocrFieldMapping)

	correctedFieldMapping := bleve.NewTextFieldMapping()
	correctedFieldMapping.Analyzer = standard.Name
	correctedFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("corrected_text", correctedFieldMapping)

	// Keyword fields for exact filters.
	for _, name := range []string{"id", "org_id", "field_name"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(name, fm)
	}

	confidenceFieldMapping := bleve.NewNumericFieldMapping()
	confidenceFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("confidence", confidenceFieldMapping)

	timestampFieldMapping := bleve.NewNumericFieldMapping()
	timestampFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("timestamp", timestampFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
