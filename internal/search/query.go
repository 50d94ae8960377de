package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a history search.
type Params struct {
	Org   string // Required; results never cross organizations
	Query string
	Field string // Optional field-name filter
	Limit int    // Default 20
}

// Result is a page of search hits.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is one matching history entry.
type Hit struct {
	ID            string            `json:"id"`
	Score         float64           `json:"score"`
	OCRText       string            `json:"ocrText"`
	CorrectedText string            `json:"correctedText,omitempty"`
	FieldName     string            `json:"fieldName"`
	Confidence    float64           `json:"confidence"`
	Timestamp     time.Time         `json:"timestamp"`
	Highlights    map[string]string `json:"highlights,omitempty"`
}

// Search finds history entries of one organization whose OCR or corrected
// text resembles params.Query.
func (s *HistoryIndex) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, 0, false)
	req.SortBy([]string{"-_score", "-timestamp"})
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("ocr_text")
	req.Fields = []string{"id", "ocr_text", "corrected_text", "field_name", "confidence", "timestamp"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields["id"].(string); ok {
			hit.ID = v
		}
		if v, ok := h.Fields["ocr_text"].(string); ok {
			hit.OCRText = v
		}
		if v, ok := h.Fields["corrected_text"].(string); ok {
			hit.CorrectedText = v
		}
		if v, ok := h.Fields["field_name"].(string); ok {
			hit.FieldName = v
		}
		if v, ok := h.Fields["confidence"].(float64); ok {
			hit.Confidence = v
		}
		if v, ok := h.Fields["timestamp"].(float64); ok {
			hit.Timestamp = time.UnixMilli(int64(v)).UTC()
		}
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string)
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func orgFilter(org string) query.Query {
	q := bleve.NewTermQuery(org)
	q.SetField("org_id")
	return q
}

// buildQuery ANDs the organization and field filters with an OR of text
// matches: analyzed match on both texts, a one-edit fuzzy match for OCR
// misreads, and a prefix match for partially typed text.
func buildQuery(params Params) query.Query {
	queries := []query.Query{orgFilter(params.Org)}

	if params.Field != "" {
		fq := bleve.NewTermQuery(params.Field)
		fq.SetField("field_name")
		queries = append(queries, fq)
	}

	if text := strings.TrimSpace(params.Query); text != "" {
		ocrMatch := bleve.NewMatchQuery(text)
		ocrMatch.SetField("ocr_text")
		ocrMatch.SetBoost(3.0)

		correctedMatch := bleve.NewMatchQuery(text)
		correctedMatch.SetField("corrected_text")
		correctedMatch.SetBoost(1.5)

		textQueries := []query.Query{ocrMatch, correctedMatch}

		lower := strings.ToLower(text)
		for _, term := range strings.Fields(lower) {
			fuzzy := bleve.NewFuzzyQuery(term)
			fuzzy.SetFuzziness(1)
			fuzzy.SetField("ocr_text")
			fuzzy.SetBoost(0.8)
			textQueries = append(textQueries, fuzzy)
		}

		if len([]rune(lower)) >= 2 && !strings.ContainsAny(lower, " \t") {
			prefix := bleve.NewPrefixQuery(lower)
			prefix.SetField("ocr_text")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	return bleve.NewConjunctionQuery(queries...)
}
