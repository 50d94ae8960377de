package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parishrecords/ocrmapper/internal/search"
	"github.com/parishrecords/ocrmapper/internal/suggest"
)

// maxImportBytes bounds an uploaded mapping history document.
const maxImportBytes = 16 << 20

func (s *Server) registerSuggestionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "suggestFields",
		Method:      http.MethodPost,
		Path:        "/api/v1/orgs/{org}/suggestions",
		Summary:     "Suggest fields",
		Description: "Ranks candidate fields for a piece of OCR text from the organization's history and rules",
		Tags:        []string{"Suggestions"},
	}, s.handleSuggest)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMappingStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/orgs/{org}/stats",
		Summary:     "Mapping statistics",
		Description: "Returns totals, edit rate and field frequency for the organization",
		Tags:        []string{"Suggestions"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportMappingHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/orgs/{org}/history/export",
		Summary:     "Export history",
		Description: "Returns the organization's mapping history and rules as a portable document",
		Tags:        []string{"Suggestions"},
	}, s.handleExport)

	huma.Register(s.api, huma.Operation{
		OperationID:  "importMappingHistory",
		Method:       http.MethodPost,
		Path:         "/api/v1/orgs/{org}/history/import",
		Summary:      "Import history",
		Description:  "Replaces the organization's history and rules with an exported document",
		Tags:         []string{"Suggestions"},
		MaxBodyBytes: maxImportBytes,
	}, s.handleImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchMappingHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/orgs/{org}/history/search",
		Summary:     "Search history",
		Description: "Full-text search over the organization's earlier mappings, tolerant of OCR misspellings",
		Tags:        []string{"Suggestions"},
	}, s.handleSearchHistory)
}

// === DTOs ===

// OrgInput addresses an organization.
type OrgInput struct {
	Org string `path:"org" doc:"Organization id"`
}

// SuggestRequest is the request body for ranking fields.
type SuggestRequest struct {
	Text   string   `json:"text" doc:"OCR text to classify"`
	Fields []string `json:"fields" doc:"Candidate field names"`
}

// SuggestInput wraps the suggest request for Huma.
type SuggestInput struct {
	Org  string `path:"org" doc:"Organization id"`
	Body SuggestRequest
}

// SuggestOutput lists ranked suggestions, best first.
type SuggestOutput struct {
	Body struct {
		Suggestions []suggest.Suggestion `json:"suggestions" doc:"At most three suggestions, best first"`
	}
}

// StatsOutput wraps mapping statistics.
type StatsOutput struct {
	Body suggest.Stats
}

// ExportOutput carries the exported document verbatim.
type ExportOutput struct {
	Body json.RawMessage
}

// ImportInput carries an exported document.
type ImportInput struct {
	Org     string `path:"org" doc:"Organization id"`
	RawBody []byte `contentType:"application/json"`
}

// ImportOutput confirms an import.
type ImportOutput struct {
	Body struct {
		Imported bool          `json:"imported" doc:"Always true; failures are errors"`
		Stats    suggest.Stats `json:"stats" doc:"Statistics after the import"`
	}
}

// SearchHistoryInput contains parameters for searching history.
type SearchHistoryInput struct {
	Org   string `path:"org" doc:"Organization id"`
	Q     string `query:"q" doc:"Search text; empty lists recent mappings"`
	Field string `query:"field" doc:"Restrict to one field"`
	Limit int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum hits"`
}

// SearchHistoryOutput wraps search results.
type SearchHistoryOutput struct {
	Body *search.Result
}

// === Handlers ===

func (s *Server) handleSuggest(ctx context.Context, input *SuggestInput) (*SuggestOutput, error) {
	got, err := s.services.Suggestions.Suggest(ctx, input.Org, input.Body.Text, input.Body.Fields)
	if err != nil {
		return nil, err
	}
	out := &SuggestOutput{}
	out.Body.Suggestions = got
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, input *OrgInput) (*StatsOutput, error) {
	stats, err := s.services.Suggestions.Stats(ctx, input.Org)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: stats}, nil
}

func (s *Server) handleExport(ctx context.Context, input *OrgInput) (*ExportOutput, error) {
	data, err := s.services.Suggestions.Export(ctx, input.Org)
	if err != nil {
		return nil, err
	}
	return &ExportOutput{Body: data}, nil
}

func (s *Server) handleImport(ctx context.Context, input *ImportInput) (*ImportOutput, error) {
	if err := s.services.Suggestions.Import(ctx, input.Org, input.RawBody); err != nil {
		return nil, err
	}
	stats, err := s.services.Suggestions.Stats(ctx, input.Org)
	if err != nil {
		return nil, err
	}
	out := &ImportOutput{}
	out.Body.Imported = true
	out.Body.Stats = stats
	return out, nil
}

func (s *Server) handleSearchHistory(ctx context.Context, input *SearchHistoryInput) (*SearchHistoryOutput, error) {
	res, err := s.services.Suggestions.SearchHistory(ctx, input.Org, input.Q, input.Field, input.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchHistoryOutput{Body: res}, nil
}
