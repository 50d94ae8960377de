package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parishrecords/ocrmapper/internal/domain"
	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/search"
	"github.com/parishrecords/ocrmapper/internal/sse"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// SuggestionService exposes the per-organization suggestion engines and
// keeps the history search index in step with them.
type SuggestionService struct {
	engines   *suggest.Registry
	kv        store.KV
	index     *search.HistoryIndex // nil disables history search
	validator *validation.Validator
	events    EventEmitter
	logger    *slog.Logger
}

// NewSuggestionService creates a new suggestion service.
func NewSuggestionService(
	engines *suggest.Registry,
	kv store.KV,
	index *search.HistoryIndex,
	validator *validation.Validator,
	logger *slog.Logger,
) *SuggestionService {
	return &SuggestionService{
		engines:   engines,
		kv:        kv,
		index:     index,
		validator: validator,
		events:    noopEmitter{},
		logger:    logger,
	}
}

// SetEventEmitter sets where history changes are announced.
func (s *SuggestionService) SetEventEmitter(e EventEmitter) {
	s.events = e
}

func (s *SuggestionService) engine(ctx context.Context, org string) (*suggest.Engine, error) {
	if err := s.validator.Var("org", org, "required,org_id"); err != nil {
		return nil, err
	}
	return s.engines.Engine(ctx, org), nil
}

// Suggest ranks fields for text. Every field name must be a valid
// snake_case name.
func (s *SuggestionService) Suggest(ctx context.Context, org, text string, fields []string) ([]suggest.Suggestion, error) {
	e, err := s.engine(ctx, org)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Var("fields", fields, "required,min=1,dive,field_name"); err != nil {
		return nil, err
	}
	candidates := make([]domain.Field, len(fields))
	for i, f := range fields {
		candidates[i] = domain.Field(f)
	}
	out := e.Suggestions(text, candidates)
	if out == nil {
		out = []suggest.Suggestion{}
	}
	return out, nil
}

// Stats returns the organization's mapping aggregates.
func (s *SuggestionService) Stats(ctx context.Context, org string) (suggest.Stats, error) {
	e, err := s.engine(ctx, org)
	if err != nil {
		return suggest.Stats{}, err
	}
	return e.Stats(), nil
}

// Export returns the organization's history and rules as JSON.
func (s *SuggestionService) Export(ctx context.Context, org string) ([]byte, error) {
	e, err := s.engine(ctx, org)
	if err != nil {
		return nil, err
	}
	return e.Export()
}

// Import loads an exported document into the organization's engine.
func (s *SuggestionService) Import(ctx context.Context, org string, data []byte) error {
	e, err := s.engine(ctx, org)
	if err != nil {
		return err
	}
	if !e.Import(ctx, data) {
		return domainerrors.ImportFailed("mapping history document is malformed")
	}
	s.reindex(ctx, e)
	s.events.Emit(sse.NewHistoryImportedEvent(org, e.Stats()))
	return nil
}

// Learn records confirmed mappings and refreshes the search index.
func (s *SuggestionService) Learn(ctx context.Context, org string, mappings []suggest.Mapping) error {
	e, err := s.engine(ctx, org)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		e.RecordMapping(ctx, m)
	}
	s.logger.Info("learned from submitted mappings", "org", org, "mappings", len(mappings))
	s.reindex(ctx, e)
	s.events.Emit(sse.NewHistoryRecordedEvent(org, len(mappings), e.Stats()))
	return nil
}

// SearchHistory finds earlier mappings resembling query.
func (s *SuggestionService) SearchHistory(ctx context.Context, org, query, field string, limit int) (*search.Result, error) {
	if _, err := s.engine(ctx, org); err != nil {
		return nil, err
	}
	if s.index == nil {
		return &search.Result{Query: query, Hits: []search.Hit{}}, nil
	}
	return s.index.Search(ctx, search.Params{Org: org, Query: query, Field: field, Limit: limit})
}

// Warm loads the engine of every organization with stored data and
// indexes its history. Called once at startup.
func (s *SuggestionService) Warm(ctx context.Context) error {
	orgs, err := suggest.StoredOrgs(ctx, s.kv)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	for _, org := range orgs {
		s.reindex(ctx, s.engines.Engine(ctx, org))
	}
	s.logger.Info("suggestion engines loaded", "organizations", len(orgs))
	return nil
}

// reindex replaces the organization's documents in the search index. The
// index is a convenience, so failures are logged only.
func (s *SuggestionService) reindex(ctx context.Context, e *suggest.Engine) {
	if s.index == nil {
		return
	}
	if err := s.index.ReplaceOrg(ctx, e.Org(), e.History()); err != nil {
		s.logger.Warn("failed to index mapping history", "org", e.Org(), "error", err)
	}
}
