package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/search"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

func TestSuggest_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		org    string
		fields []string
	}{
		{"missing org", "", []string{"name"}},
		{"bad org", "St Nicholas", []string{"name"}},
		{"no fields", "st-nicholas", nil},
		{"reserved field", "st-nicholas", []string{"name", "id"}},
		{"camel case field", "st-nicholas", []string{"deathDate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.suggestions.Suggest(ctx, tt.org, "John Smith", tt.fields)
			requireCode(t, err, domainerrors.CodeValidation)
		})
	}
}

func TestSuggest_DefaultRules(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.suggestions.Suggest(context.Background(), "st-nicholas",
		"Fr. Michael", []string{"name", "priest_officiated", "burial_date"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "priest_officiated", string(got[0].FieldName))
	assert.Equal(t, suggest.SourcePattern, got[0].Source)
}

func TestSuggest_NoMatchIsEmptySlice(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.suggestions.Suggest(context.Background(), "st-nicholas", "???", []string{"age"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.suggestions.Learn(ctx, "st-nicholas", []suggest.Mapping{
		{Text: "Holy Trinity Cemetery", Field: "burial_location", Confidence: 0.9},
		{Text: "Fr. Michael", Field: "priest_officiated", Confidence: 0.95},
	}))
	data, err := env.suggestions.Export(ctx, "st-nicholas")
	require.NoError(t, err)

	var doc suggest.ExportDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "st-nicholas", doc.OrganizationID)
	assert.Len(t, doc.History, 2)

	require.NoError(t, env.suggestions.Import(ctx, "holy-trinity", data))

	stats, err := env.suggestions.Stats(ctx, "holy-trinity")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMappings)

	res, err := env.suggestions.SearchHistory(ctx, "holy-trinity", "cemetery", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "burial_location", res.Hits[0].FieldName)
}

func TestImport_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.suggestions.Import(ctx, "st-nicholas", []byte(`{"history": [`))
	requireCode(t, err, domainerrors.CodeImportFailed)

	err = env.suggestions.Import(ctx, "Not An Org", []byte(`{}`))
	requireCode(t, err, domainerrors.CodeValidation)
}

func TestSearchHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.suggestions.Learn(ctx, "st-nicholas", []suggest.Mapping{
		{Text: "Anna Kowalski", Field: "name", Confidence: 0.9},
		{Text: "Holy Trinity Cemetery", Field: "burial_location", Confidence: 0.9},
	}))
	require.NoError(t, env.suggestions.Learn(ctx, "holy-trinity", []suggest.Mapping{
		{Text: "Anna Kowalski", Field: "name", Confidence: 0.9},
	}))

	tests := []struct {
		name  string
		org   string
		query string
		field string
		want  int
	}{
		{"match", "st-nicholas", "kowalski", "", 1},
		{"field filter", "st-nicholas", "kowalski", "burial_location", 0},
		{"scoped to org", "holy-trinity", "cemetery", "", 0},
		{"unknown org", "st-george", "kowalski", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.suggestions.SearchHistory(ctx, tt.org, tt.query, tt.field, 10)
			require.NoError(t, err)
			assert.Len(t, res.Hits, tt.want)
		})
	}
}

func TestSearchHistory_WithoutIndex(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSuggestionService(
		suggest.NewRegistry(env.kv, suggest.Options{Logger: logger.Discard()}),
		env.kv, nil, validation.New(), logger.Discard(),
	)

	res, err := svc.SearchHistory(context.Background(), "st-nicholas", "anything", "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestWarm_IndexesStoredOrganizations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.suggestions.Learn(ctx, "st-nicholas", []suggest.Mapping{
		{Text: "Anna Kowalski", Field: "name", Confidence: 0.9},
	}))

	// A fresh service over the same store starts with an empty index.
	index, err := search.NewHistoryIndex(search.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	svc := NewSuggestionService(
		suggest.NewRegistry(env.kv, suggest.Options{Logger: logger.Discard()}),
		env.kv, index, validation.New(), logger.Discard(),
	)

	res, err := svc.SearchHistory(ctx, "st-nicholas", "kowalski", "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	require.NoError(t, svc.Warm(ctx))
	res, err = svc.SearchHistory(ctx, "st-nicholas", "kowalski", "", 10)
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}
