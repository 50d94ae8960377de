package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

func setupTestIndex(t *testing.T) *HistoryIndex {
	t.Helper()
	index, err := NewHistoryIndex(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func entry(org, id, text string, field domain.Field) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:         id,
		OCRText:    text,
		FieldName:  field,
		Confidence: 0.9,
		Timestamp:  time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC),
		OrgID:      org,
	}
}

func seed(t *testing.T, index *HistoryIndex) {
	t.Helper()
	require.NoError(t, index.IndexEntries([]domain.HistoryEntry{
		entry("st-nicholas", "m1", "Fr. John Kowalski", "priest_officiated"),
		entry("st-nicholas", "m2", "Holy Trinity Cemetery", "burial_location"),
		entry("st-nicholas", "m3", "12/25/2023", "burial_date"),
		entry("holy-cross", "m1", "Fr. John Kowalski", "priest_officiated"),
	}))
}

func hitTexts(r *Result) []string {
	var out []string
	for _, h := range r.Hits {
		out = append(out, h.OCRText)
	}
	return out
}

func TestNewHistoryIndex(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndexEntries_ScopesIDsByOrg(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestIndexEntries_LargeBatch(t *testing.T) {
	index := setupTestIndex(t)
	entries := make([]domain.HistoryEntry, 1203)
	for i := range entries {
		entries[i] = entry("st-nicholas", fmt.Sprintf("m%d", i), fmt.Sprintf("line %d", i), "notes")
	}
	require.NoError(t, index.IndexEntries(entries))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1203), count)
}

func TestSearch(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{
			name:   "match",
			params: Params{Org: "st-nicholas", Query: "kowalski"},
			want:   []string{"Fr. John Kowalski"},
		},
		{
			name:   "fuzzy misread",
			params: Params{Org: "st-nicholas", Query: "Kowalsky"},
			want:   []string{"Fr. John Kowalski"},
		},
		{
			name:   "prefix",
			params: Params{Org: "st-nicholas", Query: "ceme"},
			want:   []string{"Holy Trinity Cemetery"},
		},
		{
			name:   "date tokens",
			params: Params{Org: "st-nicholas", Query: "12/25/2023"},
			want:   []string{"12/25/2023"},
		},
		{
			name:   "field filter",
			params: Params{Org: "st-nicholas", Query: "kowalski", Field: "burial_location"},
		},
		{
			name:   "other org",
			params: Params{Org: "holy-cross", Query: "cemetery"},
		},
		{
			name:   "unknown org",
			params: Params{Org: "nowhere", Query: "kowalski"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := index.Search(context.Background(), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hitTexts(res))
		})
	}
}

func TestSearch_HitFields(t *testing.T) {
	index := setupTestIndex(t)
	h := entry("st-nicholas", "m9", "Jhon Smith", "name")
	h.WasManuallyEdited = true
	h.CorrectedText = "John Smith"
	require.NoError(t, index.IndexEntries([]domain.HistoryEntry{h}))

	res, err := index.Search(context.Background(), Params{Org: "st-nicholas", Query: "john"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)

	hit := res.Hits[0]
	assert.Equal(t, "m9", hit.ID)
	assert.Equal(t, "John Smith", hit.CorrectedText)
	assert.Equal(t, "name", hit.FieldName)
	assert.InDelta(t, 0.9, hit.Confidence, 1e-9)
	assert.True(t, h.Timestamp.Equal(hit.Timestamp))
}

func TestSearch_EmptyQueryListsOrg(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), Params{Org: "st-nicholas"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Total)
}

func TestReplaceOrg(t *testing.T) {
	ctx := context.Background()
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.ReplaceOrg(ctx, "st-nicholas", []domain.HistoryEntry{
		entry("st-nicholas", "n1", "St. Mary Cemetery", "burial_location"),
	}))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	res, err := index.Search(ctx, Params{Org: "st-nicholas", Query: "kowalski"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = index.Search(ctx, Params{Org: "holy-cross", Query: "kowalski"})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}
