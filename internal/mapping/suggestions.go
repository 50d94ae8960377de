package mapping

import (
	"context"
	"errors"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/store"
)

// FieldSuggestionStore persists autocomplete values per organization.
type FieldSuggestionStore interface {
	// Load returns the stored lists for org, or nil when none are stored.
	Load(ctx context.Context, org string) (map[domain.Field][]string, error)
	Save(ctx context.Context, org string, suggestions map[domain.Field][]string) error
}

// KVSuggestionStore keeps autocomplete lists as one JSON document per
// organization under "fieldsuggest:<org>".
type KVSuggestionStore struct {
	kv store.KV
}

// NewKVSuggestionStore creates a store over kv.
func NewKVSuggestionStore(kv store.KV) *KVSuggestionStore {
	return &KVSuggestionStore{kv: kv}
}

// Load implements FieldSuggestionStore.
func (s *KVSuggestionStore) Load(ctx context.Context, org string) (map[domain.Field][]string, error) {
	var out map[domain.Field][]string
	err := store.GetJSON(ctx, s.kv, store.FieldSuggestKey(org), &out)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save implements FieldSuggestionStore.
func (s *KVSuggestionStore) Save(ctx context.Context, org string, suggestions map[domain.Field][]string) error {
	return store.SetJSON(ctx, s.kv, store.FieldSuggestKey(org), suggestions)
}

// clergyHonorifics seed clergy autocomplete lists.
var clergyHonorifics = []string{"Fr.", "Rev.", "V. Rev.", "Archpriest", "Protopresbyter"}

// DefaultFieldSuggestions returns the built-in autocomplete lists for the
// autocomplete fields of t.
func DefaultFieldSuggestions(t *domain.Template) map[domain.Field][]string {
	out := map[domain.Field][]string{}
	for _, d := range t.Fields() {
		if !d.Autocomplete {
			continue
		}
		switch d.Kind {
		case domain.KindClergy:
			out[d.Name] = append([]string(nil), clergyHonorifics...)
		default:
			out[d.Name] = []string{}
		}
	}
	return out
}

// capSuggestions drops blank and duplicate values and keeps the newest
// SuggestionCap per field.
func capSuggestions(in map[domain.Field][]string) map[domain.Field][]string {
	out := make(map[domain.Field][]string, len(in))
	for f, values := range in {
		seen := make(map[string]bool, len(values))
		var list []string
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			list = append(list, v)
		}
		if len(list) > SuggestionCap {
			list = list[len(list)-SuggestionCap:]
		}
		out[f] = list
	}
	return out
}
