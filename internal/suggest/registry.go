package suggest

import (
	"context"
	"slices"
	"sync"

	"github.com/parishrecords/ocrmapper/internal/store"
)

// Registry hands out one Engine per organization, loading each on first
// use.
type Registry struct {
	kv   store.KV
	opts Options

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates a registry whose engines persist to kv.
func NewRegistry(kv store.KV, opts Options) *Registry {
	return &Registry{
		kv:      kv,
		opts:    opts.withDefaults(),
		engines: make(map[string]*Engine),
	}
}

// Engine returns the engine for org, loading it if needed.
func (r *Registry) Engine(ctx context.Context, org string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[org]; ok {
		return e
	}
	e := New(ctx, r.kv, org, r.opts)
	r.engines[org] = e
	return e
}

// Loaded returns the organizations with an engine in memory, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	orgs := make([]string, 0, len(r.engines))
	for org := range r.engines {
		orgs = append(orgs, org)
	}
	slices.Sort(orgs)
	return orgs
}

// StoredOrgs lists the organizations with persisted suggestion data in kv.
func StoredOrgs(ctx context.Context, kv store.KV) ([]string, error) {
	keys, err := kv.Keys(ctx, store.PrefixSuggest)
	if err != nil {
		return nil, err
	}
	var orgs []string
	for _, k := range keys {
		if org, ok := store.OrgFromSuggestKey(k); ok {
			orgs = append(orgs, org)
		}
	}
	slices.Sort(orgs)
	return slices.Compact(orgs), nil
}
