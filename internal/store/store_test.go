package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.KV { return store.NewMemory() })
}

func TestBadger_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.KV {
		kv, err := store.OpenBadger("", nil)
		require.NoError(t, err)
		return kv
	})
}

func TestBadger_OnDiskPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := store.OpenBadger(dir, nil)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, store.SuggestKey("st-nicholas", store.SuffixRules), []byte(`[]`)))
	require.NoError(t, kv.Close())

	kv, err = store.OpenBadger(dir, nil)
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get(ctx, "suggest:st-nicholas:rules")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)
}

func TestAsync_Contract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.KV { return store.NewAsync(store.NewMemory(), 0, nil) })
}

func TestAsync_FlushReachesBackend(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	a := store.NewAsync(backend, 8, nil)
	defer a.Close()

	require.NoError(t, a.Set(ctx, "k", []byte("v")))
	require.NoError(t, a.Delete(ctx, "gone"))
	require.NoError(t, a.Flush(ctx))

	got, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

// blockingKV holds every Set until released.
type blockingKV struct {
	*store.Memory
	release chan struct{}
	once    sync.Once
}

func (b *blockingKV) Set(ctx context.Context, key string, value []byte) error {
	<-b.release
	return b.Memory.Set(ctx, key, value)
}

func (b *blockingKV) unblock() { b.once.Do(func() { close(b.release) }) }

func TestAsync_ReadYourWritesWhileQueued(t *testing.T) {
	ctx := context.Background()
	backend := &blockingKV{Memory: store.NewMemory(), release: make(chan struct{})}
	a := store.NewAsync(backend, 8, nil)
	defer func() {
		backend.unblock()
		_ = a.Close()
	}()

	done := make(chan struct{})
	go func() {
		_ = a.Set(ctx, "k", []byte("queued"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Set blocked on a slow backend")
	}

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("queued"), got)

	keys, err := a.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	_, err = backend.Memory.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAsync_OverflowDropsWithoutError(t *testing.T) {
	ctx := context.Background()
	backend := &blockingKV{Memory: store.NewMemory(), release: make(chan struct{})}
	a := store.NewAsync(backend, 1, nil)

	for range 10 {
		assert.NoError(t, a.Set(ctx, "k", []byte("v")))
	}

	backend.unblock()
	require.NoError(t, a.Close())
}

type failingKV struct{ *store.Memory }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestAsync_BackendFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	a := store.NewAsync(failingKV{store.NewMemory()}, 4, nil)
	defer a.Close()

	require.NoError(t, a.Set(ctx, "k", []byte("v")))
	require.NoError(t, a.Flush(ctx))

	_, err := a.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound, "failed write is not visible once applied")
}

func TestAsync_Closed(t *testing.T) {
	ctx := context.Background()
	a := store.NewAsync(store.NewMemory(), 4, nil)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Set(ctx, "k", nil), store.ErrClosed)
	assert.ErrorIs(t, a.Flush(ctx), store.ErrClosed)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "suggest:st-nicholas:history", store.SuggestKey("st-nicholas", store.SuffixHistory))
	assert.Equal(t, "fieldsuggest:st-nicholas", store.FieldSuggestKey("st-nicholas"))

	org, ok := store.OrgFromSuggestKey("suggest:holy-trinity:rules")
	require.True(t, ok)
	assert.Equal(t, "holy-trinity", org)

	_, ok = store.OrgFromSuggestKey("fieldsuggest:holy-trinity")
	assert.False(t, ok)
}
