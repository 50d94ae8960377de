// Package storetest checks that a store.KV implementation honors the port's
// contract. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/store"
)

// Run exercises kv. newKV must return an empty store; Run closes it.
func Run(t *testing.T, newKV func(t *testing.T) store.KV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		kv := open(t, newKV)
		_, err := kv.Get(context.Background(), "suggest:none:rules")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		require.NoError(t, kv.Set(ctx, "k", []byte("one")))
		require.NoError(t, kv.Set(ctx, "k", []byte("two")))

		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		val := []byte("abc")
		require.NoError(t, kv.Set(ctx, "k", val))
		val[0] = 'x'

		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		require.NoError(t, kv.Set(ctx, "k", []byte("v")))
		require.NoError(t, kv.Delete(ctx, "k"))
		require.NoError(t, kv.Delete(ctx, "never-set"))

		_, err := kv.Get(ctx, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		for _, k := range []string{
			store.SuggestKey("b-org", store.SuffixRules),
			store.SuggestKey("a-org", store.SuffixHistory),
			store.FieldSuggestKey("a-org"),
		} {
			require.NoError(t, kv.Set(ctx, k, []byte("{}")))
		}

		keys, err := kv.Keys(ctx, store.PrefixSuggest)
		require.NoError(t, err)
		assert.Equal(t, []string{"suggest:a-org:history", "suggest:b-org:rules"}, keys)

		keys, err = kv.Keys(ctx, "nothing:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		type doc struct {
			Values []string `json:"values"`
		}
		require.NoError(t, store.SetJSON(ctx, kv, "doc", doc{Values: []string{"Fr. John"}}))

		var got doc
		require.NoError(t, store.GetJSON(ctx, kv, "doc", &got))
		assert.Equal(t, []string{"Fr. John"}, got.Values)

		ok, err := store.Exists(ctx, kv, "doc")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists(ctx, kv, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, kv.Set(ctx, "bad", []byte("{not json")))
		assert.Error(t, store.GetJSON(ctx, kv, "bad", &got))
	})

	t.Run("Concurrent", func(t *testing.T) {
		kv := open(t, newKV)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("c:%02d", i)
				assert.NoError(t, kv.Set(ctx, key, []byte(key)))
				_, _ = kv.Get(ctx, key)
			}()
		}
		wg.Wait()

		keys, err := kv.Keys(ctx, "c:")
		require.NoError(t, err)
		assert.Len(t, keys, 16)
	})
}

func open(t *testing.T, newKV func(t *testing.T) store.KV) store.KV {
	t.Helper()
	kv := newKV(t)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}
