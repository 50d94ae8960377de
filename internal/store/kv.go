// Package store defines the key-value persistence port used for suggestion
// data and its Badger, in-memory and asynchronous implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// KV is a flat byte-oriented key-value store. Implementations must be safe
// for concurrent use.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases the store's resources.
	Close() error
}

// GetJSON loads key and decodes it into dest.
func GetJSON(ctx context.Context, kv KV, key string, dest any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return kv.Set(ctx, key, data)
}

// Exists reports whether key has a value.
func Exists(ctx context.Context, kv KV, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
