package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// DefaultAsyncBuffer is the queue length used when NewAsync gets a
// non-positive buffer size.
const DefaultAsyncBuffer = 256

type pendingWrite struct {
	value   []byte
	deleted bool
	seq     uint64
}

type asyncOp struct {
	key     string
	value   []byte
	deleted bool
	seq     uint64
	barrier chan struct{}
}

// Async wraps a KV so that Set and Delete return immediately. Writes are
// applied in order by one worker goroutine. Reads see queued writes before
// they reach the underlying store. A failed or dropped write is logged and
// otherwise ignored; callers keep their in-memory state as the authority.
type Async struct {
	next   KV
	logger *slog.Logger

	ops  chan asyncOp
	done chan struct{}

	// sendMu guards closed and every send on ops.
	sendMu sync.RWMutex
	closed bool

	mu      sync.Mutex
	pending map[string]pendingWrite
	seq     uint64
}

// NewAsync starts the write worker for next.
func NewAsync(next KV, buffer int, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Async{
		next:    next,
		logger:  logger,
		ops:     make(chan asyncOp, buffer),
		done:    make(chan struct{}),
		pending: make(map[string]pendingWrite),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for op := range a.ops {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}

		// Writes run detached from any request context.
		ctx := context.Background()
		var err error
		if op.deleted {
			err = a.next.Delete(ctx, op.key)
		} else {
			err = a.next.Set(ctx, op.key, op.value)
		}
		if err != nil {
			a.logger.Warn("async write failed", "key", op.key, "error", err)
		}

		a.mu.Lock()
		if p, ok := a.pending[op.key]; ok && p.seq == op.seq {
			delete(a.pending, op.key)
		}
		a.mu.Unlock()
	}
}

func (a *Async) enqueue(key string, value []byte, deleted bool) error {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	op := asyncOp{key: key, value: append([]byte(nil), value...), deleted: deleted, seq: a.seq}
	select {
	case a.ops <- op:
		a.pending[key] = pendingWrite{value: op.value, deleted: deleted, seq: op.seq}
	default:
		a.logger.Warn("async write queue full, dropping write", "key", key)
	}
	return nil
}

// Get implements KV, preferring a queued write for key.
func (a *Async) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	p, ok := a.pending[key]
	a.mu.Unlock()
	if ok {
		if p.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), p.value...), nil
	}
	return a.next.Get(ctx, key)
}

// Set implements KV. It never blocks on the underlying store.
func (a *Async) Set(_ context.Context, key string, value []byte) error {
	return a.enqueue(key, value, false)
}

// Delete implements KV. It never blocks on the underlying store.
func (a *Async) Delete(_ context.Context, key string) error {
	return a.enqueue(key, nil, true)
}

// Keys implements KV, merging queued writes into the stored key set.
func (a *Async) Keys(ctx context.Context, prefix string) ([]string, error) {
	stored, err := a.next.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(stored))
	for _, k := range stored {
		set[k] = struct{}{}
	}

	a.mu.Lock()
	for k, p := range a.pending {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if p.deleted {
			delete(set, k)
		} else {
			set[k] = struct{}{}
		}
	}
	a.mu.Unlock()

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Flush blocks until every write queued before the call has been applied.
func (a *Async) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	a.sendMu.RLock()
	if a.closed {
		a.sendMu.RUnlock()
		return ErrClosed
	}
	select {
	case a.ops <- asyncOp{barrier: barrier}:
		a.sendMu.RUnlock()
	case <-ctx.Done():
		a.sendMu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the underlying store.
func (a *Async) Close() error {
	a.sendMu.Lock()
	if a.closed {
		a.sendMu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ops)
	a.sendMu.Unlock()

	<-a.done
	return a.next.Close()
}
