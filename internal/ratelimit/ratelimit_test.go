package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, perMinute, burst int) (*KeyedRateLimiter, *manualClock) {
	t.Helper()
	clock := &manualClock{t: time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC)}
	rl := New(Options{PerMinute: perMinute, Burst: burst, IdleTTL: time.Minute, Now: clock.Now})
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		burst     int
		calls     int
		wantPass  int
	}{
		{"burst allows initial requests", 60, 3, 3, 3},
		{"exceeding burst blocks", 60, 2, 5, 2},
		{"zero rate still serves burst", 0, 1, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := newLimiter(t, tt.perMinute, tt.burst)

			passed := 0
			for range tt.calls {
				if rl.Allow("10.0.0.1") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_Refills(t *testing.T) {
	rl, clock := newLimiter(t, 60, 1)

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	clock.Advance(time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl, _ := newLimiter(t, 60, 1)

	assert.True(t, rl.Allow("key1"))
	assert.False(t, rl.Allow("key1"))
	assert.True(t, rl.Allow("key2"))
}

func TestKeyedRateLimiter_Evict(t *testing.T) {
	rl, clock := newLimiter(t, 60, 1)

	rl.Allow("old")
	clock.Advance(45 * time.Second)
	rl.Allow("recent")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, rl.Evict())
	assert.Equal(t, 1, rl.Len())

	// An evicted key starts over with a full bucket.
	assert.True(t, rl.Allow("old"))
}

func TestKeyedRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(Options{PerMinute: 60, Burst: 1})
	rl.Stop()
	rl.Stop()
}
