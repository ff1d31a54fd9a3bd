// Package cache keeps a single loaded value for a bounded time.
package cache

import (
	"context"
	"sync"
	"time"
)

// Loader produces a fresh value for a Snapshot.
type Loader[T any] func(ctx context.Context) (T, error)

// Snapshot holds one value loaded on demand. The value is reloaded once it is older
// than the TTL or after Invalidate. Loads happen under the lock, so concurrent callers
// waiting on an expired snapshot share a single reload.
type Snapshot[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	value    T
	loaded   bool
	loadedAt time.Time
}

// New returns an empty snapshot. A nil clock defaults to time.Now.
// A non-positive ttl disables reuse, so every Get reloads.
func New[T any](ttl time.Duration, now func() time.Time) *Snapshot[T] {
	if now == nil {
		now = time.Now
	}
	return &Snapshot[T]{ttl: ttl, now: now}
}

// Get returns the cached value, calling load when it is absent or stale.
// refreshed reports whether load ran. A failed load leaves the snapshot empty.
func (s *Snapshot[T]) Get(ctx context.Context, load Loader[T]) (value T, refreshed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh() {
		return s.value, false, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		s.value, s.loaded = zero, false
		return zero, true, err
	}
	s.value = v
	s.loaded = true
	s.loadedAt = s.now()
	return v, true, nil
}

// Invalidate drops the cached value.
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value, s.loaded = zero, false
	s.loadedAt = time.Time{}
}

// LoadedAt returns the time of the last successful load, or false when empty.
func (s *Snapshot[T]) LoadedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedAt, s.loaded
}

func (s *Snapshot[T]) fresh() bool {
	if !s.loaded || s.ttl <= 0 {
		return false
	}
	return s.now().Sub(s.loadedAt) < s.ttl
}
