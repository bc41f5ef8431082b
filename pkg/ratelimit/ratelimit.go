// Package ratelimit implements the fixed-window request limiter applied to
// public API routes.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Decision is the outcome of consuming one request from a bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter consumes one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter. Blocked requests do not
// extend or consume the window.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// MemoryOption customises a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory builds a limiter allowing limit requests per window per key.
func NewMemory(limit int, window time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !b.resetAt.After(now) {
		m.buckets[key] = &bucket{count: 1, resetAt: now.Add(m.window)}
		m.sweep(now)
		return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - 1}, nil
	}
	if b.count >= m.limit {
		return Decision{Allowed: false, Limit: m.limit, RetryAfter: b.resetAt.Sub(now)}, nil
	}
	b.count++
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - b.count}, nil
}

// Reset drops the bucket for key.
func (m *Memory) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
}

// Size returns the number of tracked buckets.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// sweep evicts expired buckets once the map grows; caller holds mu.
func (m *Memory) sweep(now time.Time) {
	if len(m.buckets) < 1024 {
		return
	}
	for key, b := range m.buckets {
		if !b.resetAt.After(now) {
			delete(m.buckets, key)
		}
	}
}

// WindowStore is the shared counter surface backing the Redis limiter.
type WindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
}

// Shared limits requests through a WindowStore so that every API replica
// shares the same buckets.
type Shared struct {
	store  WindowStore
	limit  int
	window time.Duration
}

// NewShared builds a limiter backed by store.
func NewShared(store WindowStore, limit int, window time.Duration) *Shared {
	return &Shared{store: store, limit: limit, window: window}
}

// Allow implements Limiter.
func (s *Shared) Allow(ctx context.Context, key string) (Decision, error) {
	allowed, count, resetIn, err := s.store.FixedWindowAllow(ctx, key, int64(s.limit), s.window)
	if err != nil {
		return Decision{}, err
	}
	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: allowed, Limit: s.limit, Remaining: remaining}
	if !allowed {
		d.RetryAfter = resetIn
	}
	return d, nil
}
