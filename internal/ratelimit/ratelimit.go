// Package ratelimit provides per-caller request limiting.
package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window frees a slot.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter decides whether a caller may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Key builds the limiter key for a caller.
func Key(tenantID, clientIP string) string {
	return tenantID + "|" + clientIP
}

// SlidingWindow is an in-memory sliding-window limiter holding at most
// capacity keys. The least recently used key is evicted when a new key
// would exceed capacity.
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

type entry struct {
	key        string
	timestamps []time.Time
}

// NewSlidingWindow creates a limiter allowing limit requests per window
// for each key.
func NewSlidingWindow(limit int, window time.Duration, capacity int) *SlidingWindow {
	if capacity <= 0 {
		capacity = 10000
	}
	return &SlidingWindow{
		limit:    limit,
		window:   window,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Allow records a request for key if the window has room.
func (s *SlidingWindow) Allow(_ context.Context, key string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.touch(key)
	e.cleanup(now, s.window)

	if len(e.timestamps) >= s.limit {
		return &Result{
			Allowed:   false,
			Remaining: 0,
			Limit:     s.limit,
			ResetAt:   e.timestamps[0].Add(s.window),
		}, nil
	}

	e.timestamps = append(e.timestamps, now)
	return &Result{
		Allowed:   true,
		Remaining: s.limit - len(e.timestamps),
		Limit:     s.limit,
		ResetAt:   e.timestamps[0].Add(s.window),
	}, nil
}

// Reset clears the window for key.
func (s *SlidingWindow) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}
}

// Len returns the number of tracked keys.
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// touch returns the entry for key, creating it and evicting as needed.
// Must be called while holding s.mu.
func (s *SlidingWindow) touch(key string) *entry {
	if el, ok := s.entries[key]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*entry)
	}

	for len(s.entries) >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).key)
	}

	e := &entry{key: key}
	s.entries[key] = s.order.PushFront(e)
	return e
}

// cleanup drops timestamps that have left the window.
func (e *entry) cleanup(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(e.timestamps); i++ {
		if e.timestamps[i].After(cutoff) {
			break
		}
	}
	e.timestamps = e.timestamps[i:]
}

// counterNamespace scopes limiter counters in the shared cache.
const counterNamespace = "ratelimit"

// CounterLimiter counts requests in the shared cache so every replica sees
// the same totals. Windows are fixed and start at a key's first request.
type CounterLimiter struct {
	cache  domain.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewCounterLimiter creates a cache-backed limiter.
func NewCounterLimiter(cache domain.Cache, limit int, window time.Duration) *CounterLimiter {
	return &CounterLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow increments the key's counter and compares it with the limit.
func (c *CounterLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	count, err := c.cache.IncrementCounter(ctx, counterNamespace, key, c.window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	remaining := c.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   int(count) <= c.limit,
		Remaining: remaining,
		Limit:     c.limit,
		ResetAt:   c.now().Add(c.window),
	}, nil
}

// New builds the limiter selected by cfg. Distributed limiting needs a
// cache; without one it falls back to process memory.
func New(cfg domain.RateLimitConfig, cache domain.Cache) Limiter {
	if cfg.Distributed && cache != nil {
		return NewCounterLimiter(cache, cfg.Requests, cfg.Window())
	}
	return NewSlidingWindow(cfg.Requests, cfg.Window(), cfg.MaxKeys)
}
