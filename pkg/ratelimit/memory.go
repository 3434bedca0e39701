package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold is the bucket count above which expired windows are dropped.
const pruneThreshold = 10_000

// bucket is one fixed window. Its limiter never refills: it starts with limit
// tokens and is replaced when the window elapses.
type bucket struct {
	limiter     *rate.Limiter
	limit       int
	windowStart time.Time
}

// MemoryStore keeps one fixed window per key in process memory. A key gets
// at most limit requests per window; the window starts at its first request.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock replaces the store's time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: false, Limit: limit, RetryAfter: window}, nil
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.limit != limit || now.Sub(b.windowStart) >= window {
		if len(s.buckets) >= pruneThreshold {
			s.prune(now, window)
		}
		b = &bucket{
			limiter:     rate.NewLimiter(0, limit),
			limit:       limit,
			windowStart: now,
		}
		s.buckets[key] = b
	}

	if !b.limiter.AllowN(now, 1) {
		return Decision{Allowed: false, Limit: limit, RetryAfter: b.windowStart.Add(window).Sub(now)}, nil
	}
	return Decision{Allowed: true, Limit: limit}, nil
}

// prune drops buckets whose window has elapsed; they would be replaced anyway.
func (s *MemoryStore) prune(now time.Time, window time.Duration) {
	for k, b := range s.buckets {
		if now.Sub(b.windowStart) >= window {
			delete(s.buckets, k)
		}
	}
}
