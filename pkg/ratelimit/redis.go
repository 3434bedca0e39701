package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

type limiterKey struct {
	limit  int
	window time.Duration
}

// RedisStore is a thin wrapper around github.com/vnmchuo/ratelimiter so limits
// hold across gateway instances. One library limiter is kept per
// (limit, window) pair since tiers carry different limits.
type RedisStore struct {
	rdb *redis.Client

	mu       sync.Mutex
	limiters map[limiterKey]extratelimit.Limiter
	newFn    func(limit int, window time.Duration) extratelimit.Limiter
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	s := &RedisStore{
		rdb:      rdb,
		limiters: make(map[limiterKey]extratelimit.Limiter),
	}
	s.newFn = func(limit int, window time.Duration) extratelimit.Limiter {
		return extratelimit.NewRedisStore(s.rdb,
			extratelimit.WithLimit(limit),
			extratelimit.WithWindow(window),
		)
	}
	return s
}

// NewTestRedisStore builds a store whose limiters come from newFn.
func NewTestRedisStore(newFn func(limit int, window time.Duration) extratelimit.Limiter) *RedisStore {
	return &RedisStore{
		limiters: make(map[limiterKey]extratelimit.Limiter),
		newFn:    newFn,
	}
}

func (s *RedisStore) limiter(limit int, window time.Duration) extratelimit.Limiter {
	k := limiterKey{limit: limit, window: window}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[k]
	if !ok {
		l = s.newFn(limit, window)
		s.limiters[k] = l
	}
	return l
}

func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: false, Limit: limit, RetryAfter: window}, nil
	}

	res, err := s.limiter(limit, window).Allow(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if !res.Allowed {
		// the library does not report reset time; a full window is the safe upper bound
		return Decision{Allowed: false, Limit: limit, RetryAfter: window}, nil
	}
	return Decision{Allowed: true, Limit: limit}, nil
}
