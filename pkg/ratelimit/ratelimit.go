package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Window is the interval every tier's request limit applies to.
const Window = time.Minute

// Decision is the outcome of consuming one request point.
type Decision struct {
	Allowed    bool
	Limit      int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Store atomically consumes one point from the bucket at key.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Limiter scopes buckets by tier and user.
type Limiter struct {
	store Store
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

func (l *Limiter) Allow(ctx context.Context, tier, userID string, limit int) (Decision, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", tier, userID)
	d, err := l.store.Take(ctx, key, limit, Window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to consume rate limit: %w", err)
	}
	return d, nil
}
