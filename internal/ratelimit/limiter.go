// Package ratelimit limits how often a key can do something within a fixed window.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Entry is the state of a single key.
type Entry struct {
	Count       int
	WindowStart time.Time
}

// CounterStore keeps the counters of the limiter.
type CounterStore interface {
	// Hit increments the counter of key and returns the updated entry. If the
	// window of the key started more than window ago, a new window is started
	// at now before incrementing.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error)
	// Evict removes entries whose window started more than maxAge before now.
	Evict(now time.Time, maxAge time.Duration)
}

// Decision is the result of Allow.
type Decision struct {
	Allowed bool
	// RetryAfter is the time until the window of the key ends.
	// Only set when Allowed is false.
	RetryAfter time.Duration
}

// RetryAfterSeconds is RetryAfter rounded up to whole seconds, at least 1.
func (d Decision) RetryAfterSeconds() int {
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter is a fixed window rate limiter.
type Limiter struct {
	store CounterStore

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func New(store CounterStore) *Limiter {
	return &Limiter{
		store:   store,
		NowFunc: time.Now,
	}
}

// Allow records a request for key and reports whether it's within limit
// requests for the current window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.NowFunc()

	e, err := l.store.Hit(ctx, key, now, window)
	if err != nil {
		return Decision{}, err
	}

	if e.Count <= limit {
		return Decision{Allowed: true}, nil
	}

	// Stale keys are only cleaned up when someone is over the limit.
	l.store.Evict(now, 2*window)

	retryAfter := window - now.Sub(e.WindowStart)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return Decision{
		Allowed:    false,
		RetryAfter: retryAfter,
	}, nil
}
