// Package ratelimit throttles login attempts per client address.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/hearth/internal/clock"
)

// Limiter is a fixed-window counter per key: at most Limit hits per
// Interval.
type Limiter struct {
	Limit    int
	Interval time.Duration

	clock   clock.Clock
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter. clk may be nil.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Default()
	}
	return &Limiter{
		Limit:    limit,
		Interval: interval,
		clock:    clk,
		buckets:  make(map[string]*bucket),
	}
}

// Allow takes one token for key and reports whether the hit is within the
// limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, exists := l.buckets[key]
	if !exists || now.Sub(b.lastFill) >= l.Interval {
		b = &bucket{tokens: l.Limit, lastFill: now}
		l.buckets[key] = b
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long key has to wait for its window to reset.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists || b.tokens > 0 {
		return 0
	}
	if d := l.Interval - l.clock.Since(b.lastFill); d > 0 {
		return d
	}
	return 0
}

// Reset clears the window of key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Prune drops windows that have expired. It satisfies scheduler.Pruner.
func (l *Limiter) Prune(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	var n int64
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) >= l.Interval {
			delete(l.buckets, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
