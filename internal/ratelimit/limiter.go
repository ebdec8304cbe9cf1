// Package ratelimit implements fixed-window request counters keyed by client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store keeps hit counters per key and window. Implementations must be safe
// for concurrent use.
type Store interface {
	// Increment adds one hit to key in the window starting at windowStart and
	// returns the new count.
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
	// Count returns the hits recorded for key in the window starting at windowStart.
	Count(ctx context.Context, key string, windowStart time.Time) (int64, error)
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter is the time left until the current window closes.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter allows at most Max hits per key in each Window.
type Limiter struct {
	name   string
	max    int64
	window time.Duration
	store  Store
	now    func() time.Time
}

func New(name string, max int, window time.Duration, store Store) (*Limiter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("ratelimit: name must not be empty")
	}
	if max <= 0 {
		return nil, errors.New("ratelimit: max must be positive")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	return &Limiter{name: name, max: int64(max), window: window, store: store, now: time.Now}, nil
}

func (l *Limiter) Name() string { return l.name }

// Allow counts a hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	start := l.windowStart()
	n, err := l.store.Increment(ctx, l.storeKey(key), start, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %s: %w", l.name, err)
	}
	return l.decide(n, start, n <= l.max), nil
}

// Check reports whether key still has room without counting a hit.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	start := l.windowStart()
	n, err := l.store.Count(ctx, l.storeKey(key), start)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %s: %w", l.name, err)
	}
	return l.decide(n, start, n < l.max), nil
}

// Record counts a hit for key without judging it.
func (l *Limiter) Record(ctx context.Context, key string) error {
	if _, err := l.store.Increment(ctx, l.storeKey(key), l.windowStart(), l.window); err != nil {
		return fmt.Errorf("ratelimit: %s: %w", l.name, err)
	}
	return nil
}

func (l *Limiter) decide(n int64, start time.Time, allowed bool) Decision {
	remaining := l.max - n
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining, ResetAt: start.Add(l.window)}
}

func (l *Limiter) windowStart() time.Time {
	return l.now().UTC().Truncate(l.window)
}

func (l *Limiter) storeKey(key string) string {
	return l.name + "#" + key
}
