package ratelimit

import (
	"context"
	"sync"
	"time"

	"auctionhouse/log"
)

// Result is the outcome of a single rate-limit check. ResetAt and RetryAfter
// feed the X-RateLimit-* and Retry-After response headers.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RecordStore persists fixed-window counters. Increment must be a single
// atomic operation: two concurrent requests inside a fresh window must not
// both observe a zero count.
type RecordStore interface {
	// Increment bumps the counter for key if its stored window matches
	// windowStart, otherwise restarts it at 1. Returns the resulting count.
	Increment(ctx context.Context, key string, windowStart, resetTime int64) (int64, error)
	// DeleteExpired removes records whose reset time is at or before the
	// given unix-millisecond instant. Garbage collection, not correctness.
	DeleteExpired(ctx context.Context, before int64) (int64, error)
}

// Limiter is a persisted fixed-window rate limiter with an explicit sweeper
// lifecycle. It fails open: a store failure never blocks the guarded request.
type Limiter struct {
	store RecordStore
	nowFn func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = now }
}

func New(store RecordStore, opts ...Option) *Limiter {
	l := &Limiter{store: store, nowFn: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit counts the current request against the caller's window and
// decides whether it is allowed. maxRequests is the per-window budget.
func (l *Limiter) CheckLimit(ctx context.Context, key string, maxRequests int64, window time.Duration) Result {
	now := l.nowFn()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	windowStart := nowMs - nowMs%windowMs
	resetTime := windowStart + windowMs
	resetAt := time.UnixMilli(resetTime)

	count, err := l.store.Increment(ctx, key, windowStart, resetTime)
	if err != nil {
		// Fail open: rate limiting must never be a single point of
		// availability failure for bidding.
		log.Warnf("rate limiter store unavailable, allowing request: key=%s err=%v", key, err)
		return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests, ResetAt: resetAt}
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   count <= maxRequests,
		Limit:     maxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res
}

// Sweep deletes expired records once. Exposed so callers and tests can drive
// cleanup directly instead of relying on the background sweeper.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, l.nowFn().UnixMilli())
}

// StartSweeper launches the periodic cleanup goroutine. Stop terminates it.
func (l *Limiter) StartSweeper(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh != nil {
		return
	}
	l.stopCh = make(chan struct{})
	l.stopped = make(chan struct{})
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := l.Sweep(context.Background()); err != nil {
					log.Warnf("rate limit sweep failed: %v", err)
				} else if n > 0 {
					log.Debugf("rate limit sweep removed %d records", n)
				}
			case <-stop:
				return
			}
		}
	}(l.stopCh, l.stopped)
}

// Stop terminates the sweeper goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh == nil {
		return
	}
	close(l.stopCh)
	<-l.stopped
	l.stopCh, l.stopped = nil, nil
}
