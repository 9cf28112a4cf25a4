// Package ratelimit enforces client-side request budgets. Every request
// draws from a session-wide budget, and paths with tighter published
// budgets draw from their own bucket as well.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter combines a session-wide token bucket with optional named
// per-path buckets. A request against an unregistered path is bounded by
// the session budget only.
type RateLimiter struct {
	session *rate.Limiter

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter

	admitted int64
	denied   int64
}

func perSecond(requests int, period time.Duration) rate.Limit {
	return rate.Limit(float64(requests) / period.Seconds())
}

// New creates a RateLimiter with the given session-wide budget.
func New(requests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		session: rate.NewLimiter(perSecond(requests, period), requests),
		buckets: make(map[string]*rate.Limiter),
	}
}

// SetBucketLimit registers or updates a named bucket with its own budget.
func (r *RateLimiter) SetBucketLimit(name string, requests int, period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.buckets[name]; ok {
		limiter.SetLimit(perSecond(requests, period))
		limiter.SetBurst(requests)
		return
	}
	r.buckets[name] = rate.NewLimiter(perSecond(requests, period), requests)
}

func (r *RateLimiter) bucket(name string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buckets[name]
}

// Wait blocks until the session budget admits a request or the context
// is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	err := r.session.Wait(ctx)
	r.count(err == nil)
	return err
}

// WaitBucket blocks until both the named bucket (when registered) and
// the session budget admit a request, or the context is cancelled.
func (r *RateLimiter) WaitBucket(ctx context.Context, name string) error {
	if limiter := r.bucket(name); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			r.count(false)
			return err
		}
	}
	err := r.session.Wait(ctx)
	r.count(err == nil)
	return err
}

// Allow reports whether the session budget admits a request right now.
func (r *RateLimiter) Allow() bool {
	ok := r.session.Allow()
	r.count(ok)
	return ok
}

// AllowBucket reports whether both the named bucket (when registered)
// and the session budget admit a request right now. A denial by the
// bucket does not consume a session token.
func (r *RateLimiter) AllowBucket(name string) bool {
	if limiter := r.bucket(name); limiter != nil && !limiter.Allow() {
		r.count(false)
		return false
	}
	return r.Allow()
}

// SetLimit updates the session-wide budget.
func (r *RateLimiter) SetLimit(requests int, period time.Duration) {
	r.session.SetLimit(perSecond(requests, period))
	r.session.SetBurst(requests)
}

// Buckets returns the number of registered named buckets.
func (r *RateLimiter) Buckets() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

// MetricsSnapshot is a point-in-time view of limiter activity.
type MetricsSnapshot struct {
	// TotalRequests is the number of admission checks performed.
	TotalRequests int64
	// AllowedRequests is the number of requests admitted.
	AllowedRequests int64
	// DeniedRequests is the number of requests denied or cancelled.
	DeniedRequests int64
	// BucketCount is the number of registered named buckets.
	BucketCount int
}

// Metrics returns cumulative admission counts.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return MetricsSnapshot{
		TotalRequests:   r.admitted + r.denied,
		AllowedRequests: r.admitted,
		DeniedRequests:  r.denied,
		BucketCount:     len(r.buckets),
	}
}

func (r *RateLimiter) count(admitted bool) {
	r.mu.Lock()
	if admitted {
		r.admitted++
	} else {
		r.denied++
	}
	r.mu.Unlock()
}
