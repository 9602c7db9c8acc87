// Package ratelimit caps the global action rate and tracks load profile phases.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a global actions-per-second cap shared by every user of a
// run. A nil *RateLimiter or a zero rate never blocks.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	rps     int
}

func NewRateLimiter(rps int) *RateLimiter {
	if rps < 0 {
		rps = 0
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burstFor(rps)),
		rps:     rps,
	}
}

// Wait blocks until one action may start or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	limiter, rps := r.limiter, r.rps
	r.mu.RUnlock()

	if rps == 0 {
		return nil
	}
	return limiter.Wait(ctx)
}

// SetRate changes the cap in place; phases use it to follow their rps.
func (r *RateLimiter) SetRate(rps int) {
	if r == nil {
		return
	}
	if rps < 0 {
		rps = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rps = rps
	r.limiter.SetLimit(rate.Limit(rps))
	r.limiter.SetBurst(burstFor(rps))
}

// Limit returns the current cap, 0 meaning unlimited.
func (r *RateLimiter) Limit() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rps
}

func burstFor(rps int) int {
	if rps < 1 {
		return 1
	}
	return rps
}
