// Package ratelimit implements the token-bucket rate limiting used to
// enforce spec policies such as 10 logins/min, 5 invitations/hour, and
// 30 LLM draft calls/min per organization.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BackpressurePolicy defines a quota of Burst tokens that refill at RPM
// tokens per WindowSeconds (default 60, i.e. literally per-minute). A
// 5-per-hour policy sets WindowSeconds to 3600.
type BackpressurePolicy struct {
	RPM           int
	TPM           int
	Burst         int
	WindowSeconds int
}

func (p BackpressurePolicy) window() float64 {
	if p.WindowSeconds <= 0 {
		return 60
	}
	return float64(p.WindowSeconds)
}

// LimiterStore abstracts the storage for rate limiting buckets.
type LimiterStore interface {
	// Allow checks if the actor is allowed to perform an action costing 'cost'.
	// Returns true if allowed, false if rate limited.
	// A non-nil error means the store could not be consulted.
	Allow(ctx context.Context, actorID string, policy BackpressurePolicy, cost int) (bool, error)
}

// TokenBucket implements a thread-safe token bucket rate limiter.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func NewTokenBucket(ratePerSec float64, capacity int) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: ratePerSec,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) Allow(cost int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill
	tb.tokens = tb.tokens + elapsed*tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	// Consume
	if tb.tokens >= float64(cost) {
		tb.tokens -= float64(cost)
		return true
	}
	return false
}

// EvaluateBackpressure checks if the actor is permitted to proceed using the provided store.
// If store is nil, it denies by default (fail closed) or allows (fail open) - let's fail closed for safety.
func EvaluateBackpressure(ctx context.Context, store LimiterStore, actorID string, policy BackpressurePolicy) error {
	if store == nil {
		return fmt.Errorf("backpressure: no limiter store configured")
	}

	allowed, err := store.Allow(ctx, actorID, policy, 1)
	if err != nil {
		return fmt.Errorf("backpressure check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("backpressure: rate limit exceeded for %s", actorID)
	}
	return nil
}

// InMemoryLimiterStore for testing/MVP
// InMemoryLimiterStore for testing/single-instance deployments.
type InMemoryLimiterStore struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

func NewInMemoryLimiterStore() *InMemoryLimiterStore {
	return &InMemoryLimiterStore{
		buckets: make(map[string]*TokenBucket),
	}
}

func (s *InMemoryLimiterStore) Allow(ctx context.Context, actorID string, policy BackpressurePolicy, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb, exists := s.buckets[actorID]
	if !exists {
		rate := float64(policy.RPM) / policy.window()
		if rate <= 0 {
			rate = 1 // Safe fallback
		}
		tb = NewTokenBucket(rate, policy.Burst)
		s.buckets[actorID] = tb
	}

	return tb.Allow(cost), nil
}
