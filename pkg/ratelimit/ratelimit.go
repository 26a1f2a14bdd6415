// Package ratelimit provides per-caller request throttling for the API
// surface, with an in-process backend for single-node deployments and a
// Redis backend for multi-instance ones.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy defines the per-caller limits.
type Policy struct {
	// RPS is the sustained requests-per-second allowance.
	RPS int
	// Burst is the maximum burst size.
	Burst int
}

// Store abstracts the storage for rate-limit buckets.
type Store interface {
	// Allow reports whether the actor may spend cost tokens right now.
	Allow(ctx context.Context, actorID string, policy Policy, cost int) (bool, error)
}

// MemoryStore is a thread-safe in-process Store backed by x/time/rate
// token buckets, one per actor.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*rate.Limiter)}
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, actorID string, policy Policy, cost int) (bool, error) {
	s.mu.Lock()
	limiter, ok := s.buckets[actorID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(policy.RPS), policy.Burst)
		s.buckets[actorID] = limiter
	}
	s.mu.Unlock()
	return limiter.AllowN(time.Now(), cost), nil
}
