// Package ratelimit throttles request admission per agent identity. The
// limiter protects gateway capacity; it is not a security control — the
// scoring pipeline is — so middleware may choose to fail open when a
// limiter backend errors.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request from an identity may proceed.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

// Memory is a per-identity token bucket table for single-instance
// deployments.
type Memory struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

// visitor tracks the bucket and last seen time for one identity.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemory creates the in-memory limiter and starts its background
// cleanup of stale identities.
func NewMemory(rps float64, burst int) *Memory {
	m := &Memory{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go m.cleanupVisitors()
	return m
}

func (m *Memory) Allow(_ context.Context, identity string) (bool, error) {
	return m.limiterFor(identity).Allow(), nil
}

func (m *Memory) limiterFor(identity string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.visitors[identity]
	if !exists {
		limiter := rate.NewLimiter(m.rps, m.burst)
		m.visitors[identity] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors drops identities not seen recently so the table does
// not grow without bound.
func (m *Memory) cleanupVisitors() {
	for {
		time.Sleep(1 * time.Minute)
		m.sweep(3 * time.Minute)
	}
}

func (m *Memory) sweep(olderThan time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for identity, v := range m.visitors {
		if time.Since(v.lastSeen) > olderThan {
			delete(m.visitors, identity)
		}
	}
}
