package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleAfter    = 5 * time.Minute
	sweepInterval = 3 * time.Minute
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// memoryLimiter is a per-key token bucket held in process memory.
type memoryLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	interval  time.Duration
	burst     int
	lastSweep time.Time
}

// NewMemoryLimiter allows limit requests per window per key, with bursts of up
// to burst requests (limit when burst is not positive).
func NewMemoryLimiter(limit int, window time.Duration, burst int) Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 1
	}
	if burst <= 0 {
		burst = limit
	}
	return &memoryLimiter{
		limiters:  make(map[string]*keyLimiter),
		interval:  window / time.Duration(limit),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return m.limiterFor(key).Allow(), nil
}

func (m *memoryLimiter) RetryAfter() time.Duration {
	return max(m.interval, time.Second)
}

func (m *memoryLimiter) limiterFor(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastSweep) > sweepInterval {
		for k, l := range m.limiters {
			if now.Sub(l.lastSeen) > staleAfter {
				delete(m.limiters, k)
			}
		}
		m.lastSweep = now
	}

	if l, ok := m.limiters[key]; ok {
		l.lastSeen = now
		return l.limiter
	}

	limiter := rate.NewLimiter(rate.Every(m.interval), m.burst)
	m.limiters[key] = &keyLimiter{limiter: limiter, lastSeen: now}
	return limiter
}
