// Package ratelimit throttles generation submissions per visitor. The
// quota ledger accounts for completed work; this guards the slow, costed
// inference call against rapid-fire duplicates.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// GenerationsPerMinute is deliberately low: one inference call takes
	// tens of seconds, so a compliant client cannot exceed it.
	GenerationsPerMinute = 3
	GenerationBurst      = 2
)

// PerVisitor hands out one token bucket per visitor key.
type PerVisitor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewPerVisitor(perMinute float64, burst int) *PerVisitor {
	return &PerVisitor{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

func (p *PerVisitor) Allow(key string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = limiter
	}
	p.mu.Unlock()
	return limiter.Allow()
}
