// Package ratelimiter provides per-key token buckets for pacing requests to
// remote providers (content gateways, proof and artifact stores).
package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// evictEvery bounds how often the idle sweep runs, counted in Allow calls.
const evictEvery = 512

// MapLimiter keeps one token bucket per provider key so a fallback walk that
// hammers one slow provider does not spend the budget of the others. Buckets
// for providers not seen within idleTTL are dropped on a periodic sweep.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*providerBucket
	calls   uint64
}

type providerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-provider limiter; returns nil if args are invalid. A nil
// MapLimiter is valid and never throttles.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*providerBucket),
	}
}

// Allow reports whether one request may go to the keyed provider at now.
// Blank keys are never throttled; unknown keys start with a full bucket.
func (l *MapLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &providerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.calls++
	if l.calls%evictEvery == 0 {
		l.evictIdle(now)
	}
	return allowed
}

func (l *MapLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
