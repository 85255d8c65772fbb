package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiterConfig configures per-key token buckets.
type KeyedRateLimiterConfig struct {
	// Rate is the sustained number of operations per second per key.
	// Default: 10
	Rate float64

	// Burst is the bucket size per key.
	// Default: 20
	Burst int

	// IdleTTL drops buckets not used for this long.
	// Default: 10 minutes
	IdleTTL time.Duration
}

// KeyedRateLimiter applies an independent token bucket to each key, so one
// noisy caller cannot starve the others.
type KeyedRateLimiter struct {
	config KeyedRateLimiterConfig

	mu        sync.Mutex
	buckets   map[string]*keyedBucket
	lastSweep time.Time
}

type keyedBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter creates a keyed limiter.
func NewKeyedRateLimiter(config KeyedRateLimiterConfig) *KeyedRateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 20
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &KeyedRateLimiter{
		config:    config,
		buckets:   make(map[string]*keyedBucket),
		lastSweep: time.Now(),
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *KeyedRateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.config.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.config.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &keyedBucket{limiter: rate.NewLimiter(rate.Limit(l.config.Rate), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	limiter := b.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Keys returns the number of tracked keys.
func (l *KeyedRateLimiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
