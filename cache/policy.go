package cache

import "time"

// Policy bounds result caching.
type Policy struct {
	// DefaultTTL applies to tools that declare no TTL.
	// Zero leaves such tools uncached.
	DefaultTTL time.Duration

	// MaxTTL caps every TTL. Zero means no cap.
	MaxTTL time.Duration

	// AllowUnsafe permits caching tools with unsafe tags.
	AllowUnsafe bool
}

// DefaultPolicy caches only tools that declare a TTL, for at most 1 hour.
func DefaultPolicy() Policy {
	return Policy{MaxTTL: time.Hour}
}

// EffectiveTTL returns the TTL for a tool declaring override, after
// applying DefaultTTL and MaxTTL. Zero means do not cache.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}
