package cache

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Invocation identifies one cacheable tool call.
type Invocation struct {
	Tool      string
	Principal string
	Args      map[string]any
	Tags      []string

	// TTL is the tool's declared cache TTL.
	TTL time.Duration
}

// ExecuteFunc produces the serialized result on a miss.
type ExecuteFunc func(ctx context.Context) ([]byte, error)

// SkipRule reports whether a tool must bypass the cache.
type SkipRule func(tool string, tags []string) bool

// UnsafeTags mark tools with side effects.
var UnsafeTags = []string{"write", "danger", "unsafe", "mutation", "delete"}

// DefaultSkipRule skips tools carrying any UnsafeTags, case-insensitively.
func DefaultSkipRule(_ string, tags []string) bool {
	for _, tag := range tags {
		for _, unsafe := range UnsafeTags {
			if strings.EqualFold(tag, unsafe) {
				return true
			}
		}
	}
	return false
}

// Middleware puts a Cache in front of tool execution.
//
// Contract:
//   - Concurrency: safe for concurrent use; concurrent misses on one key
//     execute once and share the outcome.
//   - Errors: errors are returned to every waiter and never cached.
type Middleware struct {
	cache    Cache
	keyer    Keyer
	policy   Policy
	skipRule SkipRule
	group    singleflight.Group
}

// NewMiddleware creates a Middleware. Nil keyer and skipRule select the
// defaults.
func NewMiddleware(cache Cache, keyer Keyer, policy Policy, skipRule SkipRule) *Middleware {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &Middleware{cache: cache, keyer: keyer, policy: policy, skipRule: skipRule}
}

// Execute returns a cached result for inv or runs exec and caches its
// result. hit reports whether the value came from the cache.
func (m *Middleware) Execute(ctx context.Context, inv Invocation, exec ExecuteFunc) (result []byte, hit bool, err error) {
	ttl := m.policy.EffectiveTTL(inv.TTL)
	if ttl <= 0 || (!m.policy.AllowUnsafe && m.skipRule(inv.Tool, inv.Tags)) {
		result, err = exec(ctx)
		return result, false, err
	}

	key, err := m.keyer.Key(inv.Tool, inv.Principal, inv.Args)
	if err != nil || ValidateKey(key) != nil {
		result, err = exec(ctx)
		return result, false, err
	}

	if cached, ok := m.cache.Get(ctx, key); ok {
		return cached, true, nil
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		if cached, ok := m.cache.Get(ctx, key); ok {
			return cached, nil
		}
		out, err := exec(ctx)
		if err != nil {
			return nil, err
		}
		_ = m.cache.Set(ctx, key, out, ttl)
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), shared, nil
}
