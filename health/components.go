package health

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/jonwraymond/toolgate/keystore"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/tokencache"
)

// StoreChecker reports key store availability. /health is public, so the
// check reveals nothing about the keys themselves and never scans the store.
type StoreChecker struct {
	store keystore.Store
}

// NewStoreChecker creates a checker for store.
func NewStoreChecker(store keystore.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name returns "keystore".
func (c *StoreChecker) Name() string { return "keystore" }

// absentHash matches no issued key; looking it up exercises the index read.
var absentHash = strings.Repeat("0", 64)

// Check pings the store when it supports pinging, otherwise performs one
// index lookup.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if p, ok := c.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("key store unreachable", err)
		}
		return Healthy("key store readable")
	}
	if _, err := c.store.Lookup(ctx, absentHash); err != nil {
		return Unhealthy("key store unreadable", err)
	}
	return Healthy("key store readable")
}

// TokenProbe is the view of the upstream token cache the checker needs.
type TokenProbe interface {
	State() tokencache.State
	Token(ctx context.Context) (*tokencache.Token, error)
}

// TokenChecker reports whether an upstream token can be obtained. A cold
// cache is warmed by the check. Failure degrades rather than fails the
// gateway, since only upstream-backed tools depend on it.
type TokenChecker struct {
	tokens TokenProbe
	now    func() time.Time
}

// NewTokenChecker creates a checker for tokens.
func NewTokenChecker(tokens TokenProbe) *TokenChecker {
	return &TokenChecker{tokens: tokens, now: time.Now}
}

// Name returns "upstream_token".
func (c *TokenChecker) Name() string { return "upstream_token" }

// Check returns the cached token state, fetching a token when none is held.
func (c *TokenChecker) Check(ctx context.Context) Result {
	state := c.tokens.State()
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return Degraded("upstream token unavailable").WithDetails(map[string]any{
			"state": state.String(),
			"error": err.Error(),
		})
	}
	return Healthy("upstream token valid").WithDetails(map[string]any{
		"state":      tokencache.StateValid.String(),
		"expires_in": tok.ExpiresAt.Sub(c.now()).Round(time.Second).String(),
	})
}

// BreakerChecker reports a circuit breaker guarding an upstream.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker named "circuit.<name>".
func NewBreakerChecker(name string, breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: "circuit." + name, breaker: breaker}
}

// Name returns the checker name.
func (c *BreakerChecker) Name() string { return c.name }

// Check maps closed to healthy and any other state to degraded.
func (c *BreakerChecker) Check(context.Context) Result {
	state := c.breaker.State()
	details := map[string]any{"state": state.String()}
	if state == resilience.StateClosed {
		return Healthy("circuit closed").WithDetails(details)
	}
	return Degraded("circuit " + state.String()).WithDetails(details)
}

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the heap/limit ratio that degrades the status.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the heap/limit ratio that fails the status.
	// Default: 0.95
	CriticalThreshold float64

	// Limit is the heap budget in bytes. Zero uses the memory obtained from
	// the OS.
	Limit uint64
}

// MemoryChecker checks heap usage against a budget.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(cfg MemoryCheckerConfig) *MemoryChecker {
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold >= 1 {
		cfg.WarningThreshold = 0.8
	}
	if cfg.CriticalThreshold <= cfg.WarningThreshold || cfg.CriticalThreshold > 1 {
		cfg.CriticalThreshold = max(0.95, cfg.WarningThreshold)
	}
	return &MemoryChecker{config: cfg}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string { return "memory" }

// Check reads runtime memory statistics.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	limit := m.config.Limit
	if limit == 0 {
		limit = stats.Sys
	}
	if limit == 0 {
		return Healthy("memory stats unavailable")
	}
	ratio := float64(stats.HeapAlloc) / float64(limit)
	details := map[string]any{
		"heap_alloc_bytes": stats.HeapAlloc,
		"limit_bytes":      limit,
		"usage_percent":    ratio * 100,
		"goroutines":       runtime.NumGoroutine(),
		"num_gc":           stats.NumGC,
	}
	msg := fmt.Sprintf("memory usage %.1f%%", ratio*100)
	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}

var (
	_ Checker = (*StoreChecker)(nil)
	_ Checker = (*TokenChecker)(nil)
	_ Checker = (*BreakerChecker)(nil)
	_ Checker = (*MemoryChecker)(nil)
	_ Checker = (*CheckerFunc)(nil)
)
