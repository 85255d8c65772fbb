package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// Executor composes the patterns guarding one class of operation.
type Executor struct {
	rateLimiter    *KeyedRateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter applies per-key rate limiting.
func WithRateLimiter(rl *KeyedRateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds bulkhead isolation.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retry logic.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }

// Execute runs op on behalf of key through the configured patterns.
//
// The execution order is:
// 1. Rate Limiter (if configured), per key
// 2. Bulkhead (if configured)
// 3. Circuit Breaker (if configured)
// 4. Retry (if configured)
// 5. Timeout (if configured), per attempt
//
// A bulkhead slot is held until every attempt of op has returned, so an
// attempt abandoned at its timeout still counts against the limit.
func (e *Executor) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	if e.rateLimiter != nil && !e.rateLimiter.Allow(key) {
		return ErrRateLimitExceeded
	}

	var slot *slotHold
	if e.bulkhead != nil {
		release, err := e.bulkhead.Acquire(ctx)
		if err != nil {
			return err
		}
		slot = newSlotHold(release)
		defer slot.done()
	}

	execute := func(ctx context.Context) error {
		slot.hold()
		attempt := func(ctx context.Context) error {
			defer slot.done()
			return op(ctx)
		}
		if e.timeout != nil {
			return e.timeout.Execute(ctx, attempt)
		}
		return attempt(ctx)
	}
	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.retry.Execute(ctx, inner) }
	}
	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.circuitBreaker.Execute(ctx, inner) }
	}
	return execute(ctx)
}

// slotHold releases a bulkhead slot once the caller and every attempt it
// started are done. A nil slotHold does nothing.
type slotHold struct {
	refs    atomic.Int32
	release func()
}

func newSlotHold(release func()) *slotHold {
	h := &slotHold{release: release}
	h.refs.Store(1)
	return h
}

func (h *slotHold) hold() {
	if h != nil {
		h.refs.Add(1)
	}
}

func (h *slotHold) done() {
	if h != nil && h.refs.Add(-1) == 0 {
		h.release()
	}
}
