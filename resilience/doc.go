// Package resilience provides the guards placed around tool invocations and
// upstream calls.
//
//   - KeyedRateLimiter: a token bucket per caller (golang.org/x/time/rate).
//   - Bulkhead: caps concurrent invocations.
//   - CircuitBreaker: fails fast after repeated upstream failures.
//   - Retry: exponential backoff for idempotent background work.
//   - Timeout: releases the caller at a deadline and recovers panics.
//
// Executor composes them:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewKeyedRateLimiter(resilience.KeyedRateLimiterConfig{Rate: 5})),
//	    resilience.WithBulkhead(resilience.NewBulkhead(64, 0)),
//	    resilience.WithTimeout(10*time.Second),
//	)
//	err := exec.Execute(ctx, principal, func(ctx context.Context) error {
//	    return handler(ctx)
//	})
package resilience
