package observe

import (
	"context"
	"time"
)

// ExecuteFunc is the signature Middleware wraps.
type ExecuteFunc func(ctx context.Context, meta InvocationMeta, input any) (any, error)

// Outcome labels used when no classifier is configured.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Middleware wraps tool invocation with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are propagated unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify func(error) string
}

// NewMiddleware creates a Middleware. classify maps an invocation error to
// a low-cardinality outcome label; nil means "ok"/"error".
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, classify func(error) string) *Middleware {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	if logger == nil {
		logger = NopLogger()
	}
	if classify == nil {
		classify = defaultClassify
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger, classify: classify}
}

func defaultClassify(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Wrap wraps fn with a span, an invocation metric and a log entry.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, meta InvocationMeta, input any) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx, meta, input)

		duration := time.Since(start)
		outcome := m.classify(err)
		m.tracer.EndSpan(span, outcome, err)
		m.metrics.RecordInvocation(ctx, meta, duration, outcome)

		log := m.logger.With(
			F("tool", meta.Tool),
			F("principal", meta.Principal),
			F("transport", meta.Transport),
		)
		fields := []Field{
			F("outcome", outcome),
			F("duration_ms", duration.Milliseconds()),
		}
		if err != nil {
			log.Warn(ctx, "tool invocation failed", append(fields, F("error", err))...)
		} else {
			log.Info(ctx, "tool invocation completed", fields...)
		}
		return result, err
	}
}

// MiddlewareFromObserver builds a Middleware from an Observer's primitives.
func MiddlewareFromObserver(obs Observer, classify func(error) string) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), classify), nil
}
