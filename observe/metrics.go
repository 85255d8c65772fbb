package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records gateway metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordInvocation records one tool invocation with its outcome label.
	RecordInvocation(ctx context.Context, meta InvocationMeta, duration time.Duration, outcome string)

	// RecordTokenRefresh records one upstream token acquisition attempt.
	RecordTokenRefresh(ctx context.Context, duration time.Duration, outcome string)
}

type metricsImpl struct {
	invocations   metric.Int64Counter
	invokeLatency metric.Float64Histogram
	refreshes     metric.Int64Counter
	refreshTime   metric.Float64Histogram
}

// NewMetrics registers the gateway instruments on meter.
// A nil meter yields no-op instruments.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	invocations, err := meter.Int64Counter(
		"tool.invoke.total",
		metric.WithDescription("Total number of tool invocations by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	invokeLatency, err := meter.Float64Histogram(
		"tool.invoke.duration_ms",
		metric.WithDescription("Tool invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter(
		"token.refresh.total",
		metric.WithDescription("Upstream token acquisitions by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	refreshTime, err := meter.Float64Histogram(
		"token.refresh.duration_ms",
		metric.WithDescription("Upstream token acquisition duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		invocations:   invocations,
		invokeLatency: invokeLatency,
		refreshes:     refreshes,
		refreshTime:   refreshTime,
	}, nil
}

func (m *metricsImpl) RecordInvocation(ctx context.Context, meta InvocationMeta, duration time.Duration, outcome string) {
	attrs := append(meta.attributes(), attribute.String("outcome", outcome))
	opt := metric.WithAttributes(attrs...)
	m.invocations.Add(ctx, 1, opt)
	m.invokeLatency.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordTokenRefresh(ctx context.Context, duration time.Duration, outcome string) {
	opt := metric.WithAttributes(attribute.String("outcome", outcome))
	m.refreshes.Add(ctx, 1, opt)
	m.refreshTime.Record(ctx, float64(duration.Microseconds())/1000, opt)
}
