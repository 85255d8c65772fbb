package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InvocationMeta describes one tool invocation for telemetry purposes.
type InvocationMeta struct {
	Tool      string // Catalog tool name (required)
	Principal string // Authenticated caller (may be empty before authentication)
	Transport string // http, mcp or cli
}

// SpanName returns the deterministic span name for this invocation.
// Format: tool.invoke.<tool>
func (m InvocationMeta) SpanName() string {
	return "tool.invoke." + m.Tool
}

func (m InvocationMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("tool.name", m.Tool)}
	if m.Transport != "" {
		attrs = append(attrs, attribute.String("gateway.transport", m.Transport))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with invocation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a tool invocation.
	StartSpan(ctx context.Context, meta InvocationMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the outcome and any error.
	EndSpan(span trace.Span, outcome string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
// A nil tracer yields a no-op implementation.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("noop")
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta InvocationMeta) (context.Context, trace.Span) {
	attrs := meta.attributes()
	if meta.Principal != "" {
		attrs = append(attrs, attribute.String("gateway.principal", meta.Principal))
	}
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
