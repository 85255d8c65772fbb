// Package observe provides the gateway's telemetry: a structured Logger backed
// by zap, OpenTelemetry tracing and metrics for tool invocations, and the
// exporters that ship them (OTLP, stdout, Prometheus).
//
// Field values under sensitive keys (api_key, token, secret, ...) are
// replaced with "[REDACTED]" before they reach any sink.
package observe
