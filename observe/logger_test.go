package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLoggerWithWriter("info", buf)

	l.Info(context.Background(), "key created",
		F("api_key", "tg_supersecret"),
		F("Authorization", "Bearer abc"),
		F("client_secret", "s3cret"),
		F("name", "reporting"),
	)

	if strings.Contains(buf.String(), "tg_supersecret") || strings.Contains(buf.String(), "s3cret") {
		t.Fatalf("secret leaked into log: %s", buf.String())
	}
	entry := decodeLines(t, buf)[0]
	for _, k := range []string{"api_key", "Authorization", "client_secret"} {
		if entry[k] != redacted {
			t.Errorf("%s = %v, want %s", k, entry[k], redacted)
		}
	}
	if entry["name"] != "reporting" {
		t.Errorf("name = %v, want reporting", entry["name"])
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{level: "debug", want: 4},
		{level: "info", want: 3},
		{level: "warn", want: 2},
		{level: "error", want: 1},
		{level: "", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewLoggerWithWriter(tt.level, buf)
			ctx := context.Background()
			l.Debug(ctx, "d")
			l.Info(ctx, "i")
			l.Warn(ctx, "w")
			l.Error(ctx, "e")
			if got := len(decodeLines(t, buf)); got != tt.want {
				t.Errorf("lines = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLogger_WithAndErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLoggerWithWriter("info", buf).With(F("component", "gateway"))
	l.Error(context.Background(), "failed", F("error", errors.New("upstream down")))

	entry := decodeLines(t, buf)[0]
	if entry["component"] != "gateway" {
		t.Errorf("component = %v, want gateway", entry["component"])
	}
	if entry["error"] != "upstream down" {
		t.Errorf("error = %v, want upstream down", entry["error"])
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	buf := &bytes.Buffer{}
	NewLoggerWithWriter("info", buf).Info(ctx, "traced")

	entry := decodeLines(t, buf)[0]
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %v", entry["trace_id"], span.SpanContext().TraceID())
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "ignored", F("token", "x"))
	if l.With(F("a", 1)) == nil {
		t.Error("With() = nil")
	}
}
