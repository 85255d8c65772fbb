package observe

import "errors"

var (
	// ErrMissingServiceName indicates Config.ServiceName is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSamplePct indicates a sample ratio outside [0, 1].
	ErrInvalidSamplePct = errors.New("observe: sample ratio must be within [0, 1]")

	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")
)

// Names accepted by Config.Validate. An empty exporter means none and an
// empty level means info.
var (
	TracingExporters = []string{"none", "stdout", "otlp"}
	MetricsExporters = []string{"none", "stdout", "otlp", "prometheus"}
	LogLevels        = []string{"debug", "info", "warn", "error"}
)
