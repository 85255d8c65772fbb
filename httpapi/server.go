package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/gateway"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/keys"
	"github.com/jonwraymond/toolgate/observe"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// TransportName labels invocations arriving through this package.
const TransportName = "http"

// ErrNoGateway indicates a Config without a Gateway.
var ErrNoGateway = errors.New("httpapi: gateway is required")

// Config configures a Server.
type Config struct {
	// Gateway runs tool calls. Required.
	Gateway *gateway.Gateway

	// Keys enables the /keys routes. Optional.
	Keys *keys.Service

	// Health enables /health, /healthz and /readyz. Optional.
	Health *health.Aggregator

	// Metrics is served at /metrics. Optional.
	Metrics http.Handler

	// Version is reported by /health.
	Version string

	// APIKeyHeader names the header advertised in WWW-Authenticate.
	// Default: auth.DefaultAPIKeyHeader
	APIKeyHeader string

	// Bearer advertises the Bearer scheme as well, for gateways that accept
	// JWT or introspected tokens.
	Bearer bool

	// MaxBodyBytes caps request bodies.
	// Default: DefaultMaxBodyBytes
	MaxBodyBytes int64

	// Logger receives request logs.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Server is the HTTP front end of a Gateway.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: handler failures are rendered as ErrorBody; panics become 500.
type Server struct {
	gw        *gateway.Gateway
	keys      *keys.Service
	mux       *http.ServeMux
	maxBody   int64
	challenge string
	logger    observe.Logger
}

// New creates a Server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, ErrNoGateway
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	s := &Server{
		gw:        cfg.Gateway,
		keys:      cfg.Keys,
		mux:       http.NewServeMux(),
		maxBody:   cfg.MaxBodyBytes,
		challenge: auth.Challenge(cfg.APIKeyHeader, cfg.Bearer),
		logger:    cfg.Logger,
	}

	s.mux.HandleFunc("GET /tools", s.handleListTools)
	s.mux.HandleFunc("POST /tools/call", s.handleCallTool)
	if s.keys != nil {
		s.mux.HandleFunc("GET /keys", s.handleListKeys)
		s.mux.HandleFunc("POST /keys", s.handleCreateKey)
		s.mux.HandleFunc("GET /keys/{id}", s.handleGetKey)
		s.mux.HandleFunc("DELETE /keys/{id}", s.handleRevokeKey)
	}
	if cfg.Health != nil {
		health.RegisterHandlers(s.mux, cfg.Health, cfg.Version)
	}
	if cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", cfg.Metrics)
	}
	return s, nil
}

// Mount adds an extra handler, such as the MCP endpoint, under pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(r.Context(), "http handler panicked", logFields(r, "panic", fmt.Sprint(rec))...)
			if !rw.wrote {
				writeJSON(rw, http.StatusInternalServerError, ErrorBody{Error: "internal error", Kind: gateway.KindInternal})
			}
		}
		s.logger.Debug(r.Context(), "http request",
			append(logFields(r, "status", rw.status), observe.F("duration_ms", time.Since(start).Milliseconds()))...)
	}()
	s.mux.ServeHTTP(rw, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status, r.wrote = code, true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

// Flush lets streaming handlers mounted on the server flush through the
// recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		r.wrote = true
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logFields(r *http.Request, key string, value any) []observe.Field {
	return []observe.Field{
		observe.F("method", r.Method),
		observe.F("path", r.URL.Path),
		observe.F(key, value),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}
