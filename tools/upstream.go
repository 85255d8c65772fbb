package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/resilience"
)

// UpstreamGetName is the registered name of the upstream proxy tool.
const UpstreamGetName = "upstream_get"

// DefaultMaxBody caps the upstream response read by upstream_get.
const DefaultMaxBody = 1 << 20

var (
	// ErrNoBaseURL indicates an UpstreamConfig without a usable BaseURL.
	ErrNoBaseURL = errors.New("tools: upstream base URL is required")

	// ErrUpstreamStatus indicates a non-2xx upstream response.
	ErrUpstreamStatus = errors.New("tools: upstream request failed")
)

// UpstreamConfig configures upstream_get.
type UpstreamConfig struct {
	// BaseURL is joined with the path argument. Required.
	BaseURL string

	// Transport authenticates outbound requests, typically a
	// *tokencache.Transport or *auth.APIKeyTransport.
	// Default: http.DefaultTransport
	Transport http.RoundTripper

	// Timeout bounds one request.
	// Default: 15s
	Timeout time.Duration

	// Breaker, when set, fails fast after repeated upstream failures.
	// Configure it with IsUpstreamFailure so caller errors do not count.
	Breaker *resilience.CircuitBreaker

	// MaxBody caps the bytes read from the response.
	// Default: DefaultMaxBody
	MaxBody int64

	// CacheTTL lets the gateway cache results per caller.
	CacheTTL time.Duration
}

type upstream struct {
	base    *url.URL
	client  *http.Client
	breaker *resilience.CircuitBreaker
	maxBody int64
}

// UpstreamGet returns the upstream_get tool.
func UpstreamGet(cfg UpstreamConfig) (catalog.Definition, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return catalog.Definition{}, fmt.Errorf("%w: %q", ErrNoBaseURL, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	u := &upstream{
		base:    base,
		client:  &http.Client{Transport: cfg.Transport, Timeout: cfg.Timeout},
		breaker: cfg.Breaker,
		maxBody: cfg.MaxBody,
	}
	return catalog.Definition{
		Name:        UpstreamGetName,
		Description: "GET a path on the upstream API and return its response body",
		Params: []catalog.Param{
			{Name: "path", Type: catalog.TypeString, Required: true, Description: "Path below the upstream base URL, starting with /"},
			{Name: "query", Type: catalog.TypeString, Description: "Raw query string without the leading ?"},
		},
		CacheTTL: cfg.CacheTTL,
		Tags:     []string{"read-only", "upstream"},
		Handler:  u.get,
	}, nil
}

func (u *upstream) get(ctx context.Context, args catalog.Args) (any, error) {
	target, err := u.resolve(args.String("path"), args.String("query"))
	if err != nil {
		return nil, err
	}
	if u.breaker == nil {
		return u.fetch(ctx, target)
	}
	var out any
	err = u.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = u.fetch(ctx, target)
		return err
	})
	return out, err
}

func (u *upstream) resolve(path, query string) (string, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "", &catalog.ArgumentError{Param: "path", Reason: "must be an absolute path starting with a single /"}
	}
	rel, err := url.Parse(path)
	if err != nil || rel.RawQuery != "" || rel.Fragment != "" {
		return "", &catalog.ArgumentError{Param: "path", Reason: "must not carry a query or fragment"}
	}
	// Segments are checked after percent-decoding so %2e%2e cannot escape
	// the base path.
	if strings.HasPrefix(rel.Path, "//") {
		return "", &catalog.ArgumentError{Param: "path", Reason: "must be an absolute path starting with a single /"}
	}
	for _, seg := range strings.Split(rel.Path, "/") {
		if seg == ".." || seg == "." {
			return "", &catalog.ArgumentError{Param: "path", Reason: "must not contain . or .. segments"}
		}
	}
	if _, err := url.ParseQuery(query); err != nil {
		return "", &catalog.ArgumentError{Param: "query", Reason: err.Error()}
	}
	target := *u.base
	target.Path = u.base.Path + rel.Path
	target.RawQuery = query
	return target.String(), nil
}

func (u *upstream) fetch(ctx context.Context, target string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	return string(body), nil
}

// StatusError reports a non-2xx upstream response. The body is not
// included.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Is reports ErrUpstreamStatus as a match.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}

// IsUpstreamFailure reports whether err should count against an upstream
// circuit breaker. Client errors other than 401 and 429 do not.
func IsUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	return se.StatusCode >= 500 ||
		se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusTooManyRequests
}
