package auth

import (
	"context"
	"net/http"
	"sync/atomic"
)

// CredentialSource supplies the credential for outbound requests.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Acquire returns a usable credential or an error; never an empty string
//     with a nil error.
//   - Invalidate forces the next Acquire to obtain a fresh credential where the
//     scheme supports it.
type CredentialSource interface {
	Acquire(ctx context.Context) (string, error)
	Valid() bool
	Invalidate()
}

// StaticKeySource is a CredentialSource for a fixed API key.
// Static keys cannot be refreshed; Invalidate marks the key unusable.
type StaticKeySource struct {
	key     string
	revoked atomic.Bool
}

// NewStaticKeySource wraps a raw API key.
func NewStaticKeySource(key string) *StaticKeySource {
	return &StaticKeySource{key: key}
}

// Acquire returns the key.
func (s *StaticKeySource) Acquire(_ context.Context) (string, error) {
	if !s.Valid() {
		return "", ErrNoCredential
	}
	return s.key, nil
}

// Valid reports whether the key is still usable.
func (s *StaticKeySource) Valid() bool {
	return s.key != "" && !s.revoked.Load()
}

// Invalidate marks the key unusable.
func (s *StaticKeySource) Invalidate() {
	s.revoked.Store(true)
}

// APIKeyTransport sets the API key header on outbound requests.
type APIKeyTransport struct {
	// Source supplies the key.
	Source CredentialSource

	// HeaderName defaults to "X-API-Key".
	HeaderName string

	// Base is the underlying transport. Default: http.DefaultTransport
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *APIKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := t.Source.Acquire(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	header := t.HeaderName
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	out := req.Clone(req.Context())
	out.Header.Set(header, key)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

var (
	_ CredentialSource  = (*StaticKeySource)(nil)
	_ http.RoundTripper = (*APIKeyTransport)(nil)
)
