package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/toolgate/keystore"
)

// DefaultAPIKeyHeader is the header checked by APIKeyAuthenticator.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName is the header containing the API key.
	// Default: "X-API-Key"
	HeaderName string

	// LookupTimeout bounds each store lookup. The authenticator stops
	// waiting at the deadline even when the store cannot abandon work in
	// progress; a bolt transaction, for one, only checks its context
	// before it starts and runs to completion in the background.
	// Default: 2 seconds
	LookupTimeout time.Duration

	// Recorder receives a touch after every successful authentication.
	// Optional.
	Recorder LastUsedRecorder

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// LastUsedRecorder records successful key use.
//
// Contract:
// - Touch must not block and must not fail the authentication it follows.
type LastUsedRecorder interface {
	Touch(keyID string, at time.Time)
}

// APIKeyAuthenticator validates static API keys against a keystore.Store.
type APIKeyAuthenticator struct {
	config APIKeyConfig
	store  keystore.Store
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(config APIKeyConfig, store keystore.Store) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyHeader
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 2 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &APIKeyAuthenticator{config: config, store: store}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return "api_key"
}

// HeaderName returns the header this authenticator reads.
func (a *APIKeyAuthenticator) HeaderName() string {
	return a.config.HeaderName
}

// Supports returns true if the request contains an API key header.
func (a *APIKeyAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.config.HeaderName) != ""
}

// Authenticate validates the API key.
//
// Outcomes:
//   - missing header: ErrMissingCredentials
//   - unknown key: ErrInvalidCredentials
//   - revoked key: ErrKeyRevoked
//   - lookup deadline: ErrLookupTimeout
//   - store failure: (nil, error)
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	apiKey := strings.TrimSpace(req.GetHeader(a.config.HeaderName))
	if apiKey == "" {
		return AuthFailure(ErrMissingCredentials, a.Name()), nil
	}

	rec, err := a.lookup(ctx, HashAPIKey(apiKey))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return AuthFailure(ErrLookupTimeout, a.Name()), nil
		}
		return nil, fmt.Errorf("auth: api key lookup: %w", err)
	}
	if rec == nil {
		return AuthFailure(ErrInvalidCredentials, a.Name()), nil
	}
	if !rec.IsActive {
		return AuthFailure(ErrKeyRevoked, a.Name()), nil
	}

	now := a.config.Now()
	if a.config.Recorder != nil {
		a.config.Recorder.Touch(rec.ID, now)
	}

	return AuthSuccess(&Identity{
		Principal:   rec.ID,
		Name:        rec.Name,
		KeyID:       rec.ID,
		Permissions: slices.Clone(rec.Permissions),
		Method:      AuthMethodAPIKey,
		IssuedAt:    rec.CreatedAt,
	}), nil
}

type lookupResult struct {
	rec *keystore.Record
	err error
}

// lookup queries the store under LookupTimeout and returns at the
// deadline whether or not the store has answered.
func (a *APIKeyAuthenticator) lookup(ctx context.Context, hash string) (*keystore.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.LookupTimeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		rec, err := a.store.Lookup(ctx, hash)
		done <- lookupResult{rec: rec, err: err}
	}()
	select {
	case res := <-done:
		return res.rec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HashAPIKey returns the hex SHA-256 digest stored for a raw key.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Ensure APIKeyAuthenticator implements Authenticator
var _ Authenticator = (*APIKeyAuthenticator)(nil)
