package auth

import (
	"context"
	"net/textproto"
)

// Authenticator turns the credential in a request into an Identity.
//
// A rejected credential is reported as a result with Authenticated false.
// A non-nil error means the check itself could not run, for example a
// store or JWKS endpoint was unreachable. Implementations are shared by
// concurrent invocations.
type Authenticator interface {
	Name() string

	// Supports reports whether req carries a credential this
	// authenticator understands. It must not do I/O.
	Supports(ctx context.Context, req *AuthRequest) bool

	Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// AuthRequest carries the credential-bearing parts of an inbound request.
type AuthRequest struct {
	// Headers contains request headers (Authorization, X-API-Key, ...).
	Headers map[string][]string

	// Resource is the target resource, when known.
	Resource string
}

// GetHeader returns the first value for a header, or empty string.
// Lookup falls back to the canonical MIME form so callers may pass either
// raw maps or http.Header values.
func (r *AuthRequest) GetHeader(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	values, ok := r.Headers[key]
	if !ok {
		values = r.Headers[textproto.CanonicalMIMEHeaderKey(key)]
	}
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// AuthResult is the outcome of one authentication attempt. Identity is
// set on success and Error on failure.
type AuthResult struct {
	Authenticated bool
	Identity      *Identity
	Error         error
	Method        string
}

// AuthSuccess wraps identity in an authenticated result.
func AuthSuccess(identity *Identity) *AuthResult {
	return &AuthResult{
		Authenticated: true,
		Identity:      identity,
		Method:        string(identity.Method),
	}
}

// AuthFailure records a rejected credential.
func AuthFailure(err error, method string) *AuthResult {
	return &AuthResult{
		Authenticated: false,
		Error:         err,
		Method:        method,
	}
}

// AuthenticatorFunc builds an Authenticator from closures. Tests use it
// to stand in for the JWT and introspection backends.
type AuthenticatorFunc struct {
	name     string
	supports func(ctx context.Context, req *AuthRequest) bool
	auth     func(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// NewAuthenticatorFunc creates an AuthenticatorFunc. A nil supports
// function accepts every request.
func NewAuthenticatorFunc(
	name string,
	supports func(ctx context.Context, req *AuthRequest) bool,
	auth func(ctx context.Context, req *AuthRequest) (*AuthResult, error),
) *AuthenticatorFunc {
	if supports == nil {
		supports = func(context.Context, *AuthRequest) bool { return true }
	}
	return &AuthenticatorFunc{name: name, supports: supports, auth: auth}
}

func (f *AuthenticatorFunc) Name() string { return f.name }

func (f *AuthenticatorFunc) Supports(ctx context.Context, req *AuthRequest) bool {
	return f.supports(ctx, req)
}

func (f *AuthenticatorFunc) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	return f.auth(ctx, req)
}

var _ Authenticator = (*AuthenticatorFunc)(nil)
