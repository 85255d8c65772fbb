package auth

import "errors"

// Sentinel errors for authentication and authorization.
var (
	// Authentication errors
	ErrMissingCredentials  = errors.New("auth: missing credentials")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrKeyRevoked          = errors.New("auth: api key revoked")
	ErrLookupTimeout       = errors.New("auth: credential lookup timed out")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrTokenMalformed      = errors.New("auth: token malformed")
	ErrTokenInactive       = errors.New("auth: token inactive")
	ErrIntrospectionFailed = errors.New("auth: introspection failed")
	ErrKeyNotFound         = errors.New("auth: signing key not found")

	// Authorization errors
	ErrForbidden = errors.New("auth: access denied")

	// Outbound credential errors
	ErrNoCredential = errors.New("auth: no credential available")
)

// IsForbidden reports whether err denies an otherwise identified caller.
// A revoked key is known but no longer allowed, so it is a denial rather
// than an authentication failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrKeyRevoked)
}
