package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodOAuth2 AuthMethod = "oauth2"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Principal uniquely identifies the caller. For API keys it is the key ID.
	Principal string

	// Name is a display label (key name, token subject).
	Name string

	// KeyID is the API key record ID when Method is AuthMethodAPIKey.
	KeyID string

	// Roles are mapped to permissions by PermissionAuthorizer.
	Roles []string

	// Permissions are explicit permission strings, e.g. "tool:*:call".
	Permissions []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// Claims holds raw token claims, if any.
	Claims map[string]any

	// ExpiresAt is when this identity expires (zero = never).
	ExpiresAt time.Time

	// IssuedAt is when the credential was issued.
	IssuedAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasPermission checks for an exact permission string (no wildcard matching).
func (id *Identity) HasPermission(perm string) bool {
	return slices.Contains(id.Permissions, perm)
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(id.ExpiresAt)
}

// String returns a log-safe description of the caller.
func (id *Identity) String() string {
	if id == nil {
		return "<nil>"
	}
	return string(id.Method) + ":" + id.Principal
}
