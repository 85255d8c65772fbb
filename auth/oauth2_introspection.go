package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuth2Config configures the RFC 7662 token introspection authenticator.
type OAuth2Config struct {
	// IntrospectionEndpoint is the URL of the introspection endpoint.
	IntrospectionEndpoint string

	// ClientID authenticates this server to the endpoint.
	ClientID string

	// ClientSecret authenticates this server to the endpoint.
	ClientSecret string

	// ClientAuthMethod is "client_secret_basic" (default) or
	// "client_secret_post".
	ClientAuthMethod string

	// CacheTTL caps how long an active result is reused. A token's own
	// exp always wins when it is sooner. Negative disables caching.
	// Default: 5 minutes
	CacheTTL time.Duration

	// Timeout bounds each introspection call.
	// Default: 10 seconds
	Timeout time.Duration

	// PrincipalClaim is the claim containing the caller principal.
	// Default: "sub"
	PrincipalClaim string

	// RolesClaim is the claim containing caller roles. Optional.
	RolesClaim string

	// ScopesClaim is the claim whose scopes become permissions.
	// Default: "scope"
	ScopesClaim string

	// HTTPClient is the HTTP client to use. Default: http.DefaultClient
	HTTPClient *http.Client
}

// OAuth2IntrospectionAuthenticator validates opaque bearer tokens by asking
// the authorization server.
type OAuth2IntrospectionAuthenticator struct {
	config OAuth2Config
	cache  *introspectionCache
}

// NewOAuth2IntrospectionAuthenticator creates a new introspection authenticator.
func NewOAuth2IntrospectionAuthenticator(config OAuth2Config) *OAuth2IntrospectionAuthenticator {
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.PrincipalClaim == "" {
		config.PrincipalClaim = "sub"
	}
	if config.ScopesClaim == "" {
		config.ScopesClaim = "scope"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &OAuth2IntrospectionAuthenticator{
		config: config,
		cache:  &introspectionCache{entries: make(map[string]introspectionEntry)},
	}
}

// Name returns "oauth2_introspection".
func (a *OAuth2IntrospectionAuthenticator) Name() string {
	return "oauth2_introspection"
}

// Supports returns true if the request contains a Bearer token.
func (a *OAuth2IntrospectionAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	_, ok := extractBearerToken(req.GetHeader("Authorization"))
	return ok
}

// Authenticate validates the token via introspection.
func (a *OAuth2IntrospectionAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	token, ok := extractBearerToken(req.GetHeader("Authorization"))
	if !ok {
		return AuthFailure(ErrMissingCredentials, a.Name()), nil
	}

	cacheKey := tokenDigest(token)
	if identity := a.cache.get(cacheKey, time.Now()); identity != nil {
		return AuthSuccess(identity), nil
	}

	claims, err := a.introspect(ctx, token)
	if err != nil {
		return nil, err
	}
	if active, _ := claims["active"].(bool); !active {
		return AuthFailure(ErrTokenInactive, a.Name()), nil
	}

	identity := a.buildIdentity(claims)
	if identity.IsExpired() {
		return AuthFailure(ErrTokenExpired, a.Name()), nil
	}
	if a.config.CacheTTL > 0 {
		until := time.Now().Add(a.config.CacheTTL)
		if !identity.ExpiresAt.IsZero() && identity.ExpiresAt.Before(until) {
			until = identity.ExpiresAt
		}
		a.cache.set(cacheKey, identity, until)
	}
	return AuthSuccess(identity), nil
}

func (a *OAuth2IntrospectionAuthenticator) introspect(ctx context.Context, token string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	if a.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", a.config.ClientID)
		form.Set("client_secret", a.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrIntrospectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if a.config.ClientAuthMethod == "client_secret_basic" {
		req.SetBasicAuth(url.QueryEscape(a.config.ClientID), url.QueryEscape(a.config.ClientSecret))
	}

	resp, err := a.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntrospectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrIntrospectionFailed, resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrIntrospectionFailed, err)
	}
	return claims, nil
}

func (a *OAuth2IntrospectionAuthenticator) buildIdentity(claims map[string]any) *Identity {
	identity := &Identity{
		Method: AuthMethodOAuth2,
		Claims: claims,
	}
	if principal, ok := claims[a.config.PrincipalClaim].(string); ok {
		identity.Principal = principal
		identity.Name = principal
	}
	if identity.Principal == "" {
		// Client-credential tokens often carry no subject.
		if clientID, ok := claims["client_id"].(string); ok {
			identity.Principal = clientID
			identity.Name = clientID
		}
	}
	if a.config.RolesClaim != "" {
		identity.Roles = stringList(claims[a.config.RolesClaim])
	}
	identity.Permissions = scopeList(claims[a.config.ScopesClaim])
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		identity.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if iat, ok := claims["iat"].(float64); ok && iat > 0 {
		identity.IssuedAt = time.Unix(int64(iat), 0)
	}
	return identity
}

// tokenDigest keys the cache without retaining raw tokens.
func tokenDigest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// introspectionCache holds positive results only.
type introspectionCache struct {
	mu      sync.Mutex
	entries map[string]introspectionEntry
}

type introspectionEntry struct {
	identity *Identity
	until    time.Time
}

func (c *introspectionCache) get(key string, now time.Time) *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(entry.until) {
		delete(c.entries, key)
		return nil
	}
	return entry.identity
}

func (c *introspectionCache) set(key string, identity *Identity, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if !now.Before(e.until) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = introspectionEntry{identity: identity, until: until}
}

// Ensure OAuth2IntrospectionAuthenticator implements Authenticator
var _ Authenticator = (*OAuth2IntrospectionAuthenticator)(nil)
