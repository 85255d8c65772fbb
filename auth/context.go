package auth

import (
	"context"
	"net/http"
)

type (
	identityKey struct{}
	headersKey  struct{}
)

// WithIdentity attaches the authenticated caller to ctx. The gateway does
// this before a handler runs.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller attached by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// WithHeaders attaches inbound request headers, for transports whose tool
// handlers never see the *http.Request.
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headersKey{}, h)
}

// HeadersFromContext returns the headers attached by WithHeaders, or nil.
func HeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	return h
}

// CredentialFromContext builds an AuthRequest from the headers in ctx. It
// never returns nil; without headers the request carries no credential.
func CredentialFromContext(ctx context.Context) *AuthRequest {
	return &AuthRequest{Headers: HeadersFromContext(ctx)}
}
