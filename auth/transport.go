package auth

import (
	"fmt"
	"net/http"
)

// RequestFromHTTP builds an AuthRequest from an inbound HTTP request.
func RequestFromHTTP(r *http.Request) *AuthRequest {
	return &AuthRequest{
		Headers:  r.Header,
		Resource: r.URL.Path,
	}
}

// Challenge is the WWW-Authenticate value sent with 401 responses. It names
// the API key header and, when bearer tokens are accepted, the Bearer scheme.
func Challenge(apiKeyHeader string, bearer bool) string {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	c := fmt.Sprintf(`APIKey realm="toolgate", header=%q`, apiKeyHeader)
	if bearer {
		c += `, Bearer realm="toolgate"`
	}
	return c
}
