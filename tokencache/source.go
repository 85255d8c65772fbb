package tokencache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Token is an upstream access token.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

func (t *Token) clone() *Token {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Type returns TokenType, defaulting to "Bearer".
func (t *Token) Type() string {
	if t.TokenType == "" || strings.EqualFold(t.TokenType, "bearer") {
		return "Bearer"
	}
	return t.TokenType
}

// Source performs one upstream token request.
//
// Contract:
// - Concurrency: Cache never calls Fetch concurrently with itself.
// - Context: Fetch must honor cancellation/deadlines.
// - Errors: failures should be *AcquisitionError.
type Source interface {
	Fetch(ctx context.Context) (*Token, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Token, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (*Token, error) { return f(ctx) }

// ClientCredentialsConfig configures an OAuth2 client-credentials grant.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// EndpointParams are extra form values sent with the request.
	EndpointParams url.Values

	// AuthInParams sends the client credentials in the form body instead of
	// HTTP basic auth.
	AuthInParams bool

	// DefaultLifetime applies when the response omits expires_in.
	// Default: 1h
	DefaultLifetime time.Duration

	// HTTPClient performs the request.
	// Default: http.DefaultClient
	HTTPClient *http.Client
}

// ClientCredentialsSource fetches tokens with golang.org/x/oauth2.
type ClientCredentialsSource struct {
	cfg      clientcredentials.Config
	client   *http.Client
	lifetime time.Duration
	now      func() time.Time
}

// NewClientCredentialsSource creates a client-credentials Source.
func NewClientCredentialsSource(cfg ClientCredentialsConfig) *ClientCredentialsSource {
	style := oauth2.AuthStyleInHeader
	if cfg.AuthInParams {
		style = oauth2.AuthStyleInParams
	}
	lifetime := cfg.DefaultLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &ClientCredentialsSource{
		cfg: clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			Scopes:         cfg.Scopes,
			EndpointParams: cfg.EndpointParams,
			AuthStyle:      style,
		},
		client:   cfg.HTTPClient,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Fetch requests a new token from the token endpoint.
func (s *ClientCredentialsSource) Fetch(ctx context.Context) (*Token, error) {
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, retrieveError(re)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &AcquisitionError{Message: "token request aborted", Err: ctxErr}
		}
		return nil, &AcquisitionError{Message: "token endpoint unreachable", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &AcquisitionError{Message: "token endpoint returned an empty access token"}
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.lifetime)
	}
	return &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

func retrieveError(re *oauth2.RetrieveError) *AcquisitionError {
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	msg := re.ErrorCode
	if re.ErrorDescription != "" {
		if msg != "" {
			msg += ": "
		}
		msg += re.ErrorDescription
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "token endpoint rejected the request"
	}
	return &AcquisitionError{StatusCode: status, Message: msg}
}

var _ Source = (*ClientCredentialsSource)(nil)
