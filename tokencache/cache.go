package tokencache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
)

// DefaultSafetyMargin is how long before expiry a token stops being served.
const DefaultSafetyMargin = 5 * time.Minute

// State is the cache lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateRequesting
	StateValid
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateRequesting:
		return "requesting"
	case StateValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Config configures a Cache.
type Config struct {
	// SafetyMargin is subtracted from the token expiry when deciding validity.
	// Default: 5m
	SafetyMargin time.Duration

	// FetchTimeout bounds one upstream request.
	// Default: 10s
	FetchTimeout time.Duration

	// Breaker, when set, fails fast after repeated upstream failures.
	Breaker *resilience.CircuitBreaker

	// Metrics receives one RecordTokenRefresh per upstream request.
	Metrics observe.Metrics

	// Logger receives refresh outcomes.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Cache holds one upstream token and refreshes it on demand.
//
// Contract:
//   - Concurrency: safe for concurrent use; at most one refresh is in flight.
//   - Context: each caller stops waiting when its own ctx ends; the shared
//     refresh is bounded by FetchTimeout instead.
//   - Errors: refresh failures are *AcquisitionError and leave the cache empty.
type Cache struct {
	source  Source
	margin  time.Duration
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics observe.Metrics
	logger  observe.Logger
	now     func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	token *Token
	state State
}

// New creates an empty Cache over source.
func New(source Source, cfg Config) *Cache {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		source:  source,
		margin:  cfg.SafetyMargin,
		timeout: cfg.FetchTimeout,
		breaker: cfg.Breaker,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Token returns the cached token, refreshing it first when it is absent or
// within the safety margin of expiry.
func (c *Cache) Token(ctx context.Context) (*Token, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if c.fresh(tok) {
		return tok.clone(), nil
	}
	return c.refresh(ctx, nil)
}

// ForceRefresh discards the cached token and fetches a new one.
func (c *Cache) ForceRefresh(ctx context.Context) (*Token, error) {
	c.mu.RLock()
	stale := c.token
	c.mu.RUnlock()
	if stale == nil {
		stale = &Token{}
	}
	return c.refresh(ctx, stale)
}

// Rejected replaces a token the upstream refused. When the cache already
// holds a different fresh token, typically because a concurrent caller
// rotated it, that token is returned without a fetch.
func (c *Cache) Rejected(ctx context.Context, accessToken string) (*Token, error) {
	return c.refresh(ctx, &Token{AccessToken: accessToken})
}

// State reports the lifecycle state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Acquire returns the access token string.
func (c *Cache) Acquire(ctx context.Context) (string, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Valid reports whether a token can be served without a refresh.
func (c *Cache) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh(c.token)
}

// Invalidate drops the cached token.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	if c.state == StateValid {
		c.state = StateEmpty
	}
}

func (c *Cache) fresh(tok *Token) bool {
	return tok != nil && c.now().Add(c.margin).Before(tok.ExpiresAt)
}

// refresh joins or starts the single in-flight fetch. A non-nil stale token
// is one the caller saw rejected; when the cache already holds a different
// token the forced fetch is skipped.
func (c *Cache) refresh(ctx context.Context, stale *Token) (*Token, error) {
	ch := c.group.DoChan("token", func() (any, error) {
		c.mu.Lock()
		if cur := c.token; stale != nil && cur != nil && cur.AccessToken != stale.AccessToken && c.fresh(cur) {
			c.mu.Unlock()
			return cur, nil
		}
		if stale == nil && c.fresh(c.token) {
			cur := c.token
			c.mu.Unlock()
			return cur, nil
		}
		c.state = StateRequesting
		c.mu.Unlock()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := c.now()
		tok, err := c.fetch(fctx)
		c.record(fctx, start, err)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.token = nil
			c.state = StateEmpty
			return nil, err
		}
		c.token = tok
		c.state = StateValid
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token).clone(), nil
	}
}

func (c *Cache) fetch(ctx context.Context) (*Token, error) {
	var tok *Token
	op := func(ctx context.Context) error {
		t, err := c.source.Fetch(ctx)
		if err != nil {
			return err
		}
		if t == nil || t.AccessToken == "" {
			return &AcquisitionError{Message: "upstream returned an empty access token"}
		}
		if !c.now().Before(t.ExpiresAt) {
			return &AcquisitionError{Message: "upstream returned an expired token"}
		}
		tok = t.clone()
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return nil, asAcquisitionError(err)
	}
	return tok, nil
}

func (c *Cache) record(ctx context.Context, start time.Time, err error) {
	outcome := observe.OutcomeOK
	if err != nil {
		outcome = observe.OutcomeError
	}
	if c.metrics != nil {
		c.metrics.RecordTokenRefresh(ctx, c.now().Sub(start), outcome)
	}
	if err != nil {
		c.logger.Warn(ctx, "upstream token refresh failed", observe.F("error", err))
		return
	}
	c.logger.Debug(ctx, "upstream token refreshed")
}

var _ auth.CredentialSource = (*Cache)(nil)
