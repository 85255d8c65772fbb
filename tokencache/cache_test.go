package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolgate/resilience"
)

// countingSource issues tok-1, tok-2, ... each valid for ttl.
type countingSource struct {
	calls atomic.Int32
	ttl   time.Duration
	delay time.Duration
	err   error
	now   func() time.Time
	block chan struct{}
}

func (s *countingSource) Fetch(ctx context.Context) (*Token, error) {
	n := s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return &Token{AccessToken: fmt.Sprintf("tok-%d", n), TokenType: "bearer", ExpiresAt: now().Add(s.ttl)}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCache_ConcurrentCallersShareOneRefresh(t *testing.T) {
	src := &countingSource{ttl: time.Hour, delay: 50 * time.Millisecond}
	c := New(src, Config{})

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.Token(context.Background())
			errs[i] = err
			if tok != nil {
				tokens[i] = tok.AccessToken
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), src.calls.Load(), "upstream requests")
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
	assert.Equal(t, StateValid, c.State())
}

func TestCache_SafetyMargin(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	src := &countingSource{ttl: 10 * time.Minute, now: clk.Now}
	c := New(src, Config{Now: clk.Now})

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)

	clk.Advance(4 * time.Minute)
	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken, "served from cache outside the margin")
	assert.True(t, c.Valid())

	clk.Advance(time.Minute + time.Second)
	assert.False(t, c.Valid())
	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken, "refreshed inside the margin")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCache_FailureLeavesCacheEmpty(t *testing.T) {
	src := &countingSource{ttl: time.Hour, err: &AcquisitionError{StatusCode: 401, Message: "invalid_client"}}
	c := New(src, Config{})

	tok, err := c.Token(context.Background())
	require.Error(t, err)
	assert.Nil(t, tok)
	assert.ErrorIs(t, err, ErrTokenAcquisition)

	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 401, ae.StatusCode)
	assert.Equal(t, StateEmpty, c.State())

	_, err = c.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "each caller decides to retry; no hidden loop")
}

func TestCache_PlainSourceErrorsAreWrapped(t *testing.T) {
	c := New(&countingSource{err: errors.New("dial tcp: refused")}, Config{})
	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenAcquisition)
}

func TestCache_RejectsEmptyAndExpiredTokens(t *testing.T) {
	tests := []struct {
		name string
		tok  *Token
	}{
		{name: "empty", tok: &Token{ExpiresAt: time.Now().Add(time.Hour)}},
		{name: "expired", tok: &Token{AccessToken: "x", ExpiresAt: time.Now().Add(-time.Second)}},
		{name: "nil", tok: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(SourceFunc(func(context.Context) (*Token, error) { return tt.tok, nil }), Config{})
			_, err := c.Token(context.Background())
			assert.ErrorIs(t, err, ErrTokenAcquisition)
			assert.Equal(t, StateEmpty, c.State())
		})
	}
}

func TestCache_WaiterHonoursOwnContext(t *testing.T) {
	src := &countingSource{ttl: time.Hour, block: make(chan struct{})}
	c := New(src, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared refresh keeps running for other callers.
	assert.Eventually(t, func() bool { return c.State() == StateRequesting }, time.Second, time.Millisecond)
	close(src.block)
	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
}

func TestCache_FetchTimeout(t *testing.T) {
	src := &countingSource{ttl: time.Hour, block: make(chan struct{})}
	c := New(src, Config{FetchTimeout: 20 * time.Millisecond})

	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenAcquisition)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_ForceRefreshAndInvalidate(t *testing.T) {
	src := &countingSource{ttl: time.Hour}
	c := New(src, Config{})

	tok, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)

	tok, err = c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)

	s, err := c.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", s)

	c.Invalidate()
	assert.False(t, c.Valid())
	assert.Equal(t, StateEmpty, c.State())
}

func TestCache_RejectedSkipsRotatedToken(t *testing.T) {
	src := &countingSource{ttl: time.Hour}
	c := New(src, Config{})

	first, err := c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", first.AccessToken)

	tok, err := c.Rejected(context.Background(), first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)

	// A late 401 for tok-1 must not rotate tok-2 away.
	tok, err = c.Rejected(context.Background(), first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)
	assert.Equal(t, int32(2), src.calls.Load())

	tok, err = c.Rejected(context.Background(), "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", tok.AccessToken)
}

func TestCache_BreakerFailsFast(t *testing.T) {
	src := &countingSource{err: &AcquisitionError{StatusCode: 503, Message: "unavailable"}}
	c := New(src, Config{Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})})

	for range 2 {
		_, _ = c.Token(context.Background())
	}
	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenAcquisition)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "requesting", StateRequesting.String())
	assert.Equal(t, "valid", StateValid.String())
}
