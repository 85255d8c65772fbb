package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/cache"
	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/config"
	"github.com/jonwraymond/toolgate/gateway"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/httpapi"
	"github.com/jonwraymond/toolgate/keys"
	"github.com/jonwraymond/toolgate/keystore"
	"github.com/jonwraymond/toolgate/mcpserver"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/tokencache"
	"github.com/jonwraymond/toolgate/tools"
)

// app is a fully wired gateway process.
type app struct {
	cfg      *config.Config
	log      observe.Logger
	observer observe.Observer
	store    keystore.Store
	recorder *keys.Recorder
	gateway  *gateway.Gateway
	handler  http.Handler
}

// newLogger builds the process logger at the configured level, falling
// back to base.
func newLogger(base *zap.Logger, level string) observe.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(observe.ParseLevel(level))
	z, err := cfg.Build()
	if err != nil {
		return observe.NewZapLogger(base)
	}
	return observe.NewZapLogger(z)
}

func openStore(cfg *config.Config) (keystore.Store, error) {
	switch cfg.Keys.Store {
	case config.StoreBolt:
		store, err := keystore.OpenBoltStore(cfg.Keys.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return keystore.NewMemoryStore(), nil
	}
}

func newApp(ctx context.Context, cfg *config.Config, base *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: newLogger(base, cfg.Observability.LogLevel)}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	obsCfg := cfg.ObserveConfig(version)
	obsCfg.Logging.Enabled = false
	if a.observer, err = observe.NewObserver(ctx, obsCfg); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	metrics, err := observe.NewMetrics(a.observer.Meter())
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.store, err = openStore(cfg); err != nil {
		return nil, fmt.Errorf("key store: %w", err)
	}
	a.recorder = keys.NewRecorder(a.store, keys.RecorderConfig{Logger: a.log})
	keySvc := keys.NewService(a.store, keys.Config{
		DefaultPermissions: cfg.Keys.DefaultPermissions,
		Logger:             a.log,
	})
	seeded, err := keySvc.Seed(ctx, cfg.SeedKeys())
	if err != nil {
		return nil, fmt.Errorf("seed keys: %w", err)
	}
	if seeded > 0 {
		a.log.Info(ctx, "seeded api keys", observe.F("count", seeded))
	}

	agg := health.NewAggregator(health.AggregatorConfig{Logger: a.log})
	agg.Register(health.NewStoreChecker(a.store))
	agg.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	cat := catalog.New()
	upstream, err := a.upstreamTool(metrics, agg)
	if err != nil {
		return nil, err
	}
	if err := tools.Register(cat, upstream); err != nil {
		return nil, err
	}

	a.gateway, err = gateway.New(gateway.Config{
		Catalog:       cat,
		Authenticator: a.authenticator(),
		Executor:      executor(cfg.Gateway),
		Cache:         resultCache(cfg.Cache),
		Observer:      observe.NewMiddleware(observe.NewTracer(a.observer.Tracer()), metrics, a.log, gateway.Classify),
		Logger:        a.log,
	})
	if err != nil {
		return nil, err
	}

	api, err := httpapi.New(httpapi.Config{
		Gateway:      a.gateway,
		Keys:         keySvc,
		Health:       agg,
		Metrics:      a.observer.MetricsHandler(),
		Version:      version,
		APIKeyHeader: cfg.Auth.APIKeyHeader,
		Bearer:       cfg.Auth.JWT.Enabled || cfg.Auth.Introspection.Enabled,
		Logger:       a.log,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Server.MCPPath != "" {
		mcpSrv, err := mcpserver.New(mcpserver.Config{
			Gateway: a.gateway,
			Version: version,
			Path:    cfg.Server.MCPPath,
			Logger:  a.log,
		})
		if err != nil {
			return nil, err
		}
		api.Mount(cfg.Server.MCPPath, mcpSrv)
	}
	a.handler = api
	return a, nil
}

// authenticator chains the API key authenticator with the optional bearer
// token authenticators.
func (a *app) authenticator() auth.Authenticator {
	cfg := a.cfg.Auth
	chain := []auth.Authenticator{
		auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{
			HeaderName:    cfg.APIKeyHeader,
			LookupTimeout: cfg.LookupTimeout,
			Recorder:      a.recorder,
		}, a.store),
	}
	if cfg.JWT.Enabled {
		var provider auth.KeyProvider
		if cfg.JWT.JWKSURL != "" {
			provider = auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: cfg.JWT.JWKSURL})
		} else {
			provider = auth.NewStaticKeyProvider([]byte(cfg.JWT.Secret))
		}
		chain = append(chain, auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		}, provider))
	}
	if cfg.Introspection.Enabled {
		chain = append(chain, auth.NewOAuth2IntrospectionAuthenticator(auth.OAuth2Config{
			IntrospectionEndpoint: cfg.Introspection.Endpoint,
			ClientID:              cfg.Introspection.ClientID,
			ClientSecret:          cfg.Introspection.ClientSecret,
			CacheTTL:              cfg.Introspection.CacheTTL,
		}))
	}
	if len(chain) == 1 {
		return chain[0]
	}
	return auth.NewCompositeAuthenticator(chain...)
}

// upstreamTool configures upstream_get, or returns nil when no upstream is
// configured.
func (a *app) upstreamTool(metrics observe.Metrics, agg *health.Aggregator) (*tools.UpstreamConfig, error) {
	up := a.cfg.Upstream
	if up.BaseURL == "" {
		return nil, nil
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  up.BreakerFailures,
		ResetTimeout: up.BreakerReset,
		IsFailure:    tools.IsUpstreamFailure,
		OnStateChange: func(from, to resilience.State) {
			a.log.Warn(context.Background(), "upstream circuit state changed",
				observe.F("from", from.String()),
				observe.F("to", to.String()),
			)
		},
	})
	agg.Register(health.NewBreakerChecker("upstream", breaker))

	var transport http.RoundTripper
	switch up.Auth {
	case config.UpstreamAuthAPIKey:
		transport = &auth.APIKeyTransport{
			Source:     auth.NewStaticKeySource(up.APIKey),
			HeaderName: up.APIKeyHeader,
		}
	case config.UpstreamAuthOAuth2:
		tokens := tokencache.New(tokencache.NewClientCredentialsSource(a.cfg.ClientCredentials()), tokencache.Config{
			SafetyMargin: up.SafetyMargin,
			FetchTimeout: up.FetchTimeout,
			Metrics:      metrics,
			Logger:       a.log,
		})
		agg.Register(health.NewTokenChecker(tokens))
		transport = &tokencache.Transport{Cache: tokens}
	}
	return &tools.UpstreamConfig{
		BaseURL:   up.BaseURL,
		Transport: transport,
		Timeout:   up.Timeout,
		Breaker:   breaker,
	}, nil
}

func executor(cfg config.GatewayConfig) *resilience.Executor {
	opts := []resilience.ExecutorOption{
		resilience.WithBulkhead(resilience.NewBulkhead(cfg.MaxConcurrent, 0)),
		resilience.WithTimeout(cfg.HandlerTimeout),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewKeyedRateLimiter(resilience.KeyedRateLimiterConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateBurst,
		})))
	}
	return resilience.NewExecutor(opts...)
}

func resultCache(cfg config.CacheConfig) *cache.Middleware {
	if !cfg.Enabled {
		return nil
	}
	policy := cache.DefaultPolicy()
	policy.MaxTTL = cfg.MaxTTL
	return cache.NewMiddleware(cache.NewMemoryCache(cfg.MaxEntries), nil, policy, nil)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.observer != nil {
		errs = append(errs, a.observer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
