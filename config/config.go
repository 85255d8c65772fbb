// Package config loads toolgate configuration from an optional YAML file,
// TOOLGATE_* environment variables and command-line flags, in increasing
// order of precedence.
//
// Keys are snake_case and nest with dots; the environment form replaces
// dots with underscores: server.addr is TOOLGATE_SERVER_ADDR.
//
// Credential-bearing values pass through the secret package, so they may be
// written as ${VAR} or secretref:<provider>:<ref>.
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/keys"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/secret"
	"github.com/jonwraymond/toolgate/tokencache"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOOLGATE"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// Upstream credential schemes.
const (
	UpstreamAuthNone   = "none"
	UpstreamAuthAPIKey = "api_key"
	UpstreamAuthOAuth2 = "oauth2"
)

// Config is the complete gateway configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Keys          KeysConfig          `mapstructure:"keys"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Secrets       SecretsConfig       `mapstructure:"secrets"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`

	// MCPPath mounts the MCP streamable HTTP endpoint. Empty disables it.
	MCPPath string `mapstructure:"mcp_path"`
}

// AuthConfig configures inbound authentication.
type AuthConfig struct {
	APIKeyHeader  string              `mapstructure:"api_key_header"`
	LookupTimeout time.Duration       `mapstructure:"lookup_timeout"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Introspection IntrospectionConfig `mapstructure:"introspection"`
}

// JWTConfig enables bearer JWT authentication. Exactly one of Secret or
// JWKSURL supplies the verification key.
type JWTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	Secret   string `mapstructure:"secret"`
	JWKSURL  string `mapstructure:"jwks_url"`
}

// IntrospectionConfig enables RFC 7662 token introspection.
type IntrospectionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// KeysConfig configures the API key store.
type KeysConfig struct {
	Store string `mapstructure:"store"`
	Path  string `mapstructure:"path"`

	// BootstrapKey, when set, is seeded with full permissions.
	BootstrapKey       string         `mapstructure:"bootstrap_key"`
	Seed               []keys.SeedKey `mapstructure:"seed"`
	DefaultPermissions []string       `mapstructure:"default_permissions"`
}

// GatewayConfig bounds tool invocations.
type GatewayConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`

	// RateLimit is calls per second per principal. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxEntries int           `mapstructure:"max_entries"`
	MaxTTL     time.Duration `mapstructure:"max_ttl"`
}

// UpstreamConfig configures outbound calls made by upstream-backed tools.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Auth    string        `mapstructure:"auth"`

	APIKey       string `mapstructure:"api_key"`
	APIKeyHeader string `mapstructure:"api_key_header"`

	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Scopes       []string      `mapstructure:"scopes"`
	SafetyMargin time.Duration `mapstructure:"safety_margin"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerReset    time.Duration `mapstructure:"breaker_reset"`
}

// ObservabilityConfig configures logs, traces and metrics.
type ObservabilityConfig struct {
	ServiceName     string  `mapstructure:"service_name"`
	LogLevel        string  `mapstructure:"log_level"`
	TracingExporter string  `mapstructure:"tracing_exporter"`
	SamplePct       float64 `mapstructure:"sample_pct"`
	MetricsExporter string  `mapstructure:"metrics_exporter"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	Strict    bool                      `mapstructure:"strict"`
	Providers map[string]map[string]any `mapstructure:"providers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mcp_path", "/mcp")

	v.SetDefault("auth.api_key_header", "X-API-Key")
	v.SetDefault("auth.lookup_timeout", 2*time.Second)
	v.SetDefault("auth.jwt.enabled", false)
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")
	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.jwks_url", "")
	v.SetDefault("auth.introspection.enabled", false)
	v.SetDefault("auth.introspection.endpoint", "")
	v.SetDefault("auth.introspection.client_id", "")
	v.SetDefault("auth.introspection.client_secret", "")
	v.SetDefault("auth.introspection.cache_ttl", 5*time.Minute)

	v.SetDefault("keys.store", StoreMemory)
	v.SetDefault("keys.path", "toolgate.db")
	v.SetDefault("keys.bootstrap_key", "")
	v.SetDefault("keys.default_permissions", keys.DefaultPermissions)

	v.SetDefault("gateway.handler_timeout", 30*time.Second)
	v.SetDefault("gateway.max_concurrent", 64)
	v.SetDefault("gateway.rate_limit", 0.0)
	v.SetDefault("gateway.rate_burst", 10)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.max_ttl", time.Hour)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.auth", UpstreamAuthNone)
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.api_key_header", "X-API-Key")
	v.SetDefault("upstream.token_url", "")
	v.SetDefault("upstream.client_id", "")
	v.SetDefault("upstream.client_secret", "")
	v.SetDefault("upstream.scopes", []string{})
	v.SetDefault("upstream.safety_margin", tokencache.DefaultSafetyMargin)
	v.SetDefault("upstream.fetch_timeout", 10*time.Second)
	v.SetDefault("upstream.breaker_failures", 5)
	v.SetDefault("upstream.breaker_reset", 30*time.Second)

	v.SetDefault("observability.service_name", "toolgate")
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.tracing_exporter", "none")
	v.SetDefault("observability.sample_pct", 1.0)
	v.SetDefault("observability.metrics_exporter", "prometheus")

	v.SetDefault("secrets.strict", true)
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"log-level":     "observability.log_level",
	"store":         "keys.store",
	"store-path":    "keys.path",
	"bootstrap-key": "keys.bootstrap_key",
}

// Load reads configuration. path may be empty to skip the file. Flags in
// flags that were set on the command line override everything else.
func Load(ctx context.Context, path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.resolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets(ctx context.Context) error {
	resolver, err := secret.NewDefaultRegistry().NewResolver(c.Secrets.Strict, c.Secrets.Providers)
	if err != nil {
		return fmt.Errorf("config: secrets: %w", err)
	}
	defer resolver.Close()

	targets := map[string]*string{
		"auth.jwt.secret":                  &c.Auth.JWT.Secret,
		"auth.introspection.client_secret": &c.Auth.Introspection.ClientSecret,
		"keys.bootstrap_key":               &c.Keys.BootstrapKey,
		"upstream.api_key":                 &c.Upstream.APIKey,
		"upstream.client_secret":           &c.Upstream.ClientSecret,
		"upstream.token_url":               &c.Upstream.TokenURL,
		"upstream.base_url":                &c.Upstream.BaseURL,
	}
	for i := range c.Keys.Seed {
		targets[fmt.Sprintf("keys.seed[%d].key", i)] = &c.Keys.Seed[i].Key
	}
	if err := resolver.ResolveInto(ctx, targets); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting joined into one error matching
// ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.MCPPath != "" && !strings.HasPrefix(c.Server.MCPPath, "/") {
		add("server.mcp_path must start with /")
	}

	switch c.Keys.Store {
	case StoreMemory:
	case StoreBolt:
		if c.Keys.Path == "" {
			add("keys.path is required for the bolt store")
		}
	default:
		add("keys.store must be %q or %q, got %q", StoreMemory, StoreBolt, c.Keys.Store)
	}

	if c.Auth.JWT.Enabled && (c.Auth.JWT.Secret == "") == (c.Auth.JWT.JWKSURL == "") {
		add("auth.jwt needs exactly one of secret or jwks_url")
	}
	if c.Auth.Introspection.Enabled && c.Auth.Introspection.Endpoint == "" {
		add("auth.introspection.endpoint is required")
	}

	if c.Gateway.HandlerTimeout <= 0 {
		add("gateway.handler_timeout must be positive")
	}
	if c.Gateway.RateLimit < 0 {
		add("gateway.rate_limit must not be negative")
	}

	switch c.Upstream.Auth {
	case UpstreamAuthNone, "":
	case UpstreamAuthAPIKey:
		if c.Upstream.APIKey == "" {
			add("upstream.api_key is required for api_key auth")
		}
	case UpstreamAuthOAuth2:
		for key, val := range map[string]string{
			"upstream.token_url":     c.Upstream.TokenURL,
			"upstream.client_id":     c.Upstream.ClientID,
			"upstream.client_secret": c.Upstream.ClientSecret,
		} {
			if val == "" {
				add("%s is required for oauth2 auth", key)
			}
		}
	default:
		add("upstream.auth must be none, api_key or oauth2, got %q", c.Upstream.Auth)
	}

	oc := c.ObserveConfig("")
	if err := oc.Validate(); err != nil {
		add("observability: %v", err)
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// ObserveConfig converts the observability section.
func (c *Config) ObserveConfig(version string) observe.Config {
	o := c.Observability
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   o.TracingExporter != "" && o.TracingExporter != "none",
			Exporter:  o.TracingExporter,
			SamplePct: o.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.MetricsExporter != "" && o.MetricsExporter != "none",
			Exporter: o.MetricsExporter,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: o.LogLevel},
	}
}

// ClientCredentials converts the upstream section for the token source.
func (c *Config) ClientCredentials() tokencache.ClientCredentialsConfig {
	return tokencache.ClientCredentialsConfig{
		TokenURL:     c.Upstream.TokenURL,
		ClientID:     c.Upstream.ClientID,
		ClientSecret: c.Upstream.ClientSecret,
		Scopes:       c.Upstream.Scopes,
	}
}

// SeedKeys returns the configured seed keys, with the bootstrap key first.
func (c *Config) SeedKeys() []keys.SeedKey {
	var seeds []keys.SeedKey
	if c.Keys.BootstrapKey != "" {
		seeds = append(seeds, keys.SeedKey{
			Name:        "bootstrap",
			Key:         c.Keys.BootstrapKey,
			Permissions: []string{"tool:*:call", "tool:*:list", "key:*:manage"},
		})
	}
	return append(seeds, c.Keys.Seed...)
}
