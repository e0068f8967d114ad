package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// TokenAuthMethod values accepted for MCP_OAUTH_TOKEN_AUTH_METHOD
const (
	TokenAuthNone  = "none"
	TokenAuthBasic = "client_secret_basic"
	TokenAuthPost  = "client_secret_post"
)

// Config holds all tuning parameters for the gateway.
// Every value is derived from the environment; constructors receive this
// struct (or a sub-view of it) instead of reading ambient state.
type Config struct {
	// Upstream patterns API
	APIBaseURL string `envconfig:"EFFECT_PATTERNS_API_URL" default:"https://effect-patterns-mcp.vercel.app"`
	APIKey     string `envconfig:"PATTERN_API_KEY"`

	// HTTP listener
	Port      int    `envconfig:"PORT" default:"3001"`
	PublicURL string `envconfig:"MCP_SERVER_PUBLIC_URL"`

	// OAuth 2.1 authorization server
	OAuthClientID     string `envconfig:"MCP_OAUTH_CLIENT_ID" default:"effect-patterns-mcp"`
	OAuthClientSecret string `envconfig:"MCP_OAUTH_CLIENT_SECRET"`
	TokenAuthMethod   string `envconfig:"MCP_OAUTH_TOKEN_AUTH_METHOD" default:"none"`
	MaxSessions       int    `envconfig:"MCP_OAUTH_MAX_SESSIONS" default:"5000"`
	MaxAuthCodes      int    `envconfig:"MCP_OAUTH_MAX_AUTH_CODES" default:"5000"`
	CleanupIntervalMS int    `envconfig:"MCP_OAUTH_CLEANUP_INTERVAL_MS" default:"60000"`

	// Event store
	EventStoreMaxEvents int `envconfig:"MCP_EVENT_STORE_MAX_EVENTS" default:"2000"`
	EventStoreTTLMS     int `envconfig:"MCP_EVENT_STORE_TTL_MS" default:"900000"`

	// Request body limits
	BodyTimeoutMS int   `envconfig:"MCP_POST_BODY_TIMEOUT_MS" default:"30000"`
	MaxBodyBytes  int64 `envconfig:"MCP_POST_MAX_BODY_BYTES" default:"1048576"`

	// Diagnostics
	SSEDropAfterMS int  `envconfig:"MCP_SSE_DROP_AFTER_MS" default:"0"`
	Debug          bool `envconfig:"MCP_DEBUG" default:"false"`

	// Deployment environment ("production" extends the origin allow-list)
	Env string `envconfig:"ENV" default:"dev"`
}

// Load reads configuration from the environment and fills derived defaults.
// Validation is performed by the caller so CLI overrides can be applied first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIBaseURL, c.APIBaseURL)
	}

	switch c.TokenAuthMethod {
	case TokenAuthNone, TokenAuthBasic, TokenAuthPost:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTokenAuthMethod, c.TokenAuthMethod)
	}

	if c.TokenAuthMethod != TokenAuthNone && c.OAuthClientSecret == "" {
		return ErrMissingClientSecret
	}

	if c.MaxSessions <= 0 || c.MaxAuthCodes <= 0 {
		return ErrInvalidCapacity
	}
	if c.EventStoreMaxEvents <= 0 || c.EventStoreTTLMS <= 0 {
		return ErrInvalidCapacity
	}
	if c.MaxBodyBytes <= 0 || c.BodyTimeoutMS <= 0 {
		return ErrInvalidCapacity
	}

	return nil
}

// Production reports whether the production origin allow-list applies.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// CleanupInterval returns the OAuth sweeper interval.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMS) * time.Millisecond
}

// EventStoreTTL returns the event retention window.
func (c *Config) EventStoreTTL() time.Duration {
	return time.Duration(c.EventStoreTTLMS) * time.Millisecond
}

// BodyTimeout returns the hard bound on reading a POST body.
func (c *Config) BodyTimeout() time.Duration {
	return time.Duration(c.BodyTimeoutMS) * time.Millisecond
}

// SSEDropAfter returns the diagnostic forced-drop interval (0 disables it).
func (c *Config) SSEDropAfter() time.Duration {
	return time.Duration(c.SSEDropAfterMS) * time.Millisecond
}

// ListenAddr returns the address for the HTTP listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
