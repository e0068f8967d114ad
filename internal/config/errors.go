package config

import "errors"

var (
	// ErrMissingAPIBaseURL indicates that the upstream API base URL is empty
	ErrMissingAPIBaseURL = errors.New("EFFECT_PATTERNS_API_URL is required")

	// ErrInvalidAPIBaseURL indicates that the upstream API base URL does not parse
	ErrInvalidAPIBaseURL = errors.New("EFFECT_PATTERNS_API_URL is not a valid URL")

	// ErrInvalidTokenAuthMethod indicates an unsupported token endpoint auth method
	ErrInvalidTokenAuthMethod = errors.New("MCP_OAUTH_TOKEN_AUTH_METHOD must be none, client_secret_basic, or client_secret_post")

	// ErrMissingClientSecret indicates secret-based client auth without a secret
	ErrMissingClientSecret = errors.New("MCP_OAUTH_CLIENT_SECRET is required when token auth method is not none")

	// ErrInvalidCapacity indicates a non-positive capacity or timeout setting
	ErrInvalidCapacity = errors.New("capacity and timeout settings must be positive")
)
