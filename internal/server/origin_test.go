package server

import (
	"testing"

	"github.com/effect-patterns/mcp-gateway/internal/config"
)

func TestAllowedOrigin(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		origin string
		want   bool
	}{
		{"no origin header", "dev", "", true},
		{"localhost 3000", "dev", "http://localhost:3000", true},
		{"localhost 3001 https", "dev", "https://localhost:3001", true},
		{"loopback ip", "dev", "http://127.0.0.1:3000", true},
		{"trailing slash", "dev", "http://localhost:3000/", true},
		{"unknown host", "dev", "http://evil.example", false},
		{"public url in dev", "dev", "https://mcp.effect-patterns.com", false},
		{"public url in production", "production", "https://mcp.effect-patterns.com", true},
		{"frontend in production", "production", "https://effect-patterns.com", true},
		{"frontend in dev", "dev", "https://effect-patterns.com", false},
		{"unknown host in production", "production", "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gateway{cfg: &config.Config{
				Env:       tt.env,
				PublicURL: "https://mcp.effect-patterns.com",
			}}
			if got := g.allowedOrigin(tt.origin); got != tt.want {
				t.Errorf("allowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
