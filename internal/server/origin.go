package server

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// localOrigins are always allowed, matching the hosts a local MCP client
// or inspector runs on.
var localOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"https://localhost:3000",
	"https://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
	"https://127.0.0.1:3000",
	"https://127.0.0.1:3001",
}

// allowedOrigin checks the Origin header against the allow-list, guarding
// /mcp against DNS rebinding. Requests without an Origin header (curl,
// stdio bridges, server-to-server) are allowed.
func (g *Gateway) allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	origin = strings.TrimSuffix(origin, "/")

	for _, allowed := range localOrigins {
		if origin == allowed {
			return true
		}
	}

	if g.cfg.Production() {
		for _, allowed := range g.productionOrigins() {
			if origin == allowed {
				return true
			}
		}
	}

	log.Warn().
		Str("origin", origin).
		Msg("origin not in allowlist")
	return false
}

// productionOrigins extends the allow-list with the gateway's public URL
// and the hosted frontend.
func (g *Gateway) productionOrigins() []string {
	origins := []string{"https://effect-patterns.com"}
	if u, err := url.Parse(g.cfg.PublicURL); err == nil && u.Scheme != "" && u.Host != "" {
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return origins
}
