package server

import (
	"encoding/json"
	"net/http"
)

// handleInfo serves static server metadata, cacheable for an hour.
func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	json.NewEncoder(w).Encode(map[string]any{
		"name":            ServerName,
		"version":         ServerVersion,
		"protocolVersion": ProtocolVersion,
		"transport":       "streamable-http",
		"endpoints": map[string]string{
			"mcp":       "/mcp",
			"authorize": "/auth",
			"token":     "/token",
			"discovery": "/.well-known/oauth-authorization-server",
			"metrics":   "/metrics",
		},
	})
}

// handleNotFound lists the available endpoints instead of a bare 404.
func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]any{
		"error": "not found",
		"availableEndpoints": []string{
			"POST /mcp",
			"GET /mcp",
			"DELETE /mcp",
			"GET /auth",
			"POST /token",
			"GET /.well-known/oauth-authorization-server",
			"GET /info",
			"GET /metrics",
			"GET /healthz",
		},
	})
}
