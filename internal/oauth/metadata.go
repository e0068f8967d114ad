package oauth

import (
	"encoding/json"
	"net/http"
)

// HandleMetadata serves the RFC 8414 authorization server metadata document.
// The document is static per process and cacheable for an hour.
func (s *Server) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	metadata := map[string]any{
		"issuer":                           s.cfg.Issuer,
		"authorization_endpoint":           s.cfg.Issuer + "/auth",
		"token_endpoint":                   s.cfg.Issuer + "/token",
		"response_types_supported":         []string{"code"},
		"grant_types_supported":            []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported": []string{ChallengeMethodS256},
		"require_pkce":                     true,
		"scopes_supported":                 s.cfg.SupportedScopes,
		"token_endpoint_auth_methods_supported": []string{
			AuthMethodNone,
			AuthMethodBasic,
			AuthMethodPost,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	json.NewEncoder(w).Encode(metadata)
}
