package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const unauthorizedMessage = "Unauthorized - valid API key or OAuth token required"

// errWrongAPIKey marks a presented API key that failed the constant-time
// compare; it must not fall through to bearer validation.
var errWrongAPIKey = errors.New("invalid api key")

// apiKeyFrom extracts the presented ingress API key from the x-api-key
// header or the key/api_key query parameters.
func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get("x-api-key"); k != "" {
		return k
	}
	q := r.URL.Query()
	if k := q.Get("key"); k != "" {
		return k
	}
	return q.Get("api_key")
}

// authenticate admits a request via the ingress API key or an OAuth bearer
// token, in that order. A presented but non-matching API key is terminal.
func (g *Gateway) authenticate(r *http.Request) (*Principal, error) {
	if apiKey := apiKeyFrom(r); apiKey != "" && g.cfg.APIKey != "" {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.cfg.APIKey)) == 1 {
			return &Principal{Kind: "api_key"}, nil
		}
		log.Warn().Msg("rejected request with non-matching API key")
		return nil, errWrongAPIKey
	}

	if sess := g.oauth.ValidateBearer(r); sess != nil {
		return &Principal{
			Kind:     "oauth",
			ClientID: sess.ClientID,
			Scopes:   sess.Scopes,
		}, nil
	}

	return nil, errors.New("no credential presented")
}

// admit runs the admission checks shared by every /mcp handler: origin,
// then credentials. On success the response carries the protocol version
// and, for OAuth principals, the client id and scopes.
func (g *Gateway) admit(w http.ResponseWriter, r *http.Request) *Principal {
	if !g.allowedOrigin(r.Header.Get("Origin")) {
		g.metrics.Admissions.WithLabelValues("rejected_origin").Inc()
		writeJSONRPCStatus(w, http.StatusForbidden, errorResponse(nil, InvalidRequest, "Origin not allowed", nil))
		return nil
	}

	principal, err := g.authenticate(r)
	if err != nil {
		g.metrics.Admissions.WithLabelValues("rejected_auth").Inc()
		g.writeUnauthorized(w, errors.Is(err, errWrongAPIKey))
		return nil
	}

	g.metrics.Admissions.WithLabelValues("admitted").Inc()
	w.Header().Set("MCP-Protocol-Version", ProtocolVersion)
	if principal.Kind == "oauth" {
		w.Header().Set("X-OAuth-Client-ID", principal.ClientID)
		w.Header().Set("X-OAuth-Scopes", strings.Join(principal.Scopes, " "))
	}
	return principal
}

func (g *Gateway) writeUnauthorized(w http.ResponseWriter, invalidToken bool) {
	challenge := `Bearer realm="MCP Server", resource_metadata="` + g.cfg.PublicURL + `/.well-known/oauth-authorization-server"`
	if invalidToken {
		challenge = `Bearer realm="MCP Server", error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    Unauthorized,
			"message": unauthorizedMessage,
		},
	})
}

func writeJSONRPCStatus(w http.ResponseWriter, status int, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
