// Package oauth implements the gateway's first-party OAuth 2.1 authorization
// server: the authorization-code flow with mandatory PKCE, refresh token
// rotation, bearer validation, and RFC 8414 discovery. All state is held in
// bounded in-memory tables swept by a periodic cleaner.
package oauth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// AccessTokenLifetime is how long issued access tokens are valid.
	AccessTokenLifetime = time.Hour

	// RefreshTokenLifetime is how long refresh tokens are valid.
	RefreshTokenLifetime = 30 * 24 * time.Hour

	// CodeLifetime bounds the window between authorization and redemption.
	CodeLifetime = 60 * time.Second
)

// Token endpoint client authentication methods.
const (
	AuthMethodNone  = "none"
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
)

// DefaultScopes are granted when an authorization request names none.
var DefaultScopes = []string{"mcp:access", "patterns:read"}

// ServerConfig configures the authorization server.
type ServerConfig struct {
	Issuer          string // public base URL, no trailing slash
	ClientID        string
	ClientSecret    string
	TokenAuthMethod string
	RedirectURIs    []string
	SupportedScopes []string
	MaxSessions     int
	MaxAuthCodes    int
}

// Server is the OAuth 2.1 authorization server.
type Server struct {
	cfg        ServerConfig
	store      *Store
	signingKey []byte
	now        func() time.Time
}

// NewServer creates an authorization server. The token signing key is
// generated per process; tokens do not survive restarts, matching the
// in-memory session table.
func NewServer(cfg ServerConfig) *Server {
	if len(cfg.SupportedScopes) == 0 {
		cfg.SupportedScopes = append([]string(nil), DefaultScopes...)
	}
	return &Server{
		cfg:        cfg,
		store:      NewStore(cfg.MaxSessions, cfg.MaxAuthCodes),
		signingKey: []byte(randomToken(32)),
		now:        time.Now,
	}
}

// Store exposes the underlying session/code store (for the sweeper).
func (s *Server) Store() *Store {
	return s.store
}

// HandleAuthorize implements GET /auth, the authorization endpoint.
// Pre-registered clients are auto-approved; there is no consent screen.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	// client_id and redirect_uri gate whether we may redirect errors at
	// all; an unregistered redirect target gets a plain 400.
	if clientID != s.cfg.ClientID {
		s.authorizeFailJSON(w, "invalid_client", "unknown client_id")
		return
	}
	if !s.redirectRegistered(redirectURI) {
		s.authorizeFailJSON(w, "invalid_request", "redirect_uri is not registered")
		return
	}

	if q.Get("response_type") != "code" {
		s.authorizeRedirectError(w, r, redirectURI, state, "unsupported_response_type", "only response_type=code is supported")
		return
	}

	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	if challenge == "" {
		s.authorizeRedirectError(w, r, redirectURI, state, "invalid_request", "code_challenge is required")
		return
	}
	if method != ChallengeMethodS256 {
		s.authorizeRedirectError(w, r, redirectURI, state, "invalid_request", "code_challenge_method must be S256")
		return
	}

	scopes, ok := s.resolveScopes(q.Get("scope"))
	if !ok {
		s.authorizeRedirectError(w, r, redirectURI, state, "invalid_scope", "requested scope is not supported")
		return
	}

	code := randomToken(32)
	s.store.PutCode(&AuthorizationCode{
		Code:            code,
		ClientID:        clientID,
		RedirectURI:     redirectURI,
		Scopes:          scopes,
		CodeChallenge:   challenge,
		ChallengeMethod: method,
		ExpiresAt:       s.now().Add(CodeLifetime),
	})

	log.Info().
		Str("clientId", clientID).
		Strs("scopes", scopes).
		Msg("issued authorization code")

	target, _ := url.Parse(redirectURI)
	values := target.Query()
	values.Set("code", code)
	if state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// HandleToken implements POST /token for the authorization_code and
// refresh_token grants.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.tokenError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if !s.authenticateClient(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="MCP Server"`)
		s.tokenError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshGrant(w, r)
	default:
		s.tokenError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	code := form.Get("code")
	redirectURI := form.Get("redirect_uri")
	clientID := form.Get("client_id")
	verifier := form.Get("code_verifier")

	if code == "" || redirectURI == "" || clientID == "" || verifier == "" {
		s.tokenError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri, client_id and code_verifier are required")
		return
	}

	// The code is consumed on lookup: a failed redemption burns it.
	ac := s.store.RedeemCode(code)
	if ac == nil {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, or already used")
		return
	}
	if ac.ClientID != clientID {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "authorization code was issued to a different client")
		return
	}
	if ac.RedirectURI != redirectURI {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if !VerifyChallenge(verifier, ac.CodeChallenge) {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.issueTokens(w, ac.ClientID, ac.Scopes)
}

func (s *Server) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	refreshToken := form.Get("refresh_token")
	clientID := form.Get("client_id")

	if refreshToken == "" || clientID == "" {
		s.tokenError(w, http.StatusBadRequest, "invalid_request", "refresh_token and client_id are required")
		return
	}

	sess := s.store.SessionByRefreshToken(refreshToken)
	if sess == nil {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or expired")
		return
	}
	if sess.ClientID != clientID {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "refresh token was issued to a different client")
		return
	}

	// Rotation: the old session (and with it the old refresh token) dies.
	s.store.DeleteSession(sess.AccessToken)
	s.issueTokens(w, sess.ClientID, sess.Scopes)
}

func (s *Server) issueTokens(w http.ResponseWriter, clientID string, scopes []string) {
	now := s.now()

	accessToken, err := s.mintAccessToken(clientID, scopes, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to mint access token")
		s.tokenError(w, http.StatusInternalServerError, "server_error", "failed to issue token")
		return
	}
	refreshToken := randomToken(32)

	s.store.PutSession(&Session{
		ClientID:         clientID,
		Scopes:           scopes,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(AccessTokenLifetime),
		RefreshExpiresAt: now.Add(RefreshTokenLifetime),
		CreatedAt:        now,
	})

	log.Info().
		Str("clientId", clientID).
		Strs("scopes", scopes).
		Msg("issued access token")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(AccessTokenLifetime.Seconds()),
		"refresh_token": refreshToken,
		"scope":         strings.Join(scopes, " "),
	})
}

// ValidateBearer returns the live session for the request's bearer token,
// or nil when the header is absent, malformed, unknown, or expired.
func (s *Server) ValidateBearer(r *http.Request) *Session {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return nil
	}
	return s.store.SessionByAccessToken(token)
}

// authenticateClient enforces the configured token endpoint auth method.
func (s *Server) authenticateClient(r *http.Request) bool {
	switch s.cfg.TokenAuthMethod {
	case AuthMethodBasic:
		id, secret, ok := r.BasicAuth()
		if !ok {
			return false
		}
		return constantTimeEquals(id, s.cfg.ClientID) && constantTimeEquals(secret, s.cfg.ClientSecret)

	case AuthMethodPost:
		id := r.PostForm.Get("client_id")
		secret := r.PostForm.Get("client_secret")
		return constantTimeEquals(id, s.cfg.ClientID) && constantTimeEquals(secret, s.cfg.ClientSecret)

	default: // public client
		return r.PostForm.Get("client_id") == s.cfg.ClientID
	}
}

// resolveScopes parses a space-separated scope string against the supported
// set. An empty request grants every supported scope.
func (s *Server) resolveScopes(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), s.cfg.SupportedScopes...), true
	}
	requested := strings.Fields(raw)
	for _, scope := range requested {
		if !contains(s.cfg.SupportedScopes, scope) {
			return nil, false
		}
	}
	return requested, true
}

func (s *Server) redirectRegistered(uri string) bool {
	if uri == "" {
		return false
	}
	return contains(s.cfg.RedirectURIs, uri)
}

func (s *Server) authorizeFailJSON(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (s *Server) authorizeRedirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		s.authorizeFailJSON(w, "invalid_request", "redirect_uri does not parse")
		return
	}
	values := target.Query()
	values.Set("error", code)
	values.Set("error_description", description)
	if state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) tokenError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
