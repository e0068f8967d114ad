package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(ServerConfig{
		Issuer:          "http://localhost:3001",
		ClientID:        "effect-patterns-mcp",
		TokenAuthMethod: AuthMethodNone,
		RedirectURIs:    []string{"http://localhost:3000/callback"},
		SupportedScopes: []string{"mcp:access", "patterns:read"},
		MaxSessions:     100,
		MaxAuthCodes:    100,
	})
}

// authorize drives GET /auth and returns the issued code.
func authorize(t *testing.T, s *Server, verifier, state string) string {
	t.Helper()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", "effect-patterns-mcp")
	q.Set("redirect_uri", "http://localhost:3000/callback")
	q.Set("code_challenge", ComputeChallenge(verifier))
	q.Set("code_challenge_method", "S256")
	if state != "" {
		q.Set("state", state)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	s.HandleAuthorize(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, want 302 (body: %s)", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	if errCode := loc.Query().Get("error"); errCode != "" {
		t.Fatalf("authorize redirected with error=%s", errCode)
	}
	if state != "" && loc.Query().Get("state") != state {
		t.Fatalf("state = %q, want %q", loc.Query().Get("state"), state)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatal("authorize redirect missing code")
	}
	return code
}

func redeem(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.HandleToken(rec, req)
	return rec
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
}

func TestAuthorizationCodeFlow(t *testing.T) {
	s := newTestServer(t)
	code := authorize(t, s, "verifier123", "xyz")

	rec := redeem(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"verifier123"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad token response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("token response missing tokens")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
	if resp.Scope != "mcp:access patterns:read" {
		t.Errorf("scope = %q, want default scopes", resp.Scope)
	}

	// The access token validates as a bearer credential.
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	sess := s.ValidateBearer(req)
	if sess == nil {
		t.Fatal("issued access token did not validate")
	}
	if sess.ClientID != "effect-patterns-mcp" {
		t.Errorf("session clientId = %q", sess.ClientID)
	}
}

func TestToken_PKCEMismatch(t *testing.T) {
	s := newTestServer(t)
	code := authorize(t, s, "verifier123", "")

	rec := redeem(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"wrong"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp tokenResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "invalid_grant" {
		t.Errorf("error = %q, want invalid_grant", resp.Error)
	}
}

func TestToken_CodeSingleUse(t *testing.T) {
	s := newTestServer(t)
	code := authorize(t, s, "verifier123", "")

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"verifier123"},
	}
	if rec := redeem(t, s, form); rec.Code != http.StatusOK {
		t.Fatalf("first redemption status = %d", rec.Code)
	}
	rec := redeem(t, s, form)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second redemption status = %d, want 400", rec.Code)
	}
}

func TestToken_ExpiredCode(t *testing.T) {
	s := newTestServer(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.store.now = func() time.Time { return clock }

	code := authorize(t, s, "verifier123", "")
	clock = clock.Add(61 * time.Second)

	rec := redeem(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"verifier123"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for expired code", rec.Code)
	}
}

func TestToken_RedirectURIMismatch(t *testing.T) {
	s := newTestServer(t)
	code := authorize(t, s, "verifier123", "")

	rec := redeem(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/other"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"verifier123"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for redirect mismatch", rec.Code)
	}
}

func TestRefreshGrant_RotatesAndPreservesScopes(t *testing.T) {
	s := newTestServer(t)
	code := authorize(t, s, "verifier123", "")

	rec := redeem(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
		"client_id":     {"effect-patterns-mcp"},
		"code_verifier": {"verifier123"},
	})
	var first tokenResponse
	json.Unmarshal(rec.Body.Bytes(), &first)

	rec = redeem(t, s, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {"effect-patterns-mcp"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}
	var second tokenResponse
	json.Unmarshal(rec.Body.Bytes(), &second)

	if second.AccessToken == first.AccessToken {
		t.Error("refresh did not rotate the access token")
	}
	if second.Scope != first.Scope {
		t.Errorf("scope changed across refresh: %q -> %q", first.Scope, second.Scope)
	}

	// The old refresh token is dead after rotation.
	rec = redeem(t, s, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {"effect-patterns-mcp"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reused refresh token status = %d, want 400", rec.Code)
	}

	// The old access token no longer validates.
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+first.AccessToken)
	if s.ValidateBearer(req) != nil {
		t.Error("rotated-away access token still validates")
	}
}

func TestAuthorize_Failures(t *testing.T) {
	s := newTestServer(t)

	base := url.Values{}
	base.Set("response_type", "code")
	base.Set("client_id", "effect-patterns-mcp")
	base.Set("redirect_uri", "http://localhost:3000/callback")
	base.Set("code_challenge", ComputeChallenge("v"))
	base.Set("code_challenge_method", "S256")

	tests := []struct {
		name         string
		mutate       func(url.Values)
		wantStatus   int
		wantRedirect string // expected error param when redirected
	}{
		{
			name:       "unknown client",
			mutate:     func(q url.Values) { q.Set("client_id", "nope") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unregistered redirect",
			mutate:     func(q url.Values) { q.Set("redirect_uri", "http://evil.example/cb") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "wrong response type",
			mutate:       func(q url.Values) { q.Set("response_type", "token") },
			wantStatus:   http.StatusFound,
			wantRedirect: "unsupported_response_type",
		},
		{
			name:         "missing challenge",
			mutate:       func(q url.Values) { q.Del("code_challenge") },
			wantStatus:   http.StatusFound,
			wantRedirect: "invalid_request",
		},
		{
			name:         "plain challenge method",
			mutate:       func(q url.Values) { q.Set("code_challenge_method", "plain") },
			wantStatus:   http.StatusFound,
			wantRedirect: "invalid_request",
		},
		{
			name:         "unsupported scope",
			mutate:       func(q url.Values) { q.Set("scope", "admin:everything") },
			wantStatus:   http.StatusFound,
			wantRedirect: "invalid_scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			for k, v := range base {
				q[k] = append([]string(nil), v...)
			}
			tt.mutate(q)

			req := httptest.NewRequest(http.MethodGet, "/auth?"+q.Encode(), nil)
			rec := httptest.NewRecorder()
			s.HandleAuthorize(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantRedirect != "" {
				loc, _ := url.Parse(rec.Header().Get("Location"))
				if got := loc.Query().Get("error"); got != tt.wantRedirect {
					t.Errorf("redirect error = %q, want %q", got, tt.wantRedirect)
				}
			}
		})
	}
}

func TestToken_ClientSecretAuth(t *testing.T) {
	mk := func(method string) *Server {
		return NewServer(ServerConfig{
			Issuer:          "http://localhost:3001",
			ClientID:        "effect-patterns-mcp",
			ClientSecret:    "s3cret",
			TokenAuthMethod: method,
			RedirectURIs:    []string{"http://localhost:3000/callback"},
			MaxSessions:     10,
			MaxAuthCodes:    10,
		})
	}

	t.Run("client_secret_post accepted", func(t *testing.T) {
		s := mk(AuthMethodPost)
		code := authorize(t, s, "verifier123", "")
		rec := redeem(t, s, url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {"http://localhost:3000/callback"},
			"client_id":     {"effect-patterns-mcp"},
			"client_secret": {"s3cret"},
			"code_verifier": {"verifier123"},
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("client_secret_post wrong secret", func(t *testing.T) {
		s := mk(AuthMethodPost)
		code := authorize(t, s, "verifier123", "")
		rec := redeem(t, s, url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {"http://localhost:3000/callback"},
			"client_id":     {"effect-patterns-mcp"},
			"client_secret": {"wrong"},
			"code_verifier": {"verifier123"},
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("client_secret_basic accepted", func(t *testing.T) {
		s := mk(AuthMethodBasic)
		code := authorize(t, s, "verifier123", "")

		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {"http://localhost:3000/callback"},
			"client_id":     {"effect-patterns-mcp"},
			"code_verifier": {"verifier123"},
		}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("effect-patterns-mcp", "s3cret")
		rec := httptest.NewRecorder()
		s.HandleToken(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("client_secret_basic missing header", func(t *testing.T) {
		s := mk(AuthMethodBasic)
		code := authorize(t, s, "verifier123", "")
		rec := redeem(t, s, url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {"http://localhost:3000/callback"},
			"client_id":     {"effect-patterns-mcp"},
			"code_verifier": {"verifier123"},
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestHandleMetadata(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	s.HandleMetadata(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=3600") {
		t.Errorf("Cache-Control = %q, want 1h cacheability", cc)
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("bad metadata: %v", err)
	}
	if doc["issuer"] != "http://localhost:3001" {
		t.Errorf("issuer = %v", doc["issuer"])
	}
	if doc["authorization_endpoint"] != "http://localhost:3001/auth" {
		t.Errorf("authorization_endpoint = %v", doc["authorization_endpoint"])
	}
	if doc["token_endpoint"] != "http://localhost:3001/token" {
		t.Errorf("token_endpoint = %v", doc["token_endpoint"])
	}
	if doc["require_pkce"] != true {
		t.Error("require_pkce missing or false")
	}
	methods, _ := doc["code_challenge_methods_supported"].([]any)
	if len(methods) != 1 || methods[0] != "S256" {
		t.Errorf("code_challenge_methods_supported = %v", methods)
	}
	grants, _ := doc["grant_types_supported"].([]any)
	if len(grants) != 2 {
		t.Errorf("grant_types_supported = %v", grants)
	}
}
