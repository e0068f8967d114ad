package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/effect-patterns/mcp-gateway/internal/client"
	"github.com/effect-patterns/mcp-gateway/internal/config"
	"github.com/effect-patterns/mcp-gateway/internal/eventstore"
	"github.com/effect-patterns/mcp-gateway/internal/oauth"
	"github.com/effect-patterns/mcp-gateway/internal/tools"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const (
	// ProtocolVersion is the MCP protocol revision this gateway speaks.
	ProtocolVersion = client.ProtocolVersion

	// ServerName and ServerVersion identify the gateway in initialize
	// responses and /info.
	ServerName    = "effect-patterns-mcp-gateway"
	ServerVersion = "1.0.0"

	// sessionTTL bounds how long an idle MCP session is kept.
	sessionTTL = 24 * time.Hour
)

// Gateway is the Streamable HTTP MCP server brokering tool calls to the
// Effect Patterns API. It owns all process-wide mutable state: the MCP
// session table, the OAuth server, the event store, and the upstream
// client with its caches.
type Gateway struct {
	cfg      *config.Config
	api      *client.Client
	oauth    *oauth.Server
	sessions *SessionManager
	events   *eventstore.Store
	registry *tools.Registry
	metrics  *Metrics

	httpServer *http.Server
	stop       chan struct{}

	// jsonResponse switches POST /mcp output from SSE to plain JSON.
	jsonResponse bool

	streamMu sync.Mutex
	streams  map[string]*SSEStream // sessionID -> live standalone stream
}

// NewGateway wires the gateway from configuration.
func NewGateway(cfg *config.Config) *Gateway {
	metrics := NewMetrics()

	api := client.New(cfg.APIBaseURL, cfg.APIKey)
	api.SetCacheMetrics(metrics.CacheHits, metrics.CacheMisses)

	oauthServer := oauth.NewServer(oauth.ServerConfig{
		Issuer:          cfg.PublicURL,
		ClientID:        cfg.OAuthClientID,
		ClientSecret:    cfg.OAuthClientSecret,
		TokenAuthMethod: cfg.TokenAuthMethod,
		RedirectURIs:    redirectURIs(cfg),
		MaxSessions:     cfg.MaxSessions,
		MaxAuthCodes:    cfg.MaxAuthCodes,
	})

	registry := tools.NewRegistry()
	tools.RegisterAllTools(registry)

	return &Gateway{
		cfg:      cfg,
		api:      api,
		oauth:    oauthServer,
		sessions: NewSessionManager(sessionTTL),
		events:   eventstore.New(cfg.EventStoreMaxEvents, cfg.EventStoreTTL()),
		registry: registry,
		metrics:  metrics,
		stop:     make(chan struct{}),
		streams:  make(map[string]*SSEStream),
	}
}

// redirectURIs builds the registered OAuth redirect targets: local MCP
// clients always, plus the public callback in production.
func redirectURIs(cfg *config.Config) []string {
	uris := []string{
		"http://localhost:3000/callback",
		"http://localhost:3001/callback",
		"http://127.0.0.1:3000/callback",
		"http://127.0.0.1:3001/callback",
	}
	if cfg.Production() {
		uris = append(uris, cfg.PublicURL+"/callback")
	}
	return uris
}

// Routes builds the HTTP router.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/auth", g.oauth.HandleAuthorize)
	r.Post("/token", g.oauth.HandleToken)
	r.Get("/.well-known/oauth-authorization-server", g.oauth.HandleMetadata)

	r.Post("/mcp", g.handleMCPPost)
	r.Get("/mcp", g.handleMCPGet)
	r.Delete("/mcp", g.handleMCPDelete)

	r.Get("/info", g.handleInfo)
	r.Handle("/metrics", g.metrics.Handler())

	r.NotFound(g.handleNotFound)

	log.Info().Msg("HTTP routes registered")
	return r
}

// Start launches the background sweepers and serves HTTP on addr.
func (g *Gateway) Start(addr string) error {
	g.oauth.Store().StartSweeper(g.cfg.CleanupInterval(), g.stop)
	g.sessions.StartCleanup(g.cfg.CleanupInterval(), g.stop)

	g.httpServer = g.newHTTPServer(addr)

	log.Info().Str("addr", addr).Msg("starting MCP gateway")
	return g.httpServer.ListenAndServe()
}

// newHTTPServer configures the listener. Only header reading gets a
// server-level deadline: the POST body budget belongs to ReadBody, and
// WriteTimeout is intentionally unset so long-lived SSE connections are
// not cut off.
func (g *Gateway) newHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Shutdown stops the sweepers and drains the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	close(g.stop)
	if g.httpServer != nil {
		return g.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleMCPPost handles POST /mcp: admission, body parsing, session
// resolution, and JSON-RPC dispatch with SSE responses.
func (g *Gateway) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	principal := g.admit(w, r)
	if principal == nil {
		return
	}

	body, bodyErr := ReadBody(r, g.cfg.MaxBodyBytes, g.cfg.BodyTimeout())
	if bodyErr == nil {
		var requests []JSONRPCRequest
		requests, bodyErr = ParseRequests(body)
		if bodyErr == nil && len(requests) == 0 {
			bodyErr = &BodyError{Code: BodyInvalidRequest, Message: "empty request body"}
		}
		if bodyErr == nil {
			g.dispatchPost(w, r, principal, requests)
			return
		}
	}

	g.metrics.BodyErrors.WithLabelValues(string(bodyErr.Code)).Inc()
	writeJSONRPCStatus(w, bodyErr.HTTPStatus(), errorResponse(nil, bodyErr.RPCCode(), bodyErr.Message, nil))
}

func (g *Gateway) dispatchPost(w http.ResponseWriter, r *http.Request, principal *Principal, requests []JSONRPCRequest) {
	sessionID := r.Header.Get("Mcp-Session-Id")

	var session *MCPSession
	freshSession := false
	if sessionID == "" {
		if !containsMethod(requests, "initialize") {
			writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, "missing Mcp-Session-Id header", nil))
			return
		}
		session = g.sessions.CreateSession(*principal)
		freshSession = true
		log.Info().
			Str("sessionId", session.ID).
			Str("principal", principal.Kind).
			Msg("MCP session initialized")
	} else {
		var err error
		session, err = g.sessions.GetActive(sessionID)
		if err != nil {
			writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, err.Error(), nil))
			return
		}
		g.sessions.Touch(session.ID)
	}
	w.Header().Set("Mcp-Session-Id", session.ID)

	type reply struct {
		streamID string
		resp     JSONRPCResponse
	}
	var replies []reply
	for i := range requests {
		req := &requests[i]
		g.metrics.Requests.WithLabelValues(methodLabel(req.Method)).Inc()

		resp, ok := g.dispatch(r.Context(), session, req, freshSession)
		if ok && !req.IsNotification() {
			replies = append(replies, reply{
				streamID: session.ID + "#" + requestIDKey(req.ID),
				resp:     resp,
			})
		}
	}

	if len(replies) == 0 {
		// Notifications only.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if g.jsonResponse {
		w.Header().Set("Content-Type", "application/json")
		if len(replies) == 1 {
			json.NewEncoder(w).Encode(replies[0].resp)
		} else {
			responses := make([]JSONRPCResponse, len(replies))
			for i, rep := range replies {
				responses[i] = rep.resp
			}
			json.NewEncoder(w).Encode(responses)
		}
		return
	}

	stream, err := NewSSEStream(r.Context(), w)
	if err != nil {
		writeJSONRPCStatus(w, http.StatusInternalServerError, errorResponse(nil, InternalError, err.Error(), nil))
		return
	}
	defer stream.Close()

	for _, rep := range replies {
		payload := mustMarshal(rep.resp)
		eventID := g.events.Store(rep.streamID, payload)
		if err := stream.WriteEvent(eventID, payload); err != nil {
			log.Debug().Err(err).Str("sessionId", session.ID).Msg("client dropped during POST response stream")
			return
		}
	}
}

// dispatch routes one JSON-RPC request. The bool result reports whether a
// response should be delivered.
func (g *Gateway) dispatch(ctx context.Context, session *MCPSession, req *JSONRPCRequest, freshSession bool) (JSONRPCResponse, bool) {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, InvalidRequest, "invalid jsonrpc version", nil), true
	}

	logger := log.With().
		Str("sessionId", session.ID).
		Str("method", req.Method).
		Logger()

	switch req.Method {
	case "initialize":
		if !freshSession {
			return errorResponse(req.ID, InvalidRequest, "session already initialized", nil), true
		}
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": ServerVersion,
			},
		}), true

	case "tools/list":
		return resultResponse(req.ID, map[string]any{
			"tools": g.registry.List(),
		}), true

	case "tools/call":
		var callReq tools.CallRequest
		if err := json.Unmarshal(req.Params, &callReq); err != nil {
			return errorResponse(req.ID, InvalidParams, "invalid tool call parameters", nil), true
		}

		toolCtx := tools.NewToolContext(&logger, session.ID, g.api)
		result, err := g.registry.Call(ctx, toolCtx, callReq)
		if err != nil {
			g.metrics.ToolCalls.WithLabelValues(callReq.Name, "error").Inc()
			if toolErr, ok := err.(*tools.ToolError); ok {
				code, message, data := toolErr.ToJSONRPCError()
				return errorResponse(req.ID, code, message, data), true
			}
			return errorResponse(req.ID, InternalError, err.Error(), nil), true
		}

		outcome := "ok"
		if result.IsError {
			outcome = "tool_error"
		}
		g.metrics.ToolCalls.WithLabelValues(callReq.Name, outcome).Inc()
		return resultResponse(req.ID, result), true

	case "ping":
		return resultResponse(req.ID, map[string]any{"status": "ok"}), true

	default:
		if req.IsNotification() {
			// notifications/initialized and friends are accepted silently.
			return JSONRPCResponse{}, false
		}
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil), true
	}
}

// handleMCPGet opens the standalone SSE stream for server-initiated
// notifications, replaying from Last-Event-ID when present.
func (g *Gateway) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	principal := g.admit(w, r)
	if principal == nil {
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, "missing Mcp-Session-Id header", nil))
		return
	}
	session, err := g.sessions.GetActive(sessionID)
	if err != nil {
		writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, err.Error(), nil))
		return
	}
	g.sessions.Touch(session.ID)

	// Validate the replay anchor before committing to an SSE response so
	// a stale client gets a clean 400 and re-initializes.
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID != "" {
		if _, ok := g.events.StreamIDForEvent(lastEventID); !ok {
			writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, "unknown Last-Event-ID, re-initialize the session", nil))
			return
		}
	}

	stream, err := NewSSEStream(r.Context(), w)
	if err != nil {
		writeJSONRPCStatus(w, http.StatusInternalServerError, errorResponse(nil, InternalError, err.Error(), nil))
		return
	}
	defer stream.Close()

	// Register under the replay lock so a notification stored after the
	// replay snapshot is held back until the replayed events are out;
	// the stream's id guard drops the ones the snapshot already carried.
	send, release := stream.beginReplay()
	g.registerStream(session.ID, stream)
	defer g.unregisterStream(session.ID, stream)

	var replayErr error
	if lastEventID != "" {
		_, replayErr = g.events.ReplayAfter(lastEventID, send)
	}
	release()

	if replayErr != nil {
		log.Warn().Err(replayErr).Str("sessionId", session.ID).Msg("event replay aborted")
		return
	}

	log.Info().
		Str("sessionId", session.ID).
		Msg("SSE stream established")

	if dropAfter := g.cfg.SSEDropAfter(); dropAfter > 0 {
		// Diagnostic hook to exercise client reconnection.
		timer := time.AfterFunc(dropAfter, stream.Close)
		defer timer.Stop()
	}

	<-stream.Done()

	log.Info().
		Str("sessionId", session.ID).
		Msg("SSE stream closed")
}

// handleMCPDelete closes a session. The id stays reserved until expiry.
func (g *Gateway) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	principal := g.admit(w, r)
	if principal == nil {
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		writeJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, InvalidRequest, "missing Mcp-Session-Id header", nil))
		return
	}
	if err := g.sessions.Close(sessionID); err != nil {
		writeJSONRPCStatus(w, http.StatusNotFound, errorResponse(nil, InvalidRequest, err.Error(), nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Notify stores a server-initiated notification on the session's
// standalone stream and delivers it to a connected client.
func (g *Gateway) Notify(sessionID, method string, params any) error {
	if _, err := g.sessions.GetActive(sessionID); err != nil {
		return err
	}

	payload := mustMarshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
	eventID := g.events.Store(sessionID+"#sse", payload)

	g.streamMu.Lock()
	stream := g.streams[sessionID]
	g.streamMu.Unlock()

	if stream == nil {
		// No live stream; the event waits in the store for replay.
		return nil
	}
	return stream.WriteEvent(eventID, payload)
}

func (g *Gateway) registerStream(sessionID string, stream *SSEStream) {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	g.streams[sessionID] = stream
}

func (g *Gateway) unregisterStream(sessionID string, stream *SSEStream) {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.streams[sessionID] == stream {
		delete(g.streams, sessionID)
	}
}

func containsMethod(requests []JSONRPCRequest, method string) bool {
	for i := range requests {
		if requests[i].Method == method {
			return true
		}
	}
	return false
}

// requestIDKey renders a JSON-RPC id for use in a stream id.
func requestIDKey(id json.RawMessage) string {
	if len(id) == 0 {
		return "null"
	}
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}
