package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session lookup errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// SessionState tracks the per-session lifecycle. Closed is terminal; the
// session id is never reused.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Principal identifies the credential a session was admitted with.
type Principal struct {
	Kind     string // "api_key" or "oauth"
	ClientID string
	Scopes   []string
}

// MCPSession represents an MCP client connection over the Streamable HTTP
// transport
type MCPSession struct {
	ID        string
	Principal Principal
	State     SessionState
	CreatedAt time.Time
	LastSeen  time.Time
}

// SessionManager manages MCP sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*MCPSession
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a session manager. Sessions idle longer than
// ttl are removed by the cleanup loop; closed sessions are kept until then
// so their ids cannot be reused.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*MCPSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CreateSession mints a new active session for the given principal.
// initialize is the only method that reaches this point without an
// existing session, so the uninitialized state is left behind immediately.
func (sm *SessionManager) CreateSession(principal Principal) *MCPSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	session := &MCPSession{
		ID:        uuid.New().String(),
		Principal: principal,
		State:     StateActive,
		CreatedAt: now,
		LastSeen:  now,
	}
	sm.sessions[session.ID] = session

	log.Debug().
		Str("sessionId", session.ID).
		Str("principal", principal.Kind).
		Msg("created MCP session")

	return session
}

// GetActive retrieves a session that is able to serve requests.
func (sm *SessionManager) GetActive(sessionID string) (*MCPSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if session.State != StateActive {
		return nil, ErrSessionClosed
	}
	return session, nil
}

// Touch updates the last seen time for a session
func (sm *SessionManager) Touch(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[sessionID]; exists {
		session.LastSeen = sm.now()
	}
}

// Close transitions a session to the terminal closed state. The entry
// stays in the table so the id may not be reused until the TTL expires it.
func (sm *SessionManager) Close(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	session.State = StateClosed

	log.Debug().
		Str("sessionId", sessionID).
		Msg("closed MCP session")

	return nil
}

// Len returns the number of tracked sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// StartCleanup removes idle sessions every interval until stop closes.
func (sm *SessionManager) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if expired := sm.cleanupExpired(); expired > 0 {
					log.Info().
						Int("count", expired).
						Msg("cleaned up expired MCP sessions")
				}
			case <-stop:
				return
			}
		}
	}()
}

func (sm *SessionManager) cleanupExpired() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	expired := 0
	for id, session := range sm.sessions {
		if now.Sub(session.LastSeen) > sm.ttl {
			delete(sm.sessions, id)
			expired++
		}
	}
	return expired
}
