package oauth

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Session is the server-side state behind an issued access token.
type Session struct {
	ClientID         string
	Scopes           []string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// AuthorizationCode is a single-use code awaiting redemption at /token.
type AuthorizationCode struct {
	Code            string
	ClientID        string
	RedirectURI     string
	Scopes          []string
	CodeChallenge   string
	ChallengeMethod string
	ExpiresAt       time.Time
	Used            bool
}

// Store holds sessions and authorization codes in memory, each bounded by
// an independent cap with oldest-first eviction.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session // keyed by access token
	byRefresh   map[string]*Session // refresh token index
	codes       map[string]*AuthorizationCode
	maxSessions int
	maxCodes    int
	now         func() time.Time
}

// NewStore creates a store with the given capacity limits.
func NewStore(maxSessions, maxCodes int) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		byRefresh:   make(map[string]*Session),
		codes:       make(map[string]*AuthorizationCode),
		maxSessions: maxSessions,
		maxCodes:    maxCodes,
		now:         time.Now,
	}
}

// PutSession stores a session, evicting the oldest one at capacity.
func (s *Store) PutSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.maxSessions {
		s.evictOldestSessionLocked()
	}
	s.sessions[sess.AccessToken] = sess
	if sess.RefreshToken != "" {
		s.byRefresh[sess.RefreshToken] = sess
	}
}

// SessionByAccessToken returns the live session for an access token, or nil
// if the token is unknown or the access token has expired.
func (s *Store) SessionByAccessToken(token string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.AccessExpiresAt) {
		return nil
	}
	return sess
}

// SessionByRefreshToken returns the session for a refresh token, or nil if
// unknown or the refresh token has expired.
func (s *Store) SessionByRefreshToken(token string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byRefresh[token]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.RefreshExpiresAt) {
		return nil
	}
	return sess
}

// DeleteSession removes a session and its refresh index entry.
func (s *Store) DeleteSession(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(accessToken)
}

func (s *Store) deleteSessionLocked(accessToken string) {
	sess, ok := s.sessions[accessToken]
	if !ok {
		return
	}
	delete(s.sessions, accessToken)
	if sess.RefreshToken != "" {
		delete(s.byRefresh, sess.RefreshToken)
	}
}

// PutCode stores an authorization code, evicting the oldest at capacity.
func (s *Store) PutCode(code *AuthorizationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.codes) >= s.maxCodes {
		s.evictOldestCodeLocked()
	}
	s.codes[code.Code] = code
}

// RedeemCode atomically looks up and consumes an authorization code.
// It returns nil if the code is unknown, expired, or already used.
func (s *Store) RedeemCode(code string) *AuthorizationCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.codes[code]
	if !ok {
		return nil
	}
	if ac.Used || !s.now().Before(ac.ExpiresAt) {
		return nil
	}
	ac.Used = true
	delete(s.codes, code)
	return ac
}

// Sweep drops expired codes and sessions whose refresh tokens have expired.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	codesDropped := 0
	for code, ac := range s.codes {
		if ac.Used || !now.Before(ac.ExpiresAt) {
			delete(s.codes, code)
			codesDropped++
		}
	}

	sessionsDropped := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.RefreshExpiresAt) {
			s.deleteSessionLocked(token)
			sessionsDropped++
		}
	}

	if codesDropped > 0 || sessionsDropped > 0 {
		log.Debug().
			Int("codes", codesDropped).
			Int("sessions", sessionsDropped).
			Msg("swept expired oauth state")
	}
}

// StartSweeper runs Sweep every interval until stop is closed. The sweeper
// never holds the lock across anything but map mutation, so it cannot block
// request handling for long.
func (s *Store) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CodeCount returns the number of stored authorization codes.
func (s *Store) CodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func (s *Store) evictOldestSessionLocked() {
	var oldestToken string
	var oldestAt time.Time
	for token, sess := range s.sessions {
		if oldestToken == "" || sess.CreatedAt.Before(oldestAt) {
			oldestToken = token
			oldestAt = sess.CreatedAt
		}
	}
	if oldestToken != "" {
		s.deleteSessionLocked(oldestToken)
		log.Warn().Msg("session table full, evicted oldest session")
	}
}

func (s *Store) evictOldestCodeLocked() {
	var oldestCode string
	var oldestAt time.Time
	for code, ac := range s.codes {
		if oldestCode == "" || ac.ExpiresAt.Before(oldestAt) {
			oldestCode = code
			oldestAt = ac.ExpiresAt
		}
	}
	if oldestCode != "" {
		delete(s.codes, oldestCode)
		log.Warn().Msg("authorization code table full, evicted oldest code")
	}
}
