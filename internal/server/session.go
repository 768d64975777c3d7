package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "player_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
)

// tokenStore holds random tokens until they expire.
type tokenStore struct {
	ttl    time.Duration
	mu     sync.Mutex
	tokens map[string]time.Time
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{ttl: ttl, tokens: make(map[string]time.Time)}
}

func (s *tokenStore) issue() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	token := hex.EncodeToString(b)

	now := time.Now()
	s.mu.Lock()
	maps.DeleteFunc(s.tokens, func(_ string, exp time.Time) bool { return now.After(exp) })
	s.tokens[token] = now.Add(s.ttl)
	s.mu.Unlock()
	return token
}

// valid reports whether token is live. consume removes it either way.
func (s *tokenStore) valid(token string, consume bool) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	if consume || time.Now().After(exp) {
		delete(s.tokens, token)
	}
	return time.Now().Before(exp)
}

func (s *tokenStore) revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// SessionManager tracks logged-in browsers and single-use CSRF tokens for the
// login form. It is safe for concurrent use.
type SessionManager struct {
	sessions *tokenStore
	csrf     *tokenStore
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: newTokenStore(sessionDuration),
		csrf:     newTokenStore(csrfTokenDuration),
	}
}

// Validate reports whether a session token is valid.
func (sm *SessionManager) Validate(token string) bool {
	return sm.sessions.valid(token, false)
}

// Authenticated reports whether r carries a valid session cookie.
func (sm *SessionManager) Authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	return err == nil && sm.Validate(cookie.Value)
}

// AuthMiddleware redirects requests without a valid session to /login.
func (sm *SessionManager) AuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if sm.Authenticated(r) {
				next(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
		}
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login checks the credentials in constant time and sets a session cookie
// on success.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, wantUser, wantPass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	if !userOK || !passOK {
		return false
	}
	token := sm.sessions.issue()
	if token == "" {
		return false
	}
	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout ends the session and clears the cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.sessions.revoke(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}

// CreateCSRFToken issues a single-use CSRF token.
func (sm *SessionManager) CreateCSRFToken() string {
	return sm.csrf.issue()
}

// ValidateCSRFToken reports whether token is valid and consumes it.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	return sm.csrf.valid(token, true)
}
