package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/clock"
)

// CSRFHeader is the request header carrying the token of a cookie session.
const CSRFHeader = "X-CSRF-Token"

// CSRFManager manages CSRF tokens for session protection
type CSRFManager struct {
	tokens map[string]*csrfToken // session token -> csrf token
	mu     sync.RWMutex
	ttl    time.Duration
	clock  clock.Clock
}

type csrfToken struct {
	value     string
	createdAt time.Time
}

// NewCSRFManager creates a token manager. Tokens live as long as ttl; clk
// may be nil. Expired tokens are dropped by Prune.
func NewCSRFManager(ttl time.Duration, clk clock.Clock) *CSRFManager {
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	if clk == nil {
		clk = clock.Default()
	}
	return &CSRFManager{
		tokens: make(map[string]*csrfToken),
		ttl:    ttl,
		clock:  clk,
	}
}

// GenerateToken generates a new CSRF token for a session
func (m *CSRFManager) GenerateToken(sessionID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID] = &csrfToken{value: token, createdAt: m.clock.Now()}
	return token, nil
}

// Token returns the live token of a session, creating one if needed.
func (m *CSRFManager) Token(sessionID string) (string, error) {
	m.mu.RLock()
	t, ok := m.tokens[sessionID]
	m.mu.RUnlock()
	if ok && m.clock.Since(t.createdAt) <= m.ttl {
		return t.value, nil
	}
	return m.GenerateToken(sessionID)
}

// ValidateToken validates a CSRF token for a session
func (m *CSRFManager) ValidateToken(sessionID, token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.tokens[sessionID]
	if !ok || token == "" {
		return false
	}
	if m.clock.Since(stored.createdAt) > m.ttl {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored.value), []byte(token)) == 1
}

// DeleteToken removes a CSRF token (e.g., on logout)
func (m *CSRFManager) DeleteToken(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
}

// Prune drops expired tokens. It runs as a scheduler job.
func (m *CSRFManager) Prune(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if m.clock.Since(t.createdAt) > m.ttl {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (m *CSRFManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// CSRFMiddleware validates the CSRF header of state-changing requests that
// authenticate with the session cookie. Requests sending credentials in the
// Authorization header cannot be forged by a browser and pass unchecked.
// Mitigation: OWASP A01:2021-Broken Access Control (CSRF prevention)
func CSRFMiddleware(manager *CSRFManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "" {
				next.ServeHTTP(w, r)
				return
			}
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil {
				// no cookie session; authentication decides
				next.ServeHTTP(w, r)
				return
			}
			if !manager.ValidateToken(cookie.Value, r.Header.Get(CSRFHeader)) {
				WriteError(w, r, http.StatusForbidden, "csrfinvalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
