package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// ContextKey is used for storing the identity in request context
type ContextKey string

const (
	IdentityContextKey ContextKey = "identity"
	SessionContextKey  ContextKey = "session"

	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "session"
)

// KeyAuthenticator checks API key credentials sent with HTTP basic auth.
type KeyAuthenticator interface {
	AuthenticateKey(ctx context.Context, key, secret, remoteIP string) (*Identity, error)
}

// Middleware provides HTTP middleware for authentication
type Middleware struct {
	sessions *Sessions
	keys     KeyAuthenticator
}

// NewMiddleware creates a new auth middleware. keys may be nil when API
// keys are disabled.
func NewMiddleware(sessions *Sessions, keys KeyAuthenticator) *Middleware {
	return &Middleware{sessions: sessions, keys: keys}
}

// RequireAuth wraps a handler to require authentication
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticate(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth adds the identity to context if authenticated, but doesn't require it
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, err := m.authenticate(r); err == nil {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate tries the session cookie, a bearer session token and API
// key basic auth, in that order.
func (m *Middleware) authenticate(r *http.Request) (context.Context, error) {
	ctx := r.Context()

	token := ""
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		token = cookie.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token != "" {
		sess, err := m.sessions.Validate(ctx, token)
		if err != nil {
			return nil, err
		}
		id, err := m.sessions.Identity(ctx, sess)
		if err != nil {
			return nil, err
		}
		ctx = context.WithValue(ctx, SessionContextKey, sess)
		return WithIdentity(ctx, id), nil
	}

	if key, secret, ok := r.BasicAuth(); ok && m.keys != nil {
		id, err := m.keys.AuthenticateKey(ctx, key, secret, ClientIP(r))
		if err != nil {
			return nil, err
		}
		return WithIdentity(ctx, id), nil
	}
	return nil, ErrSessionNotFound
}

// ClientIP returns the remote address without port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// GetIdentity retrieves the identity from request context
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(IdentityContextKey).(*Identity)
	return id
}

// GetSession retrieves the session from request context. API key requests
// carry no session.
func GetSession(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionContextKey).(*Session)
	return sess
}

// SetSessionCookie sets the session cookie on a response
// Mitigation: OWASP A01:2021-Broken Access Control (CSRF prevention)
func SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  time.Unix(session.ExpiresAt, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
}

// ClearSessionCookie clears the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
