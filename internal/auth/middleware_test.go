package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct{}

func (fakeKeys) AuthenticateKey(_ context.Context, key, secret, ip string) (*Identity, error) {
	if key == "k" && secret == "s" && ip == "192.0.2.7" {
		return &Identity{UserID: 9, Admin: true, LoginName: "api", APIKey: true}, nil
	}
	return nil, errors.New("bad key")
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	db, _ := setupDB(t)
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	addAdmin(t, db, "admin", hash)
	sessions := NewSessions(db, time.Hour)
	sess, _, err := sessions.Login(ctx, "admin", "pw", "", "")
	require.NoError(t, err)

	m := NewMiddleware(sessions, fakeKeys{})
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetIdentity(r.Context()).LoginName))
	}))

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "admin", rr.Body.String())
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sess.Token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		req.SetBasicAuth("k", "s")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "api", rr.Body.String())
	})

	t.Run("rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "nope"})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("optional", func(t *testing.T) {
		var seen *Identity
		opt := m.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetIdentity(r.Context())
		}))
		opt.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Nil(t, seen)
	})
}

func TestSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	SetSessionCookie(rr, req, &Session{Token: "abc", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := rr.Result().Cookies()
	require.Len(t, c, 1)
	assert.Equal(t, "abc", c[0].Value)
	assert.True(t, c[0].HttpOnly)

	rr = httptest.NewRecorder()
	ClearSessionCookie(rr)
	assert.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}
