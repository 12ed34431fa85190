package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"grimm.is/hearth/internal/auth"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	LoginName string `json:"loginname"`
	Password  string `json:"password"`
}

// LoginResponse returns the session. Token is also set as cookie; clients
// without cookies send it as a bearer token.
type LoginResponse struct {
	Identity  *auth.Identity `json:"identity"`
	Token     string         `json:"token"`
	ExpiresAt int64          `json:"expires_at"`
	CSRFToken string         `json:"csrf_token"`
}

// StatusResponse is returned by GET /api/auth/status.
type StatusResponse struct {
	Authenticated bool           `json:"authenticated"`
	Identity      *auth.Identity `json:"identity,omitempty"`
	CSRFToken     string         `json:"csrf_token,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := auth.ClientIP(r)
	limitKey := "login:" + ip
	if s.limiter != nil && !s.limiter.Allow(limitKey) {
		retry := s.limiter.RetryAfter(limitKey)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		WriteError(w, r, http.StatusTooManyRequests, "toomanyrequests")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalidbody")
		return
	}

	sess, id, err := s.sessions.Login(r.Context(), req.LoginName, req.Password, ip, r.UserAgent())
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.metrics.RecordLogin("unknown", false)
		s.logger.Warn("login failed", "loginname", req.LoginName, "ip", ip)
		WriteError(w, r, http.StatusUnauthorized, "loginfailed")
		return
	case errors.Is(err, auth.ErrDeactivated):
		s.metrics.RecordLogin("unknown", false)
		s.logger.Warn("login of deactivated account", "loginname", req.LoginName, "ip", ip)
		WriteError(w, r, http.StatusForbidden, "accountlocked")
		return
	case err != nil:
		s.writeCommandError(w, r, err)
		return
	}

	if s.limiter != nil {
		s.limiter.Reset(limitKey)
	}
	s.metrics.RecordLogin(area(id), true)
	s.logger.Info("login", "loginname", id.LoginName, "area", area(id), "ip", ip)

	token, err := s.csrf.GenerateToken(sess.Token)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	auth.SetSessionCookie(w, r, sess)

	WriteJSON(w, http.StatusOK, DataResponse{Data: LoginResponse{
		Identity:  id,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		CSRFToken: token,
	}})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.GetSession(r.Context()); sess != nil {
		if err := s.sessions.Logout(r.Context(), sess.Token); err != nil {
			s.writeCommandError(w, r, err)
			return
		}
		s.csrf.DeleteToken(sess.Token)
	}
	auth.ClearSessionCookie(w)
	WriteJSON(w, http.StatusOK, DataResponse{Data: StatusResponse{}})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	id := auth.GetIdentity(r.Context())
	if id == nil {
		WriteJSON(w, http.StatusOK, DataResponse{Data: StatusResponse{}})
		return
	}
	resp := StatusResponse{Authenticated: true, Identity: id}
	if sess := auth.GetSession(r.Context()); sess != nil {
		token, err := s.csrf.Token(sess.Token)
		if err != nil {
			s.writeCommandError(w, r, err)
			return
		}
		resp.CSRFToken = token
	}
	WriteJSON(w, http.StatusOK, DataResponse{Data: resp})
}

func area(id *auth.Identity) string {
	if id.Admin {
		return "admin"
	}
	return "customer"
}
