// Package auth provides login, password handling and session management
// for the two panel areas (admins and customers).
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"grimm.is/hearth/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrDeactivated        = errors.New("account is deactivated")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// DefaultSessionTTL is used when panel.sessiontimeout is unset.
const DefaultSessionTTL = 24 * time.Hour

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID    int64  `json:"userid"`
	Admin     bool   `json:"adminsession"`
	LoginName string `json:"loginname"`
	Language  string `json:"language"`
	APIKey    bool   `json:"apikey,omitempty"`
}

// Session represents an active login session
type Session struct {
	Token        string `json:"token"`
	UserID       int64  `json:"userid"`
	Admin        bool   `json:"adminsession"`
	IPAddress    string `json:"ipaddress"`
	UserAgent    string `json:"useragent"`
	Language     string `json:"language"`
	LastActivity int64  `json:"lastactivity"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Sessions authenticates users against panel_admins / panel_customers and
// keeps sessions in panel_sessions.
type Sessions struct {
	db  *store.DB
	ttl time.Duration
}

// NewSessions creates a session manager. ttl <= 0 uses DefaultSessionTTL.
func NewSessions(db *store.DB, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{db: db, ttl: ttl}
}

// Login checks credentials and opens a session. Customers are looked up
// first, then admins. Legacy hashes are upgraded on success.
func (s *Sessions) Login(ctx context.Context, loginname, password, ip, userAgent string) (*Session, *Identity, error) {
	var sess *Session
	var id *Identity
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		var err error
		id, err = s.verify(ctx, q, loginname, password)
		if err != nil {
			return err
		}

		now := s.db.Now()
		sess = &Session{
			Token:        uuid.NewString(),
			UserID:       id.UserID,
			Admin:        id.Admin,
			IPAddress:    ip,
			UserAgent:    userAgent,
			Language:     id.Language,
			LastActivity: now,
			ExpiresAt:    now + int64(s.ttl/time.Second),
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO panel_sessions (hash, userid, adminsession, ipaddress, useragent, language, lastactivity, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.Token, sess.UserID, sess.Admin, sess.IPAddress, sess.UserAgent, sess.Language,
			sess.LastActivity, sess.ExpiresAt)
		return err
	})
	if errors.Is(err, ErrInvalidCredentials) {
		// recorded outside the rolled back transaction
		s.recordFailure(ctx, loginname)
	}
	if err != nil {
		return nil, nil, err
	}
	return sess, id, nil
}

// verify runs the password check inside q. On success the login columns are
// updated and legacy hashes replaced.
func (s *Sessions) verify(ctx context.Context, q store.Querier, loginname, password string) (*Identity, error) {
	var (
		id       Identity
		hash     string
		inactive bool
	)
	if c, err := store.GetCustomerByLogin(ctx, q, loginname); err == nil {
		id = Identity{UserID: c.CustomerID, LoginName: c.LoginName, Language: c.DefLanguage}
		hash, inactive = c.Password, c.Deactivated
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	} else if a, err := store.GetAdminByLogin(ctx, q, loginname); err == nil {
		id = Identity{UserID: a.AdminID, Admin: true, LoginName: a.LoginName, Language: a.DefLanguage}
		hash, inactive = a.Password, a.Deactivated
	} else if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	} else {
		return nil, err
	}

	ok, rehash := CheckPassword(hash, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if inactive {
		return nil, ErrDeactivated
	}
	if rehash {
		newHash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		if err := store.SetPassword(ctx, q, id.Admin, id.UserID, newHash); err != nil {
			return nil, fmt.Errorf("upgrade password hash: %w", err)
		}
	}
	if err := store.RecordLogin(ctx, q, id.Admin, id.UserID, true, s.db.Now()); err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Sessions) recordFailure(ctx context.Context, loginname string) {
	_ = s.db.WithTx(ctx, func(q store.Querier) error {
		if c, err := store.GetCustomerByLogin(ctx, q, loginname); err == nil {
			return store.RecordLogin(ctx, q, false, c.CustomerID, false, s.db.Now())
		}
		if a, err := store.GetAdminByLogin(ctx, q, loginname); err == nil {
			return store.RecordLogin(ctx, q, true, a.AdminID, false, s.db.Now())
		}
		return nil
	})
}

// Validate returns the session for token and slides its expiry.
func (s *Sessions) Validate(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := s.db.SQL().QueryRowContext(ctx, `
		SELECT hash, userid, adminsession, ipaddress, useragent, language, lastactivity, expires_at
		FROM panel_sessions WHERE hash = ?`, token).Scan(
		&sess.Token, &sess.UserID, &sess.Admin, &sess.IPAddress, &sess.UserAgent, &sess.Language,
		&sess.LastActivity, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	now := s.db.Now()
	if sess.ExpiresAt <= now {
		_, _ = s.db.SQL().ExecContext(ctx, "DELETE FROM panel_sessions WHERE hash = ?", token)
		return nil, ErrSessionExpired
	}

	sess.LastActivity = now
	sess.ExpiresAt = now + int64(s.ttl/time.Second)
	if _, err := s.db.SQL().ExecContext(ctx,
		"UPDATE panel_sessions SET lastactivity = ?, expires_at = ? WHERE hash = ?",
		sess.LastActivity, sess.ExpiresAt, token); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Identity resolves the user behind a session.
func (s *Sessions) Identity(ctx context.Context, sess *Session) (*Identity, error) {
	q := s.db.SQL()
	if sess.Admin {
		a, err := store.GetAdmin(ctx, q, sess.UserID)
		if err != nil {
			return nil, err
		}
		if a.Deactivated {
			return nil, ErrDeactivated
		}
		return &Identity{UserID: a.AdminID, Admin: true, LoginName: a.LoginName, Language: sess.Language}, nil
	}
	c, err := store.GetCustomer(ctx, q, sess.UserID)
	if err != nil {
		return nil, err
	}
	if c.Deactivated {
		return nil, ErrDeactivated
	}
	return &Identity{UserID: c.CustomerID, LoginName: c.LoginName, Language: sess.Language}, nil
}

// Logout removes a session.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	_, err := s.db.SQL().ExecContext(ctx, "DELETE FROM panel_sessions WHERE hash = ?", token)
	return err
}

// Prune deletes expired sessions and returns how many were removed.
func (s *Sessions) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.SQL().ExecContext(ctx, "DELETE FROM panel_sessions WHERE expires_at <= ?", s.db.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
