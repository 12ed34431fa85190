// Package storage persists API keys in panel_api_keys.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

var (
	ErrKeyNotFound  = errors.New("API key not found")
	ErrKeyExpired   = errors.New("API key expired")
	ErrKeyForbidden = errors.New("API key not allowed from this address")
	ErrAPIDisabled  = errors.New("API access is disabled")
)

// APIKey represents an API key with its owner and restrictions. A key with
// CustomerID 0 acts as its admin.
type APIKey struct {
	ID          int64    `json:"id"`
	Key         string   `json:"apikey"`
	SecretHash  string   `json:"-"` // SHA-256 of the secret
	AdminID     int64    `json:"adminid"`
	CustomerID  int64    `json:"customerid"`
	Description string   `json:"description,omitempty"`
	AllowedFrom []string `json:"allowed_from,omitempty"` // IPs or CIDRs, empty = any
	ValidUntil  int64    `json:"valid_until"`            // unix time, -1 = forever
	CreatedAt   int64    `json:"created_at"`
	LastUsed    int64    `json:"last_used"`
}

// Store manages API keys.
type Store struct {
	db       *store.DB
	settings *settings.Store
}

// NewStore creates a key store. settings may be nil, which leaves the API
// enabled.
func NewStore(db *store.DB, s *settings.Store) *Store {
	return &Store{db: db, settings: s}
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new key and returns it with its clear-text secret. The
// secret is not retrievable afterwards.
func (s *Store) Create(ctx context.Context, key *APIKey) (*APIKey, string, error) {
	secret, err := randomHex(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate secret: %w", err)
	}
	key.Key = strings.ReplaceAll(uuid.NewString(), "-", "")
	key.SecretHash = hashSecret(secret)
	key.CreatedAt = s.db.Now()
	if key.ValidUntil == 0 {
		key.ValidUntil = -1
	}

	res, err := s.db.SQL().ExecContext(ctx, `
		INSERT INTO panel_api_keys (apikey, secret, adminid, customerid, description, allowed_from, valid_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Key, key.SecretHash, key.AdminID, key.CustomerID, key.Description,
		strings.Join(key.AllowedFrom, ","), key.ValidUntil, key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	key.ID, _ = res.LastInsertId()
	return key, secret, nil
}

const keyColumns = "id, apikey, secret, adminid, customerid, description, allowed_from, valid_until, created_at, last_used"

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*APIKey, error) {
	var k APIKey
	var allowed string
	err := row.Scan(&k.ID, &k.Key, &k.SecretHash, &k.AdminID, &k.CustomerID, &k.Description,
		&allowed, &k.ValidUntil, &k.CreatedAt, &k.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, a := range strings.Split(allowed, ",") {
		if a = strings.TrimSpace(a); a != "" {
			k.AllowedFrom = append(k.AllowedFrom, a)
		}
	}
	return &k, nil
}

// List returns the keys owned by a user. An admin (customerID 0) also sees
// the keys of its customers.
func (s *Store) List(ctx context.Context, adminID, customerID int64) ([]*APIKey, error) {
	query := "SELECT " + keyColumns + " FROM panel_api_keys WHERE adminid = ?"
	args := []any{adminID}
	if customerID > 0 {
		query = "SELECT " + keyColumns + " FROM panel_api_keys WHERE customerid = ?"
		args = []any{customerID}
	}
	rows, err := s.db.SQL().QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*APIKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Delete removes a key if it is visible to the given owner.
func (s *Store) Delete(ctx context.Context, id, adminID, customerID int64) error {
	query := "DELETE FROM panel_api_keys WHERE id = ? AND adminid = ?"
	owner := adminID
	if customerID > 0 {
		query = "DELETE FROM panel_api_keys WHERE id = ? AND customerid = ?"
		owner = customerID
	}
	res, err := s.db.SQL().ExecContext(ctx, query, id, owner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// AuthenticateKey implements auth.KeyAuthenticator.
func (s *Store) AuthenticateKey(ctx context.Context, key, secret, remoteIP string) (*auth.Identity, error) {
	if s.settings != nil && !s.settings.Bool("api.enabled") {
		return nil, ErrAPIDisabled
	}

	k, err := scanKey(s.db.SQL().QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM panel_api_keys WHERE apikey = ?", key))
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(k.SecretHash), []byte(hashSecret(secret))) != 1 {
		return nil, ErrKeyNotFound
	}
	now := s.db.Now()
	if k.IsExpired(now) {
		return nil, ErrKeyExpired
	}
	if !k.IsIPAllowed(remoteIP) {
		return nil, ErrKeyForbidden
	}

	var id *auth.Identity
	if k.CustomerID > 0 {
		c, err := store.GetCustomer(ctx, s.db.SQL(), k.CustomerID)
		if err != nil {
			return nil, err
		}
		if c.Deactivated || !c.APIAllowed {
			return nil, ErrKeyForbidden
		}
		id = &auth.Identity{UserID: c.CustomerID, LoginName: c.LoginName, Language: c.DefLanguage, APIKey: true}
	} else {
		a, err := store.GetAdmin(ctx, s.db.SQL(), k.AdminID)
		if err != nil {
			return nil, err
		}
		if a.Deactivated || !a.APIAllowed {
			return nil, ErrKeyForbidden
		}
		id = &auth.Identity{UserID: a.AdminID, Admin: true, LoginName: a.LoginName, Language: a.DefLanguage, APIKey: true}
	}

	if _, err := s.db.SQL().ExecContext(ctx, "UPDATE panel_api_keys SET last_used = ? WHERE id = ?", now, k.ID); err != nil {
		return nil, err
	}
	return id, nil
}
