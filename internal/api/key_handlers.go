package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/hearth/internal/api/storage"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/validation"
)

// CreateKeyRequest is the body of POST /api/keys.
type CreateKeyRequest struct {
	Description string   `json:"description"`
	AllowedFrom []string `json:"allowed_from"`
	// ValidUntil is a unix time; 0 or -1 never expires.
	ValidUntil int64 `json:"valid_until"`
}

// CreatedKey returns the secret once.
type CreatedKey struct {
	*storage.APIKey
	Secret string `json:"secret"`
}

// keyOwner returns the (adminid, customerid) pair a caller's keys are
// stored under.
func keyOwner(c *panel.Caller) (int64, int64) {
	if c.IsAdmin() {
		return c.Admin.AdminID, 0
	}
	return c.Customer.AdminID, c.Customer.CustomerID
}

func apiAllowed(c *panel.Caller) bool {
	if c.IsAdmin() {
		return c.Admin.APIAllowed
	}
	return c.Customer.APIAllowed
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		WriteError(w, r, http.StatusForbidden, "apidisabled")
		return
	}
	adminID, customerID := keyOwner(callerFrom(r.Context()))
	keys, err := s.keys.List(r.Context(), adminID, customerID)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, DataResponse{Data: panel.Listing[*storage.APIKey]{Count: len(keys), List: keys}})
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if s.keys == nil || !s.settings.Bool("api.enabled") {
		WriteError(w, r, http.StatusForbidden, "apidisabled")
		return
	}
	if !apiAllowed(c) {
		WriteError(w, r, http.StatusForbidden, "notallowed")
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBodyError(w, r, err)
		return
	}
	var allowed []string
	for _, a := range req.AllowedFrom {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if err := validation.ValidateIPOrCIDR(a); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalidip", a)
			return
		}
		allowed = append(allowed, a)
	}
	if req.ValidUntil == 0 {
		req.ValidUntil = -1
	}

	adminID, customerID := keyOwner(c)
	key, secret, err := s.keys.Create(r.Context(), &storage.APIKey{
		AdminID:     adminID,
		CustomerID:  customerID,
		Description: req.Description,
		AllowedFrom: allowed,
		ValidUntil:  req.ValidUntil,
	})
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	s.logger.Info("api key created", "user", c.LoginName(), "key", key.Key)
	WriteJSON(w, http.StatusCreated, DataResponse{Data: CreatedKey{APIKey: key, Secret: secret}})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if s.keys == nil {
		WriteError(w, r, http.StatusForbidden, "apidisabled")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "apikeynotfound", r.PathValue("id"))
		return
	}
	adminID, customerID := keyOwner(c)
	err = s.keys.Delete(r.Context(), id, adminID, customerID)
	if errors.Is(err, storage.ErrKeyNotFound) {
		WriteError(w, r, http.StatusNotFound, "apikeynotfound", r.PathValue("id"))
		return
	}
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	s.logger.Info("api key deleted", "user", c.LoginName(), "id", id)
	WriteJSON(w, http.StatusOK, DataResponse{Data: map[string]int64{"id": id}})
}
