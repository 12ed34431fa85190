package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/panel"
)

// ErrorResponse is the body of every failed request. Details carries the
// message key so clients can react without parsing the localized text.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DataResponse wraps successful command results.
type DataResponse struct {
	Data any `json:"data"`
}

// WriteJSON sends a JSON success response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError sends a localized JSON error response for a message key.
func WriteError(w http.ResponseWriter, r *http.Request, status int, key string, args ...any) {
	WriteJSON(w, status, ErrorResponse{
		Error:   i18n.T(r.Context(), key, args...),
		Details: key,
	})
}

// writeCommandError renders err with the status and key it carries.
// Anything that is not a *panel.Error is logged and hidden behind
// "internalerror".
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	status, key := panel.StatusOf(err), panel.KeyOf(err)
	var args []any
	var pe *panel.Error
	if errors.As(err, &pe) {
		args = pe.Args
	} else {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteError(w, r, status, key, args...)
}
