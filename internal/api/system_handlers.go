package api

import (
	"context"
	"net/http"
	"time"

	"grimm.is/hearth/internal/health"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/tasks"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	health.Report
	Version string `json:"version,omitempty"`
}

// handleHealth answers 503 only when a check is unhealthy; degraded still
// serves.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := s.health.Check(ctx)
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, HealthResponse{Report: report, Version: s.version})
}

// handleTasks lists the task rows waiting for the config cron.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if !c.IsAdmin() || !c.Admin.ChangeServerSettings {
		WriteError(w, r, http.StatusForbidden, "notallowed")
		return
	}
	list, err := tasks.Pending(r.Context(), s.db.SQL())
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	WriteJSON(w, http.StatusOK, DataResponse{Data: panel.Listing[tasks.Task]{Count: len(list), List: list}})
}
