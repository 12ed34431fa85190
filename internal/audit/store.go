// Package audit records panel actions in panel_syslog and mirrors them to
// the structured logger.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/store"
)

// Area says which part of the panel performed an action.
type Area string

const (
	AdminArea    Area = "admin"
	CustomerArea Area = "customer"
	LoginArea    Area = "login"
	CronArea     Area = "cron"
)

// Event represents a single action log entry.
type Event struct {
	ID      int64          `json:"logid"`
	Date    time.Time      `json:"date"`
	Area    Area           `json:"action"`
	Level   slog.Level     `json:"-"`
	Type    string         `json:"type"`
	User    string         `json:"user"`
	Text    string         `json:"text"`
	Details map[string]any `json:"details,omitempty"`
	IP      string         `json:"ip,omitempty"`
}

// Filter selects events for Query. Zero values match everything.
type Filter struct {
	Start time.Time
	End   time.Time
	Area  Area
	User  string
	Limit int
}

// Store provides persistent storage for action log events.
type Store struct {
	db            *store.DB
	logger        *logging.Logger
	retentionDays int
}

// NewStore creates an action log on db. retentionDays <= 0 means 90.
func NewStore(db *store.DB, logger *logging.Logger, retentionDays int) *Store {
	if retentionDays <= 0 {
		retentionDays = 90 // Default 90 days
	}
	if logger == nil {
		logger = logging.WithComponent("audit")
	}
	return &Store{db: db, logger: logger, retentionDays: retentionDays}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warning"
	case l >= slog.LevelInfo:
		return "notice"
	}
	return "debug"
}

// Write persists an event through q, which may be a transaction, and logs
// it once q has committed. Debug events are logged only.
func (s *Store) Write(ctx context.Context, q store.Querier, evt Event) error {
	if evt.Date.IsZero() {
		evt.Date = s.db.Clock().Now()
	}
	evt.Type = levelName(evt.Level)

	args := []any{"area", string(evt.Area), "user", evt.User}
	if evt.IP != "" {
		args = append(args, "ip", evt.IP)
	}
	logEvent := func() { s.logger.Log(ctx, evt.Level, evt.Text, args...) }

	if evt.Level < slog.LevelInfo {
		store.AfterCommit(q, logEvent)
		return nil
	}

	var detailsJSON []byte
	if evt.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(evt.Details)
		if err != nil {
			detailsJSON = []byte("{}")
		}
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO panel_syslog (action, type, date, user, text, details, ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(evt.Area), evt.Type, evt.Date.Unix(), evt.User, evt.Text, string(detailsJSON), evt.IP); err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}
	store.AfterCommit(q, logEvent)
	return nil
}

// Query returns events matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT logid, action, type, date, user, text, details, ip FROM panel_syslog WHERE 1 = 1`
	var args []any

	if !f.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, f.Start.Unix())
	}
	if !f.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, f.End.Unix())
	}
	if f.Area != "" {
		query += " AND action = ?"
		args = append(args, string(f.Area))
	}
	if f.User != "" {
		query += " AND user = ?"
		args = append(args, f.User)
	}

	query += " ORDER BY date DESC, logid DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var evt Event
		var area string
		var date int64
		var details sql.NullString

		if err := rows.Scan(&evt.ID, &area, &evt.Type, &date, &evt.User, &evt.Text, &details, &evt.IP); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		evt.Area = Area(area)
		evt.Date = time.Unix(date, 0)
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &evt.Details)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	cutoff := s.db.Clock().Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.SQL().ExecContext(ctx, "DELETE FROM panel_syslog WHERE date < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune action log: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of events in the store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return store.Count(ctx, s.db.SQL(), "SELECT COUNT(*) FROM panel_syslog")
}
