package health

import (
	"context"
	"fmt"
	"os"
	"strings"

	"grimm.is/hearth/internal/scheduler"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

// Database pings the panel database and reports its schema version.
func Database(db *store.DB) CheckFunc {
	return func(ctx context.Context) Check {
		if err := db.SQL().PingContext(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		v, err := db.SchemaVersion(ctx)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		if v == 0 {
			return Check{Status: StatusUnhealthy, Message: "database not migrated"}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("schema version %d", v)}
	}
}

// Settings is degraded while the settings cache is empty.
func Settings(st *settings.Store) CheckFunc {
	return func(context.Context) Check {
		n := len(st.All())
		if n == 0 {
			return Check{Status: StatusDegraded, Message: "no settings loaded"}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d settings", n)}
	}
}

// Jobs is degraded while a housekeeping job's last run failed.
func Jobs(s *scheduler.Scheduler) CheckFunc {
	return func(context.Context) Check {
		if !s.IsRunning() {
			return Check{Status: StatusDegraded, Message: "scheduler stopped"}
		}
		var failed []string
		for _, st := range s.Status() {
			if st.LastError != "" {
				failed = append(failed, st.ID+": "+st.LastError)
			}
		}
		if len(failed) > 0 {
			return Check{Status: StatusDegraded, Message: strings.Join(failed, "; ")}
		}
		return Check{Status: StatusHealthy, Message: "all jobs ok"}
	}
}

// Writable checks that dir, the database directory, accepts new files.
func Writable(dir string) CheckFunc {
	return func(context.Context) Check {
		f, err := os.CreateTemp(dir, ".health_check")
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("disk write failed: %v", err)}
		}
		f.Close()
		os.Remove(f.Name())
		return Check{Status: StatusHealthy, Message: "writable"}
	}
}
