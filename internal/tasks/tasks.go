// Package tasks writes the rows that signal the external config cron.
//
// The queue is a plain table. A task row says "regenerate this kind of
// configuration"; the cron consumes and deletes rows on its own schedule.
// Rebuild tasks are idempotent, so queueing one deletes any pending row of
// the same type first and a burst of commands leaves a single row behind.
package tasks

import (
	"context"
	"fmt"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/store"
)

// Type identifies what the cron regenerates.
type Type int

const (
	RebuildVhost    Type = 1
	CreateHome      Type = 2
	RebuildDNS      Type = 4
	CreateFTP       Type = 5
	DeleteCustomer  Type = 6
	DeleteEmailData Type = 7
	DeleteFTPData   Type = 8
	RebuildCron     Type = 99
)

var names = map[Type]string{
	RebuildVhost:    "rebuild_vhost",
	CreateHome:      "create_home",
	RebuildDNS:      "rebuild_dns",
	CreateFTP:       "create_ftp",
	DeleteCustomer:  "delete_customer",
	DeleteEmailData: "delete_email_data",
	DeleteFTPData:   "delete_ftp_data",
	RebuildCron:     "rebuild_cron",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("task_%d", int(t))
}

// collapses reports whether only one pending row of t is useful.
func (t Type) collapses() bool {
	return t == RebuildVhost || t == RebuildDNS || t == RebuildCron
}

// Task is one pending row.
type Task struct {
	ID        int64  `json:"id"`
	Type      Type   `json:"type"`
	Name      string `json:"name"`
	Data      string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// Queue inserts task rows. Hub and Metrics are optional.
type Queue struct {
	Hub     *events.Hub
	Metrics *metrics.Registry
	Now     func() int64
}

// Insert queues a task inside the caller's transaction and returns the row
// id. The task event and metric follow the commit.
func (qu *Queue) Insert(ctx context.Context, q store.Querier, t Type, data string) (int64, error) {
	if t.collapses() {
		if _, err := q.ExecContext(ctx, "DELETE FROM panel_tasks WHERE type = ?", int(t)); err != nil {
			return 0, fmt.Errorf("clear pending %s: %w", t, err)
		}
	}

	var now int64
	if qu != nil && qu.Now != nil {
		now = qu.Now()
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO panel_tasks (type, data, created_at) VALUES (?, ?, ?)", int(t), data, now)
	if err != nil {
		return 0, fmt.Errorf("insert %s task: %w", t, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if qu != nil {
		store.AfterCommit(q, func() {
			qu.Metrics.RecordTask(int(t))
			qu.Hub.EmitTask("tasks", id, int(t), t.String())
		})
	}
	return id, nil
}

// InsertAll queues each type in order with empty data.
func (qu *Queue) InsertAll(ctx context.Context, q store.Querier, types ...Type) error {
	for _, t := range types {
		if _, err := qu.Insert(ctx, q, t, ""); err != nil {
			return err
		}
	}
	return nil
}

// Pending lists queued rows, oldest first.
func Pending(ctx context.Context, q store.Querier) ([]Task, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, type, data, created_at FROM panel_tasks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Type, &t.Data, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Name = t.Type.String()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Clear removes every pending row of the given types, or all rows when none
// are given. Used by "hearth tasks --clear".
func Clear(ctx context.Context, q store.Querier, types ...Type) (int64, error) {
	query := "DELETE FROM panel_tasks"
	var args []any
	if len(types) > 0 {
		ids := make([]int64, len(types))
		for i, t := range types {
			ids[i] = int64(t)
		}
		var marks string
		marks, args = store.Placeholders(ids)
		query += " WHERE type IN (" + marks + ")"
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
