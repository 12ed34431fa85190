package scheduler

import (
	"context"
	"time"

	"grimm.is/hearth/internal/logging"
)

// Pruner deletes expired rows and reports how many went.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// NewPruneJob wraps a Pruner (sessions, action log) in a job. It also runs
// once at start so a restart after downtime catches up.
func NewPruneJob(id, name string, p Pruner, schedule Schedule, logger *logging.Logger) *Job {
	return &Job{
		ID:          id,
		Name:        name,
		Description: "Delete expired " + name + " rows",
		Schedule:    schedule,
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			n, err := p.Prune(ctx)
			if err != nil {
				return err
			}
			if n > 0 && logger != nil {
				logger.Info("pruned rows", "job", id, "count", n)
			}
			return nil
		},
	}
}

// NewFuncJob runs fn on a schedule.
func NewFuncJob(id, name string, schedule Schedule, fn JobFunc) *Job {
	return &Job{
		ID:       id,
		Name:     name,
		Schedule: schedule,
		Enabled:  true,
		Timeout:  5 * time.Minute,
		Func:     fn,
	}
}
