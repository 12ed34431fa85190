// Package scheduler runs the panel's housekeeping jobs on fixed schedules.
// It never processes panel_tasks rows; those belong to the external cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"grimm.is/hearth/internal/clock"
	"grimm.is/hearth/internal/logging"
)

// JobFunc performs one run of a job. ctx is cancelled when the scheduler
// stops or the job times out.
type JobFunc func(ctx context.Context) error

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(after time.Time) time.Time
}

// Job is a scheduled housekeeping function.
type Job struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
	Func        JobFunc
	Enabled     bool
	RunOnStart  bool
	Timeout     time.Duration
}

// JobStatus represents the current status of a job.
type JobStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

// Scheduler manages and runs jobs.
type Scheduler struct {
	jobs    map[string]*jobEntry
	mu      sync.Mutex
	logger  *slog.Logger
	clock   clock.Clock
	tick    time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

type jobEntry struct {
	job     *Job
	status  JobStatus
	nextRun time.Time
}

// New creates a new scheduler.
func New(logger *logging.Logger) *Scheduler {
	var l *slog.Logger
	if logger == nil {
		l = slog.Default()
	} else {
		l = logger.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*jobEntry),
		logger: l.With("component", "scheduler"),
		clock:  clock.Default(),
		tick:   time.Second,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job.
func (s *Scheduler) Add(job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Schedule == nil {
		return fmt.Errorf("job schedule is required")
	}
	if job.Func == nil {
		return fmt.Errorf("job function is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	entry := &jobEntry{
		job: job,
		status: JobStatus{
			ID:          job.ID,
			Name:        job.Name,
			Description: job.Description,
			Enabled:     job.Enabled,
		},
	}
	if job.Enabled {
		entry.nextRun = job.Schedule.Next(s.clock.Now())
		entry.status.NextRun = entry.nextRun
	}

	s.jobs[job.ID] = entry
	s.logger.Debug("job added", "id", job.ID, "name", job.Name)
	return nil
}

// Remove unregisters a job. A run in progress is not interrupted.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job %s not found", id)
	}
	delete(s.jobs, id)
	return nil
}

// Enable enables or disables a job.
func (s *Scheduler) Enable(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}

	entry.job.Enabled = enabled
	entry.status.Enabled = enabled
	if enabled {
		entry.nextRun = entry.job.Schedule.Next(s.clock.Now())
	} else {
		entry.nextRun = time.Time{}
	}
	entry.status.NextRun = entry.nextRun
	return nil
}

// RunNow starts a job immediately, regardless of schedule. A job that is
// already running is not started twice.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}
	s.dispatchLocked(entry)
	return nil
}

// Status returns the status of all jobs sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// JobStatus returns the status of a specific job.
func (s *Scheduler) JobStatus(id string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[id]
	if !exists {
		return JobStatus{}, false
	}
	return entry.status, true
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	for _, entry := range s.jobs {
		if entry.job.Enabled && entry.job.RunOnStart {
			s.dispatchLocked(entry)
		}
	}

	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(s.clock.Now())
		}
	}
}

// dispatchDue starts every enabled job whose next run has passed.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.jobs {
		if !entry.job.Enabled || entry.nextRun.IsZero() {
			continue
		}
		if !now.Before(entry.nextRun) {
			s.dispatchLocked(entry)
		}
	}
}

// dispatchLocked starts entry in a goroutine. Caller holds s.mu.
func (s *Scheduler) dispatchLocked(entry *jobEntry) {
	if entry.status.Running || s.ctx.Err() != nil {
		return
	}
	entry.status.Running = true
	s.wg.Add(1)
	go s.execute(entry)
}

func (s *Scheduler) execute(entry *jobEntry) {
	defer s.wg.Done()
	job := entry.job

	var ctx context.Context
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, job.Timeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	start := s.clock.Now()
	err := job.Func(ctx)
	duration := s.clock.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.status.Running = false
	entry.status.LastRun = start
	entry.status.LastDuration = duration
	entry.status.RunCount++
	if err != nil {
		entry.status.LastError = err.Error()
		entry.status.ErrorCount++
		s.logger.Warn("job failed", "id", job.ID, "error", err, "duration", duration)
	} else {
		entry.status.LastError = ""
		s.logger.Debug("job completed", "id", job.ID, "duration", duration)
	}

	if job.Enabled {
		entry.nextRun = job.Schedule.Next(s.clock.Now())
		entry.status.NextRun = entry.nextRun
	}
}
