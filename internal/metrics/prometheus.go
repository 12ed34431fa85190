// Package metrics exposes panel metrics to Prometheus.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all panel metrics.
type Registry struct {
	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// Command layer
	Commands      *prometheus.CounterVec
	CommandErrors *prometheus.CounterVec
	TasksQueued   *prometheus.CounterVec

	// Auth
	Logins *prometheus.CounterVec

	// System metrics
	ConfigReload  *prometheus.CounterVec
	EventsDropped prometheus.Counter
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(promauto.With(prometheus.DefaultRegisterer))
	})
	return registry
}

// NewForTesting builds a registry bound to reg instead of the default
// registerer.
func NewForTesting(reg prometheus.Registerer) *Registry {
	return newRegistry(promauto.With(reg))
}

func newRegistry(f promauto.Factory) *Registry {
	r := &Registry{}

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.Commands = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_commands_total",
		Help: "Panel commands executed, by command and result status",
	}, []string{"command", "status"})

	r.CommandErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_command_errors_total",
		Help: "Panel command rejections by message key",
	}, []string{"key"})

	r.TasksQueued = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_tasks_queued_total",
		Help: "Task rows inserted for the config cron, by task type",
	}, []string{"type"})

	r.Logins = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_logins_total",
		Help: "Login attempts by area and result",
	}, []string{"area", "result"})

	r.ConfigReload = f.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_config_reloads_total",
		Help: "Total configuration reloads",
	}, []string{"status"})

	r.EventsDropped = f.NewCounter(prometheus.CounterOpts{
		Name: "hearth_events_dropped_total",
		Help: "Events dropped because a subscriber was too slow",
	})

	return r
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// RecordCommand records one command invocation. key is the message key of a
// rejected command, empty on success.
func (r *Registry) RecordCommand(command string, status int, key string) {
	if r == nil {
		return
	}
	r.Commands.WithLabelValues(command, strconv.Itoa(status)).Inc()
	if key != "" {
		r.CommandErrors.WithLabelValues(key).Inc()
	}
}

// RecordTask records a queued task row.
func (r *Registry) RecordTask(taskType int) {
	if r == nil {
		return
	}
	r.TasksQueued.WithLabelValues(strconv.Itoa(taskType)).Inc()
}

// RecordLogin records a login attempt.
func (r *Registry) RecordLogin(area string, ok bool) {
	if r == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	r.Logins.WithLabelValues(area, result).Inc()
}
