package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/hearth/internal/api"
	"grimm.is/hearth/internal/api/storage"
	"grimm.is/hearth/internal/audit"
	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/config"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/health"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/ratelimit"
	"grimm.is/hearth/internal/resolver"
	"grimm.is/hearth/internal/scheduler"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	paneltls "grimm.is/hearth/internal/tls"
)

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(configFile string) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC: %v", r)
			rt.logger.Error("panic in serve", "panic", r)
		}
	}()

	cfg, db, st := rt.cfg, rt.db, rt.settings
	logger := rt.logger.WithComponent("serve")

	hub := events.NewHub()
	m := metrics.Get()
	if err := prometheus.DefaultRegisterer.Register(metrics.NewDBCollector(db.SQL(), rt.logger.WithComponent("metrics"))); err != nil {
		logger.Warn("database collector not registered", "error", err)
	}

	auditStore := audit.NewStore(db, rt.logger.WithComponent("audit"), cfg.Audit.RetentionDays)
	sessions := auth.NewSessions(db, cfg.SessionTTL())
	csrf := api.NewCSRFManager(cfg.SessionTTL(), nil)
	limiter := ratelimit.NewLimiter(cfg.Web.LoginAttempts, time.Minute, nil)

	svc := panel.New(panel.Options{
		DB:            db,
		Settings:      st,
		Tasks:         &tasks.Queue{Hub: hub, Metrics: m, Now: db.Now},
		Hub:           hub,
		Audit:         auditStore,
		Logger:        rt.logger.WithComponent("panel"),
		Resolver:      resolver.New(""),
		Metrics:       m,
		HTTPClient:    &http.Client{Timeout: cfg.UpdateTimeout()},
		Version:       brand.Version,
		UpdateURI:     cfg.Update.URI,
		UpdateRetries: uint(cfg.Update.Retries),
	})

	sched := scheduler.New(rt.logger.WithComponent("scheduler"))
	jobs := housekeepingJobs(cfg, pruners{
		sessions:  sessions,
		actionLog: auditStore,
		limiter:   limiter,
		csrf:      csrf,
	}, hub, m, logger)
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	watcher := config.NewWatcher(configFile, func(next *config.Config) {
		if err := reloadSettings(ctx, db, st, next); err != nil {
			logger.Error("settings reload failed", "error", err)
			m.ConfigReload.WithLabelValues("failure").Inc()
			return
		}
		rt.logger.SetLevel(logging.ParseLevel(next.Logging.Level))
		m.ConfigReload.WithLabelValues("success").Inc()
		hub.Publish(events.Event{Type: events.EventSettingsReloaded, Source: "config"})
	}, rt.logger.WithComponent("config"))
	watcher.OnError = func(error) { m.ConfigReload.WithLabelValues("failure").Inc() }
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	checker := health.NewChecker(nil)
	checker.Register("database", health.Database(db))
	checker.Register("settings", health.Settings(st))
	checker.Register("jobs", health.Jobs(sched))
	checker.Register("disk", health.Writable(filepath.Dir(cfg.Database.Path)))

	var themes fs.FS
	if cfg.Web.Themes != "" {
		themes = os.DirFS(cfg.Web.Themes)
	}

	srv := api.NewServer(api.Options{
		Panel:        svc,
		DB:           db,
		Sessions:     sessions,
		Keys:         storage.NewStore(db, st),
		Hub:          hub,
		Metrics:      m,
		Logger:       rt.logger.WithComponent("api"),
		Health:       checker,
		LoginLimiter: limiter,
		CSRF:         csrf,
		Themes:       themes,
		Origins:      cfg.Web.Origins,
		Version:      brand.Version,
	})

	if cfg.Web.TLSSelfSigned {
		hosts := []string{st.Get("system.hostname"), st.Get("system.ipaddress")}
		if _, err := paneltls.EnsureCertificate(cfg.Web.TLSCert, cfg.Web.TLSKey, hosts, 365); err != nil {
			return err
		}
	}

	logger.Info("starting panel", "version", brand.Version, "database", cfg.Database.Path)
	return srv.ListenAndServe(ctx, cfg.Web.Listen, cfg.Web.TLSCert, cfg.Web.TLSKey)
}

// reloadSettings writes the settings blocks of a reloaded config over the
// stored values and refreshes the cache.
func reloadSettings(ctx context.Context, db *store.DB, st *settings.Store, cfg *config.Config) error {
	if err := settings.Seed(ctx, db.SQL(), cfg.SettingOverrides(), true); err != nil {
		return err
	}
	return st.Load(ctx, db.SQL())
}

type pruners struct {
	sessions, actionLog, limiter, csrf scheduler.Pruner
}

// housekeepingJobs lists the background jobs of the server. The action log
// is pruned once a day at audit.prune_at.
func housekeepingJobs(cfg *config.Config, p pruners, hub *events.Hub, m *metrics.Registry, logger *logging.Logger) []*scheduler.Job {
	return []*scheduler.Job{
		scheduler.NewPruneJob("sessions", "sessions", p.sessions, scheduler.Every(15*time.Minute), logger),
		scheduler.NewPruneJob("actionlog", "action log", p.actionLog, cfg.AuditPruneSchedule(), logger),
		scheduler.NewPruneJob("ratelimit", "rate limit", p.limiter, scheduler.Every(5*time.Minute), nil),
		scheduler.NewPruneJob("csrf", "csrf token", p.csrf, scheduler.Every(15*time.Minute), nil),
		droppedEventsJob(hub, m),
	}
}

// droppedEventsJob copies the hub's drop counter into Prometheus.
func droppedEventsJob(hub *events.Hub, m *metrics.Registry) *scheduler.Job {
	var last uint64
	return scheduler.NewFuncJob("events", "event drops", scheduler.Every(30*time.Second), func(context.Context) error {
		_, dropped := hub.Stats()
		if dropped > last {
			m.EventsDropped.Add(float64(dropped - last))
		}
		last = dropped
		return nil
	})
}
