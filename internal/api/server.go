// Package api serves the panel over HTTP: a JSON REST surface mapped onto
// the command registry, the original single-endpoint command API, sessions,
// API keys, the task queue view, an event websocket and the UI declarations.
package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/hearth/internal/api/storage"
	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/health"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/ratelimit"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/ui"
	"grimm.is/hearth/internal/ui/web"
)

// DefaultMaxBodyBytes limits request bodies.
const DefaultMaxBodyBytes = 1 << 20

// ServerConfig holds HTTP server security configuration.
// Mitigation: OWASP A05:2021-Security Misconfiguration
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Response timeout
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Options wires a Server. Panel, DB and Sessions are required.
type Options struct {
	Panel    *panel.Service
	DB       *store.DB
	Sessions *auth.Sessions
	Keys     *storage.Store
	Hub      *events.Hub
	Metrics  *metrics.Registry
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
	// Health backs /api/health; nil checks the database and settings only.
	Health *health.Checker

	// LoginLimiter throttles login attempts per client IP; nil disables it.
	LoginLimiter *ratelimit.Limiter
	CSRF         *CSRFManager

	// Themes is scanned by GET /api/ui/themes.
	Themes fs.FS
	// Origins may open the websocket besides the panel's own host.
	Origins []string

	Version      string
	MaxBodyBytes int64
}

// Server is the panel's HTTP API.
type Server struct {
	panel    *panel.Service
	settings *settings.Store
	db       *store.DB
	sessions *auth.Sessions
	keys     *storage.Store
	hub      *events.Hub
	metrics  *metrics.Registry
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	health   *health.Checker
	limiter  *ratelimit.Limiter
	csrf     *CSRFManager
	authMw   *auth.Middleware
	ui       *web.Handler
	ws       *WSManager

	version string
	maxBody int64

	mux *http.ServeMux
}

// NewServer creates the server and registers its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		panel:    opts.Panel,
		settings: opts.Panel.Settings(),
		db:       opts.DB,
		sessions: opts.Sessions,
		keys:     opts.Keys,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
		health:   opts.Health,
		limiter:  opts.LoginLimiter,
		csrf:     opts.CSRF,
		version:  opts.Version,
		maxBody:  opts.MaxBodyBytes,
		mux:      http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("api")
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.health == nil {
		s.health = health.NewChecker(nil)
		s.health.Register("database", health.Database(s.db))
		s.health.Register("settings", health.Settings(s.settings))
	}
	if s.csrf == nil {
		s.csrf = NewCSRFManager(0, nil)
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}

	var keys auth.KeyAuthenticator
	if s.keys != nil {
		keys = s.keys
	}
	s.authMw = auth.NewMiddleware(s.sessions, keys)

	s.ui = &web.Handler{
		Settings: s.settings,
		Themes:   opts.Themes,
		User:     s.uiUser,
		IPs:      s.uiIPs,
		Rows:     s.uiRows,
	}
	if s.hub != nil {
		s.ws = NewWSManager(s.hub, opts.Origins, s.logger)
	}

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	// public
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/auth/status", s.authMw.OptionalAuth(http.HandlerFunc(s.handleAuthStatus)))
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPIYAML)
	s.mux.HandleFunc("GET /api/openapi.json", s.handleOpenAPIJSON)

	// session
	s.mux.Handle("POST /api/auth/logout", s.require(s.handleLogout))

	// commands
	s.mux.Handle("POST /api", s.require(s.handleCommand))
	for _, rt := range CommandRoutes {
		s.mux.Handle(rt.Method+" "+rt.Path, s.require(s.commandHandler(rt)))
	}

	// api keys
	s.mux.Handle("GET /api/keys", s.require(s.handleListKeys))
	s.mux.Handle("POST /api/keys", s.require(s.handleCreateKey))
	s.mux.Handle("DELETE /api/keys/{id}", s.require(s.handleDeleteKey))

	// tasks and events
	s.mux.Handle("GET /api/tasks", s.require(s.handleTasks))
	if s.ws != nil {
		s.mux.Handle("GET /api/ws", s.require(s.ws.ServeHTTP))
	}

	// ui declarations
	s.ui.RegisterRoutes(s.mux, func(h http.Handler) http.Handler {
		return s.require(h.ServeHTTP)
	})

	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "unknowncommand", r.URL.Path)
	})
}

// Handler returns the full middleware chain:
// access log -> body limit -> i18n -> security headers -> mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.settings != nil {
		h = ui.SecurityHeaders(s.settings, h)
	}
	h = i18n.Middleware(h)
	h = s.maxBodyMiddleware(s.maxBody)(h)
	return AccessLogger(s.logger, s.metrics, s.routePattern, h)
}

func (s *Server) routePattern(r *http.Request) string {
	_, pattern := s.mux.Handler(r)
	return pattern
}

// require authenticates the request, checks the CSRF token of cookie
// sessions and stores the caller in the context. The caller's panel language
// replaces Accept-Language.
func (s *Server) require(next http.HandlerFunc) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.GetIdentity(r.Context())
		if id == nil {
			WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		caller, err := s.panel.CallerFor(r.Context(), id, auth.ClientIP(r))
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err != nil {
			s.writeCommandError(w, r, err)
			return
		}
		ctx := withCaller(r.Context(), caller)
		if id.Language != "" {
			ctx = i18n.WithPrinter(ctx, i18n.NewPrinter(i18n.MatchLanguage(id.Language)))
		}
		next(w, r.WithContext(ctx))
	})
	return CSRFMiddleware(s.csrf)(s.authMw.OptionalAuth(inner))
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
// Mitigation: OWASP A04:2021-Insecure Design
func (s *Server) maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. TLS is used when both certFile and keyFile are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	cfg := DefaultServerConfig()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", addr, "tls", certFile != "")
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if s.ws != nil {
		s.ws.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type callerKey struct{}

func withCaller(ctx context.Context, c *panel.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// callerFrom returns the caller stored by require.
func callerFrom(ctx context.Context) *panel.Caller {
	c, _ := ctx.Value(callerKey{}).(*panel.Caller)
	return c
}
