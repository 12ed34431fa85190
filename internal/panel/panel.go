// Package panel implements the hosting commands (Domains, IpsAndPorts,
// PhpSettings, Backups, Customers, Admins, System).
//
// Every command takes the authenticated Caller and a typed parameter struct.
// Mutating commands run in one transaction: the state change, the task rows
// for the config cron and the action log entry commit together. Failures are
// returned as *Error carrying an HTTP status and a message catalog key.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"grimm.is/hearth/internal/audit"
	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/resolver"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
)

// Caller is the account a command runs as. Exactly one of Admin and
// Customer is set.
type Caller struct {
	Admin    *store.Admin
	Customer *store.Customer
	IP       string
}

// IsAdmin reports whether the caller is an admin (reseller).
func (c *Caller) IsAdmin() bool { return c != nil && c.Admin != nil }

// LoginName returns the login of the caller.
func (c *Caller) LoginName() string {
	switch {
	case c == nil:
		return ""
	case c.Admin != nil:
		return c.Admin.LoginName
	case c.Customer != nil:
		return c.Customer.LoginName
	}
	return ""
}

func (c *Caller) area() audit.Area {
	if c.IsAdmin() {
		return audit.AdminArea
	}
	return audit.CustomerArea
}

// canChangeServerSettings is the gate of every mutating admin command.
func (c *Caller) canChangeServerSettings() bool {
	return c.IsAdmin() && c.Admin.ChangeServerSettings
}

// Options wires a Service. DB and Settings are required.
type Options struct {
	DB         *store.DB
	Settings   *settings.Store
	Tasks      *tasks.Queue
	Hub        *events.Hub
	Audit      *audit.Store
	Logger     *logging.Logger
	Resolver   *resolver.Resolver
	Metrics    *metrics.Registry
	HTTPClient *http.Client

	// Version is the running panel version, compared by System.checkUpdate.
	Version string
	// UpdateURI is the base of the version check, the version is appended.
	UpdateURI string
	// UpdateRetries is the number of attempts of the version check.
	UpdateRetries uint
}

// Service executes panel commands.
type Service struct {
	db       *store.DB
	settings *settings.Store
	tasks    *tasks.Queue
	hub      *events.Hub
	audit    *audit.Store
	logger   *logging.Logger
	resolver *resolver.Resolver
	metrics  *metrics.Registry
	client   *http.Client

	version       string
	updateURI     string
	updateRetries uint

	registry *Registry
}

// New creates a Service and registers every command module.
func New(opts Options) *Service {
	s := &Service{
		db:            opts.DB,
		settings:      opts.Settings,
		tasks:         opts.Tasks,
		hub:           opts.Hub,
		audit:         opts.Audit,
		logger:        opts.Logger,
		resolver:      opts.Resolver,
		metrics:       opts.Metrics,
		client:        opts.HTTPClient,
		version:       opts.Version,
		updateURI:     opts.UpdateURI,
		updateRetries: opts.UpdateRetries,
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("panel")
	}
	if s.audit == nil {
		s.audit = audit.NewStore(s.db, s.logger, 0)
	}
	if s.tasks == nil {
		s.tasks = &tasks.Queue{Hub: s.hub, Metrics: s.metrics, Now: s.db.Now}
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	if s.updateRetries == 0 {
		s.updateRetries = 3
	}

	s.registry = NewRegistry()
	s.registerDomains()
	s.registerIpsAndPorts()
	s.registerPhpSettings()
	s.registerBackups()
	s.registerCustomers()
	s.registerAdmins()
	s.registerSystem()
	return s
}

// Registry returns the command registry.
func (s *Service) Registry() *Registry { return s.registry }

// Settings returns the settings cache the commands read.
func (s *Service) Settings() *settings.Store { return s.settings }

// Execute runs command ("Module.function") with JSON params.
func (s *Service) Execute(ctx context.Context, caller *Caller, command string, params []byte) (any, error) {
	cmd, ok := s.registry.Lookup(command)
	if !ok {
		err := newError(http.StatusNotFound, "unknowncommand", command)
		s.recordCommand(command, err)
		return nil, err
	}
	out, err := cmd.Run(ctx, caller, params)
	s.recordCommand(command, err)
	return out, err
}

func (s *Service) recordCommand(command string, err error) {
	status, key := http.StatusOK, ""
	if err != nil {
		status, key = StatusOf(err), KeyOf(err)
	}
	s.metrics.RecordCommand(command, status, key)
}

// CallerFor loads the account behind an authenticated identity.
func (s *Service) CallerFor(ctx context.Context, id *auth.Identity, ip string) (*Caller, error) {
	if id == nil {
		return nil, newError(http.StatusUnauthorized, "unauthorized")
	}
	q := s.db.SQL()
	if id.Admin {
		a, err := store.GetAdmin(ctx, q, id.UserID)
		if err != nil {
			return nil, fmt.Errorf("load admin %d: %w", id.UserID, err)
		}
		return &Caller{Admin: a, IP: ip}, nil
	}
	c, err := store.GetCustomer(ctx, q, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load customer %d: %w", id.UserID, err)
	}
	return &Caller{Customer: c, IP: ip}, nil
}

// logAction writes the action log entry through q (usually the command's
// transaction) and mirrors it to the logger.
func (s *Service) logAction(ctx context.Context, q store.Querier, c *Caller, level slog.Level, text string, details map[string]any) error {
	var ip string
	if c != nil {
		ip = c.IP
	}
	return s.audit.Write(ctx, q, audit.Event{
		Area:    c.area(),
		Level:   level,
		User:    c.LoginName(),
		Text:    text,
		Details: details,
		IP:      ip,
	})
}

// logRead records a listing or lookup. Those are not part of a transaction.
func (s *Service) logRead(ctx context.Context, c *Caller, text string) {
	if err := s.logAction(ctx, s.db.SQL(), c, slog.LevelInfo, text, nil); err != nil {
		s.logger.Warn("failed to write action log", "error", err)
	}
}

func (s *Service) emit(t events.EventType, c *Caller, id int64, name, action string) {
	if s.hub != nil {
		s.hub.EmitChange(t, c.LoginName(), id, name, action)
	}
}
