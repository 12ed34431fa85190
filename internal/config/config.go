// Package config loads the panel configuration file.
//
// The file is HCL:
//
//	schema_version = "1.0"
//
//	database {
//	  path = "/var/lib/hearth/panel.db"
//	}
//
//	web {
//	  listen = ":8080"
//	}
//
//	settings "system" {
//	  hostname  = "panel.example.com"
//	  ipaddress = env.PANEL_IP
//	}
//
// Environment variables are available as env.NAME; an optional .env file next
// to the config is loaded first.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/scheduler"
	"grimm.is/hearth/internal/validation"
)

// CurrentSchemaVersion is the newest config layout this build understands.
const CurrentSchemaVersion = "1.0"

// Config is the top-level configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Database *DatabaseConfig `hcl:"database,block" json:"database,omitempty"`
	Web      *WebConfig      `hcl:"web,block" json:"web,omitempty"`
	Logging  *LoggingConfig  `hcl:"logging,block" json:"logging,omitempty"`
	Audit    *AuditConfig    `hcl:"audit,block" json:"audit,omitempty"`
	Update   *UpdateConfig   `hcl:"update,block" json:"update,omitempty"`

	// Settings seed panel_settings; decoded by the loader from
	// settings "<group>" blocks.
	Settings []SettingsBlock `json:"settings,omitempty"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path        string `hcl:"path,optional" json:"path,omitempty"`
	WAL         *bool  `hcl:"wal,optional" json:"wal,omitempty"`
	BusyTimeout int    `hcl:"busy_timeout,optional" json:"busy_timeout,omitempty"` // milliseconds
}

// WebConfig configures the API listener.
type WebConfig struct {
	Listen  string `hcl:"listen,optional" json:"listen,omitempty"`
	TLSCert string `hcl:"tls_cert,optional" json:"tls_cert,omitempty"`
	TLSKey  string `hcl:"tls_key,optional" json:"tls_key,omitempty"`

	// TLSSelfSigned generates a certificate when tls_cert does not exist.
	// Without tls_cert/tls_key the pair lives in the state directory.
	TLSSelfSigned bool `hcl:"tls_self_signed,optional" json:"tls_self_signed,omitempty"`

	// SessionTTL is a Go duration ("24h").
	SessionTTL string `hcl:"session_ttl,optional" json:"session_ttl,omitempty"`

	// LoginAttempts per client IP and minute before 429.
	LoginAttempts int `hcl:"login_attempts,optional" json:"login_attempts,omitempty"`

	// Themes is the directory scanned for theme.toml files.
	Themes string `hcl:"themes,optional" json:"themes,omitempty"`

	// Origins allowed to open the websocket; empty means same host only.
	Origins []string `hcl:"allowed_origins,optional" json:"allowed_origins,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `hcl:"level,optional" json:"level,omitempty"`
	Format string `hcl:"format,optional" json:"format,omitempty"` // "text" or "json"
	Source bool   `hcl:"source,optional" json:"source,omitempty"`
}

// AuditConfig configures the panel action log.
type AuditConfig struct {
	RetentionDays int `hcl:"retention_days,optional" json:"retention_days,omitempty"`
	// PruneAt is the local time of day ("HH:MM") expired rows are deleted.
	PruneAt string `hcl:"prune_at,optional" json:"prune_at,omitempty"`
}

// UpdateConfig configures System.checkUpdate.
type UpdateConfig struct {
	URI     string `hcl:"uri,optional" json:"uri,omitempty"`
	Retries int    `hcl:"retries,optional" json:"retries,omitempty"`
	Timeout string `hcl:"timeout,optional" json:"timeout,omitempty"`
}

// SettingsBlock holds the panel settings of one group.
type SettingsBlock struct {
	Group  string            `json:"group"`
	Values map[string]string `json:"values"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{SchemaVersion: CurrentSchemaVersion}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.Database == nil {
		c.Database = &DatabaseConfig{}
	}
	if c.Database.Path == "" {
		c.Database.Path = brand.DefaultDatabasePath()
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = 5000
	}
	if c.Web == nil {
		c.Web = &WebConfig{}
	}
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}
	if c.Web.TLSSelfSigned && c.Web.TLSCert == "" && c.Web.TLSKey == "" {
		c.Web.TLSCert = filepath.Join(brand.GetStateDir(), "tls", "panel.crt")
		c.Web.TLSKey = filepath.Join(brand.GetStateDir(), "tls", "panel.key")
	}
	if c.Web.SessionTTL == "" {
		c.Web.SessionTTL = "24h"
	}
	if c.Web.LoginAttempts == 0 {
		c.Web.LoginAttempts = 10
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
	if c.Audit.PruneAt == "" {
		c.Audit.PruneAt = "03:30"
	}
	if c.Update == nil {
		c.Update = &UpdateConfig{}
	}
	if c.Update.URI == "" {
		c.Update.URI = brand.UpdateURI
	}
	if c.Update.Retries == 0 {
		c.Update.Retries = 3
	}
	if c.Update.Timeout == "" {
		c.Update.Timeout = "10s"
	}
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	var errs []string
	if _, err := time.ParseDuration(c.Web.SessionTTL); err != nil {
		errs = append(errs, fmt.Sprintf("web.session_ttl: %v", err))
	}
	if _, err := time.ParseDuration(c.Update.Timeout); err != nil {
		errs = append(errs, fmt.Sprintf("update.timeout: %v", err))
	}
	if _, err := scheduler.ParseDaily(c.Audit.PruneAt); err != nil {
		errs = append(errs, fmt.Sprintf("audit.prune_at: %v", err))
	}
	if (c.Web.TLSCert == "") != (c.Web.TLSKey == "") {
		errs = append(errs, "web: tls_cert and tls_key must be set together")
	}
	if c.Web.LoginAttempts < 0 {
		errs = append(errs, "web.login_attempts must not be negative")
	}
	if c.Update.Retries < 0 {
		errs = append(errs, "update.retries must not be negative")
	}
	if err := validation.ValidateAllowlist(c.Logging.Format, []string{"text", "json"}); err != nil {
		errs = append(errs, fmt.Sprintf("logging.format: %v", err))
	}
	seen := map[string]bool{}
	for _, block := range c.Settings {
		if block.Group == "" || strings.Contains(block.Group, ".") {
			errs = append(errs, fmt.Sprintf("settings %q: invalid group name", block.Group))
		}
		if seen[block.Group] {
			errs = append(errs, fmt.Sprintf("settings %q: duplicate block", block.Group))
		}
		seen[block.Group] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// SettingOverrides flattens the settings blocks into "group.name" keys.
func (c *Config) SettingOverrides() map[string]string {
	out := make(map[string]string)
	for _, block := range c.Settings {
		for name, value := range block.Values {
			out[block.Group+"."+name] = value
		}
	}
	return out
}

// SessionTTL returns web.session_ttl; call after Validate.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Web.SessionTTL)
	return d
}

// UpdateTimeout returns update.timeout; call after Validate.
func (c *Config) UpdateTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Update.Timeout)
	return d
}

// AuditPruneSchedule returns audit.prune_at; call after Validate.
func (c *Config) AuditPruneSchedule() *scheduler.DailySchedule {
	s, _ := scheduler.ParseDaily(c.Audit.PruneAt)
	return s
}

// WALMode reports whether the database uses a WAL journal (default on).
func (c *Config) WALMode() bool {
	return c.Database.WAL == nil || *c.Database.WAL
}
