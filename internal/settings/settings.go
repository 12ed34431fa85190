// Package settings holds the panel_settings key/value table ("group.name").
// Values are cached in memory after Load so commands can read them inside a
// transaction without touching the database.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"grimm.is/hearth/internal/store"
)

// Defaults are the values seeded on a fresh database. Config file
// settings blocks override them.
var Defaults = map[string]string{
	"system.hostname":                       "localhost",
	"system.ipaddress":                      "127.0.0.1",
	"system.defaultip":                      "1",
	"system.defaultsslip":                   "",
	"system.use_ssl":                        "0",
	"system.leapiversion":                   "2",
	"system.le_domain_dnscheck":             "1",
	"system.le_domain_dnscheck_resolver":    "",
	"system.validate_domain":                "1",
	"system.bind_enable":                    "1",
	"system.documentroot_prefix":            "/var/customers/webs/",
	"system.documentroot_use_default_value": "0",
	"system.mod_fcgid":                      "0",
	"system.mod_fcgid_defaultini":           "1",
	"system.mod_fcgid_defaultini_ownvhost":  "1",
	"system.hsts_maxage":                    "0",
	"system.hsts_incsub":                    "0",
	"system.hsts_preload":                   "0",
	"system.lastguid":                       "9999",
	"phpfpm.enabled":                        "0",
	"phpfpm.defaultini":                     "1",
	"phpfpm.vhost_defaultini":               "1",
	"dkim.use_dkim":                         "0",
	"panel.natsorting":                      "1",
	"panel.allow_domain_change_customer":    "0",
	"panel.allow_domain_change_admin":       "0",
	"panel.phpconfigs_hidestdsubdomain":     "0",
	"panel.password_min_length":             "0",
	"panel.password_regex":                  "",
	"panel.password_alpha_lower":            "1",
	"panel.password_alpha_upper":            "1",
	"panel.password_numeric":                "0",
	"panel.password_special_char_required":  "0",
	"panel.password_special_char":           "!?<>§$%+#=@",
	"panel.default_theme":                   "Sparkle",
	"panel.sessiontimeout":                  "86400",
	"panel.standardlanguage":                "en",
	"api.enabled":                           "1",
}

// Store is the cached settings table.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns an empty store; call Load to fill it.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// NewFromMap returns a store preloaded with values. Used by tests.
func NewFromMap(values map[string]string) *Store {
	s := New()
	for k, v := range Defaults {
		s.values[k] = v
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func split(key string) (string, string, error) {
	group, name, ok := strings.Cut(key, ".")
	if !ok || group == "" || name == "" {
		return "", "", fmt.Errorf("invalid setting key %q", key)
	}
	return group, name, nil
}

// Seed inserts defaults, then overrides, for keys not yet present in the
// database. Existing rows are left alone unless force is set.
func Seed(ctx context.Context, q store.Querier, overrides map[string]string, force bool) error {
	merged := make(map[string]string, len(Defaults)+len(overrides))
	for k, v := range Defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	verb := "INSERT OR IGNORE"
	for key, value := range merged {
		group, name, err := split(key)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			verb+" INTO panel_settings (settinggroup, varname, value) VALUES (?, ?, ?)",
			group, name, value); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	if force {
		for key, value := range overrides {
			group, name, _ := split(key)
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_settings SET value = ? WHERE settinggroup = ? AND varname = ?",
				value, group, name); err != nil {
				return fmt.Errorf("apply %s: %w", key, err)
			}
		}
	}
	return nil
}

// Load replaces the cache with the database contents.
func (s *Store) Load(ctx context.Context, q store.Querier) error {
	rows, err := q.QueryContext(ctx, "SELECT settinggroup, varname, value FROM panel_settings")
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var group, name, value string
		if err := rows.Scan(&group, &name, &value); err != nil {
			return err
		}
		values[group+"."+name] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns a setting, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Int returns a setting as an integer, 0 when unset or not numeric.
func (s *Store) Int(key string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s.Get(key)), 10, 64)
	return n
}

// Bool reports whether a setting is "1".
func (s *Store) Bool(key string) bool {
	return strings.TrimSpace(s.Get(key)) == "1"
}

// IDList parses a comma separated id list such as system.defaultip.
func (s *Store) IDList(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(s.Get(key), ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// Set writes a setting through q. The cache follows once q commits.
func (s *Store) Set(ctx context.Context, q store.Querier, key, value string) error {
	group, name, err := split(key)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO panel_settings (settinggroup, varname, value) VALUES (?, ?, ?)
		ON CONFLICT(settinggroup, varname) DO UPDATE SET value = excluded.value`,
		group, name, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	store.AfterCommit(q, func() {
		s.mu.Lock()
		s.values[key] = value
		s.mu.Unlock()
	})
	return nil
}

// Override changes cached values only. Used for config reloads of
// process-local settings and in tests.
func (s *Store) Override(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// All returns a sorted snapshot of every setting.
func (s *Store) All() []KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyValue, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// KeyValue is one setting.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
