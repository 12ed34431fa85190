package panel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/validation"
)

// PHPConfig is a row of panel_phpconfigs.
type PHPConfig struct {
	ID                  int64  `json:"id"`
	Description         string `json:"description"`
	Binary              string `json:"binary"`
	FileExtensions      string `json:"file_extensions"`
	ModFcgidStarter     int64  `json:"mod_fcgid_starter"`
	ModFcgidMaxRequests int64  `json:"mod_fcgid_maxrequests"`
	ModFcgidUmask       string `json:"mod_fcgid_umask"`
	FPMSlowlog          bool   `json:"fpm_slowlog"`
	FPMReqTerm          string `json:"fpm_reqterm"`
	FPMReqSlow          string `json:"fpm_reqslow"`
	PHPSettings         string `json:"phpsettings"`
	FPMSettingID        int64  `json:"fpmsettingid"`
	PassAuthHeader      bool   `json:"pass_authorizationheader"`
}

// PHPConfigListEntry is a config with the domains that use it.
type PHPConfigListEntry struct {
	PHPConfig
	FPMDesc   *string  `json:"fpmdesc"`
	Domains   []string `json:"domains"`
	IsDefault bool     `json:"is_default,omitempty"`
}

const phpConfigColumns = `c.id, c.description, c.binary, c.file_extensions, c.mod_fcgid_starter,
	c.mod_fcgid_maxrequests, c.mod_fcgid_umask, c.fpm_slowlog, c.fpm_reqterm, c.fpm_reqslow,
	c.phpsettings, c.fpmsettingid, c.pass_authorizationheader`

func scanPHPConfig(row scanner, extra ...any) (*PHPConfig, error) {
	var c PHPConfig
	dest := []any{&c.ID, &c.Description, &c.Binary, &c.FileExtensions, &c.ModFcgidStarter,
		&c.ModFcgidMaxRequests, &c.ModFcgidUmask, &c.FPMSlowlog, &c.FPMReqTerm, &c.FPMReqSlow,
		&c.PHPSettings, &c.FPMSettingID, &c.PassAuthHeader}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan php config: %w", err)
	}
	return &c, nil
}

type PHPConfigListParams struct{}

type PHPConfigGetParams struct {
	ID Number `json:"id" desc:"php config id"`
}

// PHPConfigParams are the parameters of PhpSettings.add and update.
type PHPConfigParams struct {
	ID                  Number  `json:"id" desc:"php config id, update only"`
	Description         *string `json:"description" desc:"1-50 characters, required on add"`
	PHPSettings         *string `json:"phpsettings" desc:"php.ini directives, required on add"`
	Binary              *string `json:"binary" desc:"php-cgi binary, required on add with mod_fcgid"`
	FPMConfig           *Number `json:"fpmconfig" desc:"fpm daemon id, required on add with php-fpm"`
	FileExtensions      *string `json:"file_extensions" desc:"default php"`
	ModFcgidStarter     *string `json:"mod_fcgid_starter" desc:"default -1"`
	ModFcgidMaxRequests *string `json:"mod_fcgid_maxrequests" desc:"default -1"`
	ModFcgidUmask       *string `json:"mod_fcgid_umask" desc:"default 022"`
	FPMEnableSlowlog    *Flag   `json:"phpfpm_enable_slowlog" desc:"default false"`
	FPMReqTermTimeout   *string `json:"phpfpm_reqtermtimeout" desc:"default 60s"`
	FPMReqSlowTimeout   *string `json:"phpfpm_reqslowtimeout" desc:"default 5s"`
	FPMPassAuthHeader   *Flag   `json:"phpfpm_pass_authorizationheader" desc:"default false"`
}

const (
	fileExtensionsPattern = `^[a-zA-Z0-9\s]*$`
	fpmTimeoutPattern     = `^([0-9]+)(|s|m|h|d)$`
	digitsPattern         = `^[0-9]*$`
)

func (s *Service) registerPhpSettings() {
	Register(s.registry, "PhpSettings", "list", "lists all php-config entries", s.PhpSettingsList)
	Register(s.registry, "PhpSettings", "get", "return a php-config entry by id", s.PhpSettingsGet)
	Register(s.registry, "PhpSettings", "add", "add a new php-config entry", s.PhpSettingsAdd)
	Register(s.registry, "PhpSettings", "update", "update a php-config entry by id", s.PhpSettingsUpdate)
	Register(s.registry, "PhpSettings", "delete", "delete a php-config entry by id", s.PhpSettingsDelete)
}

// PhpSettingsList lists every config with the domains using it.
func (s *Service) PhpSettingsList(ctx context.Context, c *Caller, _ PHPConfigListParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] list php-configs")
	q := s.db.SQL()
	st := s.settings

	rows, err := q.QueryContext(ctx, `SELECT `+phpConfigColumns+`, fd.description
		FROM panel_phpconfigs c
		LEFT JOIN panel_fpmdaemons fd ON fd.id = c.fpmsettingid
		ORDER BY c.description`)
	if err != nil {
		return nil, fmt.Errorf("list php configs: %w", err)
	}
	var list []PHPConfigListEntry
	for rows.Next() {
		var fpmDesc sql.NullString
		cfg, err := scanPHPConfig(rows, &fpmDesc)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, PHPConfigListEntry{PHPConfig: *cfg, FPMDesc: nullString(fpmDesc)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	domainQuery := "SELECT domain FROM panel_domains WHERE phpsettingid = ? AND parentdomainid = 0"
	var scope []any
	if !c.Admin.DomainsSeeAll {
		domainQuery += " AND adminid = ?"
		scope = append(scope, c.Admin.AdminID)
	}
	if st.Bool("panel.phpconfigs_hidestdsubdomain") {
		domainQuery += " AND id NOT IN (SELECT standardsubdomain FROM panel_customers WHERE standardsubdomain > 0)"
	}
	domainQuery += " ORDER BY domain"

	notUsed := i18n.T(ctx, "phpsettingsnotused")
	for i := range list {
		e := &list[i]
		domains, err := store.Strings(ctx, q, domainQuery, append([]any{e.ID}, scope...)...)
		if err != nil {
			return nil, err
		}
		if st.Int("system.mod_fcgid_defaultini_ownvhost") == e.ID || st.Int("phpfpm.vhost_defaultini") == e.ID {
			domains = append(domains, st.Get("system.hostname"))
		}
		if len(domains) == 0 {
			domains = []string{notUsed}
		}
		e.Domains = domains
		e.IsDefault = s.isDefaultPHPConfig(e.ID)
	}
	return newListing(list), nil
}

// isDefaultPHPConfig reports whether id is the default ini of the active
// php mode.
func (s *Service) isDefaultPHPConfig(id int64) bool {
	st := s.settings
	return (st.Bool("system.mod_fcgid") && st.Int("system.mod_fcgid_defaultini") == id) ||
		(st.Bool("phpfpm.enabled") && st.Int("phpfpm.defaultini") == id)
}

// isOwnVhostPHPConfig reports whether id serves the panel's own vhost.
func (s *Service) isOwnVhostPHPConfig(id int64) bool {
	st := s.settings
	return (st.Bool("system.mod_fcgid") && st.Int("system.mod_fcgid_defaultini_ownvhost") == id) ||
		(st.Bool("phpfpm.enabled") && st.Int("phpfpm.vhost_defaultini") == id)
}

// PhpSettingsGet returns a config by id.
func (s *Service) PhpSettingsGet(ctx context.Context, c *Caller, p PHPConfigGetParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	return getPHPConfig(ctx, s.db.SQL(), int64(p.ID))
}

func getPHPConfig(ctx context.Context, q store.Querier, id int64) (*PHPConfig, error) {
	cfg, err := scanPHPConfig(q.QueryRowContext(ctx, "SELECT "+phpConfigColumns+" FROM panel_phpconfigs c WHERE c.id = ?", id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(http.StatusNotFound, "phpconfnotfound", id)
	}
	return cfg, err
}

// fcgidNumber parses a starter/maxrequests value: digits, -1 or empty.
func fcgidNumber(field, v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1, nil
	}
	if validation.ValidateFcgidNumber(v) != nil {
		return 0, wrongField(field)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, wrongField(field)
	}
	return n, nil
}

// applyPHPConfig validates p onto cfg according to the active php mode.
func (s *Service) applyPHPConfig(cfg *PHPConfig, p PHPConfigParams) error {
	st := s.settings
	var err error

	cfg.Description = strings.TrimSpace(strOr(p.Description, cfg.Description))
	if cfg.PHPSettings, err = validation.ValidateText(strOr(p.PHPSettings, cfg.PHPSettings)); err != nil {
		return wrongField("phpsettings")
	}

	switch {
	case st.Bool("system.mod_fcgid"):
		cfg.Binary = validation.MakeCorrectFile(strOr(p.Binary, cfg.Binary))
		cfg.FileExtensions = strOr(p.FileExtensions, cfg.FileExtensions)
		if validation.ValidateRegex(cfg.FileExtensions, fileExtensionsPattern) != nil {
			return wrongField("file_extensions")
		}
		if cfg.ModFcgidStarter, err = fcgidNumber("mod_fcgid_starter",
			strOr(p.ModFcgidStarter, strconv.FormatInt(cfg.ModFcgidStarter, 10))); err != nil {
			return err
		}
		if cfg.ModFcgidMaxRequests, err = fcgidNumber("mod_fcgid_maxrequests",
			strOr(p.ModFcgidMaxRequests, strconv.FormatInt(cfg.ModFcgidMaxRequests, 10))); err != nil {
			return err
		}
		cfg.ModFcgidUmask = strOr(p.ModFcgidUmask, cfg.ModFcgidUmask)
		if validation.ValidateRegex(cfg.ModFcgidUmask, digitsPattern) != nil {
			return wrongField("mod_fcgid_umask")
		}
		cfg.FPMSettingID = 1
		cfg.FPMSlowlog = false
		cfg.FPMReqTerm, cfg.FPMReqSlow = "0", "0"
		cfg.PassAuthHeader = false

	case st.Bool("phpfpm.enabled"):
		cfg.FPMSettingID = intOr(p.FPMConfig, cfg.FPMSettingID)
		cfg.FPMSlowlog = flagOr(p.FPMEnableSlowlog, cfg.FPMSlowlog)
		cfg.PassAuthHeader = flagOr(p.FPMPassAuthHeader, cfg.PassAuthHeader)
		cfg.FPMReqTerm = strOr(p.FPMReqTermTimeout, cfg.FPMReqTerm)
		if validation.ValidateRegex(cfg.FPMReqTerm, fpmTimeoutPattern) != nil {
			return wrongField("phpfpm_reqtermtimeout")
		}
		cfg.FPMReqSlow = strOr(p.FPMReqSlowTimeout, cfg.FPMReqSlow)
		if validation.ValidateRegex(cfg.FPMReqSlow, fpmTimeoutPattern) != nil {
			return wrongField("phpfpm_reqslowtimeout")
		}
		cfg.Binary = "/usr/bin/php-cgi"
		cfg.FileExtensions = "php"
		cfg.ModFcgidStarter, cfg.ModFcgidMaxRequests = 0, 0
		cfg.ModFcgidUmask = "022"
	}

	if n := len([]rune(cfg.Description)); n == 0 || n > 50 {
		return invalid("descriptioninvalid")
	}
	return nil
}

// PhpSettingsAdd creates a php config.
func (s *Service) PhpSettingsAdd(ctx context.Context, c *Caller, p PHPConfigParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	if p.Description == nil {
		return nil, newError(http.StatusBadRequest, "mandatoryfield", i18n.Label("mydescription"))
	}
	if p.PHPSettings == nil {
		return nil, newError(http.StatusBadRequest, "mandatoryfield", "phpsettings")
	}
	if s.settings.Bool("system.mod_fcgid") && p.Binary == nil {
		return nil, newError(http.StatusBadRequest, "mandatoryfield", "binary")
	}
	if !s.settings.Bool("system.mod_fcgid") && s.settings.Bool("phpfpm.enabled") && p.FPMConfig == nil {
		return nil, newError(http.StatusBadRequest, "mandatoryfield", "fpmconfig")
	}

	cfg := &PHPConfig{
		FileExtensions:      "php",
		ModFcgidStarter:     -1,
		ModFcgidMaxRequests: -1,
		ModFcgidUmask:       "022",
		FPMReqTerm:          "60s",
		FPMReqSlow:          "5s",
		FPMSettingID:        1,
	}
	if err := s.applyPHPConfig(cfg, p); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(q store.Querier) error {
		res, err := q.ExecContext(ctx, `
			INSERT INTO panel_phpconfigs (description, binary, file_extensions, mod_fcgid_starter,
				mod_fcgid_maxrequests, mod_fcgid_umask, fpm_slowlog, fpm_reqterm, fpm_reqslow,
				phpsettings, fpmsettingid, pass_authorizationheader)
			VALUES (`+placeholders(12)+`)`,
			cfg.Description, cfg.Binary, cfg.FileExtensions, cfg.ModFcgidStarter,
			cfg.ModFcgidMaxRequests, cfg.ModFcgidUmask, cfg.FPMSlowlog, cfg.FPMReqTerm, cfg.FPMReqSlow,
			cfg.PHPSettings, cfg.FPMSettingID, cfg.PassAuthHeader)
		if err != nil {
			return fmt.Errorf("insert php config: %w", err)
		}
		if cfg.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		if _, err := s.tasks.Insert(ctx, q, tasks.RebuildVhost, ""); err != nil {
			return err
		}
		return s.logAction(ctx, q, c, slog.LevelInfo, fmt.Sprintf(
			"[API] php setting with description '%s' has been created by '%s'", cfg.Description, c.LoginName()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventPHPConfigChanged, c, cfg.ID, cfg.Description, "add")
	return cfg, nil
}

// PhpSettingsUpdate changes a php config.
func (s *Service) PhpSettingsUpdate(ctx context.Context, c *Caller, p PHPConfigParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}

	var cfg *PHPConfig
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		cur, err := getPHPConfig(ctx, q, int64(p.ID))
		if err != nil {
			return err
		}
		if err := s.applyPHPConfig(cur, p); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			UPDATE panel_phpconfigs SET description = ?, binary = ?, file_extensions = ?,
				mod_fcgid_starter = ?, mod_fcgid_maxrequests = ?, mod_fcgid_umask = ?,
				fpm_slowlog = ?, fpm_reqterm = ?, fpm_reqslow = ?, phpsettings = ?,
				fpmsettingid = ?, pass_authorizationheader = ?
			WHERE id = ?`,
			cur.Description, cur.Binary, cur.FileExtensions,
			cur.ModFcgidStarter, cur.ModFcgidMaxRequests, cur.ModFcgidUmask,
			cur.FPMSlowlog, cur.FPMReqTerm, cur.FPMReqSlow, cur.PHPSettings,
			cur.FPMSettingID, cur.PassAuthHeader, cur.ID)
		if err != nil {
			return fmt.Errorf("update php config #%d: %w", cur.ID, err)
		}
		if _, err := s.tasks.Insert(ctx, q, tasks.RebuildVhost, ""); err != nil {
			return err
		}
		cfg = cur
		return s.logAction(ctx, q, c, slog.LevelInfo, fmt.Sprintf(
			"[API] php setting with description '%s' has been updated by '%s'", cur.Description, c.LoginName()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventPHPConfigChanged, c, cfg.ID, cfg.Description, "update")
	return cfg, nil
}

// PhpSettingsDelete removes a php config. Domains using it fall back to
// config #1.
func (s *Service) PhpSettingsDelete(ctx context.Context, c *Caller, p PHPConfigGetParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}

	var cfg *PHPConfig
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		cur, err := getPHPConfig(ctx, q, int64(p.ID))
		if err != nil {
			return err
		}
		if s.isOwnVhostPHPConfig(cur.ID) {
			return invalid("cannotdeletehostnamephpconfig")
		}
		if s.isDefaultPHPConfig(cur.ID) {
			return invalid("cannotdeletedefaultphpconfig")
		}
		if _, err := q.ExecContext(ctx, "UPDATE panel_domains SET phpsettingid = 1 WHERE phpsettingid = ?", cur.ID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM panel_phpconfigs WHERE id = ?", cur.ID); err != nil {
			return fmt.Errorf("delete php config #%d: %w", cur.ID, err)
		}
		if _, err := s.tasks.Insert(ctx, q, tasks.RebuildVhost, ""); err != nil {
			return err
		}
		cfg = cur
		return s.logAction(ctx, q, c, slog.LevelInfo, fmt.Sprintf(
			"[API] php setting '%s' has been deleted by '%s'", cur.Description, c.LoginName()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventPHPConfigChanged, c, cfg.ID, cfg.Description, "delete")
	return cfg, nil
}
