package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/resolver"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/validation"
)

// DomainAddParams are the parameters of Domains.add.
type DomainAddParams struct {
	Domain              string  `json:"domain" desc:"domain name, IDN allowed"`
	CustomerID          Number  `json:"customerid" desc:"owning customer"`
	AdminID             *Number `json:"adminid" desc:"owning admin, only with customers_see_all, default the caller"`
	IPAndPort           *IDList `json:"ipandport" desc:"ip/port ids, default system.defaultip"`
	SSLIPAndPort        *IDList `json:"ssl_ipandport" desc:"ssl ip/port ids, default system.defaultsslip"`
	SubCanEmailDomain   *Number `json:"subcanemaildomain" desc:"0 never, 1 choosable default no, 2 choosable default yes, 3 always"`
	IsEmailDomain       *Flag   `json:"isemaildomain" desc:"default false"`
	EmailOnly           *Flag   `json:"email_only" desc:"default false"`
	SelectServerAlias   *Number `json:"selectserveralias" desc:"0 wildcard, 1 www alias, 2 none, default 0"`
	SpecialLogfile      *Flag   `json:"speciallogfile" desc:"default false"`
	Alias               *Number `json:"alias" desc:"id of the domain this one is an alias of, default 0"`
	IsSubOf             *Number `json:"issubof" desc:"id of the main domain this one logically belongs to, default 0"`
	RegistrationDate    *string `json:"registration_date" desc:"YYYY-MM-DD"`
	TerminationDate     *string `json:"termination_date" desc:"YYYY-MM-DD"`
	CanEditDomain       *Flag   `json:"caneditdomain" desc:"default false"`
	IsBindDomain        *Flag   `json:"isbinddomain" desc:"default false"`
	Zonefile            *string `json:"zonefile" desc:"custom zone file, only with system.bind_enable"`
	DKIM                *Flag   `json:"dkim" desc:"default false"`
	SpecialSettings     *string `json:"specialsettings" desc:"extra webserver directives"`
	NoTryFiles          *Flag   `json:"notryfiles" desc:"default false"`
	DocumentRoot        *string `json:"documentroot" desc:"default the customer's documentroot"`
	PHPEnabled          *Flag   `json:"phpenabled" desc:"default false"`
	OpenBasedir         *Flag   `json:"openbasedir" desc:"default false"`
	PHPSettingID        *Number `json:"phpsettingid" desc:"php config id, default 1"`
	ModFcgidStarter     *Number `json:"mod_fcgid_starter" desc:"default -1"`
	ModFcgidMaxRequests *Number `json:"mod_fcgid_maxrequests" desc:"default -1"`
	SSLRedirect         *Flag   `json:"ssl_redirect" desc:"default false"`
	LetsEncrypt         *Flag   `json:"letsencrypt" desc:"default false"`
	HTTP2               *Flag   `json:"http2" desc:"default false"`
	HSTSMaxAge          *Number `json:"hsts_maxage" desc:"default 0"`
	HSTSSub             *Flag   `json:"hsts_sub" desc:"default false"`
	HSTSPreload         *Flag   `json:"hsts_preload" desc:"default false"`
	OCSPStapling        *Flag   `json:"ocsp_stapling" desc:"default false"`
}

// DomainUpdateParams are the parameters of Domains.update. Nil fields keep
// the current value.
type DomainUpdateParams struct {
	ID                           Number  `json:"id" desc:"domain id"`
	CustomerID                   *Number `json:"customerid" desc:"move to customer, needs panel.allow_domain_change_customer"`
	AdminID                      *Number `json:"adminid" desc:"move to admin, needs panel.allow_domain_change_admin"`
	IPAndPort                    *IDList `json:"ipandport"`
	SSLIPAndPort                 *IDList `json:"ssl_ipandport"`
	SubCanEmailDomain            *Number `json:"subcanemaildomain"`
	IsEmailDomain                *Flag   `json:"isemaildomain"`
	EmailOnly                    *Flag   `json:"email_only"`
	SelectServerAlias            *Number `json:"selectserveralias"`
	SpecialLogfile               *Flag   `json:"speciallogfile"`
	SpecialLogVerified           *Flag   `json:"speciallogverified" desc:"confirm the speciallogfile change"`
	Alias                        *Number `json:"alias"`
	IsSubOf                      *Number `json:"issubof"`
	RegistrationDate             *string `json:"registration_date"`
	TerminationDate              *string `json:"termination_date"`
	CanEditDomain                *Flag   `json:"caneditdomain"`
	IsBindDomain                 *Flag   `json:"isbinddomain"`
	Zonefile                     *string `json:"zonefile"`
	DKIM                         *Flag   `json:"dkim"`
	SpecialSettings              *string `json:"specialsettings"`
	SpecialSettingsForSubdomains *Flag   `json:"specialsettingsforsubdomains" desc:"copy specialsettings to subdomains, default false"`
	NoTryFiles                   *Flag   `json:"notryfiles"`
	DocumentRoot                 *string `json:"documentroot"`
	PHPEnabled                   *Flag   `json:"phpenabled"`
	PHPSettingsForSubdomains     *Flag   `json:"phpsettingsforsubdomains" desc:"copy the php config to subdomains, default false"`
	OpenBasedir                  *Flag   `json:"openbasedir"`
	PHPSettingID                 *Number `json:"phpsettingid"`
	ModFcgidStarter              *Number `json:"mod_fcgid_starter"`
	ModFcgidMaxRequests          *Number `json:"mod_fcgid_maxrequests"`
	SSLRedirect                  *Flag   `json:"ssl_redirect"`
	LetsEncrypt                  *Flag   `json:"letsencrypt"`
	HTTP2                        *Flag   `json:"http2"`
	HSTSMaxAge                   *Number `json:"hsts_maxage"`
	HSTSSub                      *Flag   `json:"hsts_sub"`
	HSTSPreload                  *Flag   `json:"hsts_preload"`
	OCSPStapling                 *Flag   `json:"ocsp_stapling"`
}

// DomainsAdd creates a top-level domain for a customer.
func (s *Service) DomainsAdd(ctx context.Context, c *Caller, p DomainAddParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	admin := c.Admin
	if admin.Domains != -1 && admin.DomainsUsed >= admin.Domains {
		return nil, errNoResources()
	}
	st := s.settings

	input := strings.TrimSpace(p.Domain)
	if input == st.Get("system.hostname") {
		return nil, invalid("admin_domain_emailsystemhostname")
	}
	if strings.HasPrefix(strings.ToLower(input), "xn--") {
		return nil, invalid("domain_nopunycode")
	}
	if input == "" {
		return nil, emptyField("mydomain")
	}
	name, err := validation.NormalizeDomain(input)
	if err != nil {
		return nil, wrongField("mydomain")
	}
	if st.Bool("system.validate_domain") && validation.ValidateDomain(name) != nil {
		return nil, wrongField("mydomain")
	}
	if p.CustomerID == 0 {
		return nil, invalid("adduserfirst")
	}

	var created *Domain
	var plainIPs []int64
	err = s.db.WithTx(ctx, func(q store.Querier) error {
		customer, err := s.visibleCustomer(ctx, q, c, int64(p.CustomerID))
		if err != nil {
			return err
		}

		adminID := admin.AdminID
		if admin.CustomersSeeAll {
			adminID = intOr(p.AdminID, admin.AdminID)
			if err := adminHasDomainQuota(ctx, q, adminID); err != nil {
				return err
			}
		}

		d := &Domain{
			Domain:            name,
			AdminID:           adminID,
			CustomerID:        customer.CustomerID,
			IsEmailDomain:     flagOr(p.IsEmailDomain, false),
			EmailOnly:         flagOr(p.EmailOnly, false),
			SubCanEmailDomain: intOr(p.SubCanEmailDomain, 0),
			CanEditDomain:     flagOr(p.CanEditDomain, false),
			DKIM:              flagOr(p.DKIM, false),
			PHPEnabled:        flagOr(p.PHPEnabled, false),
			OpenBasedir:       flagOr(p.OpenBasedir, false),
			SpecialLogfile:    flagOr(p.SpecialLogfile, false),
			NoTryFiles:        flagOr(p.NoTryFiles, false),
			IsMainButSubTo:    intOr(p.IsSubOf, 0),
			AddDate:           s.db.Now(),
		}

		docroot := strings.TrimSpace(strOr(p.DocumentRoot, ""))
		switch {
		case docroot == "":
			docroot = customer.DocumentRoot
			if st.Bool("system.documentroot_use_default_value") {
				docroot = validation.MakeCorrectDir(customer.DocumentRoot + "/" + name)
			}
		case !strings.HasPrefix(docroot, "/") && !validation.IsURL(docroot):
			docroot = customer.DocumentRoot + "/" + docroot
		}
		d.DocumentRoot = docroot

		if err := applyDates(d, strOr(p.RegistrationDate, ""), strOr(p.TerminationDate, "")); err != nil {
			return err
		}

		if st.Bool("system.bind_enable") {
			zone, err := validation.ValidateText(strOr(p.Zonefile, ""))
			if err != nil {
				return wrongField("zonefile")
			}
			d.Zonefile = zone
			d.IsBindDomain = flagOr(p.IsBindDomain, false)
		}

		special, err := validation.ValidateText(strOr(p.SpecialSettings, ""))
		if err != nil {
			return wrongField("specialsettings")
		}
		d.SpecialSettings = special

		if err := s.applyPHP(ctx, q, d, intOr(p.PHPSettingID, 1),
			intOr(p.ModFcgidStarter, -1), intOr(p.ModFcgidMaxRequests, -1), nil); err != nil {
			return err
		}

		ipList := idsOr(p.IPAndPort, st.IDList("system.defaultip"))
		if len(ipList) == 0 {
			return newError(406, "noipsgiven")
		}
		plain, ssl, err := s.resolveIPs(ctx, q, admin, ipList, idsOr(p.SSLIPAndPort, st.IDList("system.defaultsslip")))
		if err != nil {
			return err
		}

		d.SSLRedirect = boolInt(flagOr(p.SSLRedirect, false))
		d.LetsEncrypt = flagOr(p.LetsEncrypt, false)
		d.HTTP2 = flagOr(p.HTTP2, false)
		d.HSTS = strconv.FormatInt(intOr(p.HSTSMaxAge, 0), 10)
		d.HSTSSub = flagOr(p.HSTSSub, false)
		d.HSTSPreload = flagOr(p.HSTSPreload, false)
		d.OCSPStapling = flagOr(p.OCSPStapling, false)
		if len(ssl) == 0 {
			resetSSL(d)
		}

		aliasOpt := normalizeServerAlias(intOr(p.SelectServerAlias, 0))
		if err := checkWildcardLetsEncrypt(aliasOpt, d.LetsEncrypt, st.Get("system.leapiversion")); err != nil {
			return err
		}
		if d.SSLRedirect > 0 && d.LetsEncrypt {
			d.SSLRedirect = 2
		}

		if err := checkDocumentRoot(d); err != nil {
			return err
		}

		exists, err := store.Exists(ctx, q, "SELECT id FROM panel_domains WHERE domain = ?", name)
		if err != nil {
			return err
		}
		if exists {
			return invalid("domainalreadyexists", validation.DomainToUnicode(name))
		}

		if alias := intOr(p.Alias, 0); alias != 0 {
			plain, ssl, err = domainIPs(ctx, q, alias)
			if err != nil {
				return err
			}
			if err := checkAliasTarget(ctx, q, customer.CustomerID, alias); err != nil {
				return err
			}
			d.AliasDomain = &alias
		}
		if len(plain) == 0 {
			return invalid("noipportgiven")
		}

		normalizeDomainFlags(d, aliasOpt)
		if d.DocumentRoot == "" {
			return emptyField("mydocumentroot")
		}

		id, err := insertDomain(ctx, q, d)
		if err != nil {
			return err
		}
		d.ID = id

		if _, err := q.ExecContext(ctx,
			"UPDATE panel_admins SET domains_used = domains_used + 1 WHERE adminid = ?", adminID); err != nil {
			return err
		}
		if err := mapDomainIPs(ctx, q, []int64{id}, plain, ssl); err != nil {
			return err
		}
		if err := s.tasks.InsertAll(ctx, q, tasks.RebuildVhost, tasks.RebuildDNS); err != nil {
			return err
		}
		if err := s.logAction(ctx, q, c, slog.LevelWarn,
			fmt.Sprintf("[API] added domain '%s'", name), nil); err != nil {
			return err
		}
		created = d
		plainIPs = append(plain, ssl...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(events.EventDomainChanged, c, created.ID, created.Domain, "add")
	if created.LetsEncrypt {
		s.checkLetsEncryptDNS(ctx, created.Domain, plainIPs)
	}
	return created, nil
}

// DomainsUpdate changes a top-level domain and propagates the inherited
// settings to its subdomains.
func (s *Service) DomainsUpdate(ctx context.Context, c *Caller, p DomainUpdateParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	st := s.settings
	admin := c.Admin

	var updated *Domain
	var allIPs []int64
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		cur, err := s.getDomain(ctx, q, c, int64(p.ID), true)
		if err != nil {
			return err
		}
		d := *cur

		customer, err := store.GetCustomer(ctx, q, cur.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer of domain #%d: %w", cur.ID, err)
		}

		// Moving to another customer.
		var move *resourceUsage
		if newID := intOr(p.CustomerID, cur.CustomerID); newID > 0 && newID != cur.CustomerID &&
			st.Bool("panel.allow_domain_change_customer") {
			usage, err := domainUsage(ctx, q, cur.ID)
			if err != nil {
				return err
			}
			target, err := s.customerWithRoom(ctx, q, c, newID, usage)
			if err != nil {
				return err
			}
			customer = target
			d.CustomerID = target.CustomerID
			move = usage
		}

		// Moving to another admin.
		if admin.CustomersSeeAll && st.Bool("panel.allow_domain_change_admin") {
			if newID := intOr(p.AdminID, cur.AdminID); newID > 0 && newID != cur.AdminID {
				if err := adminHasDomainQuota(ctx, q, newID); err != nil {
					return err
				}
				d.AdminID = newID
			}
		}

		if err := applyDates(&d, strOr(p.RegistrationDate, deref(cur.RegistrationDate)),
			strOr(p.TerminationDate, deref(cur.TerminationDate))); err != nil {
			return err
		}

		aliasOpt := cur.serverAliasOption()
		if p.SelectServerAlias != nil && *p.SelectServerAlias > -1 {
			aliasOpt = int64(*p.SelectServerAlias)
		}

		if st.Bool("system.bind_enable") {
			zone, err := validation.ValidateText(strOr(p.Zonefile, cur.Zonefile))
			if err != nil {
				return wrongField("zonefile")
			}
			d.Zonefile = zone
			d.IsBindDomain = flagOr(p.IsBindDomain, cur.IsBindDomain)
		}
		if st.Bool("dkim.use_dkim") {
			d.DKIM = flagOr(p.DKIM, cur.DKIM)
		}

		special, err := validation.ValidateText(strOr(p.SpecialSettings, cur.SpecialSettings))
		if err != nil {
			return wrongField("specialsettings")
		}
		d.SpecialSettings = special
		ssfs := flagOr(p.SpecialSettingsForSubdomains, false)

		d.DocumentRoot = strings.TrimSpace(strOr(p.DocumentRoot, cur.DocumentRoot))
		if d.DocumentRoot == "" {
			d.DocumentRoot = customer.DocumentRoot
			if st.Bool("system.documentroot_use_default_value") {
				d.DocumentRoot = validation.MakeCorrectDir(customer.DocumentRoot + "/" + cur.Domain)
			}
		}
		if err := checkDocumentRoot(&d); err != nil {
			return err
		}

		d.PHPEnabled = flagOr(p.PHPEnabled, cur.PHPEnabled)
		d.OpenBasedir = flagOr(p.OpenBasedir, cur.OpenBasedir)
		phpfs := flagOr(p.PHPSettingsForSubdomains, false)
		if st.Bool("system.mod_fcgid") || st.Bool("phpfpm.enabled") {
			if err := s.applyPHP(ctx, q, &d, intOr(p.PHPSettingID, cur.PHPSettingID),
				intOr(p.ModFcgidStarter, cur.ModFcgidStarter),
				intOr(p.ModFcgidMaxRequests, cur.ModFcgidMaxRequests), cur); err != nil {
				return err
			}
		} else {
			phpfs = true
		}

		curPlain, curSSL, err := domainIPs(ctx, q, cur.ID)
		if err != nil {
			return err
		}
		plain, ssl, err := s.resolveIPs(ctx, q, admin, idsOr(p.IPAndPort, curPlain), idsOr(p.SSLIPAndPort, curSSL))
		if err != nil {
			return err
		}

		d.SSLRedirect = cur.SSLRedirect
		if p.SSLRedirect != nil {
			d.SSLRedirect = boolInt(bool(*p.SSLRedirect))
		}
		d.LetsEncrypt = flagOr(p.LetsEncrypt, cur.LetsEncrypt)
		d.HTTP2 = flagOr(p.HTTP2, cur.HTTP2)
		if p.HSTSMaxAge != nil {
			d.HSTS = strconv.FormatInt(int64(*p.HSTSMaxAge), 10)
		}
		d.HSTSSub = flagOr(p.HSTSSub, cur.HSTSSub)
		d.HSTSPreload = flagOr(p.HSTSPreload, cur.HSTSPreload)
		d.OCSPStapling = flagOr(p.OCSPStapling, cur.OCSPStapling)
		if len(ssl) == 0 {
			resetSSL(&d)
		}

		if err := checkWildcardLetsEncrypt(normalizeServerAlias(aliasOpt), d.LetsEncrypt, st.Get("system.leapiversion")); err != nil {
			return err
		}
		if d.SSLRedirect > 0 && d.LetsEncrypt && !cur.LetsEncrypt {
			d.SSLRedirect = 2
		}

		d.IsEmailDomain = flagOr(p.IsEmailDomain, cur.IsEmailDomain)
		d.EmailOnly = flagOr(p.EmailOnly, cur.EmailOnly)
		d.SubCanEmailDomain = intOr(p.SubCanEmailDomain, cur.SubCanEmailDomain)
		d.CanEditDomain = flagOr(p.CanEditDomain, cur.CanEditDomain)
		d.NoTryFiles = flagOr(p.NoTryFiles, cur.NoTryFiles)
		d.IsMainButSubTo = intOr(p.IsSubOf, cur.IsMainButSubTo)

		d.AliasDomain = nil
		if alias := intOr(p.Alias, deref(cur.AliasDomain)); alias != 0 {
			plain, ssl, err = domainIPs(ctx, q, alias)
			if err != nil {
				return err
			}
			if err := checkAliasTarget(ctx, q, d.CustomerID, alias); err != nil {
				return err
			}
			d.AliasDomain = &alias
		}
		if len(plain) == 0 {
			return invalid("noipportgiven")
		}
		normalizeDomainFlags(&d, aliasOpt)

		if vhostChanged(cur, &d, flagOr(p.SpecialLogVerified, false) && flagOr(p.SpecialLogfile, cur.SpecialLogfile) != cur.SpecialLogfile) {
			if _, err := s.tasks.Insert(ctx, q, tasks.RebuildVhost, ""); err != nil {
				return err
			}
		}
		if flagOr(p.SpecialLogVerified, false) {
			d.SpecialLogfile = flagOr(p.SpecialLogfile, cur.SpecialLogfile)
		}
		if d.IsBindDomain != cur.IsBindDomain || d.Zonefile != cur.Zonefile || d.DKIM != cur.DKIM {
			if _, err := s.tasks.Insert(ctx, q, tasks.RebuildDNS, ""); err != nil {
				return err
			}
		}

		if !d.IsEmailDomain && cur.IsEmailDomain {
			for _, table := range []string{"mail_users", "mail_virtual"} {
				if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE domainid = ?", cur.ID); err != nil {
					return err
				}
			}
			if err := s.logAction(ctx, q, c, slog.LevelInfo, fmt.Sprintf(
				"[API] deleted domain #%d from mail-tables as is-email-domain was set to 0", cur.ID), nil); err != nil {
				return err
			}
		}

		if !d.LetsEncrypt && cur.LetsEncrypt {
			if _, err := q.ExecContext(ctx, "DELETE FROM domain_ssl_settings WHERE domainid = ?", cur.ID); err != nil {
				return err
			}
		}

		if move != nil {
			if err := moveDomainUsage(ctx, q, cur.ID, cur.CustomerID, d.CustomerID, move); err != nil {
				return err
			}
		}
		if d.AdminID != cur.AdminID {
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_admins SET domains_used = domains_used + 1 WHERE adminid = ?", d.AdminID); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_admins SET domains_used = MAX(domains_used - 1, 0) WHERE adminid = ?", cur.AdminID); err != nil {
				return err
			}
		}

		if !ssfs {
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_domains SET specialsettings = '' WHERE parentdomainid = ?", cur.ID); err != nil {
				return err
			}
			if err := s.logAction(ctx, q, c, slog.LevelInfo, fmt.Sprintf(
				"[API] removed specialsettings on all subdomains of domain #%d", cur.ID), nil); err != nil {
				return err
			}
		}

		if err := updateDomain(ctx, q, &d); err != nil {
			return err
		}
		if err := updateSubdomains(ctx, q, cur, &d, phpfs, ssfs, len(ssl) == 0); err != nil {
			return err
		}

		// The ip mapping is rebuilt unconditionally, so is the vhost config.
		if _, err := s.tasks.Insert(ctx, q, tasks.RebuildVhost, ""); err != nil {
			return err
		}
		subs, err := store.Int64s(ctx, q, "SELECT id FROM panel_domains WHERE parentdomainid = ?", cur.ID)
		if err != nil {
			return err
		}
		if err := mapDomainIPs(ctx, q, append([]int64{cur.ID}, subs...), plain, ssl); err != nil {
			return err
		}

		var details map[string]any
		if diff := domainDiff(cur, &d); diff != "" {
			details = map[string]any{"diff": diff}
		}
		if err := s.logAction(ctx, q, c, slog.LevelWarn,
			fmt.Sprintf("[API] updated domain '%s'", cur.Domain), details); err != nil {
			return err
		}
		updated = &d
		allIPs = append(plain, ssl...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(events.EventDomainChanged, c, updated.ID, updated.Domain, "update")
	if updated.LetsEncrypt {
		s.checkLetsEncryptDNS(ctx, updated.Domain, allIPs)
	}
	return updated, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// visibleCustomer loads a customer the admin caller may manage.
func (s *Service) visibleCustomer(ctx context.Context, q store.Querier, c *Caller, id int64) (*store.Customer, error) {
	cust, err := store.GetCustomer(ctx, q, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("customerdoesntexist")
	}
	if err != nil {
		return nil, err
	}
	if !c.Admin.CustomersSeeAll && cust.AdminID != c.Admin.AdminID {
		return nil, invalid("customerdoesntexist")
	}
	return cust, nil
}

func adminHasDomainQuota(ctx context.Context, q store.Querier, adminID int64) error {
	ok, err := store.Exists(ctx, q,
		"SELECT adminid FROM panel_admins WHERE adminid = ? AND (domains_used < domains OR domains = -1)", adminID)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("admindoesntexist")
	}
	return nil
}

func applyDates(d *Domain, reg, term string) error {
	fields := []struct {
		name  string
		value string
		dst   **string
	}{
		{"registration_date", strings.TrimSpace(reg), &d.RegistrationDate},
		{"termination_date", strings.TrimSpace(term), &d.TerminationDate},
	}
	for _, f := range fields {
		if validation.IsEmptyDate(f.value) {
			*f.dst = nil
			continue
		}
		if err := validation.ValidateDate(f.value); err != nil {
			return wrongField(f.name)
		}
		v := f.value
		*f.dst = &v
	}
	return nil
}

// applyPHP validates the php config and fcgid limits. With neither fcgid
// nor fpm active the mode's default config is used; cur is the row being
// updated (nil on add) and keeps its values in that case.
func (s *Service) applyPHP(ctx context.Context, q store.Querier, d *Domain, settingID, starter, maxRequests int64, cur *Domain) error {
	st := s.settings
	fcgid, fpm := st.Bool("system.mod_fcgid"), st.Bool("phpfpm.enabled")
	if !fcgid && !fpm {
		if cur != nil {
			d.PHPSettingID, d.ModFcgidStarter, d.ModFcgidMaxRequests = cur.PHPSettingID, cur.ModFcgidStarter, cur.ModFcgidMaxRequests
			return nil
		}
		d.PHPSettingID = st.Int("system.mod_fcgid_defaultini")
		d.ModFcgidStarter, d.ModFcgidMaxRequests = -1, -1
		return nil
	}

	ok, err := store.Exists(ctx, q, "SELECT id FROM panel_phpconfigs WHERE id = ?", settingID)
	if err != nil {
		return err
	}
	if !ok || settingID == 0 {
		return invalid("phpsettingidwrong")
	}
	d.PHPSettingID = settingID

	switch {
	case fcgid:
		if starter < -1 {
			return wrongField("mod_fcgid_starter")
		}
		if maxRequests < -1 {
			return wrongField("mod_fcgid_maxrequests")
		}
		d.ModFcgidStarter, d.ModFcgidMaxRequests = starter, maxRequests
	case cur != nil:
		d.ModFcgidStarter, d.ModFcgidMaxRequests = cur.ModFcgidStarter, cur.ModFcgidMaxRequests
	default:
		d.ModFcgidStarter, d.ModFcgidMaxRequests = -1, -1
	}
	return nil
}

// resolveIPs checks the requested ip/port ids. SSL ids are dropped unless
// system.use_ssl is on; ids below 1 in the SSL list mean "none".
func (s *Service) resolveIPs(ctx context.Context, q store.Querier, admin *store.Admin, plain, ssl []int64) ([]int64, []int64, error) {
	restrictIP := ""
	if admin.IP != -1 {
		ip, err := ipOf(ctx, q, admin.IP)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		restrictIP = ip
	}

	check := func(id int64) error {
		query := "SELECT id FROM panel_ipsandports WHERE id = ?"
		args := []any{id}
		if admin.IP != -1 {
			query += " AND ip = ?"
			args = append(args, restrictIP)
		}
		ok, err := store.Exists(ctx, q, query, args...)
		if err != nil {
			return err
		}
		if !ok {
			return invalid("ipportdoesntexist")
		}
		return nil
	}

	var outPlain, outSSL []int64
	for _, id := range plain {
		if err := check(id); err != nil {
			return nil, nil, err
		}
		outPlain = append(outPlain, id)
	}
	if !s.settings.Bool("system.use_ssl") {
		return outPlain, nil, nil
	}
	for _, id := range ssl {
		if id < 1 {
			continue
		}
		if err := check(id); err != nil {
			return nil, nil, err
		}
		outSSL = append(outSSL, id)
	}
	return outPlain, outSSL, nil
}

func ipOf(ctx context.Context, q store.Querier, id int64) (string, error) {
	ips, err := store.Strings(ctx, q, "SELECT ip FROM panel_ipsandports WHERE id = ?", id)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", store.ErrNotFound
	}
	return ips[0], nil
}

func resetSSL(d *Domain) {
	d.SSLRedirect = 0
	d.LetsEncrypt = false
	d.HTTP2 = false
	d.HSTS = "0"
	d.HSTSSub = false
	d.HSTSPreload = false
	d.OCSPStapling = false
}

func normalizeServerAlias(opt int64) int64 {
	if opt == 1 || opt == 2 {
		return opt
	}
	return 0
}

// checkWildcardLetsEncrypt rejects a "*." server alias on a Let's Encrypt
// domain for the ACME versions known not to issue it.
func checkWildcardLetsEncrypt(aliasOpt int64, letsencrypt bool, apiVersion string) error {
	if aliasOpt != 0 || !letsencrypt {
		return nil
	}
	switch apiVersion {
	case "1":
		return invalid("nowildcardwithletsencrypt")
	case "2":
		return invalid("nowildcardwithletsencryptv2")
	}
	return nil
}

// checkDocumentRoot rejects colons in paths and normalizes local paths.
// Redirect URLs are kept as given.
func checkDocumentRoot(d *Domain) error {
	if validation.IsURL(d.DocumentRoot) {
		return nil
	}
	if strings.Contains(d.DocumentRoot, ":") {
		return invalid("pathmaynotcontaincolon")
	}
	d.DocumentRoot = validation.MakeCorrectDir(d.DocumentRoot)
	return nil
}

// checkAliasTarget verifies that alias belongs to the customer, is not an
// alias itself and is not the standard subdomain.
func checkAliasTarget(ctx context.Context, q store.Querier, customerID, alias int64) error {
	ok, err := store.Exists(ctx, q, `
		SELECT d.id FROM panel_domains d, panel_customers c
		WHERE d.customerid = ? AND d.aliasdomain IS NULL AND d.id <> c.standardsubdomain
		AND c.customerid = ? AND d.id = ?`, customerID, customerID, alias)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("domainisaliasorothercustomer")
	}
	return nil
}

func normalizeDomainFlags(d *Domain, aliasOpt int64) {
	if d.EmailOnly {
		d.IsEmailDomain = true
	}
	if d.SubCanEmailDomain < 0 || d.SubCanEmailDomain > 3 {
		d.SubCanEmailDomain = 0
	}
	if d.IsMainButSubTo < 0 {
		d.IsMainButSubTo = 0
	}
	aliasOpt = normalizeServerAlias(aliasOpt)
	d.WWWServerAlias = aliasOpt == 1
	d.IsWildcardDomain = aliasOpt == 0
}

// vhostChanged reports whether a field that ends up in the webserver
// config differs.
func vhostChanged(cur, d *Domain, speciallog bool) bool {
	return d.DocumentRoot != cur.DocumentRoot ||
		d.SSLRedirect != cur.SSLRedirect ||
		d.WWWServerAlias != cur.WWWServerAlias ||
		d.IsWildcardDomain != cur.IsWildcardDomain ||
		d.PHPEnabled != cur.PHPEnabled ||
		d.OpenBasedir != cur.OpenBasedir ||
		d.PHPSettingID != cur.PHPSettingID ||
		d.ModFcgidStarter != cur.ModFcgidStarter ||
		d.ModFcgidMaxRequests != cur.ModFcgidMaxRequests ||
		d.SpecialSettings != cur.SpecialSettings ||
		d.NoTryFiles != cur.NoTryFiles ||
		deref(d.AliasDomain) != deref(cur.AliasDomain) ||
		d.IsMainButSubTo != cur.IsMainButSubTo ||
		d.EmailOnly != cur.EmailOnly ||
		speciallog ||
		d.LetsEncrypt != cur.LetsEncrypt ||
		d.HTTP2 != cur.HTTP2 ||
		d.HSTS != cur.HSTS ||
		d.HSTSSub != cur.HSTSSub ||
		d.HSTSPreload != cur.HSTSPreload ||
		d.OCSPStapling != cur.OCSPStapling
}

func insertDomain(ctx context.Context, q store.Querier, d *Domain) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO panel_domains (domain, adminid, customerid, aliasdomain, documentroot,
			isbinddomain, isemaildomain, email_only, iswildcarddomain, subcanemaildomain,
			caneditdomain, zonefile, dkim, wwwserveralias, phpenabled, openbasedir, speciallogfile,
			ssl_redirect, specialsettings, notryfiles, add_date, registration_date, termination_date,
			phpsettingid, mod_fcgid_starter, mod_fcgid_maxrequests, ismainbutsubto, letsencrypt,
			http2, hsts, hsts_sub, hsts_preload, ocsp_stapling)
		VALUES (`+placeholders(33)+`)`,
		d.Domain, d.AdminID, d.CustomerID, d.AliasDomain, d.DocumentRoot,
		d.IsBindDomain, d.IsEmailDomain, d.EmailOnly, d.IsWildcardDomain, d.SubCanEmailDomain,
		d.CanEditDomain, d.Zonefile, d.DKIM, d.WWWServerAlias, d.PHPEnabled, d.OpenBasedir, d.SpecialLogfile,
		d.SSLRedirect, d.SpecialSettings, d.NoTryFiles, d.AddDate, d.RegistrationDate, d.TerminationDate,
		d.PHPSettingID, d.ModFcgidStarter, d.ModFcgidMaxRequests, d.IsMainButSubTo, d.LetsEncrypt,
		d.HTTP2, d.HSTS, d.HSTSSub, d.HSTSPreload, d.OCSPStapling)
	if err != nil {
		return 0, fmt.Errorf("insert domain: %w", err)
	}
	return res.LastInsertId()
}

func updateDomain(ctx context.Context, q store.Querier, d *Domain) error {
	_, err := q.ExecContext(ctx, `
		UPDATE panel_domains SET
			customerid = ?, adminid = ?, documentroot = ?, ssl_redirect = ?, aliasdomain = ?,
			isbinddomain = ?, isemaildomain = ?, email_only = ?, subcanemaildomain = ?, dkim = ?,
			caneditdomain = ?, zonefile = ?, wwwserveralias = ?, iswildcarddomain = ?, phpenabled = ?,
			openbasedir = ?, speciallogfile = ?, phpsettingid = ?, mod_fcgid_starter = ?,
			mod_fcgid_maxrequests = ?, specialsettings = ?, notryfiles = ?, registration_date = ?,
			termination_date = ?, ismainbutsubto = ?, letsencrypt = ?, http2 = ?, hsts = ?,
			hsts_sub = ?, hsts_preload = ?, ocsp_stapling = ?
		WHERE id = ?`,
		d.CustomerID, d.AdminID, d.DocumentRoot, d.SSLRedirect, d.AliasDomain,
		d.IsBindDomain, d.IsEmailDomain, d.EmailOnly, d.SubCanEmailDomain, d.DKIM,
		d.CanEditDomain, d.Zonefile, d.WWWServerAlias, d.IsWildcardDomain, d.PHPEnabled,
		d.OpenBasedir, d.SpecialLogfile, d.PHPSettingID, d.ModFcgidStarter,
		d.ModFcgidMaxRequests, d.SpecialSettings, d.NoTryFiles, d.RegistrationDate,
		d.TerminationDate, d.IsMainButSubTo, d.LetsEncrypt, d.HTTP2, d.HSTS,
		d.HSTSSub, d.HSTSPreload, d.OCSPStapling, d.ID)
	if err != nil {
		return fmt.Errorf("update domain #%d: %w", d.ID, err)
	}
	return nil
}

// updateSubdomains copies the inherited settings of d to its subdomains.
func updateSubdomains(ctx context.Context, q store.Querier, cur, d *Domain, phpfs, ssfs, noSSL bool) error {
	set := []string{"customerid = ?", "adminid = ?", "phpenabled = ?", "openbasedir = ?",
		"mod_fcgid_starter = ?", "mod_fcgid_maxrequests = ?"}
	args := []any{d.CustomerID, d.AdminID, d.PHPEnabled, d.OpenBasedir, d.ModFcgidStarter, d.ModFcgidMaxRequests}

	if phpfs {
		set = append(set, "phpsettingid = ?")
		args = append(args, d.PHPSettingID)
	}
	if ssfs {
		set = append(set, "specialsettings = ?")
		args = append(args, d.SpecialSettings)
	}
	switch {
	case d.SubCanEmailDomain == 0 && cur.SubCanEmailDomain != 0:
		set = append(set, "isemaildomain = 0")
	case d.SubCanEmailDomain == 3 && cur.SubCanEmailDomain != 3:
		set = append(set, "isemaildomain = 1")
	}
	if noSSL {
		set = append(set, "ssl_redirect = 0", "letsencrypt = 0")
	}

	args = append(args, d.ID)
	_, err := q.ExecContext(ctx,
		"UPDATE panel_domains SET "+strings.Join(set, ", ")+" WHERE parentdomainid = ?", args...)
	if err != nil {
		return fmt.Errorf("update subdomains of #%d: %w", d.ID, err)
	}
	return nil
}

// resourceUsage is what a domain and its subdomains count against a
// customer's quotas.
type resourceUsage struct {
	Subdomains, Emails, Accounts, Forwarders int64
}

func domainUsage(ctx context.Context, q store.Querier, domainID int64) (*resourceUsage, error) {
	var u resourceUsage
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM panel_domains WHERE parentdomainid = ?1),
			(SELECT COUNT(*) FROM mail_virtual WHERE domainid = ?1
				OR domainid IN (SELECT id FROM panel_domains WHERE parentdomainid = ?1)),
			(SELECT COUNT(*) FROM mail_users WHERE domainid = ?1
				OR domainid IN (SELECT id FROM panel_domains WHERE parentdomainid = ?1)),
			(SELECT COUNT(*) FROM mail_virtual WHERE popaccountid = 0 AND destination <> ''
				AND (domainid = ?1 OR domainid IN (SELECT id FROM panel_domains WHERE parentdomainid = ?1)))`,
		domainID).Scan(&u.Subdomains, &u.Emails, &u.Accounts, &u.Forwarders)
	if err != nil {
		return nil, fmt.Errorf("count usage of domain #%d: %w", domainID, err)
	}
	return &u, nil
}

// customerWithRoom loads a visible customer that can take u on top of its
// current usage.
func (s *Service) customerWithRoom(ctx context.Context, q store.Querier, c *Caller, id int64, u *resourceUsage) (*store.Customer, error) {
	cust, err := s.visibleCustomer(ctx, q, c, id)
	if err != nil {
		return nil, err
	}
	fits := func(used, add, limit int64) bool { return limit == -1 || used+add <= limit }
	if !fits(cust.SubdomainsUsed, u.Subdomains, cust.Subdomains) ||
		!fits(cust.EmailsUsed, u.Emails, cust.Emails) ||
		!fits(cust.EmailForwardersUsed, u.Forwarders, cust.EmailForwarders) ||
		!fits(cust.EmailAccountsUsed, u.Accounts, cust.EmailAccounts) {
		return nil, invalid("customerdoesntexist")
	}
	return cust, nil
}

func moveDomainUsage(ctx context.Context, q store.Querier, domainID, from, to int64, u *resourceUsage) error {
	for _, table := range []string{"mail_users", "mail_virtual"} {
		if _, err := q.ExecContext(ctx, "UPDATE "+table+" SET customerid = ? WHERE domainid = ?", to, domainID); err != nil {
			return err
		}
	}
	adjust := `UPDATE panel_customers SET
		subdomains_used = subdomains_used + ?,
		emails_used = emails_used + ?,
		email_forwarders_used = email_forwarders_used + ?,
		email_accounts_used = email_accounts_used + ?
		WHERE customerid = ?`
	if _, err := q.ExecContext(ctx, adjust, u.Subdomains, u.Emails, u.Forwarders, u.Accounts, to); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, adjust, -u.Subdomains, -u.Emails, -u.Forwarders, -u.Accounts, from)
	return err
}

// checkLetsEncryptDNS warns when domain does not resolve to any of the
// panel ips it is bound to. The certificate request would fail.
func (s *Service) checkLetsEncryptDNS(ctx context.Context, domain string, ipIDs []int64) {
	if s.resolver == nil || !s.settings.Bool("system.le_domain_dnscheck") || len(ipIDs) == 0 {
		return
	}
	r := s.resolver
	if ns := s.settings.Get("system.le_domain_dnscheck_resolver"); ns != "" {
		r = &resolver.Resolver{Servers: []string{net.JoinHostPort(ns, "53")}, Timeout: s.resolver.Timeout}
	}

	log := s.logger.WithFields(map[string]any{"domain": domain, "ipids": ipIDs})
	marks, args := store.Placeholders(ipIDs)
	ours, err := store.Strings(ctx, s.db.SQL(), "SELECT DISTINCT ip FROM panel_ipsandports WHERE id IN ("+marks+")", args...)
	if err != nil {
		log.Warn("Let's Encrypt DNS check: load ips", "error", err)
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resolved, err := r.LookupHost(lookupCtx, domain, true)
	if err != nil {
		log.Warn("Let's Encrypt DNS check failed", "error", err)
		return
	}
	for _, got := range resolved {
		for _, want := range ours {
			if want == got {
				return
			}
		}
	}
	log.Warn("Let's Encrypt DNS check: domain does not point to this server",
		"resolved", resolved, "expected", ours)
}
