package panel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/textutil"
)

// Domain is a row of panel_domains.
type Domain struct {
	ID                  int64   `json:"id"`
	Domain              string  `json:"domain"`
	AdminID             int64   `json:"adminid"`
	CustomerID          int64   `json:"customerid"`
	AliasDomain         *int64  `json:"aliasdomain"`
	DocumentRoot        string  `json:"documentroot"`
	IsBindDomain        bool    `json:"isbinddomain"`
	IsEmailDomain       bool    `json:"isemaildomain"`
	EmailOnly           bool    `json:"email_only"`
	IsWildcardDomain    bool    `json:"iswildcarddomain"`
	SubCanEmailDomain   int64   `json:"subcanemaildomain"`
	CanEditDomain       bool    `json:"caneditdomain"`
	Zonefile            string  `json:"zonefile"`
	DKIM                bool    `json:"dkim"`
	WWWServerAlias      bool    `json:"wwwserveralias"`
	ParentDomainID      int64   `json:"parentdomainid"`
	PHPEnabled          bool    `json:"phpenabled"`
	OpenBasedir         bool    `json:"openbasedir"`
	SpecialLogfile      bool    `json:"speciallogfile"`
	SSLRedirect         int64   `json:"ssl_redirect"`
	SpecialSettings     string  `json:"specialsettings"`
	NoTryFiles          bool    `json:"notryfiles"`
	Deactivated         bool    `json:"deactivated"`
	AddDate             int64   `json:"add_date"`
	RegistrationDate    *string `json:"registration_date"`
	TerminationDate     *string `json:"termination_date"`
	PHPSettingID        int64   `json:"phpsettingid"`
	ModFcgidStarter     int64   `json:"mod_fcgid_starter"`
	ModFcgidMaxRequests int64   `json:"mod_fcgid_maxrequests"`
	IsMainButSubTo      int64   `json:"ismainbutsubto"`
	LetsEncrypt         bool    `json:"letsencrypt"`
	HTTP2               bool    `json:"http2"`
	HSTS                string  `json:"hsts"`
	HSTSSub             bool    `json:"hsts_sub"`
	HSTSPreload         bool    `json:"hsts_preload"`
	OCSPStapling        bool    `json:"ocsp_stapling"`
}

// serverAliasOption maps the alias flags back to the select value:
// 0 wildcard, 1 www alias, 2 none.
func (d *Domain) serverAliasOption() int64 {
	switch {
	case d.IsWildcardDomain:
		return 0
	case d.WWWServerAlias:
		return 1
	}
	return 2
}

// DomainListEntry is a top-level domain with its customer and alias target.
type DomainListEntry struct {
	Domain
	LoginName           *string `json:"loginname"`
	CustomerDeactivated *bool   `json:"deactivated"`
	Name                *string `json:"name"`
	FirstName           *string `json:"firstname"`
	Company             *string `json:"company"`
	StandardSubdomain   *int64  `json:"standardsubdomain"`
	AliasDomainID       *int64  `json:"aliasdomainid"`
	AliasDomainName     *string `json:"aliasdomain"`
}

// Listing is the {count, list} envelope of list commands.
type Listing[T any] struct {
	Count int `json:"count"`
	List  []T `json:"list"`
}

func newListing[T any](list []T) Listing[T] {
	if list == nil {
		list = []T{}
	}
	return Listing[T]{Count: len(list), List: list}
}

const domainColumns = `d.id, d.domain, d.adminid, d.customerid, d.aliasdomain, d.documentroot,
	d.isbinddomain, d.isemaildomain, d.email_only, d.iswildcarddomain, d.subcanemaildomain,
	d.caneditdomain, d.zonefile, d.dkim, d.wwwserveralias, d.parentdomainid, d.phpenabled,
	d.openbasedir, d.speciallogfile, d.ssl_redirect, d.specialsettings, d.notryfiles, d.deactivated,
	d.add_date, d.registration_date, d.termination_date, d.phpsettingid, d.mod_fcgid_starter,
	d.mod_fcgid_maxrequests, d.ismainbutsubto, d.letsencrypt, d.http2, d.hsts, d.hsts_sub,
	d.hsts_preload, d.ocsp_stapling`

type scanner interface {
	Scan(dest ...any) error
}

func scanDomain(row scanner, extra ...any) (*Domain, error) {
	var d Domain
	var alias sql.NullInt64
	var reg, term sql.NullString
	dest := []any{&d.ID, &d.Domain, &d.AdminID, &d.CustomerID, &alias, &d.DocumentRoot,
		&d.IsBindDomain, &d.IsEmailDomain, &d.EmailOnly, &d.IsWildcardDomain, &d.SubCanEmailDomain,
		&d.CanEditDomain, &d.Zonefile, &d.DKIM, &d.WWWServerAlias, &d.ParentDomainID, &d.PHPEnabled,
		&d.OpenBasedir, &d.SpecialLogfile, &d.SSLRedirect, &d.SpecialSettings, &d.NoTryFiles, &d.Deactivated,
		&d.AddDate, &reg, &term, &d.PHPSettingID, &d.ModFcgidStarter,
		&d.ModFcgidMaxRequests, &d.IsMainButSubTo, &d.LetsEncrypt, &d.HTTP2, &d.HSTS, &d.HSTSSub,
		&d.HSTSPreload, &d.OCSPStapling}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	if alias.Valid {
		d.AliasDomain = &alias.Int64
	}
	if reg.Valid {
		d.RegistrationDate = &reg.String
	}
	if term.Valid {
		d.TerminationDate = &term.String
	}
	return &d, nil
}

type DomainListParams struct{}

type DomainGetParams struct {
	ID             Number `json:"id" desc:"domain id"`
	NoStdSubdomain *Flag  `json:"no_std_subdomain" desc:"exclude the customer's standard subdomain, default false"`
}

type DomainDeleteParams struct {
	ID                   Number `json:"id" desc:"domain id"`
	DeleteMainSubdomains *Flag  `json:"delete_mainsubdomains" desc:"also remove main domains that are logically subdomains of this domain, default false"`
	IsStdSubdomain       *Flag  `json:"is_stdsubdomain" desc:"the domain is a standard subdomain and not counted as resource, default false"`
}

func (s *Service) registerDomains() {
	Register(s.registry, "Domains", "list", "lists all domain entries", s.DomainsList)
	Register(s.registry, "Domains", "get", "return a domain entry by id", s.DomainsGet)
	Register(s.registry, "Domains", "add", "add a new domain entry", s.DomainsAdd)
	Register(s.registry, "Domains", "update", "update a domain entry by id", s.DomainsUpdate)
	Register(s.registry, "Domains", "delete", "delete a domain entry by id", s.DomainsDelete)
}

// DomainsList lists the top-level domains the caller can see.
func (s *Service) DomainsList(ctx context.Context, c *Caller, _ DomainListParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] list domains")

	query := `SELECT ` + domainColumns + `,
		c.loginname, c.deactivated, c.name, c.firstname, c.company, c.standardsubdomain,
		ad.id, ad.domain
		FROM panel_domains d
		LEFT JOIN panel_customers c ON c.customerid = d.customerid
		LEFT JOIN panel_domains ad ON d.aliasdomain = ad.id
		WHERE d.parentdomainid = 0`
	var args []any
	if !c.Admin.CustomersSeeAll {
		query += " AND d.adminid = ?"
		args = append(args, c.Admin.AdminID)
	}
	query += " ORDER BY d.domain"

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var list []DomainListEntry
	for rows.Next() {
		var e DomainListEntry
		var login, name, first, company, aliasName sql.NullString
		var deact sql.NullBool
		var std, aliasID sql.NullInt64
		d, err := scanDomain(rows, &login, &deact, &name, &first, &company, &std, &aliasID, &aliasName)
		if err != nil {
			return nil, err
		}
		e.Domain = *d
		e.LoginName = nullString(login)
		e.Name = nullString(name)
		e.FirstName = nullString(first)
		e.Company = nullString(company)
		e.AliasDomainName = nullString(aliasName)
		e.StandardSubdomain = nullInt(std)
		e.AliasDomainID = nullInt(aliasID)
		if deact.Valid {
			e.CustomerDeactivated = &deact.Bool
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	textutil.SortBy(list, func(e DomainListEntry) string { return e.Domain.Domain }, s.settings.Bool("panel.natsorting"))
	return newListing(list), nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// DomainsGet returns a top-level domain by id.
func (s *Service) DomainsGet(ctx context.Context, c *Caller, p DomainGetParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, fmt.Sprintf("[API] get domain #%d", p.ID))
	return s.getDomain(ctx, s.db.SQL(), c, int64(p.ID), flagOr(p.NoStdSubdomain, false))
}

// getDomain loads a top-level domain visible to the admin caller.
func (s *Service) getDomain(ctx context.Context, q store.Querier, c *Caller, id int64, noStdSubdomain bool) (*Domain, error) {
	query := `SELECT ` + domainColumns + `
		FROM panel_domains d
		LEFT JOIN panel_customers c ON c.customerid = d.customerid
		WHERE d.parentdomainid = 0 AND d.id = ?`
	args := []any{id}
	if noStdSubdomain {
		query += " AND d.id <> COALESCE(c.standardsubdomain, 0)"
	}
	if !c.Admin.CustomersSeeAll {
		query += " AND d.adminid = ?"
		args = append(args, c.Admin.AdminID)
	}
	d, err := scanDomain(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(http.StatusNotFound, "domainnotfound", id)
	}
	return d, err
}

// DomainsDelete removes a domain with its subdomains and everything that
// hangs off them.
func (s *Service) DomainsDelete(ctx context.Context, c *Caller, p DomainDeleteParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	removeMainSubs := flagOr(p.DeleteMainSubdomains, false)
	isStd := flagOr(p.IsStdSubdomain, false)

	var result *Domain
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		d, err := s.getDomain(ctx, q, c, int64(p.ID), false)
		if err != nil {
			return err
		}
		result = d

		idQuery := "SELECT id FROM panel_domains WHERE id = ? OR parentdomainid = ?"
		args := []any{d.ID, d.ID}
		if removeMainSubs {
			idQuery += " OR ismainbutsubto = ?"
			args = append(args, d.ID)
		}
		ids, err := store.Int64s(ctx, q, idQuery, args...)
		if err != nil {
			return err
		}
		marks, idArgs := store.Placeholders(ids)

		if len(ids) > 0 {
			for _, table := range []string{"mail_users", "mail_virtual"} {
				if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE domainid IN ("+marks+")", idArgs...); err != nil {
					return fmt.Errorf("clean %s: %w", table, err)
				}
			}
			if err := s.logAction(ctx, q, c, slog.LevelInfo, "[API] deleted domain/s from mail-tables", nil); err != nil {
				return err
			}
		}

		// Main domains that were logically below this one move up a level.
		if !removeMainSubs {
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_domains SET ismainbutsubto = ? WHERE ismainbutsubto = ?",
				d.IsMainButSubTo, d.ID); err != nil {
				return err
			}
		}

		res, err := q.ExecContext(ctx, "DELETE FROM panel_domains WHERE id IN ("+marks+")", idArgs...)
		if err != nil {
			return fmt.Errorf("delete domains: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if !isStd {
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_customers SET subdomains_used = MAX(subdomains_used - ?, 0) WHERE customerid = ?",
				deleted-1, d.CustomerID); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx,
				"UPDATE panel_admins SET domains_used = MAX(domains_used - 1, 0) WHERE adminid = ?",
				d.AdminID); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx,
			"UPDATE panel_customers SET standardsubdomain = 0 WHERE standardsubdomain = ? AND customerid = ?",
			d.ID, d.CustomerID); err != nil {
			return err
		}

		cleanup := []string{
			"DELETE FROM panel_domaintoip WHERE id_domain IN (" + marks + ")",
			"DELETE FROM panel_domainredirects WHERE did IN (" + marks + ")",
			"DELETE FROM domain_ssl_settings WHERE domainid IN (" + marks + ")",
			"DELETE FROM domain_dns_entries WHERE domain_id IN (" + marks + ")",
		}
		for _, stmt := range cleanup {
			if _, err := q.ExecContext(ctx, stmt, idArgs...); err != nil {
				return err
			}
		}

		if err := s.logAction(ctx, q, c, slog.LevelInfo,
			fmt.Sprintf("[API] deleted domain/subdomains (#%d)", d.ID), map[string]any{"deleted": deleted}); err != nil {
			return err
		}
		return s.tasks.InsertAll(ctx, q, tasks.RebuildVhost, tasks.RebuildDNS)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventDomainChanged, c, result.ID, result.Domain, "delete")
	return result, nil
}

// domainIPs returns the plain and SSL ip/port ids mapped to a domain.
func domainIPs(ctx context.Context, q store.Querier, domainID int64) (plain, ssl []int64, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT di.id_ipandports, i.ssl FROM panel_domaintoip di
		JOIN panel_ipsandports i ON i.id = di.id_ipandports
		WHERE di.id_domain = ? ORDER BY di.id_ipandports`, domainID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var isSSL bool
		if err := rows.Scan(&id, &isSSL); err != nil {
			return nil, nil, err
		}
		if isSSL {
			ssl = append(ssl, id)
		} else {
			plain = append(plain, id)
		}
	}
	return plain, ssl, rows.Err()
}

// mapDomainIPs replaces the ip/port mapping of each domain.
func mapDomainIPs(ctx context.Context, q store.Querier, domainIDs []int64, ipIDs ...[]int64) error {
	for _, did := range domainIDs {
		if _, err := q.ExecContext(ctx, "DELETE FROM panel_domaintoip WHERE id_domain = ?", did); err != nil {
			return err
		}
		for _, list := range ipIDs {
			for _, ip := range list {
				if ip <= 0 {
					continue
				}
				if _, err := q.ExecContext(ctx,
					"INSERT OR IGNORE INTO panel_domaintoip (id_domain, id_ipandports) VALUES (?, ?)", did, ip); err != nil {
					return fmt.Errorf("map domain %d to ip %d: %w", did, ip, err)
				}
			}
		}
	}
	return nil
}
