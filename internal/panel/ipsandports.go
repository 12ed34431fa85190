package panel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/validation"
)

// IPPort is a row of panel_ipsandports.
type IPPort struct {
	ID                                int64  `json:"id"`
	IP                                string `json:"ip"`
	Port                              int64  `json:"port"`
	ListenStatement                   bool   `json:"listen_statement"`
	NameVirtualHostStatement          bool   `json:"namevirtualhost_statement"`
	VhostContainer                    bool   `json:"vhostcontainer"`
	VhostContainerServerNameStatement bool   `json:"vhostcontainer_servername_statement"`
	SpecialSettings                   string `json:"specialsettings"`
	SSL                               bool   `json:"ssl"`
	SSLCertFile                       string `json:"ssl_cert_file"`
	SSLKeyFile                        string `json:"ssl_key_file"`
	SSLCAFile                         string `json:"ssl_ca_file"`
	SSLCertChainFile                  string `json:"ssl_cert_chainfile"`
	DefaultVhostconfDomain            string `json:"default_vhostconf_domain"`
	DocRoot                           string `json:"docroot"`
}

// Address renders ip:port with IPv6 addresses in brackets.
func (p *IPPort) Address() string {
	ip := p.IP
	if validation.IsIPv6(ip) {
		ip = "[" + ip + "]"
	}
	return fmt.Sprintf("%s:%d", ip, p.Port)
}

const ipPortColumns = `id, ip, port, listen_statement, namevirtualhost_statement, vhostcontainer,
	vhostcontainer_servername_statement, specialsettings, ssl, ssl_cert_file, ssl_key_file,
	ssl_ca_file, ssl_cert_chainfile, default_vhostconf_domain, docroot`

func scanIPPort(row scanner) (*IPPort, error) {
	var p IPPort
	err := row.Scan(&p.ID, &p.IP, &p.Port, &p.ListenStatement, &p.NameVirtualHostStatement,
		&p.VhostContainer, &p.VhostContainerServerNameStatement, &p.SpecialSettings, &p.SSL,
		&p.SSLCertFile, &p.SSLKeyFile, &p.SSLCAFile, &p.SSLCertChainFile,
		&p.DefaultVhostconfDomain, &p.DocRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ip/port: %w", err)
	}
	return &p, nil
}

type IPPortListParams struct{}

type IPPortGetParams struct {
	ID Number `json:"id" desc:"ip/port id"`
}

// IPPortParams are the parameters of IpsAndPorts.add and update. On update
// nil fields keep the current value.
type IPPortParams struct {
	ID                                Number  `json:"id" desc:"ip/port id, update only"`
	IP                                *string `json:"ip" desc:"IPv4 or IPv6 address, required on add"`
	Port                              *Text   `json:"port" desc:"1-65535, default 80"`
	ListenStatement                   *Flag   `json:"listen_statement" desc:"default false"`
	NameVirtualHostStatement          *Flag   `json:"namevirtualhost_statement" desc:"default false"`
	VhostContainer                    *Flag   `json:"vhostcontainer" desc:"default false"`
	VhostContainerServerNameStatement *Flag   `json:"vhostcontainer_servername_statement" desc:"default true"`
	SpecialSettings                   *string `json:"specialsettings"`
	DefaultVhostconfDomain            *string `json:"default_vhostconf_domain"`
	DocRoot                           *string `json:"docroot"`
	SSL                               *Flag   `json:"ssl" desc:"only with system.use_ssl, default false"`
	SSLCertFile                       *string `json:"ssl_cert_file"`
	SSLKeyFile                        *string `json:"ssl_key_file"`
	SSLCAFile                         *string `json:"ssl_ca_file"`
	SSLCertChainFile                  *string `json:"ssl_cert_chainfile"`
}

func (s *Service) registerIpsAndPorts() {
	Register(s.registry, "IpsAndPorts", "list", "lists all ip/port entries", s.IpsAndPortsList)
	Register(s.registry, "IpsAndPorts", "get", "return an ip/port entry by id", s.IpsAndPortsGet)
	Register(s.registry, "IpsAndPorts", "add", "create a new ip/port entry", s.IpsAndPortsAdd)
	Register(s.registry, "IpsAndPorts", "update", "update an ip/port entry by id", s.IpsAndPortsUpdate)
	Register(s.registry, "IpsAndPorts", "delete", "delete an ip/port entry by id", s.IpsAndPortsDelete)
}

// IpsAndPortsList lists every ip/port ordered by ip and port.
func (s *Service) IpsAndPortsList(ctx context.Context, c *Caller, _ IPPortListParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] list ips and ports")

	rows, err := s.db.SQL().QueryContext(ctx, "SELECT "+ipPortColumns+" FROM panel_ipsandports ORDER BY ip, port")
	if err != nil {
		return nil, fmt.Errorf("list ips and ports: %w", err)
	}
	defer rows.Close()
	var list []IPPort
	for rows.Next() {
		p, err := scanIPPort(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return newListing(list), nil
}

// IpsAndPortsGet returns an ip/port by id.
func (s *Service) IpsAndPortsGet(ctx context.Context, c *Caller, p IPPortGetParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, fmt.Sprintf("[API] get ip and port #%d", p.ID))
	return getIPPort(ctx, s.db.SQL(), int64(p.ID))
}

func getIPPort(ctx context.Context, q store.Querier, id int64) (*IPPort, error) {
	p, err := scanIPPort(q.QueryRowContext(ctx, "SELECT "+ipPortColumns+" FROM panel_ipsandports WHERE id = ?", id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(http.StatusNotFound, "ipportnotfound", id)
	}
	return p, err
}

// applyIPPort validates p onto row. row carries the defaults (add) or the
// current values (update).
func (s *Service) applyIPPort(row *IPPort, p IPPortParams) error {
	ip, err := validation.ValidateIP(strOr(p.IP, row.IP))
	if err != nil {
		return invalid("invalidip", strOr(p.IP, row.IP))
	}
	row.IP = ip

	if p.Port != nil {
		port, err := validation.ParsePort(string(*p.Port))
		if err != nil {
			return emptyField("myport")
		}
		row.Port = int64(port)
	}

	row.ListenStatement = flagOr(p.ListenStatement, row.ListenStatement)
	row.NameVirtualHostStatement = flagOr(p.NameVirtualHostStatement, row.NameVirtualHostStatement)
	row.VhostContainer = flagOr(p.VhostContainer, row.VhostContainer)
	row.VhostContainerServerNameStatement = flagOr(p.VhostContainerServerNameStatement, row.VhostContainerServerNameStatement)

	if row.SpecialSettings, err = validation.ValidateText(strOr(p.SpecialSettings, row.SpecialSettings)); err != nil {
		return wrongField("specialsettings")
	}
	if row.DefaultVhostconfDomain, err = validation.ValidateText(strOr(p.DefaultVhostconfDomain, row.DefaultVhostconfDomain)); err != nil {
		return wrongField("default_vhostconf_domain")
	}
	row.DocRoot = validation.MakeCorrectDir(strOr(p.DocRoot, row.DocRoot))

	if !s.settings.Bool("system.use_ssl") {
		row.SSL = false
		row.SSLCertFile, row.SSLKeyFile, row.SSLCAFile, row.SSLCertChainFile = "", "", "", ""
		return nil
	}
	row.SSL = flagOr(p.SSL, row.SSL)
	row.SSLCertFile = validation.MakeCorrectFile(strOr(p.SSLCertFile, row.SSLCertFile))
	row.SSLKeyFile = validation.MakeCorrectFile(strOr(p.SSLKeyFile, row.SSLKeyFile))
	row.SSLCAFile = validation.MakeCorrectFile(strOr(p.SSLCAFile, row.SSLCAFile))
	row.SSLCertChainFile = validation.MakeCorrectFile(strOr(p.SSLCertChainFile, row.SSLCertChainFile))
	return nil
}

// IpsAndPortsAdd creates an ip/port.
func (s *Service) IpsAndPortsAdd(ctx context.Context, c *Caller, p IPPortParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	if p.IP == nil {
		return nil, emptyField("ip")
	}
	row := &IPPort{Port: 80, VhostContainerServerNameStatement: true}
	if err := s.applyIPPort(row, p); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(q store.Querier) error {
		dup, err := store.Exists(ctx, q, "SELECT id FROM panel_ipsandports WHERE ip = ? AND port = ?", row.IP, row.Port)
		if err != nil {
			return err
		}
		if dup {
			return invalid("myipnotdouble")
		}
		res, err := q.ExecContext(ctx, `
			INSERT INTO panel_ipsandports (ip, port, listen_statement, namevirtualhost_statement,
				vhostcontainer, vhostcontainer_servername_statement, specialsettings, ssl,
				ssl_cert_file, ssl_key_file, ssl_ca_file, ssl_cert_chainfile,
				default_vhostconf_domain, docroot)
			VALUES (`+placeholders(14)+`)`,
			row.IP, row.Port, row.ListenStatement, row.NameVirtualHostStatement,
			row.VhostContainer, row.VhostContainerServerNameStatement, row.SpecialSettings, row.SSL,
			row.SSLCertFile, row.SSLKeyFile, row.SSLCAFile, row.SSLCertChainFile,
			row.DefaultVhostconfDomain, row.DocRoot)
		if err != nil {
			return fmt.Errorf("insert ip/port: %w", err)
		}
		if row.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		if err := s.tasks.InsertAll(ctx, q, tasks.RebuildVhost, tasks.RebuildDNS); err != nil {
			return err
		}
		return s.logAction(ctx, q, c, slog.LevelWarn, fmt.Sprintf("[API] added IP/port '%s'", row.Address()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventIPPortChanged, c, row.ID, row.Address(), "add")
	return row, nil
}

// IpsAndPortsUpdate changes an ip/port. The last entry carrying the system
// ip cannot move to another address.
func (s *Service) IpsAndPortsUpdate(ctx context.Context, c *Caller, p IPPortParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}

	var row *IPPort
	var before string
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		cur, err := getIPPort(ctx, q, int64(p.ID))
		if err != nil {
			return err
		}
		before = cur.Address()
		next := *cur
		if err := s.applyIPPort(&next, p); err != nil {
			return err
		}

		if next.IP != cur.IP && cur.IP == s.settings.Get("system.ipaddress") {
			others, err := store.Exists(ctx, q, "SELECT id FROM panel_ipsandports WHERE ip = ? AND id <> ?", cur.IP, cur.ID)
			if err != nil {
				return err
			}
			if !others {
				return invalid("cantchangesystemip")
			}
		}
		dup, err := store.Exists(ctx, q,
			"SELECT id FROM panel_ipsandports WHERE ip = ? AND port = ? AND id <> ?", next.IP, next.Port, cur.ID)
		if err != nil {
			return err
		}
		if dup {
			return invalid("myipnotdouble")
		}

		_, err = q.ExecContext(ctx, `
			UPDATE panel_ipsandports SET ip = ?, port = ?, listen_statement = ?,
				namevirtualhost_statement = ?, vhostcontainer = ?, vhostcontainer_servername_statement = ?,
				specialsettings = ?, ssl = ?, ssl_cert_file = ?, ssl_key_file = ?, ssl_ca_file = ?,
				ssl_cert_chainfile = ?, default_vhostconf_domain = ?, docroot = ?
			WHERE id = ?`,
			next.IP, next.Port, next.ListenStatement, next.NameVirtualHostStatement,
			next.VhostContainer, next.VhostContainerServerNameStatement, next.SpecialSettings, next.SSL,
			next.SSLCertFile, next.SSLKeyFile, next.SSLCAFile, next.SSLCertChainFile,
			next.DefaultVhostconfDomain, next.DocRoot, next.ID)
		if err != nil {
			return fmt.Errorf("update ip/port #%d: %w", next.ID, err)
		}
		if err := s.tasks.InsertAll(ctx, q, tasks.RebuildVhost, tasks.RebuildDNS); err != nil {
			return err
		}
		row = &next
		return s.logAction(ctx, q, c, slog.LevelWarn,
			fmt.Sprintf("[API] changed IP/port from '%s' to '%s'", before, next.Address()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventIPPortChanged, c, row.ID, row.Address(), "update")
	return row, nil
}

// IpsAndPortsDelete removes an unused ip/port that is neither a default nor
// the last system ip.
func (s *Service) IpsAndPortsDelete(ctx context.Context, c *Caller, p IPPortGetParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}

	var row *IPPort
	err := s.db.WithTx(ctx, func(q store.Querier) error {
		cur, err := getIPPort(ctx, q, int64(p.ID))
		if err != nil {
			return err
		}
		used, err := store.Exists(ctx, q, "SELECT id_domain FROM panel_domaintoip WHERE id_ipandports = ?", cur.ID)
		if err != nil {
			return err
		}
		if used {
			return invalid("ipstillhasdomains")
		}
		if slices.Contains(s.settings.IDList("system.defaultip"), cur.ID) ||
			slices.Contains(s.settings.IDList("system.defaultsslip"), cur.ID) {
			return invalid("cantdeletedefaultip")
		}
		if cur.IP == s.settings.Get("system.ipaddress") {
			others, err := store.Exists(ctx, q, "SELECT id FROM panel_ipsandports WHERE ip = ? AND id <> ?", cur.IP, cur.ID)
			if err != nil {
				return err
			}
			if !others {
				return invalid("cantdeletesystemip")
			}
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM panel_ipsandports WHERE id = ?", cur.ID); err != nil {
			return fmt.Errorf("delete ip/port #%d: %w", cur.ID, err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM panel_domaintoip WHERE id_ipandports = ?", cur.ID); err != nil {
			return err
		}
		if err := s.tasks.InsertAll(ctx, q, tasks.RebuildVhost, tasks.RebuildDNS); err != nil {
			return err
		}
		row = cur
		return s.logAction(ctx, q, c, slog.LevelWarn, fmt.Sprintf("[API] deleted IP/port '%s'", cur.Address()), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventIPPortChanged, c, row.ID, row.Address(), "delete")
	return row, nil
}
