package store

import (
	"context"
	"fmt"
)

// Migration is one ordered schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// Migrations lists every schema change in order. Append only.
var Migrations = []Migration{
	{Version: 1, Name: "core schema", Up: schemaCore},
	{Version: 2, Name: "seed php and fpm defaults", Up: seedDefaults},
	{Version: 3, Name: "backup storages and backups", Up: schemaBackups},
}

const schemaCore = `
CREATE TABLE panel_admins (
	adminid INTEGER PRIMARY KEY AUTOINCREMENT,
	loginname TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	def_language TEXT NOT NULL DEFAULT 'en',
	api_allowed INTEGER NOT NULL DEFAULT 1,
	change_serversettings INTEGER NOT NULL DEFAULT 0,
	customers INTEGER NOT NULL DEFAULT 0,
	customers_used INTEGER NOT NULL DEFAULT 0,
	customers_see_all INTEGER NOT NULL DEFAULT 0,
	domains INTEGER NOT NULL DEFAULT 0,
	domains_used INTEGER NOT NULL DEFAULT 0,
	domains_see_all INTEGER NOT NULL DEFAULT 0,
	caneditphpsettings INTEGER NOT NULL DEFAULT 0,
	ip INTEGER NOT NULL DEFAULT -1,
	deactivated INTEGER NOT NULL DEFAULT 0,
	custom_notes TEXT NOT NULL DEFAULT '',
	custom_notes_show INTEGER NOT NULL DEFAULT 0,
	theme TEXT NOT NULL DEFAULT '',
	lastlogin_succ INTEGER NOT NULL DEFAULT 0,
	lastlogin_fail INTEGER NOT NULL DEFAULT 0,
	loginfail_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE panel_customers (
	customerid INTEGER PRIMARY KEY AUTOINCREMENT,
	loginname TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL DEFAULT '',
	adminid INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL DEFAULT '',
	firstname TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	def_language TEXT NOT NULL DEFAULT 'en',
	documentroot TEXT NOT NULL DEFAULT '',
	guid INTEGER NOT NULL DEFAULT 0,
	standardsubdomain INTEGER NOT NULL DEFAULT 0,
	subdomains INTEGER NOT NULL DEFAULT 0,
	subdomains_used INTEGER NOT NULL DEFAULT 0,
	emails INTEGER NOT NULL DEFAULT 0,
	emails_used INTEGER NOT NULL DEFAULT 0,
	email_accounts INTEGER NOT NULL DEFAULT 0,
	email_accounts_used INTEGER NOT NULL DEFAULT 0,
	email_forwarders INTEGER NOT NULL DEFAULT 0,
	email_forwarders_used INTEGER NOT NULL DEFAULT 0,
	phpenabled INTEGER NOT NULL DEFAULT 1,
	api_allowed INTEGER NOT NULL DEFAULT 1,
	deactivated INTEGER NOT NULL DEFAULT 0,
	custom_notes TEXT NOT NULL DEFAULT '',
	lastlogin_succ INTEGER NOT NULL DEFAULT 0,
	lastlogin_fail INTEGER NOT NULL DEFAULT 0,
	loginfail_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_customers_adminid ON panel_customers(adminid);

CREATE TABLE panel_domains (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL UNIQUE,
	adminid INTEGER NOT NULL DEFAULT 0,
	customerid INTEGER NOT NULL DEFAULT 0,
	aliasdomain INTEGER NULL,
	documentroot TEXT NOT NULL DEFAULT '',
	isbinddomain INTEGER NOT NULL DEFAULT 0,
	isemaildomain INTEGER NOT NULL DEFAULT 0,
	email_only INTEGER NOT NULL DEFAULT 0,
	iswildcarddomain INTEGER NOT NULL DEFAULT 1,
	subcanemaildomain INTEGER NOT NULL DEFAULT 0,
	caneditdomain INTEGER NOT NULL DEFAULT 1,
	zonefile TEXT NOT NULL DEFAULT '',
	dkim INTEGER NOT NULL DEFAULT 0,
	dkim_id INTEGER NOT NULL DEFAULT 0,
	dkim_privkey TEXT NOT NULL DEFAULT '',
	dkim_pubkey TEXT NOT NULL DEFAULT '',
	wwwserveralias INTEGER NOT NULL DEFAULT 1,
	parentdomainid INTEGER NOT NULL DEFAULT 0,
	phpenabled INTEGER NOT NULL DEFAULT 0,
	openbasedir INTEGER NOT NULL DEFAULT 0,
	openbasedir_path INTEGER NOT NULL DEFAULT 0,
	speciallogfile INTEGER NOT NULL DEFAULT 0,
	ssl_redirect INTEGER NOT NULL DEFAULT 0,
	specialsettings TEXT NOT NULL DEFAULT '',
	notryfiles INTEGER NOT NULL DEFAULT 0,
	deactivated INTEGER NOT NULL DEFAULT 0,
	add_date INTEGER NOT NULL DEFAULT 0,
	registration_date TEXT NULL,
	termination_date TEXT NULL,
	phpsettingid INTEGER NOT NULL DEFAULT 1,
	mod_fcgid_starter INTEGER NOT NULL DEFAULT -1,
	mod_fcgid_maxrequests INTEGER NOT NULL DEFAULT -1,
	ismainbutsubto INTEGER NOT NULL DEFAULT 0,
	letsencrypt INTEGER NOT NULL DEFAULT 0,
	http2 INTEGER NOT NULL DEFAULT 0,
	hsts TEXT NOT NULL DEFAULT '0',
	hsts_sub INTEGER NOT NULL DEFAULT 0,
	hsts_preload INTEGER NOT NULL DEFAULT 0,
	ocsp_stapling INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_domains_customerid ON panel_domains(customerid);
CREATE INDEX idx_domains_parent ON panel_domains(parentdomainid);

CREATE TABLE panel_ipsandports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip TEXT NOT NULL,
	port INTEGER NOT NULL DEFAULT 80,
	listen_statement INTEGER NOT NULL DEFAULT 0,
	namevirtualhost_statement INTEGER NOT NULL DEFAULT 0,
	vhostcontainer INTEGER NOT NULL DEFAULT 0,
	vhostcontainer_servername_statement INTEGER NOT NULL DEFAULT 0,
	specialsettings TEXT NOT NULL DEFAULT '',
	ssl INTEGER NOT NULL DEFAULT 0,
	ssl_cert_file TEXT NOT NULL DEFAULT '',
	ssl_key_file TEXT NOT NULL DEFAULT '',
	ssl_ca_file TEXT NOT NULL DEFAULT '',
	ssl_cert_chainfile TEXT NOT NULL DEFAULT '',
	default_vhostconf_domain TEXT NOT NULL DEFAULT '',
	docroot TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_ipsandports_ip ON panel_ipsandports(ip);

CREATE TABLE panel_domaintoip (
	id_domain INTEGER NOT NULL,
	id_ipandports INTEGER NOT NULL,
	PRIMARY KEY (id_domain, id_ipandports)
);
CREATE INDEX idx_domaintoip_ip ON panel_domaintoip(id_ipandports);

CREATE TABLE panel_phpconfigs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL DEFAULT '',
	binary TEXT NOT NULL DEFAULT '',
	file_extensions TEXT NOT NULL DEFAULT 'php',
	mod_fcgid_starter INTEGER NOT NULL DEFAULT -1,
	mod_fcgid_maxrequests INTEGER NOT NULL DEFAULT -1,
	mod_fcgid_umask TEXT NOT NULL DEFAULT '022',
	fpm_slowlog INTEGER NOT NULL DEFAULT 0,
	fpm_reqterm TEXT NOT NULL DEFAULT '60s',
	fpm_reqslow TEXT NOT NULL DEFAULT '5s',
	phpsettings TEXT NOT NULL DEFAULT '',
	fpmsettingid INTEGER NOT NULL DEFAULT 1,
	pass_authorizationheader INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE panel_fpmdaemons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL DEFAULT '',
	reload_cmd TEXT NOT NULL DEFAULT '',
	config_dir TEXT NOT NULL DEFAULT '',
	pm TEXT NOT NULL DEFAULT 'dynamic',
	max_children INTEGER NOT NULL DEFAULT 5
);

CREATE TABLE panel_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL,
	data TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE panel_settings (
	settinggroup TEXT NOT NULL,
	varname TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (settinggroup, varname)
);

CREATE TABLE panel_sessions (
	hash TEXT PRIMARY KEY,
	userid INTEGER NOT NULL,
	adminsession INTEGER NOT NULL DEFAULT 0,
	ipaddress TEXT NOT NULL DEFAULT '',
	useragent TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	lastactivity INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE panel_api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	apikey TEXT NOT NULL UNIQUE,
	secret TEXT NOT NULL,
	adminid INTEGER NOT NULL DEFAULT 0,
	customerid INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	allowed_from TEXT NOT NULL DEFAULT '',
	valid_until INTEGER NOT NULL DEFAULT -1,
	created_at INTEGER NOT NULL DEFAULT 0,
	last_used INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE panel_syslog (
	logid INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL DEFAULT 0,
	user TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_syslog_date ON panel_syslog(date);
CREATE INDEX idx_syslog_user ON panel_syslog(user);

CREATE TABLE mail_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	homedir TEXT NOT NULL DEFAULT '',
	maildir TEXT NOT NULL DEFAULT '',
	customerid INTEGER NOT NULL DEFAULT 0,
	domainid INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE mail_virtual (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL DEFAULT '',
	email_full TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	domainid INTEGER NOT NULL DEFAULT 0,
	customerid INTEGER NOT NULL DEFAULT 0,
	popaccountid INTEGER NOT NULL DEFAULT 0,
	iscatchall INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE domain_ssl_settings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domainid INTEGER NOT NULL,
	ssl_cert_file TEXT NOT NULL DEFAULT '',
	ssl_key_file TEXT NOT NULL DEFAULT '',
	ssl_ca_file TEXT NOT NULL DEFAULT '',
	ssl_cert_chainfile TEXT NOT NULL DEFAULT '',
	expirationdate INTEGER NULL
);

CREATE TABLE panel_domainredirects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	did INTEGER NOT NULL,
	rid INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE domain_dns_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain_id INTEGER NOT NULL,
	record TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'A',
	content TEXT NOT NULL DEFAULT '',
	ttl INTEGER NOT NULL DEFAULT 18000,
	prio INTEGER NOT NULL DEFAULT 0
);
`

const seedDefaults = `
INSERT INTO panel_fpmdaemons (id, description, reload_cmd, config_dir)
VALUES (1, 'System default', 'service php-fpm restart', '/etc/php/fpm/pool.d/');

INSERT INTO panel_phpconfigs (id, description, binary, file_extensions, mod_fcgid_starter,
	mod_fcgid_maxrequests, mod_fcgid_umask, phpsettings, fpmsettingid)
VALUES (1, 'Default Config', '/usr/bin/php-cgi', 'php', 0, 0, '022',
	'allow_url_fopen = Off
allow_url_include = Off
display_errors = Off
log_errors = On
memory_limit = 128M
upload_max_filesize = 32M
session.save_path = "{TMP_DIR}"
open_basedir = "{OPEN_BASEDIR}"
', 1);
`

const schemaBackups = `
CREATE TABLE panel_backup_storages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'local',
	region TEXT NULL,
	bucket TEXT NULL,
	destination_path TEXT NOT NULL DEFAULT '',
	hostname TEXT NULL,
	username TEXT NULL,
	password TEXT NULL,
	pgp_public_key TEXT NULL,
	retention INTEGER NOT NULL DEFAULT 3
);
INSERT INTO panel_backup_storages (id, description, destination_path)
VALUES (1, 'Local backup storage', '/var/customers/backups');

CREATE TABLE panel_backups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	adminid INTEGER NOT NULL DEFAULT 0,
	customerid INTEGER NOT NULL DEFAULT 0,
	loginname TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	storage_id INTEGER NOT NULL DEFAULT 1,
	filename TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_backups_customerid ON panel_backups(customerid);

ALTER TABLE panel_customers ADD COLUMN backup INTEGER NOT NULL DEFAULT 1;
ALTER TABLE panel_customers ADD COLUMN access_backups INTEGER NOT NULL DEFAULT 1;

INSERT OR IGNORE INTO panel_settings (settinggroup, varname, value) VALUES
	('backup', 'enabled', '0'),
	('backup', 'default_storage', '1'),
	('backup', 'default_customer_access', '1'),
	('backup', 'default_pgp_public_key', ''),
	('backup', 'default_retention', '3');
`

// Migrate applies pending migrations in order and returns how many ran.
func (d *DB) Migrate(ctx context.Context) (int, error) {
	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := d.WithTx(ctx, func(q Querier) error {
			if _, err := q.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := q.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, d.Now())
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied++
	}
	return applied, nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// LatestVersion is the version a fully migrated database reports.
func LatestVersion() int {
	return Migrations[len(Migrations)-1].Version
}
