package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Admin is a row of panel_admins. Quotas use -1 for unlimited.
type Admin struct {
	AdminID              int64  `json:"adminid"`
	LoginName            string `json:"loginname"`
	Password             string `json:"-"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	DefLanguage          string `json:"def_language"`
	APIAllowed           bool   `json:"api_allowed"`
	ChangeServerSettings bool   `json:"change_serversettings"`
	Customers            int64  `json:"customers"`
	CustomersUsed        int64  `json:"customers_used"`
	CustomersSeeAll      bool   `json:"customers_see_all"`
	Domains              int64  `json:"domains"`
	DomainsUsed          int64  `json:"domains_used"`
	DomainsSeeAll        bool   `json:"domains_see_all"`
	CanEditPHPSettings   bool   `json:"caneditphpsettings"`
	IP                   int64  `json:"ip"`
	Deactivated          bool   `json:"deactivated"`
	CustomNotes          string `json:"custom_notes"`
	CustomNotesShow      bool   `json:"custom_notes_show"`
	Theme                string `json:"theme"`
	LastLoginSucc        int64  `json:"lastlogin_succ"`
	LastLoginFail        int64  `json:"lastlogin_fail"`
	LoginFailCount       int64  `json:"loginfail_count"`
}

// Customer is a row of panel_customers.
type Customer struct {
	CustomerID          int64  `json:"customerid"`
	LoginName           string `json:"loginname"`
	Password            string `json:"-"`
	AdminID             int64  `json:"adminid"`
	Name                string `json:"name"`
	FirstName           string `json:"firstname"`
	Company             string `json:"company"`
	Email               string `json:"email"`
	DefLanguage         string `json:"def_language"`
	DocumentRoot        string `json:"documentroot"`
	GUID                int64  `json:"guid"`
	StandardSubdomain   int64  `json:"standardsubdomain"`
	Subdomains          int64  `json:"subdomains"`
	SubdomainsUsed      int64  `json:"subdomains_used"`
	Emails              int64  `json:"emails"`
	EmailsUsed          int64  `json:"emails_used"`
	EmailAccounts       int64  `json:"email_accounts"`
	EmailAccountsUsed   int64  `json:"email_accounts_used"`
	EmailForwarders     int64  `json:"email_forwarders"`
	EmailForwardersUsed int64  `json:"email_forwarders_used"`
	PHPEnabled          bool   `json:"phpenabled"`
	APIAllowed          bool   `json:"api_allowed"`
	Deactivated         bool   `json:"deactivated"`
	CustomNotes         string `json:"custom_notes"`
	Backup              int64  `json:"backup"`
	AccessBackups       bool   `json:"access_backups"`
	LastLoginSucc       int64  `json:"lastlogin_succ"`
	LastLoginFail       int64  `json:"lastlogin_fail"`
	LoginFailCount      int64  `json:"loginfail_count"`
}

const adminColumns = `adminid, loginname, password, name, email, def_language, api_allowed,
	change_serversettings, customers, customers_used, customers_see_all, domains, domains_used,
	domains_see_all, caneditphpsettings, ip, deactivated, custom_notes, custom_notes_show, theme,
	lastlogin_succ, lastlogin_fail, loginfail_count`

const customerColumns = `customerid, loginname, password, adminid, name, firstname, company, email,
	def_language, documentroot, guid, standardsubdomain, subdomains, subdomains_used, emails,
	emails_used, email_accounts, email_accounts_used, email_forwarders, email_forwarders_used,
	phpenabled, api_allowed, deactivated, custom_notes, backup, access_backups,
	lastlogin_succ, lastlogin_fail, loginfail_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row scanner) (*Admin, error) {
	var a Admin
	err := row.Scan(&a.AdminID, &a.LoginName, &a.Password, &a.Name, &a.Email, &a.DefLanguage,
		&a.APIAllowed, &a.ChangeServerSettings, &a.Customers, &a.CustomersUsed, &a.CustomersSeeAll,
		&a.Domains, &a.DomainsUsed, &a.DomainsSeeAll, &a.CanEditPHPSettings, &a.IP, &a.Deactivated,
		&a.CustomNotes, &a.CustomNotesShow, &a.Theme, &a.LastLoginSucc, &a.LastLoginFail, &a.LoginFailCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan admin: %w", err)
	}
	return &a, nil
}

func scanCustomer(row scanner) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.CustomerID, &c.LoginName, &c.Password, &c.AdminID, &c.Name, &c.FirstName,
		&c.Company, &c.Email, &c.DefLanguage, &c.DocumentRoot, &c.GUID, &c.StandardSubdomain,
		&c.Subdomains, &c.SubdomainsUsed, &c.Emails, &c.EmailsUsed, &c.EmailAccounts,
		&c.EmailAccountsUsed, &c.EmailForwarders, &c.EmailForwardersUsed, &c.PHPEnabled,
		&c.APIAllowed, &c.Deactivated, &c.CustomNotes, &c.Backup, &c.AccessBackups,
		&c.LastLoginSucc, &c.LastLoginFail, &c.LoginFailCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}

// GetAdmin loads an admin by id.
func GetAdmin(ctx context.Context, q Querier, id int64) (*Admin, error) {
	return scanAdmin(q.QueryRowContext(ctx, "SELECT "+adminColumns+" FROM panel_admins WHERE adminid = ?", id))
}

// GetAdminByLogin loads an admin by login name.
func GetAdminByLogin(ctx context.Context, q Querier, login string) (*Admin, error) {
	return scanAdmin(q.QueryRowContext(ctx, "SELECT "+adminColumns+" FROM panel_admins WHERE loginname = ?", login))
}

// ListAdmins returns all admins ordered by login name.
func ListAdmins(ctx context.Context, q Querier) ([]*Admin, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+adminColumns+" FROM panel_admins ORDER BY loginname")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAdmin creates an admin and returns its id.
func InsertAdmin(ctx context.Context, q Querier, a *Admin) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO panel_admins (loginname, password, name, email, def_language, api_allowed,
			change_serversettings, customers, customers_see_all, domains, domains_see_all,
			caneditphpsettings, ip, custom_notes, custom_notes_show, theme)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.LoginName, a.Password, a.Name, a.Email, a.DefLanguage, a.APIAllowed,
		a.ChangeServerSettings, a.Customers, a.CustomersSeeAll, a.Domains, a.DomainsSeeAll,
		a.CanEditPHPSettings, a.IP, a.CustomNotes, a.CustomNotesShow, a.Theme)
	if err != nil {
		return 0, fmt.Errorf("insert admin: %w", err)
	}
	return res.LastInsertId()
}

// GetCustomer loads a customer by id.
func GetCustomer(ctx context.Context, q Querier, id int64) (*Customer, error) {
	return scanCustomer(q.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM panel_customers WHERE customerid = ?", id))
}

// GetCustomerByLogin loads a customer by login name.
func GetCustomerByLogin(ctx context.Context, q Querier, login string) (*Customer, error) {
	return scanCustomer(q.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM panel_customers WHERE loginname = ?", login))
}

// ListCustomers returns customers ordered by login name. adminID 0 returns
// every customer.
func ListCustomers(ctx context.Context, q Querier, adminID int64) ([]*Customer, error) {
	query := "SELECT " + customerColumns + " FROM panel_customers"
	var args []any
	if adminID > 0 {
		query += " WHERE adminid = ?"
		args = append(args, adminID)
	}
	query += " ORDER BY loginname"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCustomer creates a customer and returns its id.
func InsertCustomer(ctx context.Context, q Querier, c *Customer) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO panel_customers (loginname, password, adminid, name, firstname, company, email,
			def_language, documentroot, guid, subdomains, emails, email_accounts, email_forwarders,
			phpenabled, api_allowed, custom_notes, backup, access_backups)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.LoginName, c.Password, c.AdminID, c.Name, c.FirstName, c.Company, c.Email,
		c.DefLanguage, c.DocumentRoot, c.GUID, c.Subdomains, c.Emails, c.EmailAccounts,
		c.EmailForwarders, c.PHPEnabled, c.APIAllowed, c.CustomNotes, c.Backup, c.AccessBackups)
	if err != nil {
		return 0, fmt.Errorf("insert customer: %w", err)
	}
	return res.LastInsertId()
}

// LoginNameTaken reports whether an admin or customer already uses login.
func LoginNameTaken(ctx context.Context, q Querier, login string) (bool, error) {
	return Exists(ctx, q, `
		SELECT adminid FROM panel_admins WHERE loginname = ?
		UNION ALL
		SELECT customerid FROM panel_customers WHERE loginname = ?`, login, login)
}

// SetPassword stores a new password hash for an admin or customer.
func SetPassword(ctx context.Context, q Querier, admin bool, id int64, hash string) error {
	query := "UPDATE panel_customers SET password = ? WHERE customerid = ?"
	if admin {
		query = "UPDATE panel_admins SET password = ? WHERE adminid = ?"
	}
	_, err := q.ExecContext(ctx, query, hash, id)
	return err
}

// RecordLogin updates the login bookkeeping columns.
func RecordLogin(ctx context.Context, q Querier, admin bool, id int64, success bool, now int64) error {
	table, key := "panel_customers", "customerid"
	if admin {
		table, key = "panel_admins", "adminid"
	}
	query := "UPDATE " + table + " SET lastlogin_succ = ?, loginfail_count = 0 WHERE " + key + " = ?"
	if !success {
		query = "UPDATE " + table + " SET lastlogin_fail = ?, loginfail_count = loginfail_count + 1 WHERE " + key + " = ?"
	}
	_, err := q.ExecContext(ctx, query, now, id)
	return err
}
