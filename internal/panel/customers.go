package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/textutil"
	"grimm.is/hearth/internal/validation"
)

var loginNameRegex = regexp.MustCompile(`^[a-z][a-z0-9\-_]{1,47}$`)

type CustomerListParams struct{}

type CustomerGetParams struct {
	ID        Number `json:"id" desc:"customer id, either id or loginname is required"`
	LoginName string `json:"loginname" desc:"customer login name"`
}

// CustomerAddParams are the parameters of Customers.add.
type CustomerAddParams struct {
	LoginName       string  `json:"new_loginname" desc:"login name, lowercase letters, digits, - and _"`
	Email           string  `json:"email"`
	Name            string  `json:"name" desc:"name or company is required"`
	FirstName       string  `json:"firstname"`
	Company         string  `json:"company"`
	Password        *string `json:"new_customer_password" desc:"generated when empty"`
	DefLanguage     *string `json:"def_language" desc:"default panel.standardlanguage"`
	Subdomains      *Number `json:"subdomains" desc:"-1 unlimited, default 0"`
	Emails          *Number `json:"emails" desc:"-1 unlimited, default 0"`
	EmailAccounts   *Number `json:"email_accounts" desc:"-1 unlimited, default 0"`
	EmailForwarders *Number `json:"email_forwarders" desc:"-1 unlimited, default 0"`
	PHPEnabled      *Flag   `json:"phpenabled" desc:"default true"`
	APIAllowed      *Flag   `json:"api_allowed" desc:"default true"`
	CustomNotes     *string `json:"custom_notes"`
	Backup          *Number `json:"backup" desc:"backup storage id, 0 disables, default backup.default_storage"`
	AccessBackups   *Flag   `json:"access_backups" desc:"default backup.default_customer_access"`
}

// CreatedCustomer is returned by Customers.add. Password is only set when it
// was generated.
type CreatedCustomer struct {
	*store.Customer
	Password string `json:"password,omitempty"`
}

func (s *Service) registerCustomers() {
	Register(s.registry, "Customers", "listing", "lists all customer entries", s.CustomersListing)
	Register(s.registry, "Customers", "get", "return a customer entry by id or loginname", s.CustomersGet)
	Register(s.registry, "Customers", "add", "create a new customer", s.CustomersAdd)
}

// visibleCustomers returns the customers an admin may manage.
func visibleCustomers(ctx context.Context, q store.Querier, c *Caller) ([]*store.Customer, error) {
	adminID := c.Admin.AdminID
	if c.Admin.CustomersSeeAll {
		adminID = 0
	}
	return store.ListCustomers(ctx, q, adminID)
}

// CustomersListing lists the customers of the admin caller.
func (s *Service) CustomersListing(ctx context.Context, c *Caller, _ CustomerListParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] list customers")
	list, err := visibleCustomers(ctx, s.db.SQL(), c)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	textutil.SortBy(list, func(c *store.Customer) string { return c.LoginName }, s.settings.Bool("panel.natsorting"))
	return newListing(list), nil
}

// CustomersGet returns a customer by id or login name. Customers can only
// read themselves.
func (s *Service) CustomersGet(ctx context.Context, c *Caller, p CustomerGetParams) (any, error) {
	if c.IsAdmin() {
		s.logRead(ctx, c, fmt.Sprintf("[API] get customer #%d", p.ID))
	}
	return s.getCustomer(ctx, s.db.SQL(), c, int64(p.ID), p.LoginName)
}

func (s *Service) getCustomer(ctx context.Context, q store.Querier, c *Caller, id int64, login string) (*store.Customer, error) {
	if c.Customer != nil {
		id, login = c.Customer.CustomerID, ""
	}

	var cust *store.Customer
	var err error
	if id > 0 || login == "" {
		cust, err = store.GetCustomer(ctx, q, id)
	} else {
		cust, err = store.GetCustomerByLogin(ctx, q, login)
	}

	notFound := newError(http.StatusNotFound, "customernotfound", id)
	if id <= 0 && login != "" {
		notFound = newError(http.StatusNotFound, "customerloginnotfound", login)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	if c.IsAdmin() && !c.Admin.CustomersSeeAll && cust.AdminID != c.Admin.AdminID {
		return nil, notFound
	}
	return cust, nil
}

// passwordError maps a rejected password to its catalog message.
func passwordError(err error) error {
	var pe *auth.PolicyError
	if errors.As(err, &pe) {
		return invalid(pe.Key, pe.Args...)
	}
	return err
}

// quota validates a resource limit: -1 (unlimited) or more.
func quota(field string, n *Number) (int64, error) {
	v := intOr(n, 0)
	if v < -1 {
		return 0, newError(http.StatusBadRequest, "intvaluetoolow", i18n.Label(field))
	}
	return v, nil
}

// checkAccount validates the fields shared by customer and admin accounts
// and returns the password to store in clear text.
func (s *Service) checkAccount(ctx context.Context, q store.Querier, login, email, password string) (string, bool, error) {
	if login == "" {
		return "", false, emptyField("myloginname")
	}
	if !loginNameRegex.MatchString(login) {
		return "", false, invalid("loginnameiswrong", login)
	}
	taken, err := store.LoginNameTaken(ctx, q, login)
	if err != nil {
		return "", false, err
	}
	if taken {
		return "", false, invalid("loginnameexists", login)
	}
	if email == "" {
		return "", false, emptyField("myemail")
	}
	if validation.ValidateEmail(email) != nil {
		return "", false, invalid("emailiswrong", email)
	}

	policy := auth.PolicyFromSettings(s.settings)
	if password == "" {
		return auth.GeneratePassword(policy), true, nil
	}
	if err := auth.ValidatePassword(password, policy); err != nil {
		return "", false, passwordError(err)
	}
	return password, false, nil
}

// CustomersAdd creates a customer owned by the admin caller and queues the
// creation of its home directory.
func (s *Service) CustomersAdd(ctx context.Context, c *Caller, p CustomerAddParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	if c.Admin.Customers != -1 && c.Admin.CustomersUsed >= c.Admin.Customers {
		return nil, errNoResources()
	}
	st := s.settings

	login := strings.ToLower(strings.TrimSpace(p.LoginName))
	name, company := strings.TrimSpace(p.Name), strings.TrimSpace(p.Company)
	if name == "" && company == "" {
		return nil, newError(http.StatusBadRequest, "mandatoryfield", i18n.Label("myname"))
	}

	cust := &store.Customer{
		LoginName:     login,
		AdminID:       c.Admin.AdminID,
		Name:          name,
		FirstName:     strings.TrimSpace(p.FirstName),
		Company:       company,
		Email:         strings.TrimSpace(p.Email),
		DefLanguage:   strOr(p.DefLanguage, st.Get("panel.standardlanguage")),
		PHPEnabled:    flagOr(p.PHPEnabled, true),
		APIAllowed:    flagOr(p.APIAllowed, true),
		Backup:        intOr(p.Backup, st.Int("backup.default_storage")),
		AccessBackups: flagOr(p.AccessBackups, st.Bool("backup.default_customer_access")),
	}
	var err error
	if cust.CustomNotes, err = validation.ValidateText(strOr(p.CustomNotes, "")); err != nil {
		return nil, wrongField("custom_notes")
	}
	for _, f := range []struct {
		name string
		in   *Number
		out  *int64
	}{
		{"subdomains", p.Subdomains, &cust.Subdomains},
		{"emails", p.Emails, &cust.Emails},
		{"email_accounts", p.EmailAccounts, &cust.EmailAccounts},
		{"email_forwarders", p.EmailForwarders, &cust.EmailForwarders},
	} {
		if *f.out, err = quota(f.name, f.in); err != nil {
			return nil, err
		}
	}

	var out *CreatedCustomer
	err = s.db.WithTx(ctx, func(q store.Querier) error {
		password, generated, err := s.checkAccount(ctx, q, login, cust.Email, strOr(p.Password, ""))
		if err != nil {
			return err
		}
		if cust.Password, err = auth.HashPassword(password); err != nil {
			return err
		}

		cust.GUID = st.Int("system.lastguid") + 1
		if err := st.Set(ctx, q, "system.lastguid", strconv.FormatInt(cust.GUID, 10)); err != nil {
			return err
		}
		cust.DocumentRoot = validation.MakeCorrectDir(st.Get("system.documentroot_prefix") + "/" + login)

		if cust.CustomerID, err = store.InsertCustomer(ctx, q, cust); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			"UPDATE panel_admins SET customers_used = customers_used + 1 WHERE adminid = ?", c.Admin.AdminID); err != nil {
			return err
		}

		data, err := json.Marshal(map[string]any{
			"loginname": login, "uid": cust.GUID, "gid": cust.GUID, "documentroot": cust.DocumentRoot,
		})
		if err != nil {
			return err
		}
		if _, err := s.tasks.Insert(ctx, q, tasks.CreateHome, string(data)); err != nil {
			return err
		}
		if err := s.tasks.InsertAll(ctx, q, tasks.RebuildVhost); err != nil {
			return err
		}

		out = &CreatedCustomer{Customer: cust}
		if generated {
			out.Password = password
		}
		return s.logAction(ctx, q, c, slog.LevelWarn, fmt.Sprintf("[API] added customer '%s'", login), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventCustomerChanged, c, cust.CustomerID, login, "add")
	return out, nil
}
