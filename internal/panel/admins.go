package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/ui"
	"grimm.is/hearth/internal/validation"
)

type AdminListParams struct{}

type AdminGetParams struct {
	ID        Number `json:"id" desc:"admin id, either id or loginname is required"`
	LoginName string `json:"loginname" desc:"admin login name"`
}

// AdminAddParams mirror the admin_add form.
type AdminAddParams struct {
	LoginName            string  `json:"new_loginname" desc:"login name, lowercase letters, digits, - and _"`
	Password             *string `json:"admin_password" desc:"generated when empty"`
	DefLanguage          *string `json:"def_language" desc:"default panel.standardlanguage"`
	APIAllowed           *Flag   `json:"api_allowed" desc:"default api.enabled"`
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	CustomNotes          *string `json:"custom_notes"`
	CustomNotesShow      *Flag   `json:"custom_notes_show"`
	IPAddress            *Number `json:"ipaddress" desc:"ipsandports id the admin is bound to, -1 for all"`
	ChangeServerSettings *Flag   `json:"change_serversettings"`
	Customers            *Number `json:"customers" desc:"-1 unlimited, default 0"`
	CustomersSeeAll      *Flag   `json:"customers_see_all"`
	Domains              *Number `json:"domains" desc:"-1 unlimited, default 0"`
	DomainsSeeAll        *Flag   `json:"domains_see_all"`
	CanEditPHPSettings   *Flag   `json:"caneditphpsettings"`
}

// CreatedAdmin is returned by Admins.add. Password is only set when it was
// generated.
type CreatedAdmin struct {
	*store.Admin
	Password string `json:"password,omitempty"`
}

func (s *Service) registerAdmins() {
	Register(s.registry, "Admins", "listing", "lists all admin entries", s.AdminsListing)
	Register(s.registry, "Admins", "get", "return an admin entry by id or loginname", s.AdminsGet)
	Register(s.registry, "Admins", "add", "create a new admin user", s.AdminsAdd)
}

// formError maps a rejected form value to its catalog message.
func formError(err error) error {
	var fe *ui.FieldError
	if errors.As(err, &fe) {
		return invalid(fe.Key, i18n.Label(fe.Label))
	}
	return err
}

func (s *Service) AdminsListing(ctx context.Context, c *Caller, _ AdminListParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] list admins")
	list, err := store.ListAdmins(ctx, s.db.SQL())
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return newListing(list), nil
}

// AdminsGet returns an admin by id or login name. Admins without
// change_serversettings can only read themselves.
func (s *Service) AdminsGet(ctx context.Context, c *Caller, p AdminGetParams) (any, error) {
	if !c.IsAdmin() {
		return nil, errNotAllowed()
	}
	id, login := int64(p.ID), p.LoginName
	if !c.Admin.ChangeServerSettings {
		id, login = c.Admin.AdminID, ""
	}

	q := s.db.SQL()
	var a *store.Admin
	var err error
	notFound := newError(http.StatusNotFound, "adminnotfound", id)
	if id <= 0 && login != "" {
		notFound = newError(http.StatusNotFound, "adminloginnotfound", login)
		a, err = store.GetAdminByLogin(ctx, q, login)
	} else {
		a, err = store.GetAdmin(ctx, q, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	s.logRead(ctx, c, fmt.Sprintf("[API] get admin '%s'", a.LoginName))
	return a, nil
}

// AdminsAdd creates an admin account.
func (s *Service) AdminsAdd(ctx context.Context, c *Caller, p AdminAddParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	st := s.settings
	form := ui.AdminAddForm(ui.FormContext{Settings: st})

	a := &store.Admin{
		LoginName:            strings.ToLower(strings.TrimSpace(p.LoginName)),
		Name:                 strings.TrimSpace(p.Name),
		Email:                strings.TrimSpace(p.Email),
		DefLanguage:          st.Get("panel.standardlanguage"),
		APIAllowed:           flagOr(p.APIAllowed, st.Bool("api.enabled")),
		ChangeServerSettings: flagOr(p.ChangeServerSettings, false),
		Customers:            intOr(p.Customers, 0),
		CustomersSeeAll:      flagOr(p.CustomersSeeAll, false),
		Domains:              intOr(p.Domains, 0),
		DomainsSeeAll:        flagOr(p.DomainsSeeAll, false),
		CanEditPHPSettings:   flagOr(p.CanEditPHPSettings, false),
		IP:                   intOr(p.IPAddress, -1),
		CustomNotesShow:      flagOr(p.CustomNotesShow, false),
		Theme:                st.Get("panel.default_theme"),
	}
	if err := form.CheckRequired("name", a.Name); err != nil {
		return nil, formError(err)
	}
	if err := form.CheckInt("customers", a.Customers); err != nil {
		return nil, formError(err)
	}
	if err := form.CheckInt("domains", a.Domains); err != nil {
		return nil, formError(err)
	}
	if lang := strOr(p.DefLanguage, ""); lang != "" {
		for _, o := range ui.LanguageOptions() {
			if o.Value == lang {
				a.DefLanguage = lang
			}
		}
	}
	var err error
	if a.CustomNotes, err = validation.ValidateText(strOr(p.CustomNotes, "")); err != nil {
		return nil, wrongField("custom_notes")
	}

	var out *CreatedAdmin
	err = s.db.WithTx(ctx, func(q store.Querier) error {
		password, generated, err := s.checkAccount(ctx, q, a.LoginName, a.Email, strOr(p.Password, ""))
		if err != nil {
			return err
		}
		if a.IP != -1 {
			ok, err := store.Exists(ctx, q, "SELECT id FROM panel_ipsandports WHERE id = ?", a.IP)
			if err != nil {
				return err
			}
			if !ok {
				return invalid("ipportdoesntexist")
			}
		}
		if a.Password, err = auth.HashPassword(password); err != nil {
			return err
		}
		if a.AdminID, err = store.InsertAdmin(ctx, q, a); err != nil {
			return err
		}

		out = &CreatedAdmin{Admin: a}
		if generated {
			out.Password = password
		}
		return s.logAction(ctx, q, c, slog.LevelWarn, fmt.Sprintf("[API] added admin '%s'", a.LoginName), nil)
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.EventAdminChanged, c, a.AdminID, a.LoginName, "add")
	return out, nil
}
