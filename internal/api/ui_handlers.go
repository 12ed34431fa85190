package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/ui"
	"grimm.is/hearth/internal/validation"
)

func (s *Server) uiUser(r *http.Request) (ui.User, bool) {
	c := callerFrom(r.Context())
	if c == nil {
		return ui.User{}, false
	}
	if c.IsAdmin() {
		a := c.Admin
		return ui.User{
			ID:                   a.AdminID,
			Admin:                true,
			ChangeServerSettings: a.ChangeServerSettings,
			CustomersSeeAll:      a.CustomersSeeAll,
			CanEditPHPSettings:   a.CanEditPHPSettings,
			APIAllowed:           a.APIAllowed,
		}, true
	}
	return ui.User{ID: c.Customer.CustomerID, APIAllowed: c.Customer.APIAllowed}, true
}

// uiIPs offers the ip/port entries to the admin_add form.
func (s *Server) uiIPs(ctx context.Context) ([]ui.SelectOption, error) {
	c := callerFrom(ctx)
	out, err := s.panel.IpsAndPortsList(ctx, c, panel.IPPortListParams{})
	if err != nil {
		return nil, err
	}
	var opts []ui.SelectOption
	for _, p := range out.(panel.Listing[panel.IPPort]).List {
		opts = append(opts, ui.SelectOption{
			Value: strconv.FormatInt(p.ID, 10),
			Label: fmt.Sprintf("%s:%d", p.IP, p.Port),
		})
	}
	return opts, nil
}

// uiRows loads the records behind a listing declaration.
func (s *Server) uiRows(ctx context.Context, u ui.User, listing string) ([]ui.Row, error) {
	if listing != "domain_list" || !u.Admin {
		return nil, nil
	}
	out, err := s.panel.DomainsList(ctx, callerFrom(ctx), panel.DomainListParams{})
	if err != nil {
		return nil, err
	}
	entries := out.(panel.Listing[panel.DomainListEntry]).List
	rows := make([]ui.Row, 0, len(entries))
	for _, e := range entries {
		row, err := toRow(e)
		if err != nil {
			return nil, err
		}
		row["domain_ace"] = validation.DomainToUnicode(e.Domain.Domain)
		row["is_stdsubdomain"] = e.StandardSubdomain != nil && *e.StandardSubdomain == e.ID
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(v any) (ui.Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row ui.Row
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, err
	}
	return row, nil
}
