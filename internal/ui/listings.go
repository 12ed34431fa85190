package ui

import (
	"fmt"
	"sort"
	"strings"

	"grimm.is/hearth/internal/settings"
)

// Row is one record of a listing, keyed by JSON field name.
type Row map[string]any

// Int reads a numeric or boolean field. Missing fields are 0.
func (r Row) Int(key string) int64 {
	switch v := r[key].(type) {
	case bool:
		if v {
			return 1
		}
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		var n int64
		fmt.Sscan(v, &n)
		return n
	}
	return 0
}

// Bool reports whether a field is set to a non-zero value.
func (r Row) Bool(key string) bool { return r.Int(key) != 0 }

// Listing is a table declaration whose actions are filtered per row.
type Listing struct {
	Table
}

// RowActions is one row with the actions the user may run on it and their
// resolved links.
type RowActions struct {
	Row     Row               `json:"fields"`
	Actions map[string]string `json:"actions"`
}

// Apply filters the actions per row and resolves ":field" link values.
func (l Listing) Apply(u User, rows []Row) []RowActions {
	out := make([]RowActions, 0, len(rows))
	for _, row := range rows {
		ra := RowActions{Row: row, Actions: map[string]string{}}
		for _, a := range l.Actions {
			if a.Visible != nil && !a.Visible(u, row) {
				continue
			}
			ra.Actions[a.ID] = a.Href.Resolve(row)
		}
		out = append(out, ra)
	}
	return out
}

// Resolve renders the link as a query string, section and page first.
func (h Href) Resolve(row Row) string {
	var parts []string
	add := func(k, v string) {
		if strings.HasPrefix(v, ":") {
			v = fmt.Sprint(row[v[1:]])
		}
		parts = append(parts, k+"="+v)
	}
	for _, k := range []string{"section", "page", "action"} {
		if v, ok := h[k]; ok {
			add(k, v)
		}
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		if k != "section" && k != "page" && k != "action" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, h[k])
	}
	return "?" + strings.Join(parts, "&")
}

// DomainList declares the customer's domain listing.
func DomainList(st *settings.Store) Listing {
	return Listing{
		Table: Table{
			ComponentID: "domain_list",
			Title:       "menu.domains",
			Icon:        "fa-solid fa-user",
			DataSource:  "/api/domains",
			Searchable:  true,
			Paginated:   true,
			PageSize:    25,
			Columns: []TableColumn{
				{Key: "domain_ace", Label: "mydomain", Sortable: true},
				{Key: "documentroot", Label: "listing.path", Format: "target"},
			},
			Actions: []TableAction{
				{
					ID: "edit", Label: "listing.edit", Icon: "fa fa-edit",
					Href:    Href{"section": "domains", "page": "domains", "action": "edit", "id": ":id"},
					Visible: canEditDomain,
				},
				{
					ID: "logfiles", Label: "listing.logfiles", Icon: "fa fa-file",
					Href:    Href{"section": "domains", "page": "logfiles", "domain_id": ":id"},
					Visible: canViewDomainLogs,
				},
				{
					ID: "domaindnseditor", Label: "listing.dnseditor", Icon: "fa fa-globe",
					Href: Href{"section": "domains", "page": "domaindnseditor", "domain_id": ":id"},
					Visible: func(u User, row Row) bool {
						return st.Bool("system.bind_enable") && canEditDomainDNS(u, row)
					},
				},
				{
					ID: "delete", Label: "listing.delete", Icon: "fa fa-trash", Class: "text-danger", Destructive: true,
					Href:    Href{"section": "domains", "page": "domains", "action": "delete", "id": ":id"},
					Visible: canDeleteDomain,
				},
			},
		},
	}
}

func canEditDomain(_ User, row Row) bool {
	return row.Bool("caneditdomain")
}

func canViewDomainLogs(_ User, row Row) bool {
	return row.Bool("speciallogfile") || row.Int("parentdomainid") == 0
}

func canEditDomainDNS(_ User, row Row) bool {
	return row.Int("parentdomainid") == 0 && row.Bool("isbinddomain") && row.Bool("caneditdomain")
}

// Standard subdomains and main domains are removed by the admin.
func canDeleteDomain(_ User, row Row) bool {
	return row.Int("parentdomainid") != 0 && !row.Bool("is_stdsubdomain")
}

// ListingNames lists the declared listings.
var ListingNames = []string{"domain_list"}

// GetListing returns the named listing, or false.
func GetListing(name string, st *settings.Store) (Listing, bool) {
	switch name {
	case "domain_list":
		return DomainList(st), true
	}
	return Listing{}, false
}
