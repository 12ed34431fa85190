// Package web serves the panel's UI declarations as JSON.
package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"

	"golang.org/x/text/message"

	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/ui"
)

// Handler provides HTTP handlers for UI declaration endpoints. Routes must be
// mounted behind authentication; User reads the account from the request.
type Handler struct {
	Settings *settings.Store
	Themes   fs.FS

	User func(r *http.Request) (ui.User, bool)
	// IPs lists the ipsandports entries offered by forms.
	IPs func(ctx context.Context) ([]ui.SelectOption, error)
	// Rows loads the records of a listing for the user.
	Rows func(ctx context.Context, u ui.User, listing string) ([]ui.Row, error)
}

// RegisterRoutes registers UI routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/ui/menu", wrap(http.HandlerFunc(h.handleMenu)))
	mux.Handle("GET /api/ui/forms/{name}", wrap(http.HandlerFunc(h.handleForm)))
	mux.Handle("GET /api/ui/listings/{name}", wrap(http.HandlerFunc(h.handleListing)))
	mux.Handle("GET /api/ui/themes", wrap(http.HandlerFunc(h.handleThemes)))
}

func (h *Handler) handleMenu(w http.ResponseWriter, r *http.Request) {
	u, ok := h.User(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	menu := ui.MainMenu(u)
	translateMenu(i18n.GetPrinter(r.Context()), menu)
	writeJSON(w, http.StatusOK, menu)
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	u, ok := h.User(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	// every declared form edits server-side accounts
	if !u.Admin || !u.ChangeServerSettings {
		writeError(w, r, http.StatusForbidden, "notallowed")
		return
	}

	fc := ui.FormContext{Settings: h.Settings}
	if h.IPs != nil {
		ips, err := h.IPs(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internalerror")
			return
		}
		fc.IPs = ips
	}
	form, ok := ui.GetForm(r.PathValue("name"), fc)
	if !ok {
		writeError(w, r, http.StatusNotFound, "modulenotfound", r.PathValue("name"))
		return
	}
	translateForm(i18n.GetPrinter(r.Context()), &form)
	writeJSON(w, http.StatusOK, form)
}

// listingResponse is a listing declaration with its rows and the actions
// each row offers.
type listingResponse struct {
	ui.Listing
	Rows []ui.RowActions `json:"rows"`
}

func (h *Handler) handleListing(w http.ResponseWriter, r *http.Request) {
	u, ok := h.User(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := r.PathValue("name")
	listing, ok := ui.GetListing(name, h.Settings)
	if !ok {
		writeError(w, r, http.StatusNotFound, "modulenotfound", name)
		return
	}

	var rows []ui.Row
	if h.Rows != nil {
		var err error
		if rows, err = h.Rows(r.Context(), u, name); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internalerror")
			return
		}
	}

	p := i18n.GetPrinter(r.Context())
	listing.Title = p.Sprintf(listing.Title)
	for i := range listing.Columns {
		listing.Columns[i].Label = p.Sprintf(listing.Columns[i].Label)
	}
	for i := range listing.Actions {
		listing.Actions[i].Label = p.Sprintf(listing.Actions[i].Label)
	}
	writeJSON(w, http.StatusOK, listingResponse{Listing: listing, Rows: listing.Apply(u, rows)})
}

func (h *Handler) handleThemes(w http.ResponseWriter, r *http.Request) {
	var themes []ui.Theme
	if h.Themes != nil {
		var err error
		if themes, err = ui.DiscoverThemes(h.Themes); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internalerror")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"themes":  themes,
		"default": ui.ResolveTheme(themes, "", h.Settings.Get("panel.default_theme")),
	})
}

func translateMenu(p *message.Printer, items []ui.MenuItem) {
	for i := range items {
		items[i].Label = p.Sprintf(items[i].Label)
		translateMenu(p, items[i].Children)
	}
}

func translateForm(p *message.Printer, f *ui.Form) {
	f.Title = p.Sprintf(f.Title)
	f.SubmitLabel = p.Sprintf(f.SubmitLabel)
	for i := range f.Sections {
		s := &f.Sections[i]
		s.Title = p.Sprintf(s.Title)
		for j := range s.Fields {
			field := &s.Fields[j]
			field.Label = p.Sprintf(field.Label)
			for k := range field.Options {
				field.Options[k].Label = p.Sprintf(field.Options[k].Label)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, key string, args ...any) {
	writeJSON(w, status, map[string]string{
		"error":   i18n.T(r.Context(), key, args...),
		"details": key,
	})
}
