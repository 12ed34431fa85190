package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/ui"
)

// newTestMux mounts a handler whose users come from the X-Test-User header:
// "super", "reseller" or "customer". Anything else is unauthenticated.
func newTestMux(h *Handler) *http.ServeMux {
	users := map[string]ui.User{
		"super":    {ID: 1, Admin: true, ChangeServerSettings: true, CustomersSeeAll: true},
		"reseller": {ID: 2, Admin: true},
		"customer": {ID: 10},
	}
	h.User = func(r *http.Request) (ui.User, bool) {
		u, ok := users[r.Header.Get("X-Test-User")]
		return u, ok
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler { return i18n.Middleware(next) })
	return mux
}

func get(t *testing.T, mux *http.ServeMux, path, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_Menu(t *testing.T) {
	mux := newTestMux(&Handler{Settings: settings.New()})

	w := get(t, mux, "/api/ui/menu", "super")
	require.Equal(t, http.StatusOK, w.Code)
	var menu []ui.MenuItem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&menu))
	require.NotEmpty(t, menu)
	assert.Equal(t, "Dashboard", menu[0].Label, "labels are translated")

	var ids []ui.MenuID
	for _, item := range ui.FlattenMenu(menu) {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, ui.MenuIPsAndPorts)

	w = get(t, mux, "/api/ui/menu", "customer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), string(ui.MenuIPsAndPorts))

	w = get(t, mux, "/api/ui/menu", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_Form(t *testing.T) {
	h := &Handler{
		Settings: settings.NewFromMap(map[string]string{"panel.password_min_length": "8"}),
		IPs: func(context.Context) ([]ui.SelectOption, error) {
			return []ui.SelectOption{{Value: "1", Label: "192.0.2.1:80"}}, nil
		},
	}
	mux := newTestMux(h)

	w := get(t, mux, "/api/ui/forms/admin_add", "super")
	require.Equal(t, http.StatusOK, w.Code)
	var form ui.Form
	require.NoError(t, json.NewDecoder(w.Body).Decode(&form))
	assert.Equal(t, "admin_add", form.ComponentID)
	assert.Equal(t, "Create admin", form.Title)

	ip := form.Field("ipaddress")
	require.NotNil(t, ip)
	require.Len(t, ip.Options, 2)
	assert.Equal(t, "All IPs", ip.Options[0].Label)
	assert.Equal(t, "192.0.2.1:80", ip.Options[1].Label)
	assert.Len(t, form.Field("admin_password_suggestion").Suggestion, 8)

	assert.Equal(t, http.StatusForbidden, get(t, mux, "/api/ui/forms/admin_add", "reseller").Code)
	assert.Equal(t, http.StatusForbidden, get(t, mux, "/api/ui/forms/admin_add", "customer").Code)

	w = get(t, mux, "/api/ui/forms/nosuchform", "super")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"details":"modulenotfound"`)

	h.IPs = func(context.Context) ([]ui.SelectOption, error) { return nil, errors.New("db down") }
	assert.Equal(t, http.StatusInternalServerError, get(t, mux, "/api/ui/forms/admin_add", "super").Code)
}

func TestHandler_Listing(t *testing.T) {
	var gotUser ui.User
	h := &Handler{
		Settings: settings.NewFromMap(map[string]string{"system.bind_enable": "1"}),
		Rows: func(_ context.Context, u ui.User, listing string) ([]ui.Row, error) {
			gotUser = u
			return []ui.Row{
				{"id": 1, "domain_ace": "example.com", "parentdomainid": 0, "caneditdomain": 1, "isbinddomain": 1},
				{"id": 2, "domain_ace": "www.example.com", "parentdomainid": 1, "caneditdomain": 0},
			}, nil
		},
	}
	mux := newTestMux(h)

	w := get(t, mux, "/api/ui/listings/domain_list", "customer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, gotUser.ID)

	var resp struct {
		Title   string           `json:"title"`
		Columns []ui.TableColumn `json:"columns"`
		Rows    []ui.RowActions  `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Domains", resp.Title)
	require.Len(t, resp.Rows, 2)

	main := resp.Rows[0].Actions
	assert.Equal(t, "?section=domains&page=domains&action=edit&id=1", main["edit"])
	assert.Contains(t, main, "domaindnseditor")
	assert.NotContains(t, main, "delete", "main domains are removed by the admin")

	sub := resp.Rows[1].Actions
	assert.NotContains(t, sub, "edit")
	assert.Equal(t, "?section=domains&page=domains&action=delete&id="+strconv.Itoa(2), sub["delete"])

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/ui/listings/nosuchlisting", "customer").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, mux, "/api/ui/listings/domain_list", "").Code)
}

func TestHandler_Themes(t *testing.T) {
	themes := fstest.MapFS{
		"Sparkle/theme.toml": {Data: []byte("name = \"Sparkle\"\n[variants.default]\n[variants.dark]\ndescription = \"Sparkle (dark)\"\n")},
		"misc/theme.toml":    {Data: []byte("name = \"misc\"\n")},
	}
	mux := newTestMux(&Handler{
		Settings: settings.NewFromMap(map[string]string{"panel.default_theme": "Sparkle_dark"}),
		Themes:   themes,
	})

	w := get(t, mux, "/api/ui/themes", "customer")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Themes  []ui.Theme `json:"themes"`
		Default string     `json:"default"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []ui.Theme{
		{ID: "Sparkle", Description: "Sparkle"},
		{ID: "Sparkle_dark", Description: "Sparkle (dark)"},
	}, resp.Themes)
	assert.Equal(t, "Sparkle_dark", resp.Default)

	mux = newTestMux(&Handler{Settings: settings.New()})
	w = get(t, mux, "/api/ui/themes", "customer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"default":"`+ui.FallbackTheme+`"`)
}
