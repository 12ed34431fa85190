package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/api/storage"
	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/ratelimit"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

const testPassword = "Sup3r-secret"

type testEnv struct {
	srv     *Server
	handler http.Handler
	db      *store.DB
	hub     *events.Hub
}

// newTestEnv serves a migrated in-memory panel with one ip/port (id 1) and
// the superadmin "admin".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, settings.Seed(ctx, db.SQL(), nil, true))
	st := settings.New()
	require.NoError(t, st.Load(ctx, db.SQL()))

	_, err = db.SQL().ExecContext(ctx, "INSERT INTO panel_ipsandports (id, ip, port) VALUES (1, '127.0.0.1', 80)")
	require.NoError(t, err)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	_, err = store.InsertAdmin(ctx, db.SQL(), &store.Admin{
		LoginName:            "admin",
		Password:             hash,
		Name:                 "Super Admin",
		Email:                "admin@example.com",
		APIAllowed:           true,
		ChangeServerSettings: true,
		CustomersSeeAll:      true,
		DomainsSeeAll:        true,
		Customers:            -1,
		Domains:              -1,
		IP:                   -1,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewForTesting(reg)
	hub := events.NewHub()
	logger := logging.New(logging.Config{Output: io.Discard})

	svc := panel.New(panel.Options{DB: db, Settings: st, Hub: hub, Metrics: m, Logger: logger, Version: "2.0.0"})
	srv := NewServer(Options{
		Panel:        svc,
		DB:           db,
		Sessions:     auth.NewSessions(db, time.Hour),
		Keys:         storage.NewStore(db, st),
		Hub:          hub,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       logger,
		LoginLimiter: ratelimit.NewLimiter(3, time.Minute, nil),
		Version:      "2.0.0",
	})
	t.Cleanup(srv.ws.Close)

	return &testEnv{srv: srv, handler: srv.Handler(), db: db, hub: hub}
}

type requestOpt func(*http.Request)

func withBearer(token string) requestOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(k, v string) requestOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withCookie(c *http.Cookie) requestOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (e *testEnv) do(t *testing.T, method, target string, body any, opts ...requestOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "192.0.2.1:4711"
	for _, o := range opts {
		o(req)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// login returns the session token, csrf token and cookie of the admin.
func (e *testEnv) login(t *testing.T) (string, string, *http.Cookie) {
	t.Helper()
	rr := e.do(t, "POST", "/api/auth/login", LoginRequest{LoginName: "admin", Password: testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	require.NotEmpty(t, resp.Data.CSRFToken)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	return resp.Data.Token, resp.Data.CSRFToken, cookie
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp.Data
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestLoginAndList(t *testing.T) {
	e := newTestEnv(t)
	_, _, cookie := e.login(t)

	rr := e.do(t, "GET", "/api/domains", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decodeData(t, rr)
	assert.EqualValues(t, 0, data["count"])
	assert.Empty(t, data["list"])

	rr = e.do(t, "GET", "/api/auth/status", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeData(t, rr)
	assert.Equal(t, true, status["authenticated"])
	assert.NotEmpty(t, status["csrf_token"])
}

func TestUnauthenticated(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, "GET", "/api/domains", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rr).Details)

	rr = e.do(t, "GET", "/api/domains", nil, withBearer("not-a-session"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, "GET", "/api/auth/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeData(t, rr)["authenticated"])
}

func TestLoginFailures(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, "POST", "/api/auth/login", LoginRequest{LoginName: "admin", Password: "wrong"},
		withHeader("Accept-Language", "de-DE,de;q=0.9"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "loginfailed", resp.Details)
	assert.Equal(t, "Ungültiger Benutzername oder Passwort", resp.Error)

	rr = e.do(t, "POST", "/api/auth/login", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// third attempt of this IP in the window still passes the limiter
	rr = e.do(t, "POST", "/api/auth/login", LoginRequest{LoginName: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, "POST", "/api/auth/login", LoginRequest{LoginName: "admin", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "toomanyrequests", decodeError(t, rr).Details)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestCSRFOnCookieSessions(t *testing.T) {
	e := newTestEnv(t)
	token, csrf, cookie := e.login(t)
	body := map[string]any{"ip": "192.0.2.10", "port": "8080"}

	rr := e.do(t, "POST", "/api/ipsandports", body, withCookie(cookie))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "csrfinvalid", decodeError(t, rr).Details)

	rr = e.do(t, "POST", "/api/ipsandports", body, withCookie(cookie), withHeader(CSRFHeader, csrf))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "192.0.2.10", decodeData(t, rr)["ip"])

	// bearer requests cannot be forged by a browser
	body["port"] = 8443
	rr = e.do(t, "POST", "/api/ipsandports", body, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRESTCommands(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t)
	bearer := withBearer(token)

	rr := e.do(t, "GET", "/api/ipsandports/1", nil, bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "127.0.0.1", decodeData(t, rr)["ip"])

	rr = e.do(t, "GET", "/api/ipsandports/99", nil, bearer)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "ipportnotfound", decodeError(t, rr).Details)

	rr = e.do(t, "PUT", "/api/ipsandports/1", map[string]any{"port": 8080}, bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 8080, decodeData(t, rr)["port"])

	rr = e.do(t, "POST", "/api/customers", map[string]any{
		"new_loginname": "web1",
		"email":         "web1@example.com",
		"name":          "Web One",
	}, bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "GET", "/api/customers/web1", nil, bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "web1", decodeData(t, rr)["loginname"])

	rr = e.do(t, "GET", "/api/backups/count", nil, bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "GET", "/api/nothing", nil, bearer)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommandEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t)

	rr := e.do(t, "POST", "/api", CommandRequest{
		Command: "IpsAndPorts.get",
		Params:  json.RawMessage(`{"id": "1"}`),
	}, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "127.0.0.1", decodeData(t, rr)["ip"])

	rr = e.do(t, "POST", "/api", CommandRequest{Command: "Ftps.add"}, withBearer(token))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "unknowncommand", decodeError(t, rr).Details)

	rr = e.do(t, "POST", "/api", `{"params": {}}`, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPIKeys(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t)

	rr := e.do(t, "POST", "/api/keys", CreateKeyRequest{Description: "ci", AllowedFrom: []string{"192.0.2.0/24"}}, withBearer(token))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeData(t, rr)
	key, secret := created["apikey"].(string), created["secret"].(string)
	require.NotEmpty(t, key)
	require.NotEmpty(t, secret)

	basic := func(r *http.Request) { r.SetBasicAuth(key, secret) }
	rr = e.do(t, "GET", "/api/ipsandports", nil, basic)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// key auth is not a cookie session: no csrf token needed
	rr = e.do(t, "POST", "/api/ipsandports", map[string]any{"ip": "192.0.2.20"}, basic)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "GET", "/api/keys", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeData(t, rr)["count"])

	rr = e.do(t, "POST", "/api/keys", CreateKeyRequest{AllowedFrom: []string{"nonsense"}}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	path := "/api/keys/" + strconv.FormatInt(int64(created["id"].(float64)), 10)
	rr = e.do(t, "DELETE", path, nil, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "DELETE", path, nil, withBearer(token))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "apikeynotfound", decodeError(t, rr).Details)

	rr = e.do(t, "GET", "/api/ipsandports", nil, basic)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTasksAndHealth(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t)

	rr := e.do(t, "POST", "/api/ipsandports", map[string]any{"ip": "192.0.2.30"}, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "GET", "/api/tasks", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.GreaterOrEqual(t, decodeData(t, rr)["count"], float64(1))

	rr = e.do(t, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "healthy", string(health.Status))
	assert.Equal(t, "2.0.0", health.Version)
	assert.Contains(t, health.Checks["database"].Message, "schema version")
	assert.Contains(t, health.Checks, "settings")
}

func TestOpenAPIAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, "GET", "/api/openapi.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc struct {
		Paths map[string]map[string]struct {
			OperationID string `json:"operationId"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "Domains.get", doc.Paths["/api/domains/{id}"]["get"].OperationID)
	assert.Equal(t, "Backups.listingCount", doc.Paths["/api/backups/count"]["get"].OperationID)
	assert.Contains(t, doc.Paths, "/api")

	rr = e.do(t, "GET", "/api/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.0")

	rr = e.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `hearth_api_requests_total{method="GET",path="GET /api/openapi.yaml",status="200"} 1`)
}

func TestResponseHeaders(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/api/health", nil)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	rr = e.do(t, "GET", "/api/health", nil, withHeader(RequestIDHeader, "req-1"))
	assert.Equal(t, "req-1", rr.Header().Get(RequestIDHeader))
}

func TestUIDomainListing(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t)

	rr := e.do(t, "POST", "/api/customers", map[string]any{
		"new_loginname": "web1", "email": "web1@example.com", "name": "Web One",
	}, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cid := decodeData(t, rr)["customerid"]

	rr = e.do(t, "POST", "/api/domains", map[string]any{"domain": "example.com", "customerid": cid}, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, "GET", "/api/ui/listings/domain_list", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var listing struct {
		Rows []struct {
			Fields  map[string]any    `json:"fields"`
			Actions map[string]string `json:"actions"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Len(t, listing.Rows, 1)
	assert.Equal(t, "example.com", listing.Rows[0].Fields["domain_ace"])
	assert.Contains(t, listing.Rows[0].Actions, "edit")
	assert.NotContains(t, listing.Rows[0].Actions, "delete", "main domains are not deleted from the listing")

	rr = e.do(t, "GET", "/api/ui/menu", nil, withBearer(token))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestParams(t *testing.T) {
	req := httptest.NewRequest("PUT", `/api/domains/7?documentroot=/var/www&sql_search={"loginname":{"op":"=","value":"web1"}}&id=3`,
		strings.NewReader(`{"documentroot": "/srv/www", "letsencrypt": true}`))
	req.SetPathValue("id", "7")

	raw, err := requestParams(req, "")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "7", got["id"], "path id wins")
	assert.Equal(t, "/srv/www", got["documentroot"], "body wins over query")
	assert.Equal(t, true, got["letsencrypt"])
	assert.Equal(t, map[string]any{"loginname": map[string]any{"op": "=", "value": "web1"}}, got["sql_search"])

	req = httptest.NewRequest("GET", "/api/customers/web1", nil)
	req.SetPathValue("id", "web1")
	raw, err = requestParams(req, "loginname")
	require.NoError(t, err)
	assert.JSONEq(t, `{"loginname": "web1"}`, string(raw))

	req = httptest.NewRequest("POST", "/api/domains", strings.NewReader(`[1, 2]`))
	_, err = requestParams(req, "")
	assert.ErrorIs(t, err, errInvalidBody)
}
