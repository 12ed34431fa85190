package panel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/store"
)

// versionServer answers every request with status and body and counts the
// requests it saw.
func versionServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/2.0.0", r.URL.Path)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func updateService(f *fixture, uri string) *Service {
	return New(Options{DB: f.db, Settings: f.st, Version: "2.0.0", UpdateURI: uri, UpdateRetries: 2})
}

func TestSystemCheckUpdate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	srv, _ := versionServer(t, http.StatusOK, "2.1.0|Security release|https://example.com/changelog\n")
	out, err := updateService(f, srv.URL+"/api/").SystemCheckUpdate(ctx, f.admin, UpdateCheckParams{})
	require.NoError(t, err)
	info := out.(*UpdateInfo)
	assert.True(t, info.Available)
	assert.Equal(t, "2.1.0", info.Version)
	assert.Equal(t, "Security release", info.AdditionalInfo)
	assert.Equal(t, "https://example.com/changelog", info.Link)
	assert.Contains(t, info.Message, "2.1.0")
	assert.Contains(t, info.Message, "2.0.0")
}

func TestSystemCheckUpdate_UpToDate(t *testing.T) {
	f := newFixture(t, nil)
	srv, _ := versionServer(t, http.StatusOK, "2.0.0")
	out, err := updateService(f, srv.URL+"/api").SystemCheckUpdate(context.Background(), f.admin, UpdateCheckParams{})
	require.NoError(t, err)
	info := out.(*UpdateInfo)
	assert.False(t, info.Available)
	assert.NotEmpty(t, info.Message)
}

func TestSystemCheckUpdate_CustomizedVersion(t *testing.T) {
	f := newFixture(t, nil)
	srv, _ := versionServer(t, http.StatusOK, "banana")
	_, err := updateService(f, srv.URL+"/api").SystemCheckUpdate(context.Background(), f.admin, UpdateCheckParams{})
	assertKey(t, err, http.StatusBadRequest, "customized_version")
}

func TestSystemCheckUpdate_Failures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	srv, hits := versionServer(t, http.StatusNotFound, "")
	_, err := updateService(f, srv.URL+"/api").SystemCheckUpdate(ctx, f.admin, UpdateCheckParams{})
	assertKey(t, err, http.StatusBadGateway, "updatecheckfailed")
	assert.EqualValues(t, 1, hits.Load(), "client errors are not retried")

	srv, hits = versionServer(t, http.StatusServiceUnavailable, "")
	_, err = updateService(f, srv.URL+"/api").SystemCheckUpdate(ctx, f.admin, UpdateCheckParams{})
	assertKey(t, err, http.StatusBadGateway, "updatecheckfailed")
	assert.EqualValues(t, 2, hits.Load())

	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", IP: -1})
	_, err = updateService(f, srv.URL+"/api").SystemCheckUpdate(ctx, reseller, UpdateCheckParams{})
	assertKey(t, err, http.StatusForbidden, "notallowed")
}

func TestSystemListFunctions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.SystemListFunctions(ctx, f.admin, ListFunctionsParams{Module: "domains"})
	require.NoError(t, err)
	cmds := out.([]*Command)
	require.Len(t, cmds, 5)
	for _, c := range cmds {
		assert.Equal(t, "Domains", c.Module)
	}

	out, err = f.svc.SystemListFunctions(ctx, f.admin, ListFunctionsParams{})
	require.NoError(t, err)
	assert.Greater(t, len(out.([]*Command)), 20)

	_, err = f.svc.SystemListFunctions(ctx, f.admin, ListFunctionsParams{Module: "Ftps"})
	assertKey(t, err, http.StatusNotFound, "modulenotfound")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.0.0", "2.0.0", 0},
		{"2.0.0", "2.0.1", -1},
		{"2.1", "2.0.9", 1},
		{"2.0.0-rc1", "2.0.0", -1},
		{"2.0.0-dev3", "2.0.0-rc1", -1},
		{"2.0.0-svn9", "2.0.0-dev1", -1},
		{"2.0.0-rc2", "2.0.0-rc1", 1},
		{"v2.0.0", "2.0.0", 0},
		{"2.0.0.1", "2.0.0", 1},
		{"0.9.40.1", "0.9.40.2", -1},
		{"0.9.40.9", "0.9.41", -1},
		{"2.0.0.1-rc1", "2.0.0.1", -1},
		{"2.0.0-beta", "2.0.0-svn1", -1},
		{"2.0.10", "2.0.9", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
