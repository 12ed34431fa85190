package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/config"
	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/scheduler"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hearth.hcl")
	src := "database {\n  path = \"" + filepath.Join(dir, "panel.db") + "\"\n  wal = false\n}\n" + body
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func TestRunCheck_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
settings "system" {
  hostname = "panel.example.com"
  nosuchsetting = true
}
`)
	var out bytes.Buffer
	require.NoError(t, runCheck(&out, path, true))

	text := out.String()
	assert.Contains(t, text, "Configuration valid!")
	assert.Contains(t, text, "Warning: unknown setting system.nosuchsetting")
	assert.Contains(t, text, "-system.hostname = localhost")
	assert.Contains(t, text, "+system.hostname = panel.example.com")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "web {\n  # missing closing brace\n")
	assert.Error(t, runCheck(&bytes.Buffer{}, path, false))

	assert.Error(t, runCheck(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing.hcl"), false))
	assert.Error(t, runCheck(&bytes.Buffer{}, "", false))
}

func TestAdminCreate(t *testing.T) {
	path := writeConfig(t, "")
	var out bytes.Buffer
	err := runAdminCreate([]string{
		"-config", path,
		"-login", "root",
		"-name", "Root",
		"-email", "root@example.com",
		"-superadmin",
	}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Created admin root")
	assert.Contains(t, out.String(), "Generated password:")

	rt, err := openRuntime(context.Background(), path, false)
	require.NoError(t, err)
	defer rt.Close()
	a, err := store.GetAdminByLogin(context.Background(), rt.db.SQL(), "root")
	require.NoError(t, err)
	assert.True(t, a.ChangeServerSettings)
	assert.EqualValues(t, -1, a.Customers)
	assert.EqualValues(t, -1, a.IP)

	err = runAdminCreate([]string{"-config", path, "-login", "root", "-name", "Again", "-email", "again@example.com"},
		strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err, "login names are unique")
}

func TestAdminParams(t *testing.T) {
	raw := adminParams(map[string]string{"new_loginname": "web", "admin_password": "", "customers": "5"})
	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]string{"new_loginname": "web", "customers": "5"}, got)
}

func TestPrintTasks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printTasks(&out, nil, false))
	assert.Contains(t, out.String(), "No pending tasks")

	pending := []tasks.Task{{ID: 3, Type: tasks.RebuildVhost, Name: tasks.RebuildVhost.String(), CreatedAt: 1700000000}}
	out.Reset()
	require.NoError(t, printTasks(&out, pending, false))
	assert.Contains(t, out.String(), "rebuild_vhost")
	assert.Contains(t, out.String(), "2023-11-14")

	out.Reset()
	require.NoError(t, printTasks(&out, pending, true))
	var decoded []tasks.Task
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, pending, decoded)
}

func TestReloadSettings(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, settings.Seed(ctx, db.SQL(), nil, false))
	st := settings.New()
	require.NoError(t, st.Load(ctx, db.SQL()))
	assert.Equal(t, "localhost", st.Get("system.hostname"))

	cfg, err := config.LoadHCL([]byte("settings \"system\" {\n  hostname = \"panel.example.com\"\n}\n"), "test.hcl")
	require.NoError(t, err)
	require.NoError(t, reloadSettings(ctx, db, st, cfg))
	assert.Equal(t, "panel.example.com", st.Get("system.hostname"))
}

func TestDroppedEventsJob(t *testing.T) {
	m := metrics.NewForTesting(prometheus.NewRegistry())
	hub := events.NewHub()
	sub := hub.Subscribe(1)
	defer hub.Unsubscribe(sub)

	for i := 0; i < 3; i++ {
		hub.EmitTask("admin", int64(i), 1, "rebuild_vhost")
	}
	job := droppedEventsJob(hub, m)
	require.NoError(t, job.Func(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped))

	require.NoError(t, job.Func(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped), "only new drops are added")
}

type nopPruner struct{}

func (nopPruner) Prune(context.Context) (int64, error) { return 0, nil }

func TestHousekeepingJobs(t *testing.T) {
	cfg, err := config.LoadHCL([]byte("audit {\n prune_at = \"04:45\"\n}\n"), "test.hcl")
	require.NoError(t, err)
	m := metrics.NewForTesting(prometheus.NewRegistry())
	jobs := housekeepingJobs(cfg, pruners{nopPruner{}, nopPruner{}, nopPruner{}, nopPruner{}}, events.NewHub(), m, nil)

	byID := map[string]*scheduler.Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	require.Contains(t, byID, "actionlog")
	after := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 4, 45, 0, 0, time.UTC), byID["actionlog"].Schedule.Next(after))
	assert.Equal(t, after.Add(15*time.Minute), byID["sessions"].Schedule.Next(after))
	assert.Contains(t, byID, "events")
}

func TestNewLogger_UsesBinaryName(t *testing.T) {
	prev := brand.BinaryName
	brand.BinaryName = "hearth-test"
	t.Cleanup(func() {
		brand.BinaryName = prev
		logging.SetPrefix(prev)
	})

	cfg, err := config.LoadHCL([]byte("logging {\n level = \"warn\"\n}\n"), "test.hcl")
	require.NoError(t, err)
	logger := newLogger(cfg)
	assert.Equal(t, "hearth-test", logging.GetPrefix())
	assert.Equal(t, logging.LevelWarn, logger.GetLevel())
}
