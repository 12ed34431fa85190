package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/store"
)

func TestRegistry_Record(t *testing.T) {
	r := NewForTesting(prometheus.NewRegistry())

	r.RecordCommand("Domains.add", 200, "")
	r.RecordCommand("Domains.add", 406, "noresources")
	r.RecordTask(1)
	r.RecordTask(1)
	r.RecordTask(4)
	r.RecordLogin("admin", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Commands.WithLabelValues("Domains.add", "406")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CommandErrors.WithLabelValues("noresources")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.TasksQueued.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Logins.WithLabelValues("admin", "failure")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordTask(1)
		r.RecordCommand("x", 200, "")
		r.RecordAPIRequest("GET", "/", 200, 0.1)
		r.RecordLogin("admin", true)
	})
}

func TestDBCollector(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.SQL().Exec("INSERT INTO panel_tasks (type) VALUES (1), (4)")
	require.NoError(t, err)

	c := NewDBCollector(db.SQL(), nil)
	expected := `
# HELP hearth_tasks_pending Task rows waiting for the config cron, by type
# TYPE hearth_tasks_pending gauge
hearth_tasks_pending{type="1"} 1
hearth_tasks_pending{type="4"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "hearth_tasks_pending"))
	assert.Equal(t, 9, testutil.CollectAndCount(c))
}
