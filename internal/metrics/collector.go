package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/store"
)

// DBCollector exports resource counts read from the panel database on every
// scrape.
type DBCollector struct {
	q       store.Querier
	logger  *logging.Logger
	timeout time.Duration

	resources *prometheus.Desc
	pending   *prometheus.Desc
}

var resourceQueries = map[string]string{
	"admins":      "SELECT COUNT(*) FROM panel_admins",
	"customers":   "SELECT COUNT(*) FROM panel_customers",
	"domains":     "SELECT COUNT(*) FROM panel_domains WHERE parentdomainid = 0",
	"subdomains":  "SELECT COUNT(*) FROM panel_domains WHERE parentdomainid <> 0",
	"ipsandports": "SELECT COUNT(*) FROM panel_ipsandports",
	"phpconfigs":  "SELECT COUNT(*) FROM panel_phpconfigs",
	"backups":     "SELECT COUNT(*) FROM panel_backups",
}

// NewDBCollector creates a collector reading through q.
func NewDBCollector(q store.Querier, logger *logging.Logger) *DBCollector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	return &DBCollector{
		q:       q,
		logger:  logger,
		timeout: 5 * time.Second,
		resources: prometheus.NewDesc("hearth_resources",
			"Number of panel resources by kind", []string{"kind"}, nil),
		pending: prometheus.NewDesc("hearth_tasks_pending",
			"Task rows waiting for the config cron, by type", []string{"type"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resources
	ch <- c.pending
}

// Collect implements prometheus.Collector.
func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for kind, query := range resourceQueries {
		n, err := store.Count(ctx, c.q, query)
		if err != nil {
			c.logger.Warn("metrics query failed", "kind", kind, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.resources, prometheus.GaugeValue, float64(n), kind)
	}

	rows, err := c.q.QueryContext(ctx, "SELECT type, COUNT(*) FROM panel_tasks GROUP BY type")
	if err != nil {
		c.logger.Warn("metrics query failed", "kind", "tasks", "error", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(n), typ)
	}
}
