package sql

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the counters of a QueryStats as Prometheus metrics.
//
//	stats := statsDriver.QueryStats()
//	prometheus.MustRegister(sql.NewCollector(stats, "rowset", prometheus.Labels{"dialect": "sqlserver"}))
type Collector struct {
	stats    *QueryStats
	queries  *prometheus.Desc
	execs    *prometheus.Desc
	duration *prometheus.Desc
	slow     *prometheus.Desc
	errors   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading stats. Metric names are prefixed
// with namespace.
func NewCollector(stats *QueryStats, namespace string, labels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "sql", name), help, nil, labels)
	}
	return &Collector{
		stats:    stats,
		queries:  desc("queries_total", "Number of executed queries."),
		execs:    desc("execs_total", "Number of executed statements."),
		duration: desc("duration_seconds_total", "Time spent executing queries and statements."),
		slow:     desc("slow_queries_total", "Number of queries above the slow threshold."),
		errors:   desc("errors_total", "Number of failed queries and statements."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queries
	ch <- c.execs
	ch <- c.duration
	ch <- c.slow
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Stats()
	ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(s.TotalQueries))
	ch <- prometheus.MustNewConstMetric(c.execs, prometheus.CounterValue, float64(s.TotalExecs))
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, s.TotalDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.slow, prometheus.CounterValue, float64(s.SlowQueries))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
}
