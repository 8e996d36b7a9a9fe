package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolStat struct {
	desc  *prometheus.Desc
	value func(*pgxpool.Stat) float64
}

// PoolCollector implements prometheus.Collector for the Postgres object
// store's connection pool. Stats are read during each scrape.
type PoolCollector struct {
	pool  *pgxpool.Pool
	table string
	stats []poolStat
}

// NewPoolCollector creates a collector for pool. A nil pool (memory or
// SQLite store) collects nothing.
func NewPoolCollector(pool *pgxpool.Pool, table string) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(namespace+"_pgxpool_"+name, help, []string{"table"}, nil)
	}
	return &PoolCollector{
		pool:  pool,
		table: table,
		stats: []poolStat{
			{desc("acquire_count", "Cumulative count of successful connection acquires."),
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{desc("acquire_duration_seconds", "Cumulative time spent acquiring connections."),
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{desc("acquired_conns", "Number of currently acquired connections."),
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{desc("canceled_acquire_count", "Cumulative count of acquires canceled by context."),
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
			{desc("empty_acquire_count", "Cumulative count of acquires from an empty pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{desc("idle_conns", "Number of idle connections in the pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{desc("max_conns", "Maximum number of connections allowed."),
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{desc("total_conns", "Total number of connections in the pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	for _, s := range c.stats {
		ch <- prometheus.MustNewConstMetric(s.desc, prometheus.GaugeValue, s.value(stat), c.table)
	}
}
