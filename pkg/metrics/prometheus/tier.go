// Package prometheus implements the metrics facade with
// prometheus/client_golang collectors. Importing this package (usually
// blank, from main) registers the implementations.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fsx/pkg/metrics"
	"github.com/marmos91/fsx/pkg/tier"
)

func init() {
	metrics.RegisterTierHooksConstructor(newTierHooks)
	metrics.RegisterEngineCollectorConstructor(registerEngineCollector)
}

// newTierHooks returns engine hooks backed by Prometheus counters.
func newTierHooks() tier.Hooks {
	reg := metrics.GetRegistry()

	operations := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsx_tier_operations_total",
			Help: "Total number of placement engine operations by type",
		},
		[]string{"op"}, // "read", "write", "delete", "copy", "promote", "demote"
	)
	errors := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsx_tier_operation_errors_total",
			Help: "Total number of failed placement engine operations by type",
		},
		[]string{"op"},
	)
	migrations := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsx_tier_migrations_total",
			Help: "Total number of payload migrations by source and destination tier",
		},
		[]string{"from", "to"},
	)

	return tier.Hooks{
		OnOperationStart: func(op, path string) {
			operations.WithLabelValues(op).Inc()
		},
		OnOperationEnd: func(op, path string, err error) {
			if err != nil {
				errors.WithLabelValues(op).Inc()
			}
		},
		OnTierMigration: func(path string, from, to tier.Tier) {
			migrations.WithLabelValues(string(from), string(to)).Inc()
		},
	}
}

// engineCollector reads the engine's counter snapshot on every scrape.
type engineCollector struct {
	snapshot func() tier.MetricsSnapshot

	cacheHits   *prometheus.Desc
	cacheMisses *prometheus.Desc
	reads       *prometheus.Desc
	writes      *prometheus.Desc
	promotions  *prometheus.Desc
	demotions   *prometheus.Desc
	readLatency *prometheus.Desc
}

func registerEngineCollector(snapshot func() tier.MetricsSnapshot) {
	c := &engineCollector{
		snapshot: snapshot,
		cacheHits: prometheus.NewDesc("fsx_tiermap_cache_hits_total",
			"Tier map cache hits", nil, nil),
		cacheMisses: prometheus.NewDesc("fsx_tiermap_cache_misses_total",
			"Tier map cache misses", nil, nil),
		reads: prometheus.NewDesc("fsx_tier_reads_total",
			"Payload reads by tier", []string{"tier"}, nil),
		writes: prometheus.NewDesc("fsx_tier_writes_total",
			"Payload writes by tier", []string{"tier"}, nil),
		promotions: prometheus.NewDesc("fsx_tier_promotions_total",
			"Payload promotions by destination tier", []string{"tier"}, nil),
		demotions: prometheus.NewDesc("fsx_tier_demotions_total",
			"Payload demotions by destination tier", []string{"tier"}, nil),
		readLatency: prometheus.NewDesc("fsx_tier_read_latency_seconds",
			"Moving average read latency by tier", []string{"tier"}, nil),
	}
	metrics.GetRegistry().MustRegister(c)
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.reads
	ch <- c.writes
	ch <- c.promotions
	ch <- c.demotions
	ch <- c.readLatency
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()

	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(snap.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(snap.CacheMisses))

	for t, v := range snap.ReadsByTier {
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(v), string(t))
	}
	for t, v := range snap.WritesByTier {
		ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(v), string(t))
	}
	for t, v := range snap.PromotionsByTier {
		ch <- prometheus.MustNewConstMetric(c.promotions, prometheus.CounterValue, float64(v), string(t))
	}
	for t, v := range snap.DemotionsByTier {
		ch <- prometheus.MustNewConstMetric(c.demotions, prometheus.CounterValue, float64(v), string(t))
	}
	for t, v := range snap.ReadLatencyByTier {
		ch <- prometheus.MustNewConstMetric(c.readLatency, prometheus.GaugeValue, v.Seconds(), string(t))
	}
}
