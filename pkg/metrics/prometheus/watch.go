package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/fsx/pkg/metrics"
)

func init() {
	metrics.RegisterWatchCollectorConstructor(registerWatchCollector)
}

// watchCollector reads live pipeline state on every scrape.
type watchCollector struct {
	stats metrics.WatchStats

	connections    *prometheus.Desc
	subscriptions  *prometheus.Desc
	eventsReceived *prometheus.Desc
	eventsEmitted  *prometheus.Desc
	batchesEmitted *prometheus.Desc
	avgBatchSize   *prometheus.Desc
	avgLatency     *prometheus.Desc
}

func registerWatchCollector(stats metrics.WatchStats) {
	c := &watchCollector{
		stats: stats,
		connections: prometheus.NewDesc("fsx_watch_connections",
			"Current WebSocket connections with at least one subscription", nil, nil),
		subscriptions: prometheus.NewDesc("fsx_watch_subscriptions",
			"Current subscription count across all connections", nil, nil),
		eventsReceived: prometheus.NewDesc("fsx_watch_events_received_total",
			"Events queued into the delivery batcher", nil, nil),
		eventsEmitted: prometheus.NewDesc("fsx_watch_events_emitted_total",
			"Events delivered by the batcher", nil, nil),
		batchesEmitted: prometheus.NewDesc("fsx_watch_batches_emitted_total",
			"Batches delivered by the batcher", nil, nil),
		avgBatchSize: prometheus.NewDesc("fsx_watch_average_batch_size",
			"Average events per delivered batch", nil, nil),
		avgLatency: prometheus.NewDesc("fsx_watch_average_latency_seconds",
			"Average queue-to-delivery latency", nil, nil),
	}
	metrics.GetRegistry().MustRegister(c)
}

func (c *watchCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.subscriptions
	ch <- c.eventsReceived
	ch <- c.eventsEmitted
	ch <- c.batchesEmitted
	ch <- c.avgBatchSize
	ch <- c.avgLatency
}

func (c *watchCollector) Collect(ch chan<- prometheus.Metric) {
	if c.stats.Connections != nil {
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(c.stats.Connections()))
	}
	if c.stats.Subscriptions != nil {
		ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(c.stats.Subscriptions()))
	}
	if c.stats.Batcher == nil {
		return
	}
	snap := c.stats.Batcher()
	ch <- prometheus.MustNewConstMetric(c.eventsReceived, prometheus.CounterValue, float64(snap.EventsReceived))
	ch <- prometheus.MustNewConstMetric(c.eventsEmitted, prometheus.CounterValue, float64(snap.EventsEmitted))
	ch <- prometheus.MustNewConstMetric(c.batchesEmitted, prometheus.CounterValue, float64(snap.BatchesEmitted))
	ch <- prometheus.MustNewConstMetric(c.avgBatchSize, prometheus.GaugeValue, snap.AverageBatchSize)
	ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, snap.AverageLatency.Seconds())
}
