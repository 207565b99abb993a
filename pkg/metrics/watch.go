package metrics

import (
	"github.com/marmos91/fsx/pkg/watch"
)

// WatchStats feeds the watch pipeline collector. Batcher may return a
// zero snapshot when batching is disabled.
type WatchStats struct {
	// Connections returns the current WebSocket connection count.
	Connections func() int

	// Subscriptions returns the current subscription count.
	Subscriptions func() int

	// Batcher returns the delivery batcher counters.
	Batcher func() watch.BatcherMetrics
}

// RegisterWatchCollector exposes watch pipeline state as Prometheus
// metrics. No-op when metrics are disabled.
func RegisterWatchCollector(stats WatchStats) {
	if !IsEnabled() || registerWatchCollector == nil {
		return
	}
	registerWatchCollector(stats)
}

// registerWatchCollector is implemented in pkg/metrics/prometheus.
var registerWatchCollector func(WatchStats)

// RegisterWatchCollectorConstructor registers the Prometheus watch
// collector hook. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterWatchCollectorConstructor(fn func(WatchStats)) {
	registerWatchCollector = fn
}
