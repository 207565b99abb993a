package prometheus

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsx/pkg/metrics"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/watch"
)

func freshRegistry(t *testing.T) {
	t.Helper()
	metrics.ResetRegistry()
	metrics.InitRegistry()
	t.Cleanup(metrics.ResetRegistry)
}

// gather returns the metric family by name, or nil.
func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
				break
			}
		}
		if match {
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return -1
}

func TestTierHooks(t *testing.T) {
	freshRegistry(t)

	hooks := metrics.NewTierHooks()
	require.NotNil(t, hooks.OnOperationStart)

	hooks.OnOperationStart("read", "blob/a")
	hooks.OnOperationStart("read", "blob/b")
	hooks.OnOperationEnd("read", "blob/a", nil)
	hooks.OnOperationEnd("read", "blob/b", errors.New("boom"))
	hooks.OnTierMigration("blob/a", tier.Hot, tier.Warm)

	ops := gather(t, "fsx_tier_operations_total")
	require.NotNil(t, ops)
	require.Equal(t, 2.0, counterValue(ops, map[string]string{"op": "read"}))

	errs := gather(t, "fsx_tier_operation_errors_total")
	require.NotNil(t, errs)
	require.Equal(t, 1.0, counterValue(errs, map[string]string{"op": "read"}))

	migrations := gather(t, "fsx_tier_migrations_total")
	require.NotNil(t, migrations)
	require.Equal(t, 1.0, counterValue(migrations, map[string]string{"from": "hot", "to": "warm"}))
}

func TestEngineCollector(t *testing.T) {
	freshRegistry(t)

	metrics.RegisterEngineCollector(func() tier.MetricsSnapshot {
		return tier.MetricsSnapshot{
			CacheHits:   7,
			CacheMisses: 3,
			ReadsByTier: map[tier.Tier]uint64{tier.Hot: 5},
			ReadLatencyByTier: map[tier.Tier]time.Duration{
				tier.Hot: 2 * time.Millisecond,
			},
		}
	})

	hits := gather(t, "fsx_tiermap_cache_hits_total")
	require.NotNil(t, hits)
	require.Equal(t, 7.0, hits.GetMetric()[0].GetCounter().GetValue())

	reads := gather(t, "fsx_tier_reads_total")
	require.NotNil(t, reads)
	require.Equal(t, 5.0, counterValue(reads, map[string]string{"tier": "hot"}))

	latency := gather(t, "fsx_tier_read_latency_seconds")
	require.NotNil(t, latency)
	require.InDelta(t, 0.002, counterValue(latency, map[string]string{"tier": "hot"}), 1e-9)
}

func TestWatchCollector(t *testing.T) {
	freshRegistry(t)

	metrics.RegisterWatchCollector(metrics.WatchStats{
		Connections:   func() int { return 4 },
		Subscriptions: func() int { return 9 },
		Batcher: func() watch.BatcherMetrics {
			return watch.BatcherMetrics{
				EventsReceived:   10,
				EventsEmitted:    8,
				BatchesEmitted:   2,
				AverageBatchSize: 4.0,
				AverageLatency:   50 * time.Millisecond,
			}
		},
	})

	conns := gather(t, "fsx_watch_connections")
	require.NotNil(t, conns)
	require.Equal(t, 4.0, conns.GetMetric()[0].GetGauge().GetValue())

	subs := gather(t, "fsx_watch_subscriptions")
	require.NotNil(t, subs)
	require.Equal(t, 9.0, subs.GetMetric()[0].GetGauge().GetValue())

	received := gather(t, "fsx_watch_events_received_total")
	require.NotNil(t, received)
	require.Equal(t, 10.0, received.GetMetric()[0].GetCounter().GetValue())

	latency := gather(t, "fsx_watch_average_latency_seconds")
	require.NotNil(t, latency)
	require.InDelta(t, 0.05, latency.GetMetric()[0].GetGauge().GetValue(), 1e-9)
}

func TestWatchCollector_NoBatcher(t *testing.T) {
	freshRegistry(t)

	metrics.RegisterWatchCollector(metrics.WatchStats{
		Connections: func() int { return 1 },
	})

	conns := gather(t, "fsx_watch_connections")
	require.NotNil(t, conns)
	require.Nil(t, gather(t, "fsx_watch_events_received_total"))
}
