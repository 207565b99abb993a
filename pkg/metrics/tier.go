package metrics

import (
	"github.com/marmos91/fsx/pkg/tier"
)

// NewTierHooks creates Prometheus-backed placement engine hooks.
//
// Returns tier.Hooks{} if metrics are not enabled (InitRegistry not
// called) or the Prometheus implementation is not linked in.
//
// Example usage:
//
//	metrics.InitRegistry()
//	engine, err := tier.NewEngine(cfg, backends, meta, metrics.NewTierHooks())
func NewTierHooks() tier.Hooks {
	if !IsEnabled() || newPrometheusTierHooks == nil {
		return tier.Hooks{}
	}
	return newPrometheusTierHooks()
}

// newPrometheusTierHooks is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle between the facade and the
// implementation package.
var newPrometheusTierHooks func() tier.Hooks

// RegisterTierHooksConstructor registers the Prometheus tier hooks
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterTierHooksConstructor(constructor func() tier.Hooks) {
	newPrometheusTierHooks = constructor
}

// RegisterEngineCollector exposes the engine's internal counters
// (reads, writes, promotions, demotions, cache hit rate) as Prometheus
// gauges. No-op when metrics are disabled.
func RegisterEngineCollector(snapshot func() tier.MetricsSnapshot) {
	if !IsEnabled() || registerEngineCollector == nil {
		return
	}
	registerEngineCollector(snapshot)
}

// registerEngineCollector is implemented in pkg/metrics/prometheus.
var registerEngineCollector func(func() tier.MetricsSnapshot)

// RegisterEngineCollectorConstructor registers the Prometheus engine
// collector hook. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterEngineCollectorConstructor(fn func(func() tier.MetricsSnapshot)) {
	registerEngineCollector = fn
}
