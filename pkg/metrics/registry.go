// Package metrics provides optional Prometheus instrumentation.
//
// Metrics are opt-in: nothing is collected until InitRegistry is called.
// Every constructor in this package returns a nil or no-op value when
// metrics are disabled, so callers can wire instrumentation
// unconditionally with zero overhead when it is off.
//
// The concrete Prometheus implementations live in pkg/metrics/prometheus
// and register themselves through the Register*Constructor functions;
// importing that package (usually blank, from main) activates them.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry and enables
// collection. Safe to call more than once; later calls are no-ops.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// ResetRegistry drops the registry. For tests: promauto collectors
// register by name, and a fresh registry avoids duplicate registration
// across test cases.
func ResetRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
