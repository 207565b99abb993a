package tier

import (
	"sync"
	"time"
)

// latencyWindow is the number of samples kept per tier for the moving
// average.
const latencyWindow = 100

// movingAverage is a fixed-window moving average over duration samples.
type movingAverage struct {
	samples [latencyWindow]time.Duration
	next    int
	count   int
	sum     time.Duration
}

func (a *movingAverage) Add(d time.Duration) {
	if a.count == latencyWindow {
		a.sum -= a.samples[a.next]
	} else {
		a.count++
	}
	a.samples[a.next] = d
	a.sum += d
	a.next = (a.next + 1) % latencyWindow
}

func (a *movingAverage) Average() time.Duration {
	if a.count == 0 {
		return 0
	}
	return a.sum / time.Duration(a.count)
}

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot struct {
	CacheHits   uint64
	CacheMisses uint64

	ReadsByTier      map[Tier]uint64
	WritesByTier     map[Tier]uint64
	PromotionsByTier map[Tier]uint64
	DemotionsByTier  map[Tier]uint64

	// ReadLatencyByTier is the moving average over the last samples.
	ReadLatencyByTier map[Tier]time.Duration
}

type metrics struct {
	mu sync.Mutex

	cacheHits   uint64
	cacheMisses uint64

	reads      map[Tier]uint64
	writes     map[Tier]uint64
	promotions map[Tier]uint64
	demotions  map[Tier]uint64

	readLatency map[Tier]*movingAverage
}

func newMetrics() *metrics {
	return &metrics{
		reads:       make(map[Tier]uint64),
		writes:      make(map[Tier]uint64),
		promotions:  make(map[Tier]uint64),
		demotions:   make(map[Tier]uint64),
		readLatency: make(map[Tier]*movingAverage),
	}
}

func (m *metrics) hit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *metrics) miss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

func (m *metrics) read(t Tier, latency time.Duration) {
	m.mu.Lock()
	m.reads[t]++
	avg, ok := m.readLatency[t]
	if !ok {
		avg = &movingAverage{}
		m.readLatency[t] = avg
	}
	avg.Add(latency)
	m.mu.Unlock()
}

func (m *metrics) write(t Tier) {
	m.mu.Lock()
	m.writes[t]++
	m.mu.Unlock()
}

func (m *metrics) promotion(to Tier) {
	m.mu.Lock()
	m.promotions[to]++
	m.mu.Unlock()
}

func (m *metrics) demotion(to Tier) {
	m.mu.Lock()
	m.demotions[to]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		CacheHits:         m.cacheHits,
		CacheMisses:       m.cacheMisses,
		ReadsByTier:       copyCounts(m.reads),
		WritesByTier:      copyCounts(m.writes),
		PromotionsByTier:  copyCounts(m.promotions),
		DemotionsByTier:   copyCounts(m.demotions),
		ReadLatencyByTier: make(map[Tier]time.Duration, len(m.readLatency)),
	}
	for t, avg := range m.readLatency {
		snap.ReadLatencyByTier[t] = avg.Average()
	}
	return snap
}

func copyCounts(in map[Tier]uint64) map[Tier]uint64 {
	out := make(map[Tier]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
