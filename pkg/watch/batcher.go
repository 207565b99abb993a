package watch

import (
	"sort"
	"sync"
	"time"

	"github.com/marmos91/fsx/internal/logger"
)

// Default batcher tuning.
const (
	DefaultBatchWindow  = 10 * time.Millisecond
	DefaultMaxBatchSize = 100
)

// BatcherConfig tunes the batch emitter.
type BatcherConfig struct {
	// Window is the fixed buffering period from the first queued event.
	Window time.Duration

	// MaxBatchSize flushes immediately when reached.
	MaxBatchSize int

	// CompressEvents applies the coalescing table within the window.
	CompressEvents bool

	// PrioritizeEvents sorts batches delete > rename > create > modify,
	// stable within equal priority.
	PrioritizeEvents bool

	// Clock defaults to the wall clock.
	Clock Clock
}

// BatcherMetrics is a snapshot of emitter counters since construction or
// the last reset.
type BatcherMetrics struct {
	EventsReceived   uint64
	EventsEmitted    uint64
	BatchesEmitted   uint64
	AverageBatchSize float64
	AverageLatency   time.Duration
	CompressionRatio float64
	EventsPerSecond  float64
}

type queuedEvent struct {
	event Event
	at    time.Time
}

// Batcher buffers events for a fixed window and delivers them to all
// registered callbacks as one batch.
type Batcher struct {
	mu        sync.Mutex
	cfg       BatcherConfig
	items     []queuedEvent
	pending   *pendingSet
	arrivals  []time.Time
	timer     Timer
	callbacks []func([]Event)
	disposed  bool

	received   uint64
	emitted    uint64
	batches    uint64
	latencySum time.Duration
	since      time.Time
}

// NewBatcher creates a batch emitter.
func NewBatcher(cfg BatcherConfig) *Batcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultBatchWindow
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	return &Batcher{
		cfg:     cfg,
		pending: newPendingSet(),
		since:   cfg.Clock.Now(),
	}
}

// OnBatch registers a batch callback. Callback failures never affect other
// callbacks in the same batch.
func (b *Batcher) OnBatch(fn func([]Event)) {
	b.mu.Lock()
	b.callbacks = append(b.callbacks, fn)
	b.mu.Unlock()
}

// Queue buffers one event for the current window.
func (b *Batcher) Queue(e Event) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	now := b.cfg.Clock.Now()
	if e.Timestamp == 0 {
		e.Timestamp = now.UnixMilli()
	}

	b.received++
	b.arrivals = append(b.arrivals, now)

	empty := b.countLocked() == 0
	if b.cfg.CompressEvents {
		b.pending.add(e)
	} else {
		b.items = append(b.items, queuedEvent{event: e, at: now})
	}

	if empty {
		if b.timer == nil {
			b.timer = b.cfg.Clock.AfterFunc(b.cfg.Window, b.timerFlush)
		} else {
			b.timer.Reset(b.cfg.Window)
		}
	}

	if b.countLocked() >= b.cfg.MaxBatchSize {
		b.flushLocked()
		return
	}
	b.mu.Unlock()
}

// Flush forces immediate emission of the current window.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.flushLocked()
}

// flushLocked assembles the batch, updates metrics and delivers it.
// Releases the lock.
func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}

	var out []Event
	if b.cfg.CompressEvents {
		out = b.pending.drain(b.cfg.PrioritizeEvents)
	} else {
		out = make([]Event, len(b.items))
		for i, q := range b.items {
			out[i] = q.event
		}
		b.items = b.items[:0]
		if b.cfg.PrioritizeEvents {
			sortByPriority(out)
		}
	}

	if len(out) > 0 {
		now := b.cfg.Clock.Now()
		for _, at := range b.arrivals {
			b.latencySum += now.Sub(at)
		}
		b.emitted += uint64(len(out))
		b.batches++
	}
	b.arrivals = b.arrivals[:0]
	callbacks := append(([]func([]Event))(nil), b.callbacks...)
	b.mu.Unlock()

	if len(out) == 0 {
		return
	}
	for _, fn := range callbacks {
		b.safeInvoke(fn, out)
	}
}

func (b *Batcher) safeInvoke(fn func([]Event), events []Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("batch callback panicked", "panic", r)
		}
	}()
	fn(events)
}

// Metrics returns a snapshot of the emitter counters.
func (b *Batcher) Metrics() BatcherMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := BatcherMetrics{
		EventsReceived: b.received,
		EventsEmitted:  b.emitted,
		BatchesEmitted: b.batches,
	}
	if b.batches > 0 {
		m.AverageBatchSize = float64(b.emitted) / float64(b.batches)
	}
	if b.received > 0 {
		m.AverageLatency = b.latencySum / time.Duration(b.received)
		m.CompressionRatio = float64(b.emitted) / float64(b.received)
	}
	if elapsed := b.cfg.Clock.Now().Sub(b.since).Seconds(); elapsed > 0 {
		m.EventsPerSecond = float64(b.received) / elapsed
	}
	return m
}

// ResetMetrics zeroes the counters and restarts the rate window.
func (b *Batcher) ResetMetrics() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.received = 0
	b.emitted = 0
	b.batches = 0
	b.latencySum = 0
	b.since = b.cfg.Clock.Now()
}

// Dispose cancels the timer and discards pending state. Safe to call
// twice; a disposed batcher is inert.
func (b *Batcher) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.items = nil
	b.pending = newPendingSet()
	b.arrivals = nil
	b.callbacks = nil
	b.disposed = true
}

func (b *Batcher) countLocked() int {
	if b.cfg.CompressEvents {
		return b.pending.len()
	}
	return len(b.items)
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	if b.disposed || b.countLocked() == 0 {
		b.mu.Unlock()
		return
	}
	b.flushLocked()
}

func sortByPriority(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Type.priority() < events[j].Type.priority()
	})
}
