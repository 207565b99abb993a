package watch

import (
	"sync"
	"time"
)

// Default coalescer tuning.
const (
	DefaultDebounce = 50 * time.Millisecond
)

// CoalescerConfig tunes the event coalescer.
type CoalescerConfig struct {
	// Debounce is the quiet period before the pending window flushes. Each
	// added event resets it.
	Debounce time.Duration

	// MaxBatchSize flushes immediately once this many distinct paths are
	// pending. Zero disables the threshold.
	MaxBatchSize int

	// MaxWait is the ceiling from the first queued event in the window;
	// the window flushes when it elapses even if the debounce keeps being
	// reset. Zero disables the ceiling.
	MaxWait time.Duration

	// Clock defaults to the wall clock.
	Clock Clock
}

// Coalescer buffers events per path, folds them by the coalescing rules
// and emits priority-sorted batches after a debounce quiet period.
type Coalescer struct {
	mu       sync.Mutex
	cfg      CoalescerConfig
	pending  *pendingSet
	debounce Timer
	maxWait  Timer
	emit     func([]Event)
	disposed bool
}

// NewCoalescer creates a coalescer. Call OnEmit before feeding events.
func NewCoalescer(cfg CoalescerConfig) *Coalescer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	return &Coalescer{cfg: cfg, pending: newPendingSet()}
}

// OnEmit registers the batch callback, replacing any previous one.
func (c *Coalescer) OnEmit(fn func([]Event)) {
	c.mu.Lock()
	c.emit = fn
	c.mu.Unlock()
}

// Add folds an event into the pending window and arms the timers.
func (c *Coalescer) Add(e Event) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if e.Timestamp == 0 {
		e.Timestamp = c.cfg.Clock.Now().UnixMilli()
	}

	wasEmpty := c.pending.len() == 0
	c.pending.add(e)

	if wasEmpty && c.cfg.MaxWait > 0 {
		c.maxWait = c.cfg.Clock.AfterFunc(c.cfg.MaxWait, c.timerFlush)
	}
	if c.debounce == nil {
		c.debounce = c.cfg.Clock.AfterFunc(c.cfg.Debounce, c.timerFlush)
	} else {
		c.debounce.Reset(c.cfg.Debounce)
	}

	if c.cfg.MaxBatchSize > 0 && c.pending.len() >= c.cfg.MaxBatchSize {
		c.flushLocked()
		return
	}
	c.mu.Unlock()
}

// Flush forces immediate emission of the pending window.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.flushLocked()
}

// flushLocked emits pending events and releases the lock. Caller holds mu.
func (c *Coalescer) flushLocked() {
	c.stopTimersLocked()
	events := c.pending.drain(true)
	emit := c.emit
	c.mu.Unlock()

	if len(events) > 0 && emit != nil {
		emit(events)
	}
}

// PendingCount returns the number of distinct pending paths.
func (c *Coalescer) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// DebounceInterval returns the current debounce period.
func (c *Coalescer) DebounceInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Debounce
}

// SetDebounceInterval changes the debounce period for subsequent windows.
func (c *Coalescer) SetDebounceInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.Debounce = d
	c.mu.Unlock()
}

// Dispose cancels timers, discards pending events and detaches the
// callback. Safe to call twice; a disposed coalescer is inert.
func (c *Coalescer) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.stopTimersLocked()
	c.pending = newPendingSet()
	c.emit = nil
	c.disposed = true
}

func (c *Coalescer) stopTimersLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.maxWait != nil {
		c.maxWait.Stop()
		c.maxWait = nil
	}
}

func (c *Coalescer) timerFlush() {
	c.mu.Lock()
	if c.disposed || c.pending.len() == 0 {
		c.mu.Unlock()
		return
	}
	c.flushLocked()
}
