package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]Event
}

func (r *batchRecorder) record(events []Event) {
	r.mu.Lock()
	r.batches = append(r.batches, events)
	r.mu.Unlock()
}

func (r *batchRecorder) all() [][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Event(nil), r.batches...)
}

func newTestCoalescer(cfg CoalescerConfig) (*Coalescer, *batchRecorder, *FakeClock) {
	clock := NewFakeClock()
	cfg.Clock = clock
	c := NewCoalescer(cfg)
	rec := &batchRecorder{}
	c.OnEmit(rec.record)
	return c, rec, clock
}

func i64(v int64) *int64 { return &v }

func TestCoalesceBurst(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{Debounce: 50 * time.Millisecond})

	c.Add(Event{Type: EventModify, Path: "/f"})
	c.Add(Event{Type: EventModify, Path: "/f"})
	c.Add(Event{Type: EventDelete, Path: "/f"})
	c.Add(Event{Type: EventCreate, Path: "/g"})
	c.Add(Event{Type: EventModify, Path: "/h"})

	assert.Empty(t, rec.all())
	clock.Advance(60 * time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	batch := batches[0]
	require.Len(t, batch, 3)
	assert.Equal(t, EventDelete, batch[0].Type)
	assert.Equal(t, "/f", batch[0].Path)
	assert.Equal(t, EventCreate, batch[1].Type)
	assert.Equal(t, "/g", batch[1].Path)
	assert.Equal(t, EventModify, batch[2].Type)
	assert.Equal(t, "/h", batch[2].Path)
}

func TestCoalesceRenameChain(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventRename, Path: "/B", OldPath: "/A"})
	c.Add(Event{Type: EventRename, Path: "/C", OldPath: "/B"})
	clock.Advance(DefaultDebounce + time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, EventRename, batches[0][0].Type)
	assert.Equal(t, "/C", batches[0][0].Path)
	assert.Equal(t, "/A", batches[0][0].OldPath)
}

func TestCoalesceRenameThenDelete(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventRename, Path: "/b", OldPath: "/a"})
	c.Add(Event{Type: EventDelete, Path: "/b"})
	clock.Advance(DefaultDebounce + time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, EventDelete, batches[0][0].Type)
	assert.Equal(t, "/b", batches[0][0].Path)
}

func TestCoalesceRenameThenModify(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventRename, Path: "/b", OldPath: "/a"})
	c.Add(Event{Type: EventModify, Path: "/b", Size: i64(128)})
	clock.Advance(DefaultDebounce + time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	e := batches[0][0]
	assert.Equal(t, EventRename, e.Type)
	assert.Equal(t, "/b", e.Path)
	assert.Equal(t, "/a", e.OldPath)
	require.NotNil(t, e.Size)
	assert.Equal(t, int64(128), *e.Size)
}

func TestCoalesceCreateThenModify(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventCreate, Path: "/f", Size: i64(0)})
	c.Add(Event{Type: EventModify, Path: "/f", Size: i64(9)})
	clock.Advance(DefaultDebounce + time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	e := batches[0][0]
	assert.Equal(t, EventCreate, e.Type)
	require.NotNil(t, e.Size)
	assert.Equal(t, int64(9), *e.Size)
}

func TestCoalesceDeleteWins(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventDelete, Path: "/f"})
	c.Add(Event{Type: EventModify, Path: "/f"})
	c.Add(Event{Type: EventCreate, Path: "/f"})
	clock.Advance(DefaultDebounce + time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, EventDelete, batches[0][0].Type)
}

func TestDebounceResetsOnActivity(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{Debounce: 50 * time.Millisecond})

	c.Add(Event{Type: EventModify, Path: "/a"})
	clock.Advance(30 * time.Millisecond)
	c.Add(Event{Type: EventModify, Path: "/b"})
	clock.Advance(30 * time.Millisecond)
	assert.Empty(t, rec.all())

	clock.Advance(25 * time.Millisecond)
	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestMaxWaitCapsDebounce(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{
		Debounce: 50 * time.Millisecond,
		MaxWait:  100 * time.Millisecond,
	})

	// Activity every 40ms keeps resetting the debounce; the ceiling still
	// flushes at 100ms.
	c.Add(Event{Type: EventModify, Path: "/a"})
	clock.Advance(40 * time.Millisecond)
	c.Add(Event{Type: EventModify, Path: "/b"})
	clock.Advance(40 * time.Millisecond)
	c.Add(Event{Type: EventModify, Path: "/c"})
	clock.Advance(20 * time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
	assert.Equal(t, 0, c.PendingCount())
}

func TestCoalescerMaxBatchSize(t *testing.T) {
	c, rec, _ := newTestCoalescer(CoalescerConfig{MaxBatchSize: 2})

	c.Add(Event{Type: EventModify, Path: "/a"})
	assert.Empty(t, rec.all())
	c.Add(Event{Type: EventModify, Path: "/b"})

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestCoalescerFlush(t *testing.T) {
	c, rec, _ := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventCreate, Path: "/a"})
	assert.Equal(t, 1, c.PendingCount())
	c.Flush()
	assert.Equal(t, 0, c.PendingCount())
	require.Len(t, rec.all(), 1)

	// Flushing an empty window emits nothing.
	c.Flush()
	assert.Len(t, rec.all(), 1)
}

func TestCoalescerDispose(t *testing.T) {
	c, rec, clock := newTestCoalescer(CoalescerConfig{})

	c.Add(Event{Type: EventCreate, Path: "/a"})
	c.Dispose()
	c.Dispose()

	c.Add(Event{Type: EventCreate, Path: "/b"})
	c.Flush()
	clock.Advance(time.Second)
	assert.Empty(t, rec.all())
}

func TestSetDebounceInterval(t *testing.T) {
	c, _, _ := newTestCoalescer(CoalescerConfig{})

	assert.Equal(t, DefaultDebounce, c.DebounceInterval())
	c.SetDebounceInterval(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, c.DebounceInterval())
	c.SetDebounceInterval(0)
	assert.Equal(t, 200*time.Millisecond, c.DebounceInterval())
}
