// Package writebuffer implements the bounded LRU + dirty-set buffer that
// backs the columnar metadata store.
//
// Writes are absorbed into the buffer and marked dirty; the owning store
// periodically checkpoints dirty entries to durable storage in a single
// transaction. When capacity pressure evicts a dirty entry, the owner's
// flush hook runs synchronously before the eviction completes so no dirty
// state is ever dropped.
package writebuffer

import (
	"sync"
	"time"
)

// EvictReason explains why an entry left the buffer.
type EvictReason string

const (
	// EvictReasonCount means the entry-count cap was exceeded.
	EvictReasonCount EvictReason = "count"

	// EvictReasonSize means the byte-size cap was exceeded.
	EvictReasonSize EvictReason = "size"

	// EvictReasonExplicit means the entry was deleted by the caller.
	EvictReasonExplicit EvictReason = "explicit"
)

// EvictFunc observes an eviction. When dirty is true the owning store must
// flush synchronously inside this hook.
type EvictFunc func(key string, value any, dirty bool, reason EvictReason)

// Config bounds the buffer.
type Config struct {
	// MaxEntries caps the entry count. 0 means unbounded.
	MaxEntries int

	// MaxBytes caps the total size as reported by Sizer. 0 means unbounded.
	MaxBytes int64

	// Sizer reports the byte size of a value. Required when MaxBytes > 0.
	Sizer func(value any) int64

	// OnEvict fires for every eviction, including explicit deletes.
	OnEvict EvictFunc
}

// SetOptions controls how Set records an entry.
type SetOptions struct {
	// MarkDirty is the default; pass false when hydrating from storage.
	MarkDirty bool
}

// Stats is a point-in-time snapshot of buffer state.
type Stats struct {
	Entries    int
	DirtyCount int
	TotalBytes int64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}

type entry struct {
	value      any
	size       int64
	dirty      bool
	lastAccess time.Time
}

// Buffer is a bounded write-back cache keyed by string. Safe for concurrent
// use.
type Buffer struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	total   int64

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

// New creates a Buffer with the given bounds.
func New(cfg Config) *Buffer {
	return &Buffer{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the buffered value and touches its access time.
func (b *Buffer) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		b.misses++
		return nil, false
	}
	b.hits++
	e.lastAccess = b.now()
	return e.value, true
}

// Set inserts or replaces an entry, marking it dirty unless opts says
// otherwise, then enforces capacity.
func (b *Buffer) Set(key string, value any, opts ...SetOptions) {
	markDirty := true
	if len(opts) > 0 {
		markDirty = opts[0].MarkDirty
	}

	var size int64
	if b.cfg.Sizer != nil {
		size = b.cfg.Sizer(value)
	}

	b.mu.Lock()
	if old, ok := b.entries[key]; ok {
		b.total -= old.size
	}
	b.entries[key] = &entry{
		value:      value,
		size:       size,
		dirty:      markDirty,
		lastAccess: b.now(),
	}
	b.total += size

	evicted := b.collectOverflow(key)
	b.mu.Unlock()

	for _, ev := range evicted {
		b.notifyEvict(ev.key, ev.e, ev.reason)
	}
}

// Delete removes an entry and fires the evict hook with reason explicit.
// Returns false if the key was absent.
func (b *Buffer) Delete(key string) bool {
	b.mu.Lock()
	e, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
		b.total -= e.size
		b.evictions++
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	b.notifyEvict(key, e, EvictReasonExplicit)
	return true
}

// DirtyEntries returns a snapshot of all dirty key/value pairs.
func (b *Buffer) DirtyEntries() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]any)
	for k, e := range b.entries {
		if e.dirty {
			out[k] = e.value
		}
	}
	return out
}

// MarkClean clears the dirty bit on the given keys (after a checkpoint).
func (b *Buffer) MarkClean(keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		if e, ok := b.entries[k]; ok {
			e.dirty = false
		}
	}
}

// IsDirty reports whether the key is present and dirty.
func (b *Buffer) IsDirty(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	return ok && e.dirty
}

// Stats returns a snapshot of buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	dirty := 0
	for _, e := range b.entries {
		if e.dirty {
			dirty++
		}
	}
	return Stats{
		Entries:    len(b.entries),
		DirtyCount: dirty,
		TotalBytes: b.total,
		Hits:       b.hits,
		Misses:     b.misses,
		Evictions:  b.evictions,
	}
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

type evicted struct {
	key    string
	e      *entry
	reason EvictReason
}

// collectOverflow removes LRU entries until both caps hold, sparing the key
// that was just written. Caller holds the lock; hooks run after unlock.
func (b *Buffer) collectOverflow(justSet string) []evicted {
	var out []evicted
	for {
		var reason EvictReason
		switch {
		case b.cfg.MaxEntries > 0 && len(b.entries) > b.cfg.MaxEntries:
			reason = EvictReasonCount
		case b.cfg.MaxBytes > 0 && b.total > b.cfg.MaxBytes:
			reason = EvictReasonSize
		default:
			return out
		}

		victim := b.lruKey(justSet)
		if victim == "" {
			return out
		}
		e := b.entries[victim]
		delete(b.entries, victim)
		b.total -= e.size
		b.evictions++
		out = append(out, evicted{key: victim, e: e, reason: reason})
	}
}

// lruKey returns the least recently used key, skipping the given one.
func (b *Buffer) lruKey(skip string) string {
	var oldestKey string
	var oldest time.Time
	for k, e := range b.entries {
		if k == skip {
			continue
		}
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = k
			oldest = e.lastAccess
		}
	}
	return oldestKey
}

func (b *Buffer) notifyEvict(key string, e *entry, reason EvictReason) {
	if b.cfg.OnEvict != nil {
		b.cfg.OnEvict(key, e.value, e.dirty, reason)
	}
}
