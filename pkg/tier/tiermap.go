package tier

import (
	"container/list"
	"sync"
	"time"
)

// Entry is the per-path placement record kept in the tier map.
type Entry struct {
	Path           string
	Tier           Tier
	Size           int64
	AccessCount    int64
	LastAccess     time.Time
	RecentAccesses []time.Time
}

// maxRecentAccesses caps the per-entry access history.
const maxRecentAccesses = 10

// tierMap is an LRU cache of placement records keyed by path. Least
// recently accessed entries are evicted once the cache exceeds its
// capacity.
type tierMap struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	lru     *list.List // front = most recently accessed
	now     func() time.Time
	window  time.Duration
}

func newTierMap(max int, window time.Duration) *tierMap {
	return &tierMap{
		max:     max,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
		window:  window,
	}
}

// Get returns a copy of the entry for path without touching recency.
func (m *tierMap) Get(path string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[path]
	if !ok {
		return Entry{}, false
	}
	e := elem.Value.(*Entry)
	out := *e
	out.RecentAccesses = append([]time.Time(nil), e.RecentAccesses...)
	return out, true
}

// Set records placement for path, refreshing recency.
func (m *tierMap) Set(path string, t Tier, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if elem, ok := m.entries[path]; ok {
		e := elem.Value.(*Entry)
		e.Tier = t
		e.Size = size
		e.LastAccess = now
		m.lru.MoveToFront(elem)
		return
	}

	e := &Entry{Path: path, Tier: t, Size: size, LastAccess: now}
	m.entries[path] = m.lru.PushFront(e)
	m.evictOverflow()
}

// RecordAccess bumps the access counters for path, trimming the recent
// history to the promotion window. Returns the updated entry.
func (m *tierMap) RecordAccess(path string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[path]
	if !ok {
		return Entry{}, false
	}
	e := elem.Value.(*Entry)
	now := m.now()

	e.AccessCount++
	e.LastAccess = now
	e.RecentAccesses = append(e.RecentAccesses, now)
	e.RecentAccesses = trimWindow(e.RecentAccesses, now, m.window)
	m.lru.MoveToFront(elem)

	out := *e
	out.RecentAccesses = append([]time.Time(nil), e.RecentAccesses...)
	return out, true
}

// Delete drops the entry for path.
func (m *tierMap) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[path]; ok {
		m.lru.Remove(elem)
		delete(m.entries, path)
	}
}

// Len returns the number of cached entries.
func (m *tierMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Entries returns a snapshot of all cached entries.
func (m *tierMap) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, m.lru.Len())
	for elem := m.lru.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*Entry)
		cp := *e
		cp.RecentAccesses = append([]time.Time(nil), e.RecentAccesses...)
		out = append(out, cp)
	}
	return out
}

// evictOverflow drops least recently accessed entries until the cache fits.
// Caller holds mu.
func (m *tierMap) evictOverflow() {
	if m.max <= 0 {
		return
	}
	for m.lru.Len() > m.max {
		back := m.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*Entry)
		m.lru.Remove(back)
		delete(m.entries, e.Path)
	}
}

// trimWindow keeps only timestamps within the window, newest last, capped
// at maxRecentAccesses.
func trimWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(ts) && ts[start].Before(cutoff) {
		start++
	}
	ts = ts[start:]
	if len(ts) > maxRecentAccesses {
		ts = ts[len(ts)-maxRecentAccesses:]
	}
	return ts
}
