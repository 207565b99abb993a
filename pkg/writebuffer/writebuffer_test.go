package writebuffer

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	b := New(Config{})

	if _, ok := b.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	b.Set("a", "one")
	v, ok := b.Get("a")
	if !ok || v.(string) != "one" {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}

	stats := b.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestDirtyTracking(t *testing.T) {
	b := New(Config{})

	b.Set("a", 1)
	b.Set("b", 2, SetOptions{MarkDirty: false})
	b.Set("c", 3)

	dirty := b.DirtyEntries()
	if len(dirty) != 2 {
		t.Fatalf("dirty count = %d, want 2", len(dirty))
	}
	if _, ok := dirty["b"]; ok {
		t.Error("hydrated entry should not be dirty")
	}

	b.MarkClean([]string{"a", "c"})
	if len(b.DirtyEntries()) != 0 {
		t.Error("entries still dirty after MarkClean")
	}
	if b.IsDirty("a") {
		t.Error("IsDirty(a) after MarkClean")
	}
}

func TestLRUEvictionByCount(t *testing.T) {
	type evt struct {
		key    string
		reason EvictReason
	}
	var evictions []evt

	b := New(Config{
		MaxEntries: 2,
		OnEvict: func(key string, _ any, _ bool, reason EvictReason) {
			evictions = append(evictions, evt{key, reason})
		},
	})

	// Deterministic access times.
	clock := time.Unix(1000, 0)
	b.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	b.Set("a", 1)
	b.Set("b", 2)
	b.Get("a") // a is now more recent than b
	b.Set("c", 3)

	if len(evictions) != 1 {
		t.Fatalf("evictions = %d, want 1", len(evictions))
	}
	if evictions[0].key != "b" || evictions[0].reason != EvictReasonCount {
		t.Errorf("evicted %v, want {b count}", evictions[0])
	}
	if _, ok := b.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
}

func TestEvictionBySize(t *testing.T) {
	var evictedKeys []string

	b := New(Config{
		MaxBytes: 10,
		Sizer:    func(v any) int64 { return int64(len(v.([]byte))) },
		OnEvict: func(key string, _ any, _ bool, reason EvictReason) {
			if reason != EvictReasonSize {
				t.Errorf("reason = %s, want size", reason)
			}
			evictedKeys = append(evictedKeys, key)
		},
	})

	clock := time.Unix(1000, 0)
	b.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	b.Set("a", make([]byte, 6))
	b.Set("b", make([]byte, 6)) // 12 bytes > 10, evicts a

	if len(evictedKeys) != 1 || evictedKeys[0] != "a" {
		t.Fatalf("evicted = %v, want [a]", evictedKeys)
	}
	if b.Stats().TotalBytes != 6 {
		t.Errorf("TotalBytes = %d, want 6", b.Stats().TotalBytes)
	}
}

func TestDirtyEvictionDeliversValue(t *testing.T) {
	flushed := map[string]any{}

	b := New(Config{MaxEntries: 1})
	b.cfg.OnEvict = func(key string, value any, dirty bool, _ EvictReason) {
		if !dirty {
			t.Errorf("dirty = false for %s, want true", key)
		}
		// Owning store flushes dirty state synchronously here.
		if b.IsDirty(key) {
			t.Error("entry still present during evict hook")
		}
		flushed[key] = value
	}

	b.Set("a", "payload")
	b.Set("b", "other")

	if flushed["a"] != "payload" {
		t.Errorf("flushed = %v, want payload under a", flushed)
	}
}

func TestDeleteExplicit(t *testing.T) {
	var reason EvictReason
	b := New(Config{OnEvict: func(_ string, _ any, _ bool, r EvictReason) { reason = r }})

	b.Set("a", 1)
	if !b.Delete("a") {
		t.Fatal("Delete(a) = false")
	}
	if reason != EvictReasonExplicit {
		t.Errorf("reason = %s, want explicit", reason)
	}
	if b.Delete("a") {
		t.Error("second Delete(a) = true")
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestReplaceKeepsSingleEntry(t *testing.T) {
	b := New(Config{
		MaxBytes: 100,
		Sizer:    func(v any) int64 { return int64(len(v.(string))) },
	})

	b.Set("a", "short")
	b.Set("a", "a longer value")

	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
	if got := b.Stats().TotalBytes; got != int64(len("a longer value")) {
		t.Errorf("TotalBytes = %d", got)
	}
}

func TestCleanEvictionReportsNotDirty(t *testing.T) {
	dirtyByKey := map[string]bool{}

	b := New(Config{
		MaxEntries: 1,
		OnEvict: func(key string, _ any, dirty bool, _ EvictReason) {
			dirtyByKey[key] = dirty
		},
	})

	clock := time.Unix(1000, 0)
	b.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	b.Set("hydrated", "from-storage", SetOptions{MarkDirty: false})
	b.Set("written", "new")
	b.Set("more", "newer")

	if got, ok := dirtyByKey["hydrated"]; !ok || got {
		t.Errorf("hydrated eviction dirty = %v, want false", got)
	}
	if got, ok := dirtyByKey["written"]; !ok || !got {
		t.Errorf("written eviction dirty = %v, want true", got)
	}
}
