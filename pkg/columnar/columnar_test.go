package columnar

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marmos91/fsx/pkg/fserrors"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	// In-memory sqlite is per-connection; keep the pool at one.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func testSchema() Schema {
	return Schema{
		Table:      "tier_state",
		PrimaryKey: "path",
		Columns: map[string]Column{
			"tier":          {Type: "TEXT", Required: true},
			"size":          {Type: "INTEGER", Required: true},
			"access_count":  {Type: "INTEGER", Default: int64(0)},
			"version":       {Type: "INTEGER"},
			"created_at":    {Type: "INTEGER"},
			"updated_at":    {Type: "INTEGER"},
			"checkpoint_at": {Type: "INTEGER"},
		},
		VersionField:        "version",
		CreatedAtField:      "created_at",
		UpdatedAtField:      "updated_at",
		CheckpointedAtField: "checkpoint_at",
	}
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	// Long interval so tests control checkpoints explicitly.
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = time.Hour
	}
	s, err := New(testDB(t), testSchema(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	created, err := s.Create(ctx, "/a/b", Entity{"tier": "hot", "size": int64(42)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created["version"] != int64(1) {
		t.Errorf("initial version = %v, want 1", created["version"])
	}
	if created["access_count"] != int64(0) {
		t.Errorf("default not applied: %v", created["access_count"])
	}
	if created["created_at"] == nil {
		t.Error("created_at not set")
	}

	got, err := s.Get(ctx, "/a/b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["tier"] != "hot" {
		t.Errorf("tier = %v", got["tier"])
	}

	if _, err := s.Create(ctx, "/a/b", Entity{"tier": "hot", "size": int64(1)}); !fserrors.IsAlreadyExists(err) {
		t.Errorf("duplicate Create = %v, want AlreadyExists", err)
	}
	if _, err := s.Get(ctx, "/missing"); !fserrors.IsNotFound(err) {
		t.Errorf("Get(missing) = %v, want NotFound", err)
	}
}

func TestCreateRequiresFields(t *testing.T) {
	s := newTestStore(t, Config{})
	if _, err := s.Create(context.Background(), "/x", Entity{"tier": "hot"}); err == nil {
		t.Error("Create without required size should fail")
	}
}

func TestUpdateAdvancesVersion(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/f", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := s.Update(ctx, "/f", Entity{"tier": "warm"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated["version"] != int64(2) {
		t.Errorf("version = %v, want 2", updated["version"])
	}
	if updated["tier"] != "warm" {
		t.Errorf("tier = %v, want warm", updated["tier"])
	}
	if updated["size"] != int64(1) {
		t.Errorf("unpatched field changed: %v", updated["size"])
	}

	if _, err := s.Update(ctx, "/f", Entity{"bogus": 1}); err == nil {
		t.Error("Update with unknown field should fail")
	}
}

func TestExplicitCheckpoint(t *testing.T) {
	var gotStats CheckpointStats
	s := newTestStore(t, Config{
		DirtyThreshold: 100,
		OnCheckpoint:   func(_ map[string]Entity, stats CheckpointStats) { gotStats = stats },
	})
	ctx := context.Background()

	for _, p := range []string{"/a", "/b", "/c"} {
		if _, err := s.Create(ctx, p, Entity{"tier": "hot", "size": int64(1)}); err != nil {
			t.Fatalf("Create(%s) failed: %v", p, err)
		}
	}
	if s.CacheStats().DirtyCount != 3 {
		t.Fatalf("dirty = %d, want 3", s.CacheStats().DirtyCount)
	}

	if err := s.Checkpoint(ctx, TriggerExplicit); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if s.CacheStats().DirtyCount != 0 {
		t.Errorf("dirty = %d after checkpoint", s.CacheStats().DirtyCount)
	}
	if gotStats.EntityCount != 3 || gotStats.Trigger != TriggerExplicit {
		t.Errorf("stats = %+v", gotStats)
	}

	// Rows are durable: a read bypassing the cache sees them.
	var n int64
	if err := s.db.Raw("SELECT COUNT(*) FROM tier_state").Scan(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("persisted rows = %d, want 3", n)
	}
}

func TestDirtyCountTrigger(t *testing.T) {
	checkpoints := 0
	s := newTestStore(t, Config{
		DirtyThreshold: 2,
		OnCheckpoint: func(_ map[string]Entity, stats CheckpointStats) {
			checkpoints++
			if stats.Trigger != TriggerDirtyCount {
				t.Errorf("trigger = %s, want dirty_count", stats.Trigger)
			}
		},
	})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatal(err)
	}
	if checkpoints != 0 {
		t.Fatalf("checkpoint fired below threshold")
	}
	if _, err := s.Create(ctx, "/b", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatal(err)
	}
	if checkpoints != 1 {
		t.Errorf("checkpoints = %d, want 1", checkpoints)
	}
}

func TestCostComparison(t *testing.T) {
	s := newTestStore(t, Config{DirtyThreshold: 100})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Update(ctx, "/a", Entity{"size": int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Checkpoint(ctx, TriggerExplicit); err != nil {
		t.Fatal(err)
	}

	cost := s.CostComparison()
	if cost.RowsWithoutBatching != 5 {
		t.Errorf("RowsWithoutBatching = %d, want 5", cost.RowsWithoutBatching)
	}
	if cost.RowsWritten != 1 {
		t.Errorf("RowsWritten = %d, want 1", cost.RowsWritten)
	}
	if cost.SavedWrites != 4 {
		t.Errorf("SavedWrites = %d, want 4", cost.SavedWrites)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Checkpoint(ctx, TriggerExplicit); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "/a"); !fserrors.IsNotFound(err) {
		t.Errorf("Get after Delete = %v, want NotFound", err)
	}
}

func TestStopTwice(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestSchemaValidation(t *testing.T) {
	if err := (&Schema{PrimaryKey: "id"}).Validate(); err == nil {
		t.Error("missing table should fail")
	}
	if err := (&Schema{Table: "t"}).Validate(); err == nil {
		t.Error("missing primary key should fail")
	}
	bad := Schema{Table: "t", PrimaryKey: "id", Columns: map[string]Column{"x": {Type: "JSONB"}}}
	if err := bad.Validate(); err == nil {
		t.Error("unsupported column type should fail")
	}
}

func TestDirtyEvictionFlushes(t *testing.T) {
	s := newTestStore(t, Config{MaxCacheEntries: 1, DirtyThreshold: 100})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatalf("Create(/a) failed: %v", err)
	}
	// Second create evicts /a while it is still dirty.
	if _, err := s.Create(ctx, "/b", Entity{"tier": "warm", "size": int64(2)}); err != nil {
		t.Fatalf("Create(/b) failed: %v", err)
	}

	if got := s.CostComparison().RowsWritten; got != 1 {
		t.Errorf("RowsWritten = %d, want 1 eviction flush", got)
	}
	if got := s.EvictionFlushFailures(); got != 0 {
		t.Errorf("EvictionFlushFailures = %d, want 0", got)
	}

	// The flushed row must be durable: Get misses the buffer and reads SQL.
	got, err := s.Get(ctx, "/a")
	if err != nil {
		t.Fatalf("Get(/a) after eviction failed: %v", err)
	}
	if got["tier"] != "hot" {
		t.Errorf("tier = %v, want hot", got["tier"])
	}
}

func TestCleanEvictionSkipsFlush(t *testing.T) {
	s := newTestStore(t, Config{MaxCacheEntries: 1, DirtyThreshold: 100})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatalf("Create(/a) failed: %v", err)
	}
	if err := s.Checkpoint(ctx, TriggerExplicit); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	written := s.CostComparison().RowsWritten

	// /a is clean now; its eviction must not issue another UPSERT.
	if _, err := s.Create(ctx, "/b", Entity{"tier": "warm", "size": int64(2)}); err != nil {
		t.Fatalf("Create(/b) failed: %v", err)
	}

	if got := s.CostComparison().RowsWritten; got != written {
		t.Errorf("RowsWritten = %d, want unchanged %d after clean eviction", got, written)
	}
}

func TestDirtyEvictionFlushFailureCounted(t *testing.T) {
	s := newTestStore(t, Config{MaxCacheEntries: 1, DirtyThreshold: 100})
	ctx := context.Background()

	if _, err := s.Create(ctx, "/a", Entity{"tier": "hot", "size": int64(1)}); err != nil {
		t.Fatalf("Create(/a) failed: %v", err)
	}

	// Break the durable side so the eviction flush cannot land.
	if err := s.db.Exec("DROP TABLE tier_state").Error; err != nil {
		t.Fatalf("dropping table: %v", err)
	}

	if _, err := s.Create(ctx, "/b", Entity{"tier": "warm", "size": int64(2)}); err != nil {
		t.Fatalf("Create(/b) failed: %v", err)
	}

	if got := s.EvictionFlushFailures(); got != 1 {
		t.Errorf("EvictionFlushFailures = %d, want 1", got)
	}

	// Recreate the table so the deferred Stop checkpoint succeeds.
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
}
