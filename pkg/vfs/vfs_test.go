package vfs

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsx/pkg/codec"
	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/tier/memory"
	"github.com/marmos91/fsx/pkg/watch"
)

type testConn struct {
	mu     sync.Mutex
	events []watch.Event
}

func (c *testConn) WriteMessage(data []byte) error {
	var e watch.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *testConn) all() []watch.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]watch.Event(nil), c.events...)
}

func newTestService(t *testing.T, cfg Config) (*Service, *testConn) {
	t.Helper()
	ctx := context.Background()

	store, err := metastore.Open(metastore.Config{
		Type:   metastore.BackendSQLite,
		SQLite: metastore.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { store.Close() })

	backends := map[tier.Tier]tier.Backend{
		tier.Hot:  memory.New(),
		tier.Warm: memory.New(),
		tier.Cold: memory.New(),
	}
	engine, err := tier.NewEngine(tier.DefaultConfig(), backends, NewEngineMetadata(store), tier.Hooks{})
	require.NoError(t, err)

	registry := watch.NewRegistry(0)
	conn := &testConn{}
	require.True(t, registry.Subscribe(conn, "/**", watch.SubscribeOptions{}))
	bridge := watch.NewBridge(registry, nil)

	svc, err := New(cfg, store, engine, bridge)
	require.NoError(t, err)
	return svc, conn
}

func TestWriteReadRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/a", 0)
	require.NoError(t, err)

	entry, err := svc.Write(ctx, "/a/b.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Size)
	assert.Equal(t, tier.Hot, entry.Tier)
	assert.Equal(t, metastore.EntryTypeFile, entry.Type)
	require.NotNil(t, entry.BlobID)

	data, err := svc.Read(ctx, "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestWriteValidation(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Write(ctx, "/missing/f", []byte("x"))
	assert.True(t, fserrors.IsNotFound(err))

	_, err = svc.Write(ctx, "/f", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/f/child", []byte("x"))
	assert.True(t, fserrors.Is(err, fserrors.ErrNotDirectory))

	_, err = svc.Write(ctx, "/", []byte("x"))
	assert.True(t, fserrors.Is(err, fserrors.ErrIsDirectory))

	_, err = svc.Mkdir(ctx, "/dir", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/dir", []byte("x"))
	assert.True(t, fserrors.Is(err, fserrors.ErrIsDirectory))

	_, err = svc.Write(ctx, "relative", []byte("x"))
	assert.True(t, fserrors.Is(err, fserrors.ErrInvalidArgument))
}

func TestWriteDeduplicatesContent(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	first, err := svc.Write(ctx, "/one", []byte("shared"))
	require.NoError(t, err)
	second, err := svc.Write(ctx, "/two", []byte("shared"))
	require.NoError(t, err)
	require.NotNil(t, second.BlobID)
	assert.Equal(t, *first.BlobID, *second.BlobID)

	count, err := svc.Store().GetBlobRefCount(ctx, *first.BlobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, svc.Remove(ctx, "/one"))
	count, err = svc.Store().GetBlobRefCount(ctx, *first.BlobID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.Remove(ctx, "/two"))
	blob, err := svc.Store().GetBlob(ctx, *first.BlobID)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestOverwriteReleasesOldContent(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	old, err := svc.Write(ctx, "/f", []byte("before"))
	require.NoError(t, err)
	updated, err := svc.Write(ctx, "/f", []byte("after, and longer"))
	require.NoError(t, err)

	assert.NotEqual(t, *old.BlobID, *updated.BlobID)
	assert.Equal(t, int64(len("after, and longer")), updated.Size)

	blob, err := svc.Store().GetBlob(ctx, *old.BlobID)
	require.NoError(t, err)
	assert.Nil(t, blob)

	data, err := svc.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("after, and longer"), data)
}

// pattern fills a buffer with non-repeating but compressible content.
func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('a' + (i/512)%20)
	}
	return out
}

func TestLargeFileChunking(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	data := pattern(2*metastore.PageSize + 100)
	entry, err := svc.Write(ctx, "/big", data)
	require.NoError(t, err)
	assert.Nil(t, entry.BlobID)
	assert.Equal(t, int64(len(data)), entry.Size)

	pages, err := svc.Store().GetPagesForFile(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, int64(metastore.PageSize), pages[0].Size)
	assert.Equal(t, int64(metastore.PageSize), pages[1].Size)
	assert.Equal(t, int64(100), pages[2].Size)

	got, err := svc.Read(ctx, "/big")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestCompressedPages(t *testing.T) {
	svc, _ := newTestService(t, Config{Compression: codec.PresetSpeed})
	ctx := context.Background()

	data := pattern(metastore.PageSize + 10)
	entry, err := svc.Write(ctx, "/big", data)
	require.NoError(t, err)

	pages, err := svc.Store().GetPagesForFile(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, int64(1), pages[0].Compressed)
	assert.Less(t, pages[0].Size, int64(metastore.PageSize))
	require.NotNil(t, pages[0].OriginalSize)
	assert.Equal(t, int64(metastore.PageSize), *pages[0].OriginalSize)

	got, err := svc.Read(ctx, "/big")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestOverwriteChunkedWithBlob(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	big, err := svc.Write(ctx, "/f", pattern(metastore.PageSize+1))
	require.NoError(t, err)

	small, err := svc.Write(ctx, "/f", []byte("tiny"))
	require.NoError(t, err)
	require.NotNil(t, small.BlobID)

	pages, err := svc.Store().GetPagesForFile(ctx, big.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	data, err := svc.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), data)
}

func TestMkdirAndReadDir(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/a/b/c", 0)
	require.NoError(t, err)

	// Idempotent on existing directories.
	_, err = svc.MkdirAll(ctx, "/a/b", 0)
	require.NoError(t, err)

	_, err = svc.Mkdir(ctx, "/a/b", 0)
	assert.True(t, fserrors.IsAlreadyExists(err))

	_, err = svc.Write(ctx, "/a/file", []byte("x"))
	require.NoError(t, err)
	_, err = svc.MkdirAll(ctx, "/a/file/sub", 0)
	assert.True(t, fserrors.Is(err, fserrors.ErrNotDirectory))

	children, err := svc.ReadDir(ctx, "/a")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "b", children[0].Name)
	assert.Equal(t, "file", children[1].Name)

	_, err = svc.ReadDir(ctx, "/a/file")
	assert.True(t, fserrors.Is(err, fserrors.ErrNotDirectory))
}

func TestRemove(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/dir", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/dir/f", []byte("x"))
	require.NoError(t, err)

	assert.True(t, fserrors.Is(svc.Remove(ctx, "/dir"), fserrors.ErrNotEmpty))
	assert.True(t, fserrors.IsNotFound(svc.Remove(ctx, "/nope")))

	require.NoError(t, svc.Remove(ctx, "/dir/f"))
	require.NoError(t, svc.Remove(ctx, "/dir"))

	_, err = svc.Stat(ctx, "/dir")
	assert.True(t, fserrors.IsNotFound(err))
}

func TestRemoveAll(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/tree/sub", 0)
	require.NoError(t, err)
	f1, err := svc.Write(ctx, "/tree/a", []byte("a-content"))
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/tree/sub/b", []byte("b-content"))
	require.NoError(t, err)

	require.NoError(t, svc.RemoveAll(ctx, "/tree"))

	_, err = svc.Stat(ctx, "/tree/sub/b")
	assert.True(t, fserrors.IsNotFound(err))

	blob, err := svc.Store().GetBlob(ctx, *f1.BlobID)
	require.NoError(t, err)
	assert.Nil(t, blob)

	// Missing path is fine.
	require.NoError(t, svc.RemoveAll(ctx, "/tree"))
}

func TestRenameFile(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Write(ctx, "/old", []byte("content"))
	require.NoError(t, err)
	require.NoError(t, svc.Rename(ctx, "/old", "/new"))

	_, err = svc.Stat(ctx, "/old")
	assert.True(t, fserrors.IsNotFound(err))

	data, err := svc.Read(ctx, "/new")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	events := conn.all()
	last := events[len(events)-1]
	assert.Equal(t, watch.EventRename, last.Type)
	assert.Equal(t, "/new", last.Path)
	assert.Equal(t, "/old", last.OldPath)
}

func TestRenameDirectorySubtree(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/a/b", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/a/b/f.txt", []byte("deep"))
	require.NoError(t, err)

	require.NoError(t, svc.Rename(ctx, "/a", "/z"))

	data, err := svc.Read(ctx, "/z/b/f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), data)

	_, err = svc.Stat(ctx, "/a/b/f.txt")
	assert.True(t, fserrors.IsNotFound(err))

	// Destination collision and self-moves are rejected.
	_, err = svc.MkdirAll(ctx, "/other", 0)
	require.NoError(t, err)
	assert.True(t, fserrors.IsAlreadyExists(svc.Rename(ctx, "/other", "/z")))
	assert.True(t, fserrors.Is(svc.Rename(ctx, "/z", "/z/inside"), fserrors.ErrInvalidArgument))
}

func TestSymlinks(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/a", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/a/target", []byte("payload"))
	require.NoError(t, err)

	_, err = svc.Symlink(ctx, "/a/target", "/abs-link")
	require.NoError(t, err)
	_, err = svc.Symlink(ctx, "target", "/a/rel-link")
	require.NoError(t, err)

	got, err := svc.Readlink(ctx, "/abs-link")
	require.NoError(t, err)
	assert.Equal(t, "/a/target", got)

	data, err := svc.Read(ctx, "/abs-link")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	data, err = svc.Read(ctx, "/a/rel-link")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Stat does not follow.
	entry, err := svc.Stat(ctx, "/abs-link")
	require.NoError(t, err)
	assert.Equal(t, metastore.EntryTypeSymlink, entry.Type)

	_, err = svc.Readlink(ctx, "/a/target")
	assert.True(t, fserrors.Is(err, fserrors.ErrInvalidArgument))
}

func TestSymlinkLoop(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Symlink(ctx, "/two", "/one")
	require.NoError(t, err)
	_, err = svc.Symlink(ctx, "/one", "/two")
	require.NoError(t, err)

	_, err = svc.Read(ctx, "/one")
	assert.True(t, fserrors.Is(err, fserrors.ErrInvalidArgument))
}

func TestHardLinks(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	src, err := svc.Write(ctx, "/f", []byte("linked"))
	require.NoError(t, err)

	link, err := svc.Link(ctx, "/f", "/g")
	require.NoError(t, err)
	assert.Equal(t, *src.BlobID, *link.BlobID)
	assert.Equal(t, int64(2), link.Nlink)

	refreshed, err := svc.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(2), refreshed.Nlink)

	count, err := svc.Store().GetBlobRefCount(ctx, *src.BlobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Overwriting one path breaks it out of the link group.
	_, err = svc.Write(ctx, "/f", []byte("diverged"))
	require.NoError(t, err)

	gData, err := svc.Read(ctx, "/g")
	require.NoError(t, err)
	assert.Equal(t, []byte("linked"), gData)

	fData, err := svc.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("diverged"), fData)

	gStat, err := svc.Stat(ctx, "/g")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gStat.Nlink)

	require.NoError(t, svc.Remove(ctx, "/g"))
	blob, err := svc.Store().GetBlob(ctx, *src.BlobID)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestLinkErrors(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Link(ctx, "/missing", "/l")
	assert.True(t, fserrors.IsNotFound(err))

	_, err = svc.Mkdir(ctx, "/dir", 0)
	require.NoError(t, err)
	_, err = svc.Link(ctx, "/dir", "/l")
	assert.True(t, fserrors.Is(err, fserrors.ErrInvalidArgument))

	_, err = svc.Write(ctx, "/big", pattern(metastore.PageSize+1))
	require.NoError(t, err)
	_, err = svc.Link(ctx, "/big", "/l")
	assert.True(t, fserrors.Is(err, fserrors.ErrInvalidArgument))
}

func TestEventsPublished(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Mkdir(ctx, "/dir", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/dir/f", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/dir/f", []byte("xy"))
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "/dir/f"))

	events := conn.all()
	require.Len(t, events, 4)

	assert.Equal(t, watch.EventCreate, events[0].Type)
	assert.Equal(t, "/dir", events[0].Path)
	require.NotNil(t, events[0].IsDirectory)
	assert.True(t, *events[0].IsDirectory)

	assert.Equal(t, watch.EventCreate, events[1].Type)
	require.NotNil(t, events[1].Size)
	assert.Equal(t, int64(1), *events[1].Size)

	assert.Equal(t, watch.EventModify, events[2].Type)
	require.NotNil(t, events[2].Size)
	assert.Equal(t, int64(2), *events[2].Size)

	assert.Equal(t, watch.EventDelete, events[3].Type)
	assert.Equal(t, "/dir/f", events[3].Path)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.MkdirAll(ctx, "/a", 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, "/a/f", []byte("12345"))
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalFiles)
	assert.Equal(t, int64(2), stats.TotalDirectories)
	assert.Equal(t, int64(5), stats.TotalSize)
}
