// Package vfs implements the filesystem service: path-addressed reads and
// writes on top of the SQL metadata store, the tiered placement engine and
// the compression codecs, with change events fed into the watch pipeline
// after each committed mutation.
//
// Small payloads are stored as single content-addressed blobs shared
// through reference counting. Larger payloads are split into fixed-size
// pages, individually compressed and placed per tier policy.
package vfs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/codec"
	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/fspath"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
	"github.com/marmos91/fsx/pkg/watch"
)

// Storage key prefixes. Blob keys are content addressed; page keys are
// random and globally unique.
const (
	blobKeyPrefix = "blob/"
	pageKeyPrefix = "page/"
)

// maxSymlinkHops bounds symlink resolution.
const maxSymlinkHops = 10

// Config tunes the filesystem service.
type Config struct {
	// SmallFileLimit is the largest payload stored as one blob. Larger
	// files are chunked into pages. Defaults to the page size.
	SmallFileLimit int64 `mapstructure:"small_file_limit" yaml:"small_file_limit" validate:"gte=0"`

	// Compression selects the page codec preset. Empty disables page
	// compression.
	Compression codec.Preset `mapstructure:"compression" yaml:"compression,omitempty" validate:"omitempty,oneof=speed ratio balanced"`

	// FileMode and DirMode are the modes for entries created without an
	// explicit mode.
	FileMode uint32 `mapstructure:"file_mode" yaml:"file_mode"`
	DirMode  uint32 `mapstructure:"dir_mode" yaml:"dir_mode"`
}

func (c *Config) applyDefaults() {
	if c.SmallFileLimit == 0 {
		c.SmallFileLimit = metastore.PageSize
	}
	if c.FileMode == 0 {
		c.FileMode = 0o644
	}
	if c.DirMode == 0 {
		c.DirMode = 0o755
	}
}

// Service is the filesystem coordinator. Mutations run inside metadata
// transactions and are serialized by the single-writer store; events are
// published only after the enclosing transaction commits.
type Service struct {
	store  *metastore.Store
	engine *tier.Engine
	bridge *watch.Bridge
	codec  codec.Codec
	cfg    Config
	now    func() time.Time
}

// New wires the service. bridge may be nil when change notification is
// disabled.
func New(cfg Config, store *metastore.Store, engine *tier.Engine, bridge *watch.Bridge) (*Service, error) {
	cfg.applyDefaults()

	var pageCodec codec.Codec
	if cfg.Compression != "" {
		c, err := codec.ForPreset(cfg.Compression)
		if err != nil {
			return nil, err
		}
		pageCodec = c
	}

	return &Service{
		store:  store,
		engine: engine,
		bridge: bridge,
		codec:  pageCodec,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// Store exposes the underlying metadata store.
func (s *Service) Store() *metastore.Store {
	return s.store
}

// Metrics returns the placement engine counters.
func (s *Service) Metrics() tier.MetricsSnapshot {
	return s.engine.Metrics()
}

// Stats returns store-wide aggregates.
func (s *Service) Stats(ctx context.Context) (*metastore.Stats, error) {
	return s.store.Stats(ctx)
}

func blobKey(id string) string {
	return blobKeyPrefix + id
}

func newPageKey() string {
	return pageKeyPrefix + uuid.NewString()
}

// requireDir resolves a path that must be an existing directory.
func (s *Service) requireDir(ctx context.Context, path string) (*metastore.FileEntry, error) {
	entry, err := s.store.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fserrors.NewNotFound(path, "directory")
	}
	if !entry.IsDir() {
		return nil, fserrors.NewNotDirectory(path)
	}
	return entry, nil
}

// resolve looks up a path, optionally following symlinks.
func (s *Service) resolve(ctx context.Context, path string, follow bool) (*metastore.FileEntry, error) {
	for i := 0; i < maxSymlinkHops; i++ {
		entry, err := s.store.GetByPath(ctx, path)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fserrors.NewNotFound(path, "entry")
		}
		if entry.Type != metastore.EntryTypeSymlink || !follow {
			return entry, nil
		}
		if entry.LinkTarget == nil {
			return nil, fserrors.NewIO("resolve", path, nil)
		}
		target := *entry.LinkTarget
		if !strings.HasPrefix(target, "/") {
			target = fspath.Join(fspath.Parent(path), target)
		}
		path = fspath.Clean(target)
	}
	return nil, fserrors.NewInvalidArgument("too many levels of symbolic links")
}

// publish sends events into the watch pipeline. Called only after the
// mutation's transaction has committed.
func (s *Service) publish(events []watch.Event) {
	if s.bridge == nil {
		return
	}
	for _, e := range events {
		s.bridge.Publish(e)
	}
}

// entryEvent builds a change event carrying the entry's metadata.
func (s *Service) entryEvent(t watch.EventType, e *metastore.FileEntry) watch.Event {
	size := e.Size
	mtime := e.Mtime
	isDir := e.IsDir()
	return watch.Event{
		Type:        t,
		Path:        e.Path,
		Timestamp:   s.now().UnixMilli(),
		Size:        &size,
		Mtime:       &mtime,
		IsDirectory: &isDir,
	}
}

// deleteEvent builds a bare delete notification.
func (s *Service) deleteEvent(path string) watch.Event {
	return watch.Event{Type: watch.EventDelete, Path: path, Timestamp: s.now().UnixMilli()}
}

// deletePayloads removes payloads from the placement engine after their
// metadata is gone. Missing payloads are ignored.
func (s *Service) deletePayloads(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.engine.DeleteFile(ctx, key); err != nil && !fserrors.IsNotFound(err) {
			logger.Warn("payload delete failed", "key", key, "error", err)
		}
	}
}
