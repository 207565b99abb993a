package vfs

import (
	"context"
	"fmt"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/codec"
	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/fspath"
	"github.com/marmos91/fsx/pkg/metastore"
)

// Read returns the full content at path, following symlinks. Pages are
// reassembled in order and decompressed as needed; access counters update
// through the placement engine.
func (s *Service) Read(ctx context.Context, path string) ([]byte, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}

	entry, err := s.resolve(ctx, norm, true)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, fserrors.NewIsDirectory(entry.Path)
	}

	var data []byte
	if entry.BlobID != nil {
		data, err = s.engine.ReadFile(ctx, blobKey(*entry.BlobID))
		if err != nil {
			return nil, err
		}
	} else {
		data, err = s.readPaged(ctx, entry.ID, entry.Path)
		if err != nil {
			return nil, err
		}
	}

	if int64(len(data)) != entry.Size {
		return nil, fserrors.NewIO("read", entry.Path,
			fmt.Errorf("content is %d bytes, entry records %d", len(data), entry.Size))
	}

	s.touchAtime(ctx, entry.ID)
	return data, nil
}

// readPaged reassembles a chunked file. Pages must be contiguous from 0.
func (s *Service) readPaged(ctx context.Context, fileID int64, path string) ([]byte, error) {
	pages, err := s.store.GetPagesForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var out []byte
	for i, page := range pages {
		if page.PageNumber != int64(i) {
			return nil, fserrors.NewIO("read", path,
				fmt.Errorf("missing page %d", i))
		}

		raw, err := s.engine.ReadFile(ctx, page.PageKey)
		if err != nil {
			return nil, err
		}
		if page.Compressed != 0 {
			raw, err = codec.AutoDecompress(raw)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, raw...)
	}
	return out, nil
}

// touchAtime refreshes the entry's access time. Failures are logged, not
// surfaced: the read already succeeded.
func (s *Service) touchAtime(ctx context.Context, id int64) {
	now := s.now().UnixMilli()
	if err := s.store.UpdateEntry(ctx, id, metastore.EntryPatch{Atime: &now}); err != nil {
		logger.Warn("atime update failed", "id", id, "error", err)
	}
}
