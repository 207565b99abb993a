package vfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/marmos91/fsx/pkg/codec"
	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/fspath"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/watch"
)

// Write stores data at path, creating the entry or replacing its content.
// Payloads at or below SmallFileLimit become one content-addressed blob;
// larger payloads are chunked into pages. The metadata mutation is
// transactional; the change event is published after commit.
func (s *Service) Write(ctx context.Context, path string, data []byte) (*metastore.FileEntry, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if norm == "/" {
		return nil, fserrors.NewIsDirectory(norm)
	}

	var (
		out     *metastore.FileEntry
		event   watch.Event
		orphans []string
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		orphans = orphans[:0]

		parent, err := s.requireDir(ctx, fspath.Parent(norm))
		if err != nil {
			return err
		}
		existing, err := s.store.GetByPath(ctx, norm)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsDir() {
			return fserrors.NewIsDirectory(norm)
		}

		var entry *metastore.FileEntry
		if int64(len(data)) <= s.cfg.SmallFileLimit {
			entry, err = s.writeBlob(ctx, parent, existing, norm, data, &orphans)
		} else {
			entry, err = s.writePaged(ctx, parent, existing, norm, data, &orphans)
		}
		if err != nil {
			return err
		}

		eventType := watch.EventCreate
		if existing != nil {
			eventType = watch.EventModify
		}
		event = s.entryEvent(eventType, entry)
		out = entry
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return nil, err
	}

	s.deletePayloads(ctx, orphans)
	s.publish([]watch.Event{event})
	return out, nil
}

// writeBlob stores the payload as a single refcounted blob.
func (s *Service) writeBlob(ctx context.Context, parent, existing *metastore.FileEntry, path string, data []byte, orphans *[]string) (*metastore.FileEntry, error) {
	sum := sha256.Sum256(data)
	blobID := hex.EncodeToString(sum[:])

	t, err := s.engine.WriteFile(ctx, blobKey(blobID), data)
	if err != nil {
		return nil, err
	}

	sameBlob := existing != nil && existing.BlobID != nil && *existing.BlobID == blobID
	if !sameBlob {
		blob, err := s.store.GetBlob(ctx, blobID)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			checksum := "sha256:" + blobID
			if _, err := s.store.RegisterBlob(ctx, blobID, t, int64(len(data)), &checksum); err != nil {
				return nil, err
			}
		} else if err := s.store.IncrementBlobRefCount(ctx, blobID); err != nil {
			return nil, err
		}
	}

	if existing == nil {
		return s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
			Path:     path,
			Name:     fspath.Base(path),
			ParentID: &parent.ID,
			Type:     metastore.EntryTypeFile,
			Mode:     s.cfg.FileMode,
			Size:     int64(len(data)),
			BlobID:   &blobID,
			Tier:     t,
		})
	}

	if err := s.releaseContent(ctx, existing, blobID, orphans); err != nil {
		return nil, err
	}

	size := int64(len(data))
	now := s.now().UnixMilli()
	patch := metastore.EntryPatch{Size: &size, BlobID: &blobID, Tier: &t, Mtime: &now}
	if !sameBlob {
		nlink := int64(1)
		patch.Nlink = &nlink
	}
	if err := s.store.UpdateEntry(ctx, existing.ID, patch); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, existing.ID)
}

// writePaged chunks the payload into fixed-size pages, optionally
// compressed, each placed independently by the engine.
func (s *Service) writePaged(ctx context.Context, parent, existing *metastore.FileEntry, path string, data []byte, orphans *[]string) (*metastore.FileEntry, error) {
	size := int64(len(data))
	entryTier := s.engine.SelectTier(size)

	var entry *metastore.FileEntry
	if existing == nil {
		created, err := s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
			Path:     path,
			Name:     fspath.Base(path),
			ParentID: &parent.ID,
			Type:     metastore.EntryTypeFile,
			Mode:     s.cfg.FileMode,
			Size:     size,
			Tier:     entryTier,
		})
		if err != nil {
			return nil, err
		}
		entry = created
	} else {
		if err := s.releaseContent(ctx, existing, "", orphans); err != nil {
			return nil, err
		}
		now := s.now().UnixMilli()
		nlink := int64(1)
		patch := metastore.EntryPatch{
			Size:      &size,
			ClearBlob: true,
			Tier:      &entryTier,
			Mtime:     &now,
			Nlink:     &nlink,
		}
		if err := s.store.UpdateEntry(ctx, existing.ID, patch); err != nil {
			return nil, err
		}
		refreshed, err := s.store.GetByID(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		entry = refreshed
	}

	for pageNum, off := int64(0), int64(0); off < size; pageNum, off = pageNum+1, off+metastore.PageSize {
		end := off + metastore.PageSize
		if end > size {
			end = size
		}
		chunk := data[off:end]

		payload := chunk
		compressed := int64(0)
		var originalSize *int64
		if s.codec != nil {
			res, err := codec.CompressWithMetrics(s.codec, chunk)
			if err != nil {
				return nil, err
			}
			if !res.Expanded {
				payload = res.Data
				compressed = 1
				orig := int64(res.OriginalSize)
				originalSize = &orig
			}
		}

		key := newPageKey()
		pageTier, err := s.engine.WriteFile(ctx, key, payload)
		if err != nil {
			return nil, err
		}

		chunkSum := sha256.Sum256(chunk)
		checksum := "sha256:" + hex.EncodeToString(chunkSum[:])
		page := metastore.PageMetadata{
			FileID:       entry.ID,
			PageNumber:   pageNum,
			PageKey:      key,
			Tier:         pageTier,
			Size:         int64(len(payload)),
			Checksum:     &checksum,
			Compressed:   compressed,
			OriginalSize: originalSize,
		}
		if err := s.store.CreatePage(ctx, page); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// releaseContent drops an entry's previous payload references: the old
// blob (unless it is keptBlobID) and any old pages. Freed payload keys are
// appended to orphans for removal after commit.
func (s *Service) releaseContent(ctx context.Context, entry *metastore.FileEntry, keptBlobID string, orphans *[]string) error {
	if entry.BlobID != nil && *entry.BlobID != keptBlobID {
		oldBlob := *entry.BlobID
		if entry.Nlink > 1 {
			// The entry leaves the hard-link group; remaining links keep
			// the old content.
			if err := s.store.AdjustNlinkForBlob(ctx, oldBlob, -1); err != nil {
				return err
			}
		}
		key, err := s.releaseBlobRef(ctx, oldBlob)
		if err != nil {
			return err
		}
		if key != "" {
			*orphans = append(*orphans, key)
		}
	}

	pageKeys, err := s.store.OnFileDeleted(ctx, entry.ID)
	if err != nil {
		return err
	}
	*orphans = append(*orphans, pageKeys...)
	return nil
}

// releaseBlobRef decrements a blob's refcount. When the count reaches zero
// the metadata row is removed and the payload key is returned for deletion.
func (s *Service) releaseBlobRef(ctx context.Context, blobID string) (string, error) {
	dead, err := s.store.DecrementBlobRefCount(ctx, blobID)
	if err != nil {
		if fserrors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if !dead {
		return "", nil
	}
	if err := s.store.DeleteBlob(ctx, blobID); err != nil {
		return "", err
	}
	return blobKey(blobID), nil
}
