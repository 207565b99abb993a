package vfs

import (
	"context"
	"strings"

	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/fspath"
	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/watch"
)

// Stat returns the entry at path without following symlinks.
func (s *Service) Stat(ctx context.Context, path string) (*metastore.FileEntry, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, norm, false)
}

// ReadDir lists a directory's immediate children sorted by name.
func (s *Service) ReadDir(ctx context.Context, path string) ([]metastore.FileEntry, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}
	dir, err := s.requireDir(ctx, norm)
	if err != nil {
		return nil, err
	}
	return s.store.GetChildren(ctx, dir.ID)
}

// Mkdir creates a single directory. The parent must exist.
func (s *Service) Mkdir(ctx context.Context, path string, mode uint32) (*metastore.FileEntry, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if norm == "/" {
		return nil, fserrors.NewAlreadyExists(norm)
	}
	if mode == 0 {
		mode = s.cfg.DirMode
	}

	var (
		out   *metastore.FileEntry
		event watch.Event
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		parent, err := s.requireDir(ctx, fspath.Parent(norm))
		if err != nil {
			return err
		}
		entry, err := s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
			Path:     norm,
			Name:     fspath.Base(norm),
			ParentID: &parent.ID,
			Type:     metastore.EntryTypeDirectory,
			Mode:     mode,
		})
		if err != nil {
			return err
		}
		out = entry
		event = s.entryEvent(watch.EventCreate, entry)
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return nil, err
	}

	s.publish([]watch.Event{event})
	return out, nil
}

// MkdirAll creates a directory and any missing ancestors. Existing
// directories are fine; an existing non-directory on the way is not.
func (s *Service) MkdirAll(ctx context.Context, path string, mode uint32) (*metastore.FileEntry, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil, err
	}
	if mode == 0 {
		mode = s.cfg.DirMode
	}

	var (
		out    *metastore.FileEntry
		events []watch.Event
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		events = events[:0]

		current, err := s.store.GetByPath(ctx, "/")
		if err != nil {
			return err
		}
		if norm == "/" {
			out = current
			return nil
		}

		walked := ""
		for _, segment := range strings.Split(norm[1:], "/") {
			walked += "/" + segment
			entry, err := s.store.GetByPath(ctx, walked)
			if err != nil {
				return err
			}
			if entry == nil {
				entry, err = s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
					Path:     walked,
					Name:     segment,
					ParentID: &current.ID,
					Type:     metastore.EntryTypeDirectory,
					Mode:     mode,
				})
				if err != nil {
					return err
				}
				events = append(events, s.entryEvent(watch.EventCreate, entry))
			} else if !entry.IsDir() {
				return fserrors.NewNotDirectory(walked)
			}
			current = entry
		}
		out = current
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return nil, err
	}

	s.publish(events)
	return out, nil
}

// Remove deletes a file, symlink or empty directory.
func (s *Service) Remove(ctx context.Context, path string) error {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return err
	}
	if norm == "/" {
		return fserrors.NewInvalidArgument("cannot remove the root directory")
	}

	var orphans []string
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		orphans = orphans[:0]

		entry, err := s.store.GetByPath(ctx, norm)
		if err != nil {
			return err
		}
		if entry == nil {
			return fserrors.NewNotFound(norm, "entry")
		}
		if entry.IsDir() {
			children, err := s.store.GetChildren(ctx, entry.ID)
			if err != nil {
				return err
			}
			if len(children) > 0 {
				return fserrors.NewNotEmpty(norm)
			}
		}
		return s.removeEntry(ctx, entry, &orphans)
	}, metastore.RunOptions{})
	if err != nil {
		return err
	}

	s.deletePayloads(ctx, orphans)
	s.publish([]watch.Event{s.deleteEvent(norm)})
	return nil
}

// removeEntry releases a single entry's payload references and deletes its
// row. Caller holds the transaction.
func (s *Service) removeEntry(ctx context.Context, entry *metastore.FileEntry, orphans *[]string) error {
	if entry.Type == metastore.EntryTypeFile {
		if err := s.releaseContent(ctx, entry, "", orphans); err != nil {
			return err
		}
	}
	return s.store.DeleteEntry(ctx, entry.ID)
}

// RemoveAll deletes a subtree. Missing paths are not an error.
func (s *Service) RemoveAll(ctx context.Context, path string) error {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return err
	}
	if norm == "/" {
		return fserrors.NewInvalidArgument("cannot remove the root directory")
	}

	var (
		orphans []string
		removed []string
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		orphans = orphans[:0]
		removed = removed[:0]

		subtree, err := s.store.GetSubtree(ctx, norm)
		if err != nil {
			return err
		}
		if len(subtree) == 0 {
			return nil
		}

		// Release payload references first; entry rows then go in one
		// cascading delete of the subtree root.
		for i := range subtree {
			entry := &subtree[i]
			removed = append(removed, entry.Path)
			if entry.Type != metastore.EntryTypeFile {
				continue
			}
			if err := s.releaseContent(ctx, entry, "", &orphans); err != nil {
				return err
			}
		}
		return s.store.DeleteEntry(ctx, subtree[0].ID)
	}, metastore.RunOptions{})
	if err != nil {
		return err
	}

	s.deletePayloads(ctx, orphans)
	events := make([]watch.Event, 0, len(removed))
	for _, p := range removed {
		events = append(events, s.deleteEvent(p))
	}
	s.publish(events)
	return nil
}

// Rename moves an entry (and, for directories, its subtree) to a new path.
// The destination must not exist.
func (s *Service) Rename(ctx context.Context, oldPath, newPath string) error {
	oldNorm, err := fspath.Normalize(oldPath)
	if err != nil {
		return err
	}
	newNorm, err := fspath.Normalize(newPath)
	if err != nil {
		return err
	}
	if oldNorm == "/" {
		return fserrors.NewInvalidArgument("cannot rename the root directory")
	}
	if newNorm == oldNorm || strings.HasPrefix(newNorm, oldNorm+"/") {
		return fserrors.NewInvalidArgument("cannot move a directory into itself")
	}

	var event watch.Event
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		src, err := s.store.GetByPath(ctx, oldNorm)
		if err != nil {
			return err
		}
		if src == nil {
			return fserrors.NewNotFound(oldNorm, "entry")
		}
		dst, err := s.store.GetByPath(ctx, newNorm)
		if err != nil {
			return err
		}
		if dst != nil {
			return fserrors.NewAlreadyExists(newNorm)
		}
		parent, err := s.requireDir(ctx, fspath.Parent(newNorm))
		if err != nil {
			return err
		}

		name := fspath.Base(newNorm)
		patch := metastore.EntryPatch{Path: &newNorm, Name: &name, ParentID: &parent.ID}
		if err := s.store.UpdateEntry(ctx, src.ID, patch); err != nil {
			return err
		}
		if src.IsDir() {
			if err := s.store.RenameSubtree(ctx, oldNorm, newNorm); err != nil {
				return err
			}
		}

		moved, err := s.store.GetByID(ctx, src.ID)
		if err != nil {
			return err
		}
		event = s.entryEvent(watch.EventRename, moved)
		event.OldPath = oldNorm
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return err
	}

	s.publish([]watch.Event{event})
	return nil
}

// Symlink creates a symbolic link at linkPath pointing to target. The
// target is stored as given and resolved at read time.
func (s *Service) Symlink(ctx context.Context, target, linkPath string) (*metastore.FileEntry, error) {
	norm, err := fspath.Normalize(linkPath)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fserrors.NewInvalidArgument("symlink target is empty")
	}

	var (
		out   *metastore.FileEntry
		event watch.Event
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		parent, err := s.requireDir(ctx, fspath.Parent(norm))
		if err != nil {
			return err
		}
		entry, err := s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
			Path:       norm,
			Name:       fspath.Base(norm),
			ParentID:   &parent.ID,
			Type:       metastore.EntryTypeSymlink,
			Mode:       0o777,
			LinkTarget: &target,
		})
		if err != nil {
			return err
		}
		out = entry
		event = s.entryEvent(watch.EventCreate, entry)
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return nil, err
	}

	s.publish([]watch.Event{event})
	return out, nil
}

// Readlink returns a symlink's target.
func (s *Service) Readlink(ctx context.Context, path string) (string, error) {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return "", err
	}
	entry, err := s.resolve(ctx, norm, false)
	if err != nil {
		return "", err
	}
	if entry.Type != metastore.EntryTypeSymlink || entry.LinkTarget == nil {
		return "", fserrors.NewInvalidArgument(norm + " is not a symlink")
	}
	return *entry.LinkTarget, nil
}

// Link creates a hard link: a second entry sharing the source's blob.
// Directories cannot be linked; neither can chunked files, whose pages are
// bound to a single entry.
func (s *Service) Link(ctx context.Context, oldPath, newPath string) (*metastore.FileEntry, error) {
	oldNorm, err := fspath.Normalize(oldPath)
	if err != nil {
		return nil, err
	}
	newNorm, err := fspath.Normalize(newPath)
	if err != nil {
		return nil, err
	}

	var (
		out   *metastore.FileEntry
		event watch.Event
	)
	err = s.store.Transaction(ctx, func(ctx context.Context) error {
		src, err := s.store.GetByPath(ctx, oldNorm)
		if err != nil {
			return err
		}
		if src == nil {
			return fserrors.NewNotFound(oldNorm, "entry")
		}
		if src.IsDir() {
			return fserrors.NewInvalidArgument("hard links to directories are not allowed")
		}
		if src.BlobID == nil {
			return fserrors.NewInvalidArgument("hard links require blob-backed files")
		}
		parent, err := s.requireDir(ctx, fspath.Parent(newNorm))
		if err != nil {
			return err
		}
		if dst, err := s.store.GetByPath(ctx, newNorm); err != nil {
			return err
		} else if dst != nil {
			return fserrors.NewAlreadyExists(newNorm)
		}

		if err := s.store.IncrementBlobRefCount(ctx, *src.BlobID); err != nil {
			return err
		}
		// Bump existing group members before the new entry joins.
		if err := s.store.AdjustNlinkForBlob(ctx, *src.BlobID, 1); err != nil {
			return err
		}

		entry, err := s.store.CreateEntry(ctx, metastore.CreateEntryOptions{
			Path:     newNorm,
			Name:     fspath.Base(newNorm),
			ParentID: &parent.ID,
			Type:     metastore.EntryTypeFile,
			Mode:     src.Mode,
			UID:      src.UID,
			GID:      src.GID,
			Size:     src.Size,
			BlobID:   src.BlobID,
			Tier:     src.Tier,
		})
		if err != nil {
			return err
		}

		nlink := src.Nlink + 1
		if err := s.store.UpdateEntry(ctx, entry.ID, metastore.EntryPatch{Nlink: &nlink}); err != nil {
			return err
		}
		linked, err := s.store.GetByID(ctx, entry.ID)
		if err != nil {
			return err
		}
		out = linked
		event = s.entryEvent(watch.EventCreate, linked)
		return nil
	}, metastore.RunOptions{})
	if err != nil {
		return nil, err
	}

	s.publish([]watch.Event{event})
	return out, nil
}
