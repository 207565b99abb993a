package metastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/tier"
)

// GetByPath returns the entry at the given canonical path, or nil when no
// entry exists.
func (s *Store) GetByPath(ctx context.Context, path string) (*FileEntry, error) {
	var rows []FileEntry
	if err := s.scan(ctx, stmtSelectByPath, &rows, path); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetByID returns the entry with the given id, or nil when no entry exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*FileEntry, error) {
	var rows []FileEntry
	if err := s.scan(ctx, stmtSelectByID, &rows, id); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetChildren lists the direct children of a directory, sorted by name.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]FileEntry, error) {
	var rows []FileEntry
	if err := s.scan(ctx, stmtSelectChildren, &rows, parentID); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateEntry inserts a new filesystem node and returns it with its
// assigned id. A path collision yields an already-exists error.
func (s *Store) CreateEntry(ctx context.Context, opts CreateEntryOptions) (*FileEntry, error) {
	if opts.Path == "" || !strings.HasPrefix(opts.Path, "/") {
		return nil, fserrors.NewInvalidArgument(fmt.Sprintf("path %q is not absolute", opts.Path))
	}
	switch opts.Type {
	case EntryTypeFile, EntryTypeDirectory, EntryTypeSymlink:
	default:
		return nil, fserrors.NewInvalidArgument(fmt.Sprintf("unknown entry type %q", opts.Type))
	}
	if opts.Type == EntryTypeSymlink && (opts.LinkTarget == nil || *opts.LinkTarget == "") {
		return nil, fserrors.NewInvalidArgument("symlink requires a link target")
	}
	entryTier := opts.Tier
	if entryTier == "" {
		entryTier = tier.Hot
	}

	now := time.Now().UnixMilli()
	err := s.exec(ctx, stmtInsertEntry,
		opts.Path, opts.Name, opts.ParentID, string(opts.Type), opts.Mode,
		opts.UID, opts.GID, opts.Size, opts.BlobID, opts.LinkTarget,
		1, string(entryTier), now, now, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fserrors.NewAlreadyExists(opts.Path)
		}
		return nil, err
	}
	return s.GetByPath(ctx, opts.Path)
}

// UpdateEntry applies a partial update to the entry with the given id.
// ctime refreshes on every update.
func (s *Store) UpdateEntry(ctx context.Context, id int64, patch EntryPatch) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Path != nil {
		add("path", *patch.Path)
	}
	if patch.ParentID != nil {
		add("parent_id", *patch.ParentID)
	}
	if patch.Mode != nil {
		add("mode", *patch.Mode)
	}
	if patch.UID != nil {
		add("uid", *patch.UID)
	}
	if patch.GID != nil {
		add("gid", *patch.GID)
	}
	if patch.Size != nil {
		add("size", *patch.Size)
	}
	switch {
	case patch.ClearBlob:
		sets = append(sets, "blob_id = NULL")
	case patch.BlobID != nil:
		add("blob_id", *patch.BlobID)
	}
	if patch.LinkTarget != nil {
		add("link_target", *patch.LinkTarget)
	}
	if patch.Nlink != nil {
		add("nlink", *patch.Nlink)
	}
	if patch.Tier != nil {
		add("tier", string(*patch.Tier))
	}
	if patch.Atime != nil {
		add("atime", *patch.Atime)
	}
	if patch.Mtime != nil {
		add("mtime", *patch.Mtime)
	}
	add("ctime", time.Now().UnixMilli())

	sql := "UPDATE files SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	err := s.execSQL(ctx, stmtUpdateEntry, sql, args...)
	if err != nil && isUniqueViolation(err) {
		return fserrors.NewAlreadyExists(deref(patch.Path))
	}
	return err
}

// DeleteEntry removes the entry with the given id. Children go with it
// through the cascading foreign key.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	return s.exec(ctx, stmtDeleteEntry, id)
}

// CreateEntriesAtomic inserts a batch of entries in one transaction. Either
// all entries land or none do.
func (s *Store) CreateEntriesAtomic(ctx context.Context, batch []CreateEntryOptions) ([]*FileEntry, error) {
	out := make([]*FileEntry, 0, len(batch))
	err := s.Transaction(ctx, func(ctx context.Context) error {
		out = out[:0]
		for _, opts := range batch {
			entry, err := s.CreateEntry(ctx, opts)
			if err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	}, RunOptions{})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEntriesAtomic removes a batch of entries in one transaction.
func (s *Store) DeleteEntriesAtomic(ctx context.Context, ids []int64) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := s.DeleteEntry(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}, RunOptions{})
}

// FindByPattern matches paths against a shell-style pattern where '*'
// matches any run of characters and '?' a single character.
func (s *Store) FindByPattern(ctx context.Context, pattern string) ([]FileEntry, error) {
	like := globToLike(pattern)
	var rows []FileEntry
	err := s.scanSQL(ctx, "find_by_pattern",
		`SELECT * FROM files WHERE path LIKE ? ESCAPE '\' ORDER BY path`, &rows, like)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetSubtree returns the entry at path and every descendant, ordered by
// path. Empty when the path doesn't exist.
func (s *Store) GetSubtree(ctx context.Context, path string) ([]FileEntry, error) {
	var rows []FileEntry
	err := s.scanSQL(ctx, "select_subtree",
		`SELECT * FROM files WHERE path = ? OR path LIKE ? ESCAPE '\' ORDER BY path`,
		&rows, path, escapeLike(path)+"/%")
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RenameSubtree rewrites descendant paths after a directory rename. The
// moved entry itself is patched separately by the caller.
func (s *Store) RenameSubtree(ctx context.Context, oldPrefix, newPrefix string) error {
	return s.execSQL(ctx, "rename_subtree",
		`UPDATE files SET path = ? || SUBSTR(path, LENGTH(?) + 1), ctime = ?
			WHERE path LIKE ? ESCAPE '\'`,
		newPrefix, oldPrefix, time.Now().UnixMilli(), escapeLike(oldPrefix)+"/%")
}

// AdjustNlinkForBlob shifts the hard-link count of every entry sharing the
// blob. Used when links are added or removed.
func (s *Store) AdjustNlinkForBlob(ctx context.Context, blobID string, delta int64) error {
	return s.execSQL(ctx, "adjust_nlink",
		`UPDATE files SET nlink = nlink + ?, ctime = ? WHERE blob_id = ?`,
		delta, time.Now().UnixMilli(), blobID)
}

// EntriesForBlob returns the entries referencing the blob, ordered by path.
func (s *Store) EntriesForBlob(ctx context.Context, blobID string) ([]FileEntry, error) {
	var rows []FileEntry
	err := s.scanSQL(ctx, "select_entries_for_blob",
		`SELECT * FROM files WHERE blob_id = ? ORDER BY path`, &rows, blobID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// escapeLike escapes LIKE metacharacters so a literal string can be used
// inside a LIKE pattern.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// globToLike rewrites a glob into a LIKE pattern, escaping the LIKE
// metacharacters in literal positions.
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Stats aggregates entry counts, total logical size and per-tier blob
// usage.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var counts struct {
		Files int64 `gorm:"column:files"`
		Dirs  int64 `gorm:"column:dirs"`
		Size  int64 `gorm:"column:size"`
	}
	err := s.scanSQL(ctx, "stats_entries", `SELECT
			COUNT(CASE WHEN type = 'file' THEN 1 END) AS files,
			COUNT(CASE WHEN type = 'directory' THEN 1 END) AS dirs,
			COALESCE(SUM(CASE WHEN type = 'file' THEN size ELSE 0 END), 0) AS size
		FROM files`, &counts)
	if err != nil {
		return nil, err
	}

	var tiers []struct {
		Tier  string `gorm:"column:tier"`
		Count int64  `gorm:"column:count"`
		Total int64  `gorm:"column:total"`
	}
	err = s.scanSQL(ctx, "stats_blobs",
		`SELECT tier, COUNT(*) AS count, COALESCE(SUM(size), 0) AS total FROM blobs GROUP BY tier`,
		&tiers)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalFiles:       counts.Files,
		TotalDirectories: counts.Dirs,
		TotalSize:        counts.Size,
		BlobsByTier:      make(map[tier.Tier]TierStats, len(tiers)),
	}
	for _, row := range tiers {
		stats.BlobsByTier[tier.Tier(row.Tier)] = TierStats{Count: row.Count, TotalSize: row.Total}
	}
	return stats, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
