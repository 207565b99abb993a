package metastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/tier"
)

// PagePatch is a partial update for UpdatePage. Nil fields are left
// untouched.
type PagePatch struct {
	Tier         *tier.Tier
	Size         *int64
	Checksum     *string
	Compressed   *int64
	OriginalSize *int64
}

// CreatePage records metadata for one fixed-size chunk of a file.
func (s *Store) CreatePage(ctx context.Context, page PageMetadata) error {
	if page.PageKey == "" {
		return fserrors.NewInvalidArgument("page key must not be empty")
	}
	if page.PageNumber < 0 {
		return fserrors.NewInvalidArgument("page number must not be negative")
	}
	if !page.Tier.Valid() {
		return fserrors.NewInvalidArgument("invalid tier: " + string(page.Tier))
	}
	if page.LastAccessAt == 0 {
		page.LastAccessAt = time.Now().UnixMilli()
	}

	err := s.exec(ctx, stmtInsertPage,
		page.FileID, page.PageNumber, page.PageKey, string(page.Tier),
		page.Size, page.Checksum, page.LastAccessAt, page.AccessCount,
		page.Compressed, page.OriginalSize)
	if err != nil && isUniqueViolation(err) {
		return fserrors.NewAlreadyExists(page.PageKey)
	}
	return err
}

// GetPage returns one page's metadata, or nil when it does not exist.
func (s *Store) GetPage(ctx context.Context, fileID, pageNumber int64) (*PageMetadata, error) {
	var rows []PageMetadata
	err := s.scanSQL(ctx, "select_page",
		`SELECT * FROM page_metadata WHERE file_id = ? AND page_number = ?`,
		&rows, fileID, pageNumber)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetPagesForFile returns every page of a file ordered by page number.
func (s *Store) GetPagesForFile(ctx context.Context, fileID int64) ([]PageMetadata, error) {
	var rows []PageMetadata
	err := s.scanSQL(ctx, "select_file_pages",
		`SELECT * FROM page_metadata WHERE file_id = ? ORDER BY page_number`,
		&rows, fileID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdatePage applies a partial update to one page.
func (s *Store) UpdatePage(ctx context.Context, fileID, pageNumber int64, patch PagePatch) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Tier != nil {
		if !patch.Tier.Valid() {
			return fserrors.NewInvalidArgument("invalid tier: " + string(*patch.Tier))
		}
		add("tier", string(*patch.Tier))
	}
	if patch.Size != nil {
		add("size", *patch.Size)
	}
	if patch.Checksum != nil {
		add("checksum", *patch.Checksum)
	}
	if patch.Compressed != nil {
		add("compressed", *patch.Compressed)
	}
	if patch.OriginalSize != nil {
		add("original_size", *patch.OriginalSize)
	}
	if len(sets) == 0 {
		return nil
	}

	sql := "UPDATE page_metadata SET " + strings.Join(sets, ", ") +
		" WHERE file_id = ? AND page_number = ?"
	args = append(args, fileID, pageNumber)
	return s.execSQL(ctx, "update_page", sql, args...)
}

// DeletePage removes one page's metadata.
func (s *Store) DeletePage(ctx context.Context, fileID, pageNumber int64) error {
	return s.execSQL(ctx, "delete_page",
		`DELETE FROM page_metadata WHERE file_id = ? AND page_number = ?`,
		fileID, pageNumber)
}

// DeletePagesForFile removes all of a file's page metadata.
func (s *Store) DeletePagesForFile(ctx context.Context, fileID int64) error {
	return s.execSQL(ctx, "delete_file_pages",
		`DELETE FROM page_metadata WHERE file_id = ?`, fileID)
}

// RecordAccess bumps a page's access count and last-access timestamp.
func (s *Store) RecordAccess(ctx context.Context, fileID, pageNumber int64) error {
	return s.exec(ctx, stmtPageAccess, time.Now().UnixMilli(), fileID, pageNumber)
}

// GetPageByKey resolves a page by its globally unique storage key. Returns
// nil when no page carries the key.
func (s *Store) GetPageByKey(ctx context.Context, key string) (*PageMetadata, error) {
	var rows []PageMetadata
	err := s.scanSQL(ctx, "select_page_by_key",
		`SELECT * FROM page_metadata WHERE page_key = ?`, &rows, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdatePageTierByKey records a tier migration for the page with the given
// storage key. Missing keys are ignored: the placement engine may report
// migrations for payloads whose metadata was already removed.
func (s *Store) UpdatePageTierByKey(ctx context.Context, key string, t tier.Tier) error {
	if !t.Valid() {
		return fserrors.NewInvalidArgument(fmt.Sprintf("invalid tier %q", t))
	}
	return s.execSQL(ctx, "update_page_tier_by_key",
		`UPDATE page_metadata SET tier = ? WHERE page_key = ?`, string(t), key)
}

// RecordAccessByKey bumps access counters for the page with the given
// storage key. Missing keys are ignored.
func (s *Store) RecordAccessByKey(ctx context.Context, key string) error {
	return s.execSQL(ctx, "record_access_by_key",
		`UPDATE page_metadata SET access_count = access_count + 1, last_access_at = ? WHERE page_key = ?`,
		time.Now().UnixMilli(), key)
}

// GetPagesByTier returns all pages currently placed on a tier.
func (s *Store) GetPagesByTier(ctx context.Context, t tier.Tier) ([]PageMetadata, error) {
	var rows []PageMetadata
	err := s.scanSQL(ctx, "select_pages_by_tier",
		`SELECT * FROM page_metadata WHERE tier = ? ORDER BY file_id, page_number`,
		&rows, string(t))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// tierFilter builds an optional WHERE clause from a variadic tier
// argument. At most one tier may be given.
func tierFilter(tiers []tier.Tier) (string, []any, error) {
	switch len(tiers) {
	case 0:
		return "", nil, nil
	case 1:
		if !tiers[0].Valid() {
			return "", nil, fserrors.NewInvalidArgument("invalid tier: " + string(tiers[0]))
		}
		return " WHERE tier = ?", []any{string(tiers[0])}, nil
	default:
		return "", nil, fserrors.NewInvalidArgument("at most one tier filter")
	}
}

// GetOldestPages returns up to limit pages ordered by least recent
// access, optionally restricted to one tier.
func (s *Store) GetOldestPages(ctx context.Context, limit int, tiers ...tier.Tier) ([]PageMetadata, error) {
	where, args, err := tierFilter(tiers)
	if err != nil {
		return nil, err
	}
	var rows []PageMetadata
	err = s.scanSQL(ctx, "select_oldest_pages",
		`SELECT * FROM page_metadata`+where+` ORDER BY last_access_at LIMIT ?`,
		&rows, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetHotPages returns pages whose access count has reached minAccess,
// hottest first, optionally restricted to one tier. These are the
// promotion candidates.
func (s *Store) GetHotPages(ctx context.Context, minAccess int64, tiers ...tier.Tier) ([]PageMetadata, error) {
	where, args, err := tierFilter(tiers)
	if err != nil {
		return nil, err
	}
	cond := " WHERE access_count >= ?"
	if where != "" {
		cond = where + " AND access_count >= ?"
	}
	var rows []PageMetadata
	err = s.scanSQL(ctx, "select_hot_pages",
		`SELECT * FROM page_metadata`+cond+` ORDER BY access_count DESC, last_access_at DESC`,
		&rows, append(args, minAccess)...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetEvictionCandidates ranks pages across all tiers for reclamation:
// coldest tier first, then least accessed, ties broken by staleness.
func (s *Store) GetEvictionCandidates(ctx context.Context, limit int) ([]PageMetadata, error) {
	var rows []PageMetadata
	err := s.scanSQL(ctx, "select_eviction_candidates",
		`SELECT * FROM page_metadata
		 ORDER BY CASE tier WHEN 'cold' THEN 0 WHEN 'warm' THEN 1 ELSE 2 END,
		          access_count, last_access_at
		 LIMIT ?`,
		&rows, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetTierStats aggregates page counts and bytes per tier.
func (s *Store) GetTierStats(ctx context.Context) (map[tier.Tier]PageTierStats, error) {
	var rows []struct {
		Tier  string `gorm:"column:tier"`
		Count int64  `gorm:"column:count"`
		Total int64  `gorm:"column:total"`
	}
	err := s.scanSQL(ctx, "page_tier_stats",
		`SELECT tier, COUNT(*) AS count, COALESCE(SUM(size), 0) AS total
		 FROM page_metadata GROUP BY tier`, &rows)
	if err != nil {
		return nil, err
	}

	out := make(map[tier.Tier]PageTierStats, len(rows))
	for _, row := range rows {
		out[tier.Tier(row.Tier)] = PageTierStats{Count: row.Count, TotalSize: row.Total}
	}
	return out, nil
}

// GetTotalFileSize sums a file's stored page sizes.
func (s *Store) GetTotalFileSize(ctx context.Context, fileID int64) (int64, error) {
	var row struct {
		Total int64 `gorm:"column:total"`
	}
	err := s.scanSQL(ctx, "file_page_size",
		`SELECT COALESCE(SUM(size), 0) AS total FROM page_metadata WHERE file_id = ?`,
		&row, fileID)
	if err != nil {
		return 0, err
	}
	return row.Total, nil
}

// GetPageKeysForFile returns the storage keys of a file's pages in page
// order, for bulk payload deletion.
func (s *Store) GetPageKeysForFile(ctx context.Context, fileID int64) ([]string, error) {
	pages, err := s.GetPagesForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(pages))
	for i, p := range pages {
		keys[i] = p.PageKey
	}
	return keys, nil
}

// OnFileDeleted collects a deleted file's page keys and drops the metadata
// in one transaction, returning the keys so storage payloads can be
// reclaimed afterwards.
func (s *Store) OnFileDeleted(ctx context.Context, fileID int64) ([]string, error) {
	var keys []string
	err := s.Transaction(ctx, func(ctx context.Context) error {
		var err error
		keys, err = s.GetPageKeysForFile(ctx, fileID)
		if err != nil {
			return err
		}
		return s.DeletePagesForFile(ctx, fileID)
	}, RunOptions{})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
