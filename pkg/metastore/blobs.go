package metastore

import (
	"context"
	"time"

	"github.com/marmos91/fsx/pkg/fserrors"
	"github.com/marmos91/fsx/pkg/tier"
)

// RegisterBlob records a new content-addressed blob with an initial
// reference count of 1.
func (s *Store) RegisterBlob(ctx context.Context, id string, t tier.Tier, size int64, checksum *string) (*BlobRef, error) {
	if id == "" {
		return nil, fserrors.NewInvalidArgument("blob id must not be empty")
	}
	if !t.Valid() {
		return nil, fserrors.NewInvalidArgument("invalid tier: " + string(t))
	}

	now := time.Now().UnixMilli()
	err := s.exec(ctx, stmtInsertBlob, id, string(t), size, checksum, 1, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fserrors.NewAlreadyExists(id)
		}
		return nil, err
	}
	return s.GetBlob(ctx, id)
}

// RegisterBlobsAtomic records a batch of blobs in one transaction.
func (s *Store) RegisterBlobsAtomic(ctx context.Context, blobs []BlobRef) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		for _, b := range blobs {
			if _, err := s.RegisterBlob(ctx, b.ID, b.Tier, b.Size, b.Checksum); err != nil {
				return err
			}
		}
		return nil
	}, RunOptions{})
}

// GetBlob returns the blob record, or nil when it does not exist.
func (s *Store) GetBlob(ctx context.Context, id string) (*BlobRef, error) {
	var rows []BlobRef
	err := s.scanSQL(ctx, "select_blob", `SELECT * FROM blobs WHERE id = ?`, &rows, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateBlobTier moves a blob's placement record to a new tier.
func (s *Store) UpdateBlobTier(ctx context.Context, id string, t tier.Tier) error {
	if !t.Valid() {
		return fserrors.NewInvalidArgument("invalid tier: " + string(t))
	}
	return s.execSQL(ctx, "update_blob_tier",
		`UPDATE blobs SET tier = ? WHERE id = ?`, string(t), id)
}

// DeleteBlob removes a blob record. Callers decide when the payload itself
// can go, normally when the reference count reaches zero.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	return s.execSQL(ctx, "delete_blob", `DELETE FROM blobs WHERE id = ?`, id)
}

// GetBlobRefCount returns the stored reference count. A missing blob is a
// not-found error, unlike the nil-returning getters: a refcount question
// about a nonexistent blob is always a caller bug.
func (s *Store) GetBlobRefCount(ctx context.Context, id string) (int64, error) {
	blob, err := s.GetBlob(ctx, id)
	if err != nil {
		return 0, err
	}
	if blob == nil {
		return 0, fserrors.NewNotFound(id, "blob")
	}
	return blob.RefCount, nil
}

// IncrementBlobRefCount adds one reference to the blob.
func (s *Store) IncrementBlobRefCount(ctx context.Context, id string) error {
	return s.exec(ctx, stmtBlobIncrement, id)
}

// DecrementBlobRefCount drops one reference, clamping at zero, and reports
// whether the count reached zero so the caller can schedule payload
// deletion.
func (s *Store) DecrementBlobRefCount(ctx context.Context, id string) (bool, error) {
	if err := s.exec(ctx, stmtBlobDecrement, id); err != nil {
		return false, err
	}
	count, err := s.GetBlobRefCount(ctx, id)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CountBlobReferences counts the live file entries pointing at the blob,
// independent of the stored ref_count.
func (s *Store) CountBlobReferences(ctx context.Context, id string) (int64, error) {
	var row struct {
		Count int64 `gorm:"column:count"`
	}
	err := s.scanSQL(ctx, "count_blob_refs",
		`SELECT COUNT(*) AS count FROM files WHERE blob_id = ?`, &row, id)
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}

// SyncBlobRefCount resets the stored ref_count to the live reference count
// and returns the corrected value. Repairs drift after a crash between an
// entry write and its refcount update.
func (s *Store) SyncBlobRefCount(ctx context.Context, id string) (int64, error) {
	live, err := s.CountBlobReferences(ctx, id)
	if err != nil {
		return 0, err
	}
	err = s.execSQL(ctx, "sync_blob_refs",
		`UPDATE blobs SET ref_count = ? WHERE id = ?`, live, id)
	if err != nil {
		return 0, err
	}
	return live, nil
}
