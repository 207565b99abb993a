package vfs

import (
	"context"
	"strings"

	"github.com/marmos91/fsx/pkg/metastore"
	"github.com/marmos91/fsx/pkg/tier"
)

// storeMetadata adapts the metadata store to the placement engine's
// collaborator interface. Engine keys carry a blob/ or page/ prefix; tier
// changes and access counters are recorded on the matching row. Updates for
// keys without a row are no-ops: the engine may report placement before the
// row exists or after it was removed.
type storeMetadata struct {
	store *metastore.Store
}

// NewEngineMetadata returns the tier.Metadata collaborator backed by the
// metadata store.
func NewEngineMetadata(store *metastore.Store) tier.Metadata {
	return &storeMetadata{store: store}
}

func (m *storeMetadata) SetMetadata(ctx context.Context, key string, t tier.Tier, size int64) error {
	switch {
	case strings.HasPrefix(key, blobKeyPrefix):
		return m.store.UpdateBlobTier(ctx, strings.TrimPrefix(key, blobKeyPrefix), t)
	case strings.HasPrefix(key, pageKeyPrefix):
		return m.store.UpdatePageTierByKey(ctx, key, t)
	}
	return nil
}

func (m *storeMetadata) DeleteMetadata(ctx context.Context, key string) error {
	// Rows are owned by the service; payload deletion never cascades into
	// metadata.
	return nil
}

func (m *storeMetadata) RecordAccess(ctx context.Context, key string) error {
	if strings.HasPrefix(key, pageKeyPrefix) {
		return m.store.RecordAccessByKey(ctx, key)
	}
	return nil
}
