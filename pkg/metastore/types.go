package metastore

import (
	"github.com/marmos91/fsx/pkg/tier"
)

// EntryType is the filesystem node type.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
	EntryTypeSymlink   EntryType = "symlink"
)

// PageSize is the fixed chunk size for large files. Only a file's final
// chunk may be smaller.
const PageSize = 2 * 1024 * 1024

// FileEntry is one filesystem node. Paths are canonical absolute paths; the
// single root entry has path "/" and a null parent.
type FileEntry struct {
	ID         int64     `gorm:"column:id"`
	Path       string    `gorm:"column:path"`
	Name       string    `gorm:"column:name"`
	ParentID   *int64    `gorm:"column:parent_id"`
	Type       EntryType `gorm:"column:type"`
	Mode       uint32    `gorm:"column:mode"`
	UID        uint32    `gorm:"column:uid"`
	GID        uint32    `gorm:"column:gid"`
	Size       int64     `gorm:"column:size"`
	BlobID     *string   `gorm:"column:blob_id"`
	LinkTarget *string   `gorm:"column:link_target"`
	Nlink      int64     `gorm:"column:nlink"`
	Tier       tier.Tier `gorm:"column:tier"`
	Birthtime  int64     `gorm:"column:birthtime"`
	Atime      int64     `gorm:"column:atime"`
	Mtime      int64     `gorm:"column:mtime"`
	Ctime      int64     `gorm:"column:ctime"`
}

// IsDir reports whether the entry is a directory.
func (e *FileEntry) IsDir() bool {
	return e.Type == EntryTypeDirectory
}

// BlobRef is a content-addressed payload reference shared by one or more
// file entries through its reference count.
type BlobRef struct {
	ID        string    `gorm:"column:id"`
	Tier      tier.Tier `gorm:"column:tier"`
	Size      int64     `gorm:"column:size"`
	Checksum  *string   `gorm:"column:checksum"`
	RefCount  int64     `gorm:"column:ref_count"`
	CreatedAt int64     `gorm:"column:created_at"`
}

// PageMetadata describes one fixed-size chunk of a large file.
type PageMetadata struct {
	FileID       int64     `gorm:"column:file_id"`
	PageNumber   int64     `gorm:"column:page_number"`
	PageKey      string    `gorm:"column:page_key"`
	Tier         tier.Tier `gorm:"column:tier"`
	Size         int64     `gorm:"column:size"`
	Checksum     *string   `gorm:"column:checksum"`
	LastAccessAt int64     `gorm:"column:last_access_at"`
	AccessCount  int64     `gorm:"column:access_count"`
	Compressed   int64     `gorm:"column:compressed"`
	OriginalSize *int64    `gorm:"column:original_size"`
}

// CreateEntryOptions carries the attributes for CreateEntry. Path must be
// normalized; ParentID must reference an existing directory except for the
// root.
type CreateEntryOptions struct {
	Path       string
	Name       string
	ParentID   *int64
	Type       EntryType
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       int64
	BlobID     *string
	LinkTarget *string
	Tier       tier.Tier
}

// EntryPatch is a partial update for UpdateEntry. Nil fields are left
// untouched; ctime always refreshes.
type EntryPatch struct {
	Name       *string
	Path       *string
	ParentID   *int64
	Mode       *uint32
	UID        *uint32
	GID        *uint32
	Size       *int64
	BlobID     *string
	ClearBlob  bool
	LinkTarget *string
	Nlink      *int64
	Tier       *tier.Tier
	Atime      *int64
	Mtime      *int64
}

// TierStats aggregates blob counts and sizes for one tier.
type TierStats struct {
	Count     int64
	TotalSize int64
}

// Stats is the store-wide aggregate returned by Stats().
type Stats struct {
	TotalFiles       int64
	TotalDirectories int64
	TotalSize        int64
	BlobsByTier      map[tier.Tier]TierStats
}

// PageTierStats aggregates page counts and sizes per tier.
type PageTierStats struct {
	Count     int64
	TotalSize int64
}
