package metastore

// DDL for the metadata schema. All statements are idempotent so Init can run
// on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		parent_id INTEGER,
		type TEXT NOT NULL CHECK (type IN ('file','directory','symlink')),
		mode INTEGER NOT NULL,
		uid INTEGER NOT NULL,
		gid INTEGER NOT NULL,
		size INTEGER NOT NULL,
		blob_id TEXT,
		link_target TEXT,
		nlink INTEGER NOT NULL DEFAULT 1,
		tier TEXT NOT NULL DEFAULT 'hot' CHECK (tier IN ('hot','warm','cold')),
		birthtime INTEGER NOT NULL,
		atime INTEGER NOT NULL,
		mtime INTEGER NOT NULL,
		ctime INTEGER NOT NULL,
		FOREIGN KEY (parent_id) REFERENCES files(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_path ON files(path)`,
	`CREATE INDEX IF NOT EXISTS idx_files_parent_id ON files(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_tier ON files(tier)`,

	`CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY,
		tier TEXT NOT NULL CHECK (tier IN ('hot','warm','cold')),
		size INTEGER NOT NULL,
		checksum TEXT,
		ref_count INTEGER NOT NULL DEFAULT 1 CHECK (ref_count >= 0),
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS page_metadata (
		file_id INTEGER NOT NULL,
		page_number INTEGER NOT NULL,
		page_key TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT 'warm' CHECK (tier IN ('hot','warm','cold')),
		size INTEGER NOT NULL,
		checksum TEXT,
		last_access_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		compressed INTEGER NOT NULL DEFAULT 0,
		original_size INTEGER,
		PRIMARY KEY (file_id, page_number),
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_page_metadata_tier ON page_metadata(tier)`,
	`CREATE INDEX IF NOT EXISTS idx_page_metadata_lru ON page_metadata(last_access_at)`,
}
