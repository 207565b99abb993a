// Package metastore implements the transactional SQL metadata store for
// fsx: file entries, reference-counted blobs and page metadata, with
// savepoint-based nested transactions, retry, timeout and an in-memory
// transaction log.
//
// The store assumes a single-writer coordinator per logical filesystem.
// Operations are serialized through one database connection, which is also
// what makes raw BEGIN/SAVEPOINT transaction control sound: no statement
// from another goroutine can interleave into an open transaction.
package metastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/fsx/internal/logger"
)

// BackendType selects the SQL backend.
type BackendType string

const (
	// BackendSQLite is the embedded default.
	BackendSQLite BackendType = "sqlite"

	// BackendPostgres is for deployments that already run Postgres.
	BackendPostgres BackendType = "postgres"
)

// SQLiteConfig configures the embedded backend.
type SQLiteConfig struct {
	// Path is the database file path; ":memory:" for tests.
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig configures the Postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode,omitempty"`
}

// DSN returns the Postgres connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config selects and configures the metadata backend.
type Config struct {
	Type     BackendType    `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`

	// MaxLogEntries caps the in-memory transaction log. Default 1000.
	MaxLogEntries int `mapstructure:"max_log_entries" yaml:"max_log_entries"`
}

// ApplyDefaults fills in missing configuration.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = BackendSQLite
	}
	if c.MaxLogEntries == 0 {
		c.MaxLogEntries = 1000
	}
}

// Store is the SQL-backed metadata store.
type Store struct {
	db  *gorm.DB
	cfg Config

	// Transaction state, guarded by txMu. Only the coordinator mutates it.
	txMu     sync.Mutex
	txDepth  int
	txSeq    uint64
	txActive *txState

	logMu  sync.Mutex
	txLog  []*LogEntry
	nextID uint64

	stmts *statementRegistry
}

// Open connects to the configured backend and returns a Store. Call Init
// before first use.
func Open(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	switch cfg.Type {
	case BackendSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.SQLite.Path), gormCfg)
	case BackendPostgres:
		db, err = gorm.Open(postgres.Open(cfg.Postgres.DSN()), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Single connection: the single-writer model relies on it, and so does
	// raw savepoint control.
	sqlDB.SetMaxOpenConns(1)

	if cfg.Type == BackendSQLite {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		stmts: newStatementRegistry(),
	}
	return s, nil
}

// Init creates the schema and the root directory if absent. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("initializing metadata schema: %w", err)
		}
	}

	root, err := s.GetByPath(ctx, "/")
	if err != nil {
		return err
	}
	if root == nil {
		now := time.Now().UnixMilli()
		err := s.exec(ctx, stmtInsertEntry,
			"/", "/", nil, string(EntryTypeDirectory), 0o755, 0, 0, 0,
			nil, nil, 1, "hot", now, now, now, now)
		if err != nil {
			return fmt.Errorf("creating root directory: %w", err)
		}
		logger.Debug("metadata store initialized", "root", "/")
	}
	return nil
}

// Close releases the database handle. Safe to call twice.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying gorm handle for collaborators that share the
// store's connection (the columnar shim).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ============================================================================
// Prepared-statement registry
// ============================================================================

// Statement keys for frequently used operations. Registered up front so the
// stats surface is stable regardless of traffic.
const (
	stmtSelectByPath   = "select_by_path"
	stmtSelectByID     = "select_by_id"
	stmtSelectChildren = "select_children"
	stmtInsertEntry    = "insert_entry"
	stmtUpdateEntry    = "update_entry"
	stmtDeleteEntry    = "delete_entry"
	stmtInsertBlob     = "insert_blob"
	stmtBlobIncrement  = "blob_ref_increment"
	stmtBlobDecrement  = "blob_ref_decrement"
	stmtInsertPage     = "insert_page"
	stmtPageAccess     = "page_record_access"
)

var statementSQL = map[string]string{
	stmtSelectByPath:   `SELECT * FROM files WHERE path = ?`,
	stmtSelectByID:     `SELECT * FROM files WHERE id = ?`,
	stmtSelectChildren: `SELECT * FROM files WHERE parent_id = ? ORDER BY name`,
	stmtInsertEntry: `INSERT INTO files
		(path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, tier, birthtime, atime, mtime, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	stmtUpdateEntry: ``, // rendered per patch
	stmtDeleteEntry: `DELETE FROM files WHERE id = ?`,
	stmtInsertBlob: `INSERT INTO blobs (id, tier, size, checksum, ref_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
	stmtBlobIncrement: `UPDATE blobs SET ref_count = ref_count + 1 WHERE id = ?`,
	stmtBlobDecrement: `UPDATE blobs SET ref_count = CASE WHEN ref_count > 0 THEN ref_count - 1 ELSE 0 END WHERE id = ?`,
	stmtInsertPage: `INSERT INTO page_metadata
		(file_id, page_number, page_key, tier, size, checksum, last_access_at, access_count, compressed, original_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	stmtPageAccess: `UPDATE page_metadata SET access_count = access_count + 1, last_access_at = ? WHERE file_id = ? AND page_number = ?`,
}

// StatementStat is the per-statement observability record.
type StatementStat struct {
	Name       string
	Executions uint64
	TotalTime  time.Duration
}

type statementRegistry struct {
	mu    sync.Mutex
	stats map[string]*StatementStat
}

func newStatementRegistry() *statementRegistry {
	r := &statementRegistry{stats: make(map[string]*StatementStat)}
	for name := range statementSQL {
		r.stats[name] = &StatementStat{Name: name}
	}
	return r
}

func (r *statementRegistry) record(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[name]
	if !ok {
		st = &StatementStat{Name: name}
		r.stats[name] = st
	}
	st.Executions++
	st.TotalTime += d
}

// StatementStats returns per-statement execution counts and cumulative
// durations, sorted by name.
func (s *Store) StatementStats() []StatementStat {
	s.stmts.mu.Lock()
	defer s.stmts.mu.Unlock()

	out := make([]StatementStat, 0, len(s.stmts.stats))
	for _, st := range s.stmts.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// exec runs a registered statement, recording timing and counting the
// operation against the active transaction.
func (s *Store) exec(ctx context.Context, name string, args ...any) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Exec(statementSQL[name], args...).Error
	s.stmts.record(name, time.Since(start))
	s.countOperation()
	if err != nil {
		return classifySQLError(err)
	}
	return nil
}

// execSQL runs ad-hoc SQL under a stats key.
func (s *Store) execSQL(ctx context.Context, name, sql string, args ...any) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Exec(sql, args...).Error
	s.stmts.record(name, time.Since(start))
	s.countOperation()
	if err != nil {
		return classifySQLError(err)
	}
	return nil
}

// scan runs a registered query into dest.
func (s *Store) scan(ctx context.Context, name string, dest any, args ...any) error {
	return s.scanSQL(ctx, name, statementSQL[name], dest, args...)
}

// scanSQL runs ad-hoc query SQL into dest under a stats key.
func (s *Store) scanSQL(ctx context.Context, name, sql string, dest any, args ...any) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Raw(sql, args...).Scan(dest).Error
	s.stmts.record(name, time.Since(start))
	s.countOperation()
	if err != nil {
		return classifySQLError(err)
	}
	return nil
}

// isUniqueViolation matches unique-constraint failures across backends.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
