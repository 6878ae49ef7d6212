// Package index stores the content-hash index in SQLite. The index is
// an accelerator: every read and write failure after open is swallowed
// and logged so a broken database never takes a watcher down with it.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"threadwatch/internal/index/migrations"
	"threadwatch/internal/watch"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const cacheSize = 4096

// SQLiteIndex implements the index on a single SQLite file in WAL
// mode, so several processes can share it. A small expiring cache
// keeps hot hash lookups off the database; entries age out quickly
// because other processes write to the same file.
type SQLiteIndex struct {
	db     *sql.DB
	path   string
	logger watch.Logger
	cache  *expirable.LRU[string, string]
}

var _ watch.Index = (*SQLiteIndex)(nil)

// NewSQLiteIndex opens (creating if needed) the index at path and
// brings its schema up to date. path can be ":memory:" for tests.
// cacheTTL of zero or less disables the lookup cache.
func NewSQLiteIndex(path string, cacheTTL time.Duration, logger watch.Logger) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	// One connection for everything. The pool would otherwise hand
	// out fresh empty databases for ":memory:", and a single writer
	// avoids lock churn on file databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 30000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index database: %w", err)
	}

	idx := &SQLiteIndex{db: db, path: path, logger: logger}
	if cacheTTL > 0 {
		idx.cache = expirable.NewLRU[string, string](cacheSize, nil, cacheTTL)
	}
	return idx, nil
}

// Path returns the database location.
func (s *SQLiteIndex) Path() string { return s.path }

// PathForHash returns the recorded path for hash, or "" when the hash
// is unknown or the lookup fails.
func (s *SQLiteIndex) PathForHash(hash string) string {
	path, _ := s.lookup(hash)
	return path
}

// Has reports whether hash is recorded.
func (s *SQLiteIndex) Has(hash string) bool {
	_, ok := s.lookup(hash)
	return ok
}

func (s *SQLiteIndex) lookup(hash string) (string, bool) {
	if s.cache != nil {
		if path, ok := s.cache.Get(hash); ok {
			return path, true
		}
	}

	var path string
	err := s.db.QueryRow("SELECT path FROM hashes WHERE hash = ?", hash).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("index lookup failed", "hash", hash, "error", err)
		return "", false
	}

	if s.cache != nil {
		s.cache.Add(hash, path)
	}
	return path, true
}

// Insert records rec unless its hash is already present.
func (s *SQLiteIndex) Insert(rec watch.ContentRecord) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO hashes (hash, path, thread, created_at, mtime_ns, size) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Hash, rec.Path, rec.Thread, s.createdAt(rec), mtimeNS(rec.MTime), rec.Size,
	)
	if err != nil {
		s.logger.Warn("index insert failed", "hash", rec.Hash, "path", rec.Path, "error", err)
		return
	}
	if s.cache != nil {
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.cache.Add(rec.Hash, rec.Path)
		}
	}
}

// Upsert records rec, replacing any previous entry for its hash.
func (s *SQLiteIndex) Upsert(rec watch.ContentRecord) {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO hashes (hash, path, thread, created_at, mtime_ns, size) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Hash, rec.Path, rec.Thread, s.createdAt(rec), mtimeNS(rec.MTime), rec.Size,
	)
	if err != nil {
		s.logger.Warn("index upsert failed", "hash", rec.Hash, "path", rec.Path, "error", err)
		return
	}
	if s.cache != nil {
		s.cache.Add(rec.Hash, rec.Path)
	}
}

// MetadataForPath returns the record whose path is path, or nil when
// none is known.
func (s *SQLiteIndex) MetadataForPath(path string) *watch.ContentRecord {
	row := s.db.QueryRow(
		"SELECT hash, path, thread, created_at, mtime_ns, size FROM hashes WHERE path = ?",
		path,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logger.Warn("index metadata lookup failed", "path", path, "error", err)
		return nil
	}
	return rec
}

// DeleteByPath drops every record pointing at path.
func (s *SQLiteIndex) DeleteByPath(path string) {
	if _, err := s.db.Exec("DELETE FROM hashes WHERE path = ?", path); err != nil {
		s.logger.Warn("index delete failed", "path", path, "error", err)
		return
	}
	if s.cache != nil {
		// No reverse mapping; drop everything rather than serve a
		// deleted path.
		s.cache.Purge()
	}
}

// ThreadHashes returns the set of hashes recorded for thread, or nil
// when the query fails.
func (s *SQLiteIndex) ThreadHashes(thread string) map[string]struct{} {
	rows, err := s.db.Query("SELECT hash FROM hashes WHERE thread = ?", thread)
	if err != nil {
		s.logger.Warn("index thread scan failed", "thread", thread, "error", err)
		return nil
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			s.logger.Warn("index thread scan failed", "thread", thread, "error", err)
			return nil
		}
		hashes[hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("index thread scan failed", "thread", thread, "error", err)
		return nil
	}
	return hashes
}

// All returns every record in the index, or nil when the scan fails.
func (s *SQLiteIndex) All() []watch.ContentRecord {
	rows, err := s.db.Query("SELECT hash, path, thread, created_at, mtime_ns, size FROM hashes ORDER BY hash")
	if err != nil {
		s.logger.Warn("index scan failed", "error", err)
		return nil
	}
	defer rows.Close()

	var records []watch.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.Warn("index scan failed", "error", err)
			return nil
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("index scan failed", "error", err)
		return nil
	}
	return records
}

// Count returns the number of records, or -1 when the query fails.
func (s *SQLiteIndex) Count() int64 {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM hashes").Scan(&n); err != nil {
		s.logger.Warn("index count failed", "error", err)
		return -1
	}
	return n
}

// SchemaVersion returns the current migration version and whether the
// schema is dirty.
func (s *SQLiteIndex) SchemaVersion() (uint, bool, error) {
	return migrations.Version(s.db)
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) createdAt(rec watch.ContentRecord) time.Time {
	if rec.CreatedAt.IsZero() {
		return time.Now()
	}
	return rec.CreatedAt
}

// mtimeNS flattens a modification time to unix nanoseconds, with zero
// meaning unknown.
func mtimeNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*watch.ContentRecord, error) {
	var rec watch.ContentRecord
	var ns int64
	if err := row.Scan(&rec.Hash, &rec.Path, &rec.Thread, &rec.CreatedAt, &ns, &rec.Size); err != nil {
		return nil, err
	}
	if ns != 0 {
		rec.MTime = time.Unix(0, ns)
	}
	return &rec, nil
}
