package watch

import "time"

// ContentRecord is one row of the hash index: where a piece of content
// lives and what we last knew about the file holding it.
type ContentRecord struct {
	Hash      string
	Path      string
	Thread    string
	CreatedAt time.Time
	MTime     time.Time
	Size      int64
}

// Index is the persistent content-addressed store shared by all
// watchers and the deduplicator, possibly across processes.
//
// The index is a best-effort accelerator, not a ledger: implementations
// swallow and log every storage failure, returning empty or negative
// results instead of errors. An unrecorded hash costs at worst one
// redundant download that self-corrects when the later write succeeds.
type Index interface {
	// PathForHash returns the path holding the content, or "" when the
	// hash is unknown (or the lookup failed).
	PathForHash(hash string) string

	// Has is PathForHash != "".
	Has(hash string) bool

	// Insert records hash -> rec only if the hash is absent. First
	// writer wins; concurrent writers from other processes are expected.
	Insert(rec ContentRecord)

	// Upsert unconditionally replaces the record for rec.Hash. Used when
	// dedupe picks a new authoritative path for existing content.
	Upsert(rec ContentRecord)

	// MetadataForPath is the reverse lookup keyed by path, used to skip
	// re-hashing files whose recorded mtime and size still match.
	// Returns nil when the path has no record (or the lookup failed).
	MetadataForPath(path string) *ContentRecord

	// DeleteByPath drops a stale record whose on-disk file changed since
	// it was written.
	DeleteByPath(path string)

	// ThreadHashes returns every hash previously associated with a
	// thread, seeding a watcher's in-memory duplicate set.
	ThreadHashes(thread string) map[string]struct{}

	// All returns every record, or nil when the scan failed. Used by
	// maintenance commands, never on the download path.
	All() []ContentRecord

	// Count returns the number of records, or -1 when the count failed.
	Count() int64

	// Close releases the underlying store.
	Close() error
}
