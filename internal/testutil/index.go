package testutil

import (
	"testing"

	"threadwatch/internal/index"
	"threadwatch/internal/watch"
)

// NewTestIndex creates an in-memory SQLite index with the schema
// applied and the lookup cache disabled, so every query hits the
// database. The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T) *index.SQLiteIndex {
	t.Helper()

	idx, err := index.NewSQLiteIndex(":memory:", 0, watch.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}

	t.Cleanup(func() {
		idx.Close()
	})

	return idx
}
