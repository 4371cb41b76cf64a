package database

import (
	"path/filepath"
	"testing"

	"github.com/gewnthar/parkalerts/config"
)

// NewTestStore opens a migrated SQLite store in a per-test temp directory.
func NewTestStore(t testing.TB) *Store {
	t.Helper()
	store, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
