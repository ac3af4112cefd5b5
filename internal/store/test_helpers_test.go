package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// storeCases runs the same contract test against every implementation.
func storeCases(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": createTestStore(t),
	}
}
