// Package storetest provides a disposable, migrated store.DB for package
// tests using a temp-file-backed sqlite database.
package storetest

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/perpautopilot/internal/store"
)

// New creates a temp-file sqlite database, runs every embedded migration,
// and returns it alongside a cleanup func that closes the connection and
// removes the file. Safe to call t.Cleanup(cleanup) or defer it directly.
func New(t *testing.T) (*store.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "perpautopilot_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp database file: %v", err)
	}
	path := f.Name()
	_ = f.Close()

	db, err := store.New(path)
	if err != nil {
		_ = os.Remove(path)
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test database: %v", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.Logf("warning: failed to remove test database file %s: %v", path, err)
		}
	}
}

// Name returns a unique-enough symbol/id for tests that need distinct
// values without a random source.
func Name(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}
