package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated metastore in t.TempDir() and registers
// cleanup. Tests that don't need the read/write split can use writeDB for
// everything.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	ms, err := OpenMetastore(filepath.Join(t.TempDir(), "test.sqlite"), defaultReadConns)
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() { _ = ms.Close() })
	return ms.Write, ms.Read
}
