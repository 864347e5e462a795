package sqlstore

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/docdesk/redactor-backend/config"
)

// OpenTestDB opens a migrated SQLite database inside t.TempDir.
func OpenTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := NewConnection(&config.DatabaseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
