package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
)

// NewTestDB создает файловую базу в t.TempDir() и применяет миграции, если
// передана fsys. База закрывается по завершении теста.
func NewTestDB(t testing.TB, fsys fs.FS, dir string) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if fsys != nil {
		if err := ApplyMigrations(path, fsys, dir); err != nil {
			t.Fatalf("Failed to apply test migrations: %v", err)
		}
	}
	return db, path
}

// CountRows возвращает количество строк в таблице.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", table, err)
	}
	return n
}
