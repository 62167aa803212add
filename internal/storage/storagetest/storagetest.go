// Package storagetest provides migrated throwaway databases for tests.
package storagetest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"careerchat/internal/config"
	"careerchat/internal/storage"
)

// NewSQLite opens a migrated sqlite database in a temp dir, closed on cleanup.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "careerchat.db")
	db, err := storage.OpenDriver("sqlite3", config.DatabaseConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t testing.TB, db *sql.DB, email string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		email, email, "x", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}

// Count returns the number of rows matched by a COUNT query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// Email builds a unique-looking address for fixtures.
func Email(name string, i int) string {
	return fmt.Sprintf("%s%d@example.com", name, i)
}
