package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var testDBSeq atomic.Int64

// NewTestDB creates a migrated in-memory SQLite database for testing. Each
// call gets its own named database so parallel tests do not share state.
func NewTestDB(t testing.TB) (*sql.DB, *SQLStore) {
	t.Helper()

	name := fmt.Sprintf("file:ixfsync_test_%d?mode=memory&cache=shared&_foreign_keys=on", testDBSeq.Add(1))
	db, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A single connection keeps the in-memory database alive and serialises access
	db.SetMaxOpenConns(1)

	store := NewStoreFromDB(db, DialectSQLite)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("failed to setup test database schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}

// TruncateTables removes all data from tables while preserving schema
func TruncateTables(t testing.TB, db *sql.DB) {
	t.Helper()

	tables := []string{
		"notification_outbox", "import_log_entries", "import_logs", "ixf_member_data",
		"sessions", "prefixes", "ixlans", "exchanges", "network_contacts", "networks",
	}
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
