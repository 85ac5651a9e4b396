package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemoryAppliesPragmas(t *testing.T) {
	// WHAT: OpenMemory returns a usable database with foreign keys enabled.
	// WHY: Every ledger open path goes through these pragmas.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}

	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if busy != 10_000 {
		t.Errorf("busy_timeout: got %d, want 10000", busy)
	}
}

func TestWithSchema(t *testing.T) {
	// WHAT: Inline schema options run against the freshly opened database.
	db := OpenMemory(t, WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))

	if _, err := db.Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestWithMkdirAll(t *testing.T) {
	// WHAT: WithMkdirAll creates missing parent directories.
	path := filepath.Join(t.TempDir(), "nested", "deep", "state.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	db.Close()
}

func TestRunTxRollsBackOnError(t *testing.T) {
	// WHAT: A failing tx function leaves no partial writes behind.
	// WHY: Ledger commits rely on all-or-nothing batches.
	db := OpenMemory(t, WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY)`))
	ctx := context.Background()

	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO kv (k) VALUES ('x')`); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("RunTx should propagate the function error")
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rows after rollback: got %d, want 0", n)
	}
}

func TestIsBusy(t *testing.T) {
	// WHAT: Busy detection matches the sqlite error strings we retry on.
	if IsBusy(nil) {
		t.Error("nil error should not be busy")
	}
	if !IsBusy(fmt.Errorf("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("SQLITE_BUSY should be detected")
	}
	if IsBusy(fmt.Errorf("syntax error")) {
		t.Error("unrelated error should not be busy")
	}
}
