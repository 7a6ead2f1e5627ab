package deliverylog

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db := testDB(t)

	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatalf("runMigrations failed: %v", err)
	}
	version, err := currentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != len(migrations) {
		t.Errorf("expected %d schema_version rows, got %d", len(migrations), rows)
	}
}

func TestRunMigrations_UpgradesV1Database(t *testing.T) {
	db := testDB(t)

	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatal(err)
	}
	// Roll the bookkeeping back to v1 while keeping the v2 column, as a
	// database upgraded by hand would look.
	if _, err := db.Exec("DELETE FROM schema_version WHERE version > 1"); err != nil {
		t.Fatal(err)
	}
	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatalf("re-applying v2 over an existing column failed: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestRunMigrations_CreatesExpectedSchema(t *testing.T) {
	db := testDB(t)
	if err := runMigrations(db, testLogger()); err != nil {
		t.Fatal(err)
	}

	for _, table := range []string{"deliveries", "schema_version"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
	for _, index := range []string{"idx_deliveries_time", "idx_deliveries_chat", "idx_deliveries_batch"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		if err != nil {
			t.Errorf("index %q not found: %v", index, err)
		}
	}

	if _, err := db.Exec(
		"INSERT INTO deliveries (batch_id, kind, chat_id, status, created_at, bytes) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)",
		"b", "text", "1", "success", 3,
	); err != nil {
		t.Fatalf("insert with bytes column failed: %v", err)
	}
}
