package store

import (
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	got := pg.Rebind(`UPDATE members SET device_id = ? WHERE id = ? AND device_id IS NULL`)
	want := `UPDATE members SET device_id = $1 WHERE id = $2 AND device_id IS NULL`
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}

	lite := &DB{Dialect: SQLite}
	q := `SELECT id FROM members WHERE id = ?`
	if got := lite.Rebind(q); got != q {
		t.Errorf("sqlite Rebind changed query: %q", got)
	}
}

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var marker int
	if err := db.Client.QueryRow(`SELECT COUNT(*) FROM app_meta WHERE id = 1`).Scan(&marker); err != nil {
		t.Fatalf("query app_meta: %v", err)
	}
	if marker != 1 {
		t.Errorf("app_meta rows = %d, want 1", marker)
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "canteen.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if db.Dialect != SQLite {
		t.Errorf("dialect = %q, want sqlite", db.Dialect)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	insert := `INSERT INTO members (name, roll_or_id, allowed_slots) VALUES (?, ?, ?)`
	if _, err := db.Client.Exec(insert, "Asha", "R1", "morning"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err = db.Client.Exec(insert, "Asha again", "R1", "morning")
	if err == nil {
		t.Fatal("expected duplicate roll to fail")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if IsUniqueViolation(nil) {
		t.Error("IsUniqueViolation(nil) = true")
	}
}

func TestKey(t *testing.T) {
	if got := Key("slot-token", "2024-05-01", "morning"); got != "canteen:slot-token:2024-05-01:morning" {
		t.Errorf("Key = %q", got)
	}
}

func TestOpenDriver(t *testing.T) {
	db, err := Open("sqlite", "", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Close()

	if _, err := Open("mysql", "", ""); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestMigrationLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetMigrationLogger(zap.New(core))
	t.Cleanup(func() { SetMigrationLogger(nil) })

	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	found := false
	for _, e := range logs.All() {
		if e.LoggerName == "migrate" && strings.Contains(e.Message, "00001_init.sql") {
			found = true
		}
	}
	if !found {
		t.Errorf("migration not logged through zap, got %d entries", logs.Len())
	}
}
