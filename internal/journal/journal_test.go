package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM workspaces`).Scan(&count); err != nil {
		t.Fatalf("workspaces table missing: %v", err)
	}
}

func TestRecordAndForget(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	if err := db.Record("/tmp/b", now); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := db.Record("/tmp/a", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	pending, err := db.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Path != "/tmp/a" || pending[1].Path != "/tmp/b" {
		t.Fatalf("Pending = %+v, want /tmp/a then /tmp/b", pending)
	}

	if err := db.Forget("/tmp/a"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	pending, _ = db.Pending()
	if len(pending) != 1 || pending[0].Path != "/tmp/b" {
		t.Errorf("Pending after forget = %+v", pending)
	}
}

func TestRecordTwiceKeepsOneRow(t *testing.T) {
	db := testDB(t)
	_ = db.Record("/tmp/x", time.Now())
	_ = db.Record("/tmp/x", time.Now())
	pending, _ := db.Pending()
	if len(pending) != 1 {
		t.Errorf("expected 1 row, got %d", len(pending))
	}
}

func TestForgetUnknown(t *testing.T) {
	db := testDB(t)
	if err := db.Forget("/never/recorded"); err != nil {
		t.Errorf("Forget unknown: %v", err)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Record("/tmp/leaked", time.Now())
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	pending, _ := db.Pending()
	if len(pending) != 1 || pending[0].Path != "/tmp/leaked" {
		t.Errorf("Pending after reopen = %+v", pending)
	}
}

// goneOwner names a pid above the kernel's pid_max, so no process holds it.
func goneOwner() Owner {
	return Owner{Host: CurrentOwner().Host, PID: 1 << 30}
}

func TestRecordStampsOwner(t *testing.T) {
	db := testDB(t)
	if err := db.Record("/tmp/owned", time.Now()); err != nil {
		t.Fatal(err)
	}
	pending, _ := db.Pending()
	if len(pending) != 1 || pending[0].Owner != CurrentOwner() {
		t.Errorf("Pending = %+v, want owner %+v", pending, CurrentOwner())
	}
}

func TestOrphaned_SharedJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	live, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer live.Close()
	dead, err := Open(path, WithOwner(goneOwner()))
	if err != nil {
		t.Fatal(err)
	}
	defer dead.Close()
	remote, err := Open(path, WithOwner(Owner{Host: "elsewhere.invalid", PID: 1 << 30}))
	if err != nil {
		t.Fatal(err)
	}
	defer remote.Close()

	_ = live.Record("/tmp/live", time.Now())
	_ = dead.Record("/tmp/dead", time.Now())
	_ = remote.Record("/tmp/remote", time.Now())

	other, err := Open(path, WithOwner(Owner{Host: CurrentOwner().Host, PID: 1<<30 - 1}))
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	orphans, err := other.Orphaned()
	if err != nil {
		t.Fatalf("Orphaned: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Path != "/tmp/dead" {
		t.Errorf("Orphaned = %+v, want only /tmp/dead", orphans)
	}

	// A process never treats its own rows as orphaned.
	orphans, _ = live.Orphaned()
	for _, e := range orphans {
		if e.Path == "/tmp/live" {
			t.Error("own row reported as orphaned")
		}
	}
}

func TestOpenMigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`CREATE TABLE workspaces (path TEXT PRIMARY KEY, created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`INSERT INTO workspaces (path) VALUES ('/tmp/legacy')`); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}
	defer db.Close()

	orphans, err := db.Orphaned()
	if err != nil {
		t.Fatalf("Orphaned: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Path != "/tmp/legacy" {
		t.Errorf("Orphaned = %+v, want the ownerless legacy row", orphans)
	}
}
