// Package journal persists the set of live workspaces in SQLite so that
// directories leaked by a process that died without running its shutdown
// sweep can be removed on the next start.
//
// Every row carries the host and pid of the process that recorded it.
// Several processes may share one journal file; each only sweeps rows whose
// owner is known to be gone.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workspaces (
	path       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	host       TEXT NOT NULL DEFAULT '',
	pid        INTEGER NOT NULL DEFAULT 0
);
`

// Owner identifies the process that recorded a workspace.
type Owner struct {
	Host string
	PID  int
}

// CurrentOwner returns the identity of the running process.
func CurrentOwner() Owner {
	host, _ := os.Hostname()
	return Owner{Host: host, PID: os.Getpid()}
}

// Entry is one journaled workspace.
type Entry struct {
	Path      string
	CreatedAt time.Time
	Owner     Owner
}

// DB wraps a sql.DB with journal operations.
type DB struct {
	conn  *sql.DB
	owner Owner
	alive func(Owner) bool
}

// Option configures a DB.
type Option func(*DB)

// WithOwner overrides the identity stamped on recorded rows.
func WithOwner(o Owner) Option {
	return func(db *DB) { db.owner = o }
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	if err := migrateOwner(conn); err != nil {
		conn.Close()
		return nil, err
	}
	db := &DB{conn: conn, owner: CurrentOwner(), alive: processAlive}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// migrateOwner adds the owner columns to journals created before they existed.
func migrateOwner(conn *sql.DB) error {
	rows, err := conn.Query(`PRAGMA table_info(workspaces)`)
	if err != nil {
		return fmt.Errorf("journal: table info: %w", err)
	}
	have := map[string]bool{}
	for rows.Next() {
		var (
			cid         int
			name, typ   string
			notNull, pk int
			dflt        sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("journal: table info: %w", err)
		}
		have[name] = true
	}
	rows.Close()

	if !have["host"] {
		if _, err := conn.Exec(`ALTER TABLE workspaces ADD COLUMN host TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("journal: add host column: %w", err)
		}
	}
	if !have["pid"] {
		if _, err := conn.Exec(`ALTER TABLE workspaces ADD COLUMN pid INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("journal: add pid column: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Owner returns the identity stamped on rows recorded through db.
func (db *DB) Owner() Owner {
	return db.owner
}

// Record stores path as live and owned by db's owner.
func (db *DB) Record(path string, createdAt time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO workspaces (path, created_at, host, pid) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			created_at = excluded.created_at,
			host       = excluded.host,
			pid        = excluded.pid
	`, path, createdAt.UTC(), db.owner.Host, db.owner.PID)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", path, err)
	}
	return nil
}

// Forget removes path. Forgetting an unknown path is not an error.
func (db *DB) Forget(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM workspaces WHERE path = ?`, path); err != nil {
		return fmt.Errorf("journal: forget %s: %w", path, err)
	}
	return nil
}

// Pending returns every recorded workspace, oldest first.
func (db *DB) Pending() ([]Entry, error) {
	rows, err := db.conn.Query(`SELECT path, created_at, host, pid FROM workspaces ORDER BY created_at, path`)
	if err != nil {
		return nil, fmt.Errorf("journal: pending: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.CreatedAt, &e.Owner.Host, &e.Owner.PID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Orphaned returns the recorded workspaces whose owning process is gone.
// Rows owned by db's own process are never orphaned, nor are rows from
// another host, whose liveness cannot be checked. Rows without an owner
// predate owner tracking and are always orphaned.
func (db *DB) Orphaned() ([]Entry, error) {
	pending, err := db.Pending()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range pending {
		if db.orphaned(e.Owner) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (db *DB) orphaned(o Owner) bool {
	switch {
	case o.PID <= 0:
		return true
	case o == db.owner:
		return false
	case o.Host != db.owner.Host:
		return false
	default:
		return !db.alive(o)
	}
}
