package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_events (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT    NOT NULL UNIQUE,
		owner_scope     TEXT    NOT NULL,
		storage_unit_id TEXT    NOT NULL,
		item_id         TEXT    NOT NULL,
		kind            TEXT    NOT NULL,
		occurred_at     INTEGER NOT NULL,
		performed_by    TEXT    NOT NULL,
		notes           TEXT    NOT NULL,
		payload         TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_events_scope ON inventory_events(owner_scope, seq)`,
	`CREATE TABLE IF NOT EXISTS access_events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT    NOT NULL UNIQUE,
		company_id  TEXT    NOT NULL,
		person_id   TEXT    NOT NULL,
		person_name TEXT    NOT NULL,
		action      TEXT    NOT NULL,
		occurred_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_company ON access_events(company_id, seq)`,
}

// SQLiteAdapter is the embedded event store. A single connection serialises
// writers, which is all SQLite supports anyway.
type SQLiteAdapter struct {
	sqlEventStore
}

// OpenSQLite opens path with WAL and a busy timeout. ":memory:" gives a
// private in-memory database that lives as long as its only connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		db.SetConnMaxIdleTime(2 * time.Minute)
	}
	return db, nil
}

func NewSQLiteAdapter(db *sql.DB) *SQLiteAdapter {
	return &SQLiteAdapter{sqlEventStore{db: db, isDuplicate: isSQLiteUniqueViolation}}
}

// isSQLiteUniqueViolation matches the extended code, or the primary
// constraint code with a UNIQUE message when extended codes are off.
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
}

// Migrate creates the event tables if they do not exist.
func (s *SQLiteAdapter) Migrate(ctx context.Context) error {
	return s.migrate(ctx, sqliteSchema)
}
