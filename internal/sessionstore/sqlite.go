package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	_ "github.com/mattn/go-sqlite3"
)

const createSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

// SQLiteStore keeps sessions in a sqlite table. Expired rows are filtered on read
// and removed by a background cleanup goroutine.
type SQLiteStore struct {
	*sqlite3store.SQLite3Store
	db    *sql.DB
	owned bool
}

// NewSQLiteStore creates the sessions table in db and returns a store over it.
// The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB, cleanupInterval time.Duration) (*SQLiteStore, error) {
	if _, err := db.Exec(createSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &SQLiteStore{
		SQLite3Store: sqlite3store.NewWithCleanupInterval(db, cleanupInterval),
		db:           db,
	}, nil
}

// OpenSQLiteStore opens a dedicated sqlite file for sessions.
func OpenSQLiteStore(path string, cleanupInterval time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db, cleanupInterval)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

func (s *SQLiteStore) Name() string {
	return "sqlite"
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the cleanup goroutine and closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	s.StopCleanup()
	if s.owned {
		return s.db.Close()
	}
	return nil
}
