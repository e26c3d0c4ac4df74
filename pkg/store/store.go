// Package store persists the agent's local state in a single SQLite file:
// the offline ping queue, the registered operator record, and the active
// session record. The three live in independent tables so clearing one can
// never touch another.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	envDBPath         = "AGENT_DB_PATH"
	defaultDBDirName  = ".fieldtrack"
	defaultDBFileName = "agent.sqlite"
)

// Store is the sole reader and writer of the agent's persisted state.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at the default or
// env-overridden path.
func Open() (*Store, error) {
	path, err := resolveDatabasePath()
	if err != nil {
		return nil, err
	}
	return OpenAt(path)
}

// OpenAt opens the database at an explicit path. Tests use this with
// t.TempDir.
func OpenAt(path string) (*Store, error) {
	if err := ensureDirExists(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "store: open sqlite database failed")
	}
	// The queue is appended from the sample path while the flusher reads and
	// deletes; one connection serializes them without busy-retry handling.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS queued_pings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id TEXT NOT NULL,
			operator_id TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			accuracy_m REAL,
			speed_mps REAL,
			heading_deg REAL,
			altitude REAL,
			captured_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operator (
			key INTEGER PRIMARY KEY CHECK (key = 1),
			operator_id TEXT NOT NULL,
			name TEXT NOT NULL,
			employee_id TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS session (
			key INTEGER PRIMARY KEY CHECK (key = 1),
			operator_id TEXT NOT NULL,
			operator_name TEXT NOT NULL DEFAULT '',
			asset_id TEXT NOT NULL,
			asset_name TEXT NOT NULL DEFAULT '',
			started_at_ms INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "store: ensure schema failed")
		}
	}
	return nil
}

func resolveDatabasePath() (string, error) {
	if custom := strings.TrimSpace(os.Getenv(envDBPath)); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pkgerrors.Wrap(err, "store: locate user home failed")
	}
	return filepath.Join(home, defaultDBDirName, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "store: create dir %s failed", path)
	}
	return nil
}
