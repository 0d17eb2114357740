package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStateStore keeps actor snapshots in a single sqlite table.
// INSERT OR REPLACE gives last-write-wins per actor id.
type SQLiteStateStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ StateStore = (*SQLiteStateStore)(nil)

func NewSQLiteStateStore(path string) (*SQLiteStateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite state store needs a database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS actor_state (
		id TEXT PRIMARY KEY,
		snapshot BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLiteStateStore{db: db}, nil
}

func (s *SQLiteStateStore) Save(actorID string, snapshot []byte) error {
	if actorID == "" {
		return fmt.Errorf("actor id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO actor_state (id, snapshot, updated_at) VALUES (?, ?, ?)",
		actorID, snapshot, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save state for %q: %w", actorID, err)
	}
	return nil
}

func (s *SQLiteStateStore) Load(actorID string) ([]byte, error) {
	var snapshot []byte
	err := s.db.QueryRow(
		"SELECT snapshot FROM actor_state WHERE id = ?", actorID,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("state for %q: %w", actorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load state for %q: %w", actorID, err)
	}
	return snapshot, nil
}

func (s *SQLiteStateStore) Delete(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM actor_state WHERE id = ?", actorID); err != nil {
		return fmt.Errorf("delete state for %q: %w", actorID, err)
	}
	return nil
}

func (s *SQLiteStateStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM actor_state ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan state key: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}
