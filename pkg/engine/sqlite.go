package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLitePersistence stores personas as rows in a single SQLite database (WAL mode).
type SQLitePersistence struct {
	db   *sql.DB
	path string
}

// NewSQLitePersistence opens (or creates) the database at dbPath.
func NewSQLitePersistence(dbPath string) (*SQLitePersistence, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and MemStore orders saves itself.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &SQLitePersistence{db: db, path: dbPath}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLitePersistence) ensureSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS entries (
		persona TEXT NOT NULL,
		app     TEXT NOT NULL,
		key     TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY(persona, app, key)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_app ON entries(app);
	`)
	return err
}

// Path returns the database file path.
func (s *SQLitePersistence) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLitePersistence) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SavePersona replaces every row of a persona in one transaction.
func (s *SQLitePersistence) SavePersona(personaID string, data map[string]map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE persona = ?`, personaID); err != nil {
		return fmt.Errorf("clear persona %s: %w", personaID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (persona, app, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for appID, kv := range data {
		for k, v := range kv {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s/%s/%s: %w", personaID, appID, k, err)
			}
			if _, err := stmt.Exec(personaID, appID, k, string(raw)); err != nil {
				return fmt.Errorf("insert %s/%s/%s: %w", personaID, appID, k, err)
			}
		}
	}
	return tx.Commit()
}

// LoadAll reads every persona back into the MemStore layout.
func (s *SQLitePersistence) LoadAll() (map[string]map[string]map[string]any, error) {
	rows, err := s.db.Query(`SELECT persona, app, key, value FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	allData := make(map[string]map[string]map[string]any)
	for rows.Next() {
		var personaID, appID, key, raw string
		if err := rows.Scan(&personaID, &appID, &key, &raw); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			log.Printf("Warning: Could not decode %s/%s/%s: %v", personaID, appID, key, err)
			continue
		}
		if allData[personaID] == nil {
			allData[personaID] = make(map[string]map[string]any)
		}
		if allData[personaID][appID] == nil {
			allData[personaID][appID] = make(map[string]any)
		}
		allData[personaID][appID][key] = val
	}
	return allData, rows.Err()
}
