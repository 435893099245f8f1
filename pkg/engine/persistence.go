package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const personaExt = ".json"

// Persistence stores each persona (a learner, or the system persona) as one
// JSON file in DataDir.
type Persistence struct {
	DataDir string
	mu      sync.Mutex
}

// NewPersistence creates dir if needed.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

// personaFile maps a persona ID to its file. Persona IDs arrive from the wire,
// so anything that could leave DataDir is rejected.
func (p *Persistence) personaFile(personaID string) (string, error) {
	if personaID == "" || personaID == "." || personaID == ".." ||
		strings.ContainsAny(personaID, `/\`) || strings.ContainsRune(personaID, 0) {
		return "", fmt.Errorf("invalid persona id %q", personaID)
	}
	return filepath.Join(p.DataDir, personaID+personaExt), nil
}

// SavePersona replaces a persona's file. The write goes to a temp file that is
// renamed over the old one, so a crash leaves either the previous log or the new one.
func (p *Persistence) SavePersona(personaID string, data map[string]map[string]any) error {
	filePath, err := p.personaFile(personaID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode persona %s: %w", personaID, err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// LoadAll reads every persona file. Unreadable files are logged and skipped so
// one damaged learner log does not keep the daemon from starting.
func (p *Persistence) LoadAll() (map[string]map[string]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	allData := make(map[string]map[string]map[string]any)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != personaExt {
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, name))
		if err != nil {
			log.Printf("Warning: Could not read persona file %s: %v", name, err)
			continue
		}
		var personaData map[string]map[string]any
		if err := json.Unmarshal(content, &personaData); err != nil {
			log.Printf("Warning: Could not unmarshal persona data from %s: %v", name, err)
			continue
		}
		allData[strings.TrimSuffix(name, personaExt)] = personaData
	}
	return allData, nil
}

// saveGate applies persona snapshots in version order. Background saves may
// reach the gate in any order; a snapshot older than the last one written for
// its persona is dropped, so a cleared log is never resurrected by a late save.
type saveGate struct {
	mu    sync.Mutex
	saved map[string]uint64
}

// save writes data if version is newer than what was last written and
// reports whether it did.
func (g *saveGate) save(p Persister, personaID string, version uint64, data map[string]map[string]any) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if version <= g.saved[personaID] {
		return false, nil
	}
	if err := p.SavePersona(personaID, data); err != nil {
		return false, err
	}
	if g.saved == nil {
		g.saved = make(map[string]uint64)
	}
	g.saved[personaID] = version
	return true, nil
}

// Backends accepted by OpenPersister.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// OpenPersister opens the configured backend. dataDir is used by the file
// backend, dbPath by SQLite.
func OpenPersister(backend, dataDir, dbPath string) (Persister, error) {
	switch backend {
	case "", BackendFile:
		return NewPersistence(dataDir)
	case BackendSQLite:
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "pond.db")
		}
		return NewSQLitePersistence(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
