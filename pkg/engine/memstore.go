package engine

import (
	"encoding/json"
	"io"
	"log"
	"sync"
)

// Option configures a MemStore.
type Option func(*MemStore)

// WithQuota caps the number of bytes a single persona/app namespace may hold.
// Keys and values both count; non-string values are measured by their JSON
// encoding. A quota of zero or less disables the limit.
func WithQuota(bytes int) Option {
	return func(m *MemStore) {
		m.quota = bytes
	}
}

// MemStore is the thread-safe in-memory engine.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [personaID][appID][key]value
	data map[string]map[string]map[string]any
	// Bytes held per [personaID][appID]
	usage     map[string]map[string]int
	quota     int
	persister Persister
	wg        sync.WaitGroup
	// versions counts changes per persona; each background save carries one.
	versions map[string]uint64
	gate     saveGate
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and a persister, which may be nil.
func NewMemStore(initialData map[string]map[string]map[string]any, p Persister, opts ...Option) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]map[string]any)
	}
	m := &MemStore{
		data:      initialData,
		usage:     make(map[string]map[string]int),
		persister: p,
		versions:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	for pID, apps := range initialData {
		for aID, kv := range apps {
			for k, v := range kv {
				m.addUsage(pID, aID, entrySize(k, v))
			}
		}
	}
	return m
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close flushes pending writes and closes the persister if it holds resources.
func (m *MemStore) Close() error {
	m.Wait()
	if c, ok := m.persister.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Quota reports the configured per-namespace capacity in bytes.
func (m *MemStore) Quota() int {
	return m.quota
}

// Usage reports the bytes currently held by a persona/app namespace.
func (m *MemStore) Usage(personaID, appID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[personaID][appID]
}

func (m *MemStore) Get(personaID, appID, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	persona, ok := m.data[personaID]
	if !ok {
		return nil, ErrPersonaNotFound
	}

	app, ok := persona[appID]
	if !ok {
		return nil, ErrAppNotFound
	}

	val, ok := app[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return val, nil
}

func (m *MemStore) Set(personaID, appID, key string, val any) error {
	m.mu.Lock()
	next := entrySize(key, val)
	if m.quota > 0 {
		used := m.usage[personaID][appID]
		if old, ok := m.data[personaID][appID][key]; ok {
			used -= entrySize(key, old)
		}
		if used+next > m.quota {
			m.mu.Unlock()
			return ErrQuotaExceeded
		}
	}

	if m.data[personaID] == nil {
		m.data[personaID] = make(map[string]map[string]any)
	}
	if m.data[personaID][appID] == nil {
		m.data[personaID][appID] = make(map[string]any)
	}
	if old, ok := m.data[personaID][appID][key]; ok {
		m.addUsage(personaID, appID, -entrySize(key, old))
	}

	m.data[personaID][appID][key] = val
	m.addUsage(personaID, appID, next)

	// Deep copy the persona's state to save safely in background
	currentPersonaData := m.copyPersonaData(personaID)
	version := m.bumpVersion(personaID)
	m.mu.Unlock()

	m.persist(personaID, version, currentPersonaData)
	return nil
}

func (m *MemStore) Delete(personaID, appID, key string) error {
	m.mu.Lock()
	if p, ok := m.data[personaID]; ok {
		if a, ok := p[appID]; ok {
			if old, ok := a[key]; ok {
				m.addUsage(personaID, appID, -entrySize(key, old))
			}
			delete(a, key)
		}
	}
	currentPersonaData := m.copyPersonaData(personaID)
	version := m.bumpVersion(personaID)
	m.mu.Unlock()

	m.persist(personaID, version, currentPersonaData)
	return nil
}

// bumpVersion MUST be called while holding m.mu.Lock, in the same critical
// section that produced the snapshot being saved.
func (m *MemStore) bumpVersion(personaID string) uint64 {
	m.versions[personaID]++
	return m.versions[personaID]
}

// persist saves a snapshot in the background. Saves may finish in any order;
// the gate drops snapshots older than the last one written.
func (m *MemStore) persist(personaID string, version uint64, data map[string]map[string]any) {
	if m.persister == nil || data == nil {
		return
	}
	m.wg.Add(1)
	go func(pID string, version uint64, data map[string]map[string]any) {
		defer m.wg.Done()
		if _, err := m.gate.save(m.persister, pID, version, data); err != nil {
			log.Printf("Warning: could not persist persona %s: %v", pID, err)
		}
	}(personaID, version, data)
}

// addUsage MUST be called while holding m.mu.Lock.
func (m *MemStore) addUsage(personaID, appID string, delta int) {
	if m.usage[personaID] == nil {
		m.usage[personaID] = make(map[string]int)
	}
	m.usage[personaID][appID] += delta
}

// copyPersonaData creates a deep copy of a persona's data.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyPersonaData(personaID string) map[string]map[string]any {
	original, ok := m.data[personaID]
	if !ok {
		return nil
	}

	personaCopy := make(map[string]map[string]any)
	for appID, appData := range original {
		appCopy := make(map[string]any)
		for k, v := range appData {
			appCopy[k] = v
		}
		personaCopy[appID] = appCopy
	}
	return personaCopy
}

func (m *MemStore) GetPersonas() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	for id := range m.data {
		list = append(list, id)
	}
	return list, nil
}

func (m *MemStore) GetApps(personaID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	if apps, ok := m.data[personaID]; ok {
		for appID := range apps {
			list = append(list, appID)
		}
	}
	return list, nil
}

func (m *MemStore) GetAppStore(personaID, appID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.data[personaID]; ok {
		if a, ok := p[appID]; ok {
			// Return a copy to prevent external mutation of the internal map
			out := make(map[string]any, len(a))
			for k, v := range a {
				out[k] = v
			}
			return out, nil
		}
	}
	return nil, ErrAppNotFound
}

// DumpApp returns one app's data across every persona, keyed by personaID.
func (m *MemStore) DumpApp(appID string) (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]any)
	for pID, apps := range m.data {
		a, ok := apps[appID]
		if !ok {
			continue
		}
		cp := make(map[string]any, len(a))
		for k, v := range a {
			cp[k] = v
		}
		out[pID] = cp
	}
	return out, nil
}

// GetGlobal finds the first persona holding key in appID.
func (m *MemStore) GetGlobal(appID, key string) (any, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for pID, apps := range m.data {
		if a, ok := apps[appID]; ok {
			if v, ok := a[key]; ok {
				return v, pID, nil
			}
		}
	}
	return nil, "", ErrKeyNotFound
}

// Move transfers a key from one persona to another within the same app.
func (m *MemStore) Move(srcPersona, dstPersona, appID, key string) error {
	val, err := m.Get(srcPersona, appID, key)
	if err != nil {
		return err
	}
	if err := m.Set(dstPersona, appID, key, val); err != nil {
		return err
	}
	return m.Delete(srcPersona, appID, key)
}

// entrySize approximates the storage cost of a key/value pair.
func entrySize(key string, val any) int {
	switch v := val.(type) {
	case string:
		return len(key) + len(v)
	case nil:
		return len(key)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return len(key)
		}
		return len(key) + len(b)
	}
}
