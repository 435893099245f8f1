package sdk

import "github.com/celerix-dev/celerix-pond/pkg/engine"

// Errors shared with the embedded engine so errors.Is works in both modes.
var (
	// ErrPersonaNotFound is returned when a requested persona does not exist.
	ErrPersonaNotFound = engine.ErrPersonaNotFound
	// ErrAppNotFound is returned when a requested app does not exist within a persona.
	ErrAppNotFound = engine.ErrAppNotFound
	// ErrKeyNotFound is returned when a requested key does not exist within an app.
	ErrKeyNotFound = engine.ErrKeyNotFound
	// ErrQuotaExceeded is returned when a write would overflow the app's capacity.
	ErrQuotaExceeded = engine.ErrQuotaExceeded
)

// SystemPersona is the reserved ID for global/system-level data.
const SystemPersona = engine.SystemPersona

// --- Functional Interfaces (Interface Segregation) ---

// KVReader defines the basic read operations for the store.
type KVReader interface {
	Get(personaID, appID, key string) (any, error)
}

// KVWriter defines the basic write and delete operations for the store.
type KVWriter interface {
	Set(personaID, appID, key string, val any) error
	Delete(personaID, appID, key string) error
}

// KVStore is the minimum a scope needs.
type KVStore interface {
	KVReader
	KVWriter
}

// AppEnumeration allows discovering personas and apps.
type AppEnumeration interface {
	GetPersonas() ([]string, error)
	GetApps(personaID string) ([]string, error)
}

// BatchExporter allows retrieving bulk data.
type BatchExporter interface {
	GetAppStore(personaID, appID string) (map[string]any, error)
	DumpApp(appID string) (map[string]map[string]any, error)
}

// GlobalSearcher allows searching for keys across all personas.
type GlobalSearcher interface {
	GetGlobal(appID, key string) (any, string, error)
}

// Orchestrator handles higher-level data operations like moves.
type Orchestrator interface {
	Move(srcPersona, dstPersona, appID, key string) error
}

// --- Composite Interfaces ---

// CelerixStore is the full storage contract. Both *engine.MemStore and
// *Client satisfy it.
type CelerixStore interface {
	KVReader
	KVWriter
	AppEnumeration
	BatchExporter
	GlobalSearcher
	Orchestrator
}

// AppScope provides a simplified, scoped interface for a specific persona and app.
// The interaction log of one learner lives in exactly one AppScope.
type AppScope interface {
	Get(key string) (any, error)
	Set(key string, val any) error
	Delete(key string) error
	// Vault returns a VaultScope for client-side encrypted storage.
	Vault(masterKey []byte) any
}

// VaultScope provides a scoped interface for performing client-side encryption.
type VaultScope interface {
	Get(key string) (string, error)
	Set(key string, plaintext string) error
}
