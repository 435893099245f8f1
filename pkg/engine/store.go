// Package engine defines the core storage engine backing the pond interaction log.
package engine

import "errors"

// Standard errors for the engine.
// The SDK re-exports these so errors.Is works across embedded and remote stores.
var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrAppNotFound     = errors.New("app not found")
	ErrKeyNotFound     = errors.New("key not found")
	// ErrQuotaExceeded is returned by Set when a write would grow an app
	// namespace past its configured capacity.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// SystemPersona is the reserved ID for global/system-level data.
const SystemPersona = "_system"

// Persister stores whole personas on durable media.
// Both the JSON file backend and the SQLite backend implement it.
type Persister interface {
	SavePersona(personaID string, data map[string]map[string]any) error
	LoadAll() (map[string]map[string]map[string]any, error)
}
