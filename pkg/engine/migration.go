package engine

import "fmt"

// Source is anything that can enumerate and dump its contents.
type Source interface {
	GetPersonas() ([]string, error)
	GetApps(personaID string) ([]string, error)
	GetAppStore(personaID, appID string) (map[string]any, error)
}

// Sink accepts individual key writes.
type Sink interface {
	Set(personaID, appID, key string, val any) error
}

// Migrate copies every persona, app and key from src into dst and returns
// the number of keys written.
// It backs both the embedded-to-remote upgrade and scheduled backups.
func Migrate(src Source, dst Sink) (int, error) {
	personas, err := src.GetPersonas()
	if err != nil {
		return 0, fmt.Errorf("failed to list personas: %w", err)
	}

	written := 0
	for _, pID := range personas {
		apps, err := src.GetApps(pID)
		if err != nil {
			return written, fmt.Errorf("failed to list apps for persona %s: %w", pID, err)
		}

		for _, aID := range apps {
			data, err := src.GetAppStore(pID, aID)
			if err != nil {
				return written, fmt.Errorf("failed to dump data for app %s: %w", aID, err)
			}

			for k, v := range data {
				if err := dst.Set(pID, aID, k, v); err != nil {
					return written, fmt.Errorf("failed to set key %s in destination: %w", k, err)
				}
				written++
			}
		}
	}

	return written, nil
}
