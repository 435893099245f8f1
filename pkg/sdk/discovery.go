package sdk

import (
	"io"
	"log"

	"github.com/celerix-dev/celerix-pond/pkg/engine"
)

// Options selects between a remote daemon and an embedded engine.
type Options struct {
	// RemoteAddr, when set, is tried first.
	RemoteAddr string
	UseTLS     bool

	DataDir    string
	Backend    string
	SQLitePath string
	// QuotaBytes caps each persona/app namespace in embedded mode.
	QuotaBytes int
}

// New initializes the store based on opts.
// It returns the interface, so the caller doesn't care if it's local or remote.
func New(opts Options) (CelerixStore, error) {
	if opts.RemoteAddr != "" {
		client, err := Connect(opts.RemoteAddr, opts.UseTLS)
		if err == nil {
			return client, nil
		}
		log.Printf("Warning: remote store %s unreachable (%v), falling back to embedded mode", opts.RemoteAddr, err)
	}

	p, err := engine.OpenPersister(opts.Backend, opts.DataDir, opts.SQLitePath)
	if err != nil {
		return nil, err
	}

	allData, err := p.LoadAll()
	if err != nil {
		return nil, err
	}

	return engine.NewMemStore(allData, p, engine.WithQuota(opts.QuotaBytes)), nil
}

// Close flushes pending embedded writes and releases whatever the store holds.
func Close(s CelerixStore) error {
	if w, ok := s.(interface{ Wait() }); ok {
		w.Wait()
	}
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
