// Package backup snapshots the store to disk on a cron schedule.
package backup

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/celerix-dev/celerix-pond/pkg/engine"
)

const dirLayout = "20060102-150405"

// Options configures where and how snapshots are written.
type Options struct {
	Dir string
	// Backend is engine.BackendFile or engine.BackendSQLite.
	Backend string
	// Keep is the number of snapshots retained; zero keeps all of them.
	Keep int
	Now  func() time.Time
}

// Result describes one finished snapshot.
type Result struct {
	Path string
	Keys int
}

// Scheduler runs snapshots of src.
type Scheduler struct {
	src  engine.Source
	opts Options
	cron *cron.Cron

	// mu serializes snapshots so a slow one is never overlapped.
	mu sync.Mutex
}

func New(src engine.Source, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		src:  src,
		opts: opts,
		cron: cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start runs a snapshot on every tick of schedule, a standard five-field
// cron expression or a descriptor such as "@daily".
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		res, err := s.RunOnce()
		if err != nil {
			log.Printf("Backup failed: %v", err)
			return
		}
		log.Printf("Backup written to %s (%d keys)", res.Path, res.Keys)
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	log.Printf("Backup scheduler started (%s)", schedule)
	return nil
}

// Stop halts the schedule and waits for a running snapshot.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce writes one snapshot and prunes old ones.
func (s *Scheduler) RunOnce() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.opts.Dir, s.opts.Now().UTC().Format(dirLayout))
	if err := os.MkdirAll(path, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create backup dir: %w", err)
	}

	p, err := engine.OpenPersister(s.opts.Backend, path, "")
	if err != nil {
		return Result{}, err
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	snap := newSnapshot()
	n, err := engine.Migrate(s.src, snap)
	if err != nil {
		return Result{Path: path, Keys: n}, err
	}
	if err := snap.flush(p); err != nil {
		return Result{Path: path, Keys: n}, err
	}

	if err := s.prune(); err != nil {
		log.Printf("Warning: could not prune old backups: %v", err)
	}
	return Result{Path: path, Keys: n}, nil
}

// List returns the snapshot directories, oldest first.
func (s *Scheduler) List() ([]string, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dirLayout, e.Name()); err != nil {
			continue
		}
		out = append(out, filepath.Join(s.opts.Dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scheduler) prune() error {
	if s.opts.Keep <= 0 {
		return nil
	}
	dirs, err := s.List()
	if err != nil {
		return err
	}
	for len(dirs) > s.opts.Keep {
		if err := os.RemoveAll(dirs[0]); err != nil {
			return err
		}
		dirs = dirs[1:]
	}
	return nil
}

// snapshot collects keys in memory so each persona is written once.
type snapshot struct {
	data map[string]map[string]map[string]any
}

func newSnapshot() *snapshot {
	return &snapshot{data: make(map[string]map[string]map[string]any)}
}

func (s *snapshot) Set(personaID, appID, key string, val any) error {
	if s.data[personaID] == nil {
		s.data[personaID] = make(map[string]map[string]any)
	}
	if s.data[personaID][appID] == nil {
		s.data[personaID][appID] = make(map[string]any)
	}
	s.data[personaID][appID][key] = val
	return nil
}

func (s *snapshot) flush(p engine.Persister) error {
	for personaID, apps := range s.data {
		if err := p.SavePersona(personaID, apps); err != nil {
			return fmt.Errorf("failed to save persona %s: %w", personaID, err)
		}
	}
	return nil
}
