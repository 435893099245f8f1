// Package session keeps one pond page controller per open page.
package session

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-pond/internal/interaction"
	"github.com/celerix-dev/celerix-pond/internal/pond"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
	"github.com/celerix-dev/celerix-pond/pkg/schema"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidLearner = errors.New("learner id must be 1-64 characters of letters, digits, '.', '_' or '-'")
)

// Learner IDs become store persona IDs, which travel on a whitespace-separated wire protocol.
var learnerPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Session is one open pond page.
type Session struct {
	ID        string
	Learner   string
	CreatedAt time.Time

	Controller *pond.Controller
	Log        *interaction.Log
	Arena      *pond.Arena
	Workspace  *pond.StaticWorkspace
	Notices    *interaction.Notices
}

// Options configures new sessions.
type Options struct {
	AppID    string
	Debounce time.Duration
	// VaultKey, when set, encrypts records at rest.
	VaultKey []byte
}

// Registry owns the sessions of one process.
// Sessions of the same learner share one interaction log so their sequence
// numbers never collide; each session sees the log through its own view, so
// notices reach only the page that caused them.
type Registry struct {
	store sdk.CelerixStore
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*Session
	logs     map[string]*interaction.Log
}

// NewRegistry creates an empty registry over store. A nil store yields
// sessions whose logs run in degraded mode.
func NewRegistry(store sdk.CelerixStore, opts Options) *Registry {
	if opts.AppID == "" {
		opts.AppID = pond.AppName
	}
	return &Registry{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
		logs:     make(map[string]*interaction.Log),
	}
}

// Create opens a session for learner at level.
func (r *Registry) Create(learner, level, lang string) (*Session, error) {
	if !learnerPattern.MatchString(learner) {
		return nil, ErrInvalidLearner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	notices := &interaction.Notices{}
	l := r.logFor(learner).View(notices)
	if !l.Available() {
		notices.Notify(interaction.MsgStorageUnsupported)
	}
	arena := &pond.Arena{}
	ws := &pond.StaticWorkspace{}
	s := &Session{
		ID:        uuid.NewString(),
		Learner:   learner,
		CreatedAt: time.Now(),
		Log:       l,
		Arena:     arena,
		Workspace: ws,
		Notices:   notices,
	}
	s.Controller = pond.NewController(l, arena, nil, ws, pond.Config{
		Level:    level,
		Lang:     lang,
		Debounce: r.opts.Debounce,
	})
	r.sessions[s.ID] = s
	r.touchLearner(learner, level, lang, s.CreatedAt)
	return s, nil
}

// touchLearner updates the learner's profile in the system persona.
// A failure only costs the profile, never the session.
func (r *Registry) touchLearner(learner, level, lang string, now time.Time) {
	if r.store == nil {
		return
	}
	rec, err := sdk.Get[schema.LearnerRecord](r.store, engine.SystemPersona, schema.LearnersApp, learner)
	if err != nil {
		rec = schema.LearnerRecord{ID: learner, CreatedAt: now}
	}
	rec.Level = level
	rec.Lang = lang
	rec.Sessions++
	rec.LastActive = now
	if err := r.store.Set(engine.SystemPersona, schema.LearnersApp, learner, rec); err != nil {
		log.Printf("Warning: could not update learner profile %s: %v", learner, err)
	}
}

// Learner returns the stored profile of a learner.
func (r *Registry) Learner(learner string) (schema.LearnerRecord, error) {
	if r.store == nil {
		return schema.LearnerRecord{}, interaction.ErrStorageUnavailable
	}
	return sdk.Get[schema.LearnerRecord](r.store, engine.SystemPersona, schema.LearnersApp, learner)
}

// logFor returns the learner's shared log. Notices raised while opening it
// go to the server log; sessions are told through their own views.
// It MUST be called while holding r.mu.Lock.
func (r *Registry) logFor(learner string) *interaction.Log {
	if l, ok := r.logs[learner]; ok {
		return l
	}

	opts := []interaction.Option{interaction.WithNotifier(interaction.LogNotifier)}
	if r.opts.VaultKey != nil {
		opts = append(opts, interaction.WithVault(r.opts.VaultKey))
	}

	var scope sdk.AppScope
	if r.store != nil {
		scope = sdk.Scope(r.store, learner, r.opts.AppID)
	}
	l := interaction.New(scope, opts...)
	r.logs[learner] = l
	return l
}

// Get looks a session up by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close forgets a session. The learner's log stays open for later sessions.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// List returns the open sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
