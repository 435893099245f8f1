// Package pond is the page controller of the Pond game: it turns button
// presses into game lifecycle calls and interaction log records.
//
// The battle engine and the arena visualization are collaborators; this
// package only starts and resets them.
package pond

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-pond/internal/interaction"
	"github.com/celerix-dev/celerix-pond/internal/report"
)

// AppName identifies the game in documentation links and store namespaces.
const AppName = "pond"

// Battle resolves the fight between the player's robots.
type Battle interface {
	Start(onEnd func())
	Reset()
}

// Visualization draws the arena.
type Visualization interface {
	Start()
	Reset()
}

// Workspace captures the player's visual program.
type Workspace interface {
	Snapshot() (string, error)
}

// Recorder is the interaction log as the controller uses it.
type Recorder interface {
	RecordAction(action, level string) error
	RecordWorkspaceAction(action, payload, level string) error
	Clear() error
	Enumerate() (interaction.Enumeration, error)
	Next() int
	Available() bool
}

// Config holds per-page settings.
type Config struct {
	Level    string
	Lang     string
	Debounce time.Duration
	Now      func() time.Time
	// OnBattleEnd is called after a started battle finishes.
	OnBattleEnd func()
}

// State is a snapshot of the page.
type State struct {
	Level            string `json:"level"`
	Lang             string `json:"lang"`
	Runs             int    `json:"runs"`
	Running          bool   `json:"running"`
	DocsVisible      bool   `json:"docs_visible"`
	NextSequence     int    `json:"next_sequence"`
	StorageAvailable bool   `json:"storage_available"`
}

// Controller wires buttons to the game and the log.
type Controller struct {
	mu          sync.Mutex
	log         Recorder
	battle      Battle
	vis         Visualization
	workspace   Workspace
	debounce    *Debouncer
	level       string
	lang        string
	runs        int
	running     bool
	docsVisible bool
	onBattleEnd func()
}

// NewController builds a controller. Any collaborator may be nil.
func NewController(rec Recorder, battle Battle, vis Visualization, ws Workspace, cfg Config) *Controller {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Controller{
		log:         rec,
		battle:      battle,
		vis:         vis,
		workspace:   ws,
		debounce:    NewDebouncer(cfg.Debounce, cfg.Now),
		level:       cfg.Level,
		lang:        cfg.Lang,
		onBattleEnd: cfg.OnBattleEnd,
	}
}

// Run starts the pond. It returns false when the press was a repeat.
// accepted hooks run only for a press that gets through, before anything
// is read or recorded.
func (c *Controller) Run(in Input, accepted ...func()) bool {
	if c.debounce.Spam(in) {
		return false
	}
	apply(accepted)

	c.mu.Lock()
	c.runs++
	first := c.runs == 1
	level := c.level
	c.mu.Unlock()

	var snapshot string
	if c.workspace != nil {
		s, err := c.workspace.Snapshot()
		if err != nil {
			log.Printf("Warning: could not snapshot workspace: %v", err)
		}
		snapshot = s
	}
	if first {
		log.Printf("Action: Run Button Pressed, level %s", level)
	}
	c.record(func() error {
		if snapshot == "" {
			return c.log.RecordAction(interaction.ActionRun, level)
		}
		return c.log.RecordWorkspaceAction(interaction.ActionRun, snapshot, level)
	})

	c.execute()
	return true
}

// Reset stops the pond. It returns false when the press was a repeat.
func (c *Controller) Reset(in Input, accepted ...func()) bool {
	if c.debounce.Spam(in) {
		return false
	}
	apply(accepted)
	c.record(func() error {
		return c.log.RecordAction(interaction.ActionReset, c.Level())
	})
	c.reset()
	return true
}

// OpenDocs shows the documentation and returns its URL. opened is false
// when the documentation was already visible.
func (c *Controller) OpenDocs(accepted ...func()) (docsURL string, opened bool) {
	c.mu.Lock()
	if c.docsVisible {
		c.mu.Unlock()
		return "", false
	}
	c.docsVisible = true
	c.mu.Unlock()
	apply(accepted)

	c.mu.Lock()
	level, lang := c.level, c.lang
	c.mu.Unlock()

	c.record(func() error {
		return c.log.RecordAction(interaction.ActionDocsOpened, level)
	})
	return DocsURL(lang, level), true
}

// CloseDocs hides the documentation.
func (c *Controller) CloseDocs() {
	c.mu.Lock()
	c.docsVisible = false
	level := c.level
	c.mu.Unlock()

	c.record(func() error {
		return c.log.RecordAction(interaction.ActionDocsClosed, level)
	})
}

// Help shows the help dialog.
func (c *Controller) Help() {
	c.record(func() error {
		return c.log.RecordAction(interaction.ActionHelp, c.Level())
	})
}

// Clear wipes the interaction log.
func (c *Controller) Clear() error {
	if c.log == nil {
		return interaction.ErrStorageUnavailable
	}
	return c.log.Clear()
}

// Export writes the interaction log as an HTML report.
func (c *Controller) Export(w io.Writer) error {
	if c.log == nil {
		return interaction.ErrStorageUnavailable
	}
	e, err := c.log.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate interactions: %w", err)
	}
	return report.HTML(w, "", e)
}

// SetLevel changes the level tag used for later records.
func (c *Controller) SetLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// Level returns the current level tag.
func (c *Controller) Level() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// State reports the page state.
func (c *Controller) State() State {
	c.mu.Lock()
	s := State{
		Level:       c.level,
		Lang:        c.lang,
		Runs:        c.runs,
		Running:     c.running,
		DocsVisible: c.docsVisible,
	}
	c.mu.Unlock()
	if c.log != nil {
		s.NextSequence = c.log.Next()
		s.StorageAvailable = c.log.Available()
	}
	return s
}

// record runs a log write. Logging problems never stop the game action;
// the log has already told the user.
func (c *Controller) record(write func() error) {
	if c.log == nil {
		return
	}
	if err := write(); err != nil && !errors.Is(err, interaction.ErrStorageUnavailable) {
		log.Printf("Interaction not recorded: %v", err)
	}
}

func apply(hooks []func()) {
	for _, h := range hooks {
		h()
	}
}

func (c *Controller) execute() {
	c.reset()

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if c.battle != nil {
		c.battle.Start(c.battleEnded)
	}
	if c.vis != nil {
		c.vis.Start()
	}
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.battle != nil {
		c.battle.Reset()
	}
	if c.vis != nil {
		c.vis.Reset()
	}
}

func (c *Controller) battleEnded() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	if c.onBattleEnd != nil {
		c.onBattleEnd()
	}
}

// DocsURL is the documentation frame address for a language and level.
func DocsURL(lang, level string) string {
	q := url.Values{}
	q.Set("lang", lang)
	q.Set("app", AppName)
	q.Set("level", level)
	return "pond/docs.html?" + q.Encode()
}
