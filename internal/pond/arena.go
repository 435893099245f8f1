package pond

import "sync"

// Arena stands in for the battle engine when it runs in the learner's
// browser. It only tracks the lifecycle the page reports.
type Arena struct {
	mu     sync.Mutex
	starts int
	resets int
	onEnd  func()
}

// Start arms the end-of-battle callback.
func (a *Arena) Start(onEnd func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	a.onEnd = onEnd
}

// Reset drops any pending battle.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
	a.onEnd = nil
}

// Finish reports that the browser-side battle ended. It returns false if no
// battle was running.
func (a *Arena) Finish() bool {
	a.mu.Lock()
	onEnd := a.onEnd
	a.onEnd = nil
	a.mu.Unlock()

	if onEnd == nil {
		return false
	}
	onEnd()
	return true
}

// Counts returns how many times the arena was started and reset.
func (a *Arena) Counts() (starts, resets int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts, a.resets
}

// StaticWorkspace is a workspace whose snapshot is supplied with each request.
type StaticWorkspace struct {
	mu  sync.Mutex
	xml string
}

// Set replaces the snapshot.
func (w *StaticWorkspace) Set(xml string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.xml = xml
}

func (w *StaticWorkspace) Snapshot() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.xml, nil
}
