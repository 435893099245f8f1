package pond

import (
	"sync"
	"time"
)

// Input is the kind of pointer event that pressed a button.
type Input string

const (
	InputClick    Input = "click"
	InputTouchEnd Input = "touchend"
)

// Default suppression windows.
const (
	DoubleClickWindow = 400 * time.Millisecond
	// TouchClickWindow covers touch screens that emit touchend and then a synthetic click.
	TouchClickWindow = 2 * time.Second
)

// Debouncer drops accidental repeat presses: the same input kind twice within
// the double-click window, or a click shortly after a touchend.
type Debouncer struct {
	mu          sync.Mutex
	window      time.Duration
	touchWindow time.Duration
	now         func() time.Time
	prevInput   Input
	prevAt      time.Time
}

// NewDebouncer returns a debouncer with the given double-click window.
// A zero window uses DoubleClickWindow; now may be nil.
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if window <= 0 {
		window = DoubleClickWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Debouncer{window: window, touchWindow: TouchClickWindow, now: now}
}

// Spam reports whether this press should be ignored, and remembers it otherwise.
func (d *Debouncer) Spam(in Input) bool {
	if in == "" {
		in = InputClick
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.prevAt.IsZero() {
		elapsed := now.Sub(d.prevAt)
		if in == InputClick && d.prevInput == InputTouchEnd && elapsed < d.touchWindow {
			return true
		}
		if in == d.prevInput && elapsed < d.window {
			return true
		}
	}
	d.prevInput = in
	d.prevAt = now
	return false
}
