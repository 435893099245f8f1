package interaction

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

var (
	// ErrStorageUnavailable means the log runs in degraded no-op mode.
	ErrStorageUnavailable = errors.New("interaction storage unavailable")
	// ErrQuotaExceeded is the store's capacity error.
	ErrQuotaExceeded = sdk.ErrQuotaExceeded
	// ErrStorage covers every other storage failure.
	ErrStorage = errors.New("interaction storage error")
)

// User-facing notices.
const (
	MsgStorageUnsupported = "HTML5 Storage not supported in your browser, Semantic Interactions will not be saved!"
	MsgNothingToClear     = "Your browser does not support local storage, nothing to clear!"
	MsgQuotaExceeded      = "Local storage quota exceeded trying to store semantic interactions!"
	MsgUnknownError       = "Unknown error occurred trying to store semantic interactions!"
)

// StoreError reports a failed storage call made by the log.
// errors.Is matches both its class (ErrQuotaExceeded or ErrStorage) and the cause.
type StoreError struct {
	Op    string
	Key   string
	Class error
	Err   error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("interaction %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("interaction %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

// IsQuota reports whether err is a capacity failure.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func storeError(op, key string, err error) *StoreError {
	class := ErrStorage
	if errors.Is(err, ErrQuotaExceeded) {
		class = ErrQuotaExceeded
	}
	return &StoreError{Op: op, Key: key, Class: class, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, sdk.ErrKeyNotFound) ||
		errors.Is(err, sdk.ErrAppNotFound) ||
		errors.Is(err, sdk.ErrPersonaNotFound)
}

// Notifier delivers blocking user-facing messages (the page's alert box).
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// LogNotifier writes notices to the standard logger.
var LogNotifier Notifier = NotifierFunc(func(msg string) {
	log.Printf("[notice] %s", msg)
})

// Notices buffers messages until a caller drains them, e.g. into an HTTP response.
type Notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *Notices) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

// Drain returns and forgets the buffered messages.
func (n *Notices) Drain() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.msgs
	n.msgs = nil
	return out
}
