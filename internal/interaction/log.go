// Package interaction implements the append-only log of a learner's
// semantic interactions with the pond game.
//
// Records live in a single store scope under "timestamp<N>" keys, with the
// next unused N kept under "currentIndex". A record is written before the
// counter; the in-memory counter only advances once the record is stored.
package interaction

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

// Option configures a Log.
type Option func(*Log)

// WithNotifier sets where user-facing notices go. Defaults to LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(l *Log) {
		l.notifier = n
	}
}

// WithClock overrides the capture clock.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithVault encrypts record values with masterKey through the scope's vault.
// The counter stays in clear text.
func WithVault(masterKey []byte) Option {
	return func(l *Log) {
		l.masterKey = masterKey
	}
}

// Log is a learner's interaction log.
// It is safe for concurrent use; operations are serialized.
type Log struct {
	*logState
	notifier Notifier
}

// logState is shared by every view of one log.
type logState struct {
	mu        sync.Mutex
	store     sdk.AppScope
	vault     sdk.VaultScope
	masterKey []byte
	next      int
	available bool
	now       func() time.Time
}

// New opens the log stored in store. A nil store, or one whose counter
// cannot be read, leaves the log in degraded no-op mode; the user is told once.
func New(store sdk.AppScope, opts ...Option) *Log {
	l := &Log{
		logState: &logState{
			store: store,
			next:  1,
			now:   time.Now,
		},
		notifier: LogNotifier,
	}
	for _, opt := range opts {
		opt(l)
	}

	if store == nil {
		l.notifier.Notify(MsgStorageUnsupported)
		return l
	}
	if err := l.init(); err != nil {
		log.Printf("Interaction log unavailable: %v", err)
		l.notifier.Notify(MsgStorageUnsupported)
		return l
	}
	if l.masterKey != nil {
		if v, ok := store.Vault(l.masterKey).(sdk.VaultScope); ok {
			l.vault = v
		}
	}
	l.available = true
	return l
}

// View returns a log that shares l's records, counter and lock but sends
// its notices to n. Each open page gets its own view, so one page never
// sees another page's alerts.
func (l *Log) View(n Notifier) *Log {
	if n == nil {
		n = LogNotifier
	}
	return &Log{logState: l.logState, notifier: n}
}

// Shares reports whether l and other are views of the same log.
func (l *Log) Shares(other *Log) bool {
	return other != nil && l.logState == other.logState
}

func (l *Log) init() error {
	raw, err := l.store.Get(CounterKey)
	switch {
	case isNotFound(err):
		log.Printf("Index not found, initializing to 1")
		l.next = 1
		if err := l.store.Set(CounterKey, "1"); err != nil {
			log.Printf("Warning: could not persist initial index: %v", err)
		}
		// A crash before the first counter write leaves records without an index.
		l.repair()
		return nil
	case err != nil:
		return fmt.Errorf("read %s: %w", CounterKey, err)
	}

	next, err := parseCounter(raw)
	if err != nil {
		log.Printf("Warning: %v, rebuilding index from records", err)
		next = 1
	}
	l.next = next
	l.repair()
	return nil
}

// repair moves the counter past records written by a session that crashed
// between the record write and the counter write.
func (l *Log) repair() {
	start := l.next
	for {
		_, err := l.store.Get(RecordKey(l.next))
		if err != nil {
			break
		}
		l.next++
	}
	if l.next == start {
		return
	}
	log.Printf("Index repaired from %d to %d", start, l.next)
	if err := l.store.Set(CounterKey, strconv.Itoa(l.next)); err != nil {
		log.Printf("Warning: could not persist repaired index: %v", err)
	}
}

func parseCounter(raw any) (int, error) {
	var n int
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid index %q", v)
		}
		n = parsed
	case float64:
		n = int(v)
	case int:
		n = v
	default:
		return 0, fmt.Errorf("invalid index type %T", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid index %d", n)
	}
	return n, nil
}

// Available reports whether records are being persisted.
func (l *Log) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// Next returns the sequence number the next record will get.
func (l *Log) Next() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// RecordAction appends a record without a workspace snapshot.
func (l *Log) RecordAction(action, level string) error {
	return l.append(Record{Kind: KindSimple, Action: action, Level: level})
}

// RecordWorkspaceAction appends a record carrying a workspace snapshot.
func (l *Log) RecordWorkspaceAction(action, payload, level string) error {
	return l.append(Record{Kind: KindWorkspace, Action: action, Payload: payload, Level: level})
}

func (l *Log) append(r Record) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.available {
		return ErrStorageUnavailable
	}
	defer func() {
		// A misbehaving store must never take the game action down with it.
		if p := recover(); p != nil {
			err = l.fail(storeError("record", RecordKey(r.Sequence), fmt.Errorf("panic: %v", p)))
		}
	}()

	now := l.now()
	r.Sequence = l.next
	r.Timestamp = FormatTimestamp(now)
	r.At = now

	raw, err := Encode(r)
	if err != nil {
		return err
	}

	key := RecordKey(r.Sequence)
	if l.vault != nil {
		err = l.vault.Set(key, raw)
	} else {
		err = l.store.Set(key, raw)
	}
	if err != nil {
		return l.fail(storeError("record", key, err))
	}

	l.next++
	if err := l.store.Set(CounterKey, strconv.Itoa(l.next)); err != nil {
		return l.fail(storeError("persist index", CounterKey, err))
	}
	return nil
}

// fail notifies the user and hands the error back.
func (l *Log) fail(err *StoreError) error {
	log.Printf("Warning: %v", err)
	if errors.Is(err, ErrQuotaExceeded) {
		l.notifier.Notify(MsgQuotaExceeded)
	} else {
		l.notifier.Notify(MsgUnknownError)
	}
	return err
}

// Clear removes every record and resets the counter to 1.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.available {
		l.notifier.Notify(MsgNothingToClear)
		return ErrStorageUnavailable
	}

	log.Printf("Clearing %d interaction records", l.next-1)
	var firstErr error
	for i := 1; i < l.next; i++ {
		if err := l.store.Delete(RecordKey(i)); err != nil && !isNotFound(err) && firstErr == nil {
			firstErr = storeError("clear", RecordKey(i), err)
		}
	}
	l.next = 1
	if err := l.store.Set(CounterKey, "1"); err != nil && firstErr == nil {
		firstErr = storeError("reset index", CounterKey, err)
	}
	return firstErr
}

// Enumerate returns every record in sequence order. Values that match no
// schema are reported in Malformed rather than dropped silently.
func (l *Log) Enumerate() (Enumeration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out Enumeration
	if !l.available {
		return out, ErrStorageUnavailable
	}

	for i := 1; i < l.next; i++ {
		key := RecordKey(i)
		raw, err := l.store.Get(key)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return out, storeError("enumerate", key, err)
		}
		if l.vault != nil {
			// Records written before the vault was enabled stay readable in clear text.
			if plain, err := l.vault.Get(key); err == nil {
				raw = plain
			}
		}

		rec, err := Decode(i, raw)
		if err != nil {
			out.Malformed = append(out.Malformed, MalformedRecord{
				Sequence: i,
				Raw:      fmt.Sprint(raw),
				Reason:   err.Error(),
			})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}
