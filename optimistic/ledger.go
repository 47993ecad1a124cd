// Package optimistic tracks pending local mutations. Each update carries a
// rollback closure that restores the state it touched; an update that is
// neither confirmed nor rolled back within the auto-revert window is
// reverted automatically.
package optimistic

import (
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAutoRevertAfter is how long an unconfirmed update survives before
// its rollback runs.
const DefaultAutoRevertAfter = 5 * time.Second

var (
	// ErrDuplicateID is returned when an update id is already registered.
	ErrDuplicateID = errors.New("optimistic update id already registered")

	// ErrClosed is returned when registering on a closed ledger.
	ErrClosed = errors.New("ledger is closed")
)

// RevertReason says why an update's rollback ran.
type RevertReason int

const (
	// RevertFailure is an explicit rollback after a failed remote call.
	RevertFailure RevertReason = iota

	// RevertTimeout is the auto-revert after the configured window.
	RevertTimeout

	// RevertShutdown is a bulk rollback during teardown.
	RevertShutdown

	// RevertExpired is a rollback by Cleanup of an over-age entry.
	RevertExpired
)

func (r RevertReason) String() string {
	switch r {
	case RevertFailure:
		return "failure"
	case RevertTimeout:
		return "timeout"
	case RevertShutdown:
		return "shutdown"
	case RevertExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Handle identifies a registered update and lets the code path that issued
// the remote call check, after the fact, whether the update was already
// reverted. A late-arriving remote response must consult Cancelled before
// applying its result, so stale data is never re-applied over a revert.
type Handle struct {
	id        string
	cancelled atomic.Bool
}

// ID returns the update id.
func (h *Handle) ID() string { return h.id }

// Cancelled reports whether the update's rollback has run.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

type entry struct {
	id           string
	payload      any
	rollback     func()
	registeredAt time.Time
	timer        *time.Timer
	handle       *Handle
}

// Ledger records pending optimistic updates. All methods are safe for
// concurrent use. Confirm, Rollback, and the auto-revert timer race by
// design: whichever removes the entry first wins and the others become
// no-ops, so each rollback closure runs at most once.
type Ledger struct {
	mu         sync.Mutex
	entries    map[string]*entry
	autoRevert time.Duration
	closed     bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAutoRevertAfter overrides the auto-revert window.
func WithAutoRevertAfter(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.autoRevert = d
		}
	}
}

// NewLedger returns an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		entries:    make(map[string]*entry),
		autoRevert: DefaultAutoRevertAfter,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register stores a pending update and schedules its auto-revert. The
// returned handle outlives the entry and stays valid after confirm or
// rollback.
func (l *Ledger) Register(id string, payload any, rollback func()) (*Handle, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := l.entries[id]; ok {
		l.mu.Unlock()
		return nil, ErrDuplicateID
	}
	h := &Handle{id: id}
	e := &entry{
		id:           id,
		payload:      payload,
		rollback:     rollback,
		registeredAt: time.Now(),
		handle:       h,
	}
	e.timer = time.AfterFunc(l.autoRevert, func() {
		if l.revert(id) {
			log.Printf("optimistic: update %s auto-reverted (%s) after %v", id, RevertTimeout, l.autoRevert)
		}
	})
	l.entries[id] = e
	l.mu.Unlock()
	return h, nil
}

// Confirm marks the update as succeeded and deletes it. The auto-revert
// timer is stopped; if it already fired, Confirm finds nothing and reports
// false.
func (l *Ledger) Confirm(id string) bool {
	l.mu.Lock()
	e, ok := l.entries[id]
	if ok {
		delete(l.entries, id)
	}
	l.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	return true
}

// Rollback runs the update's rollback closure and deletes the entry.
// Reports false if the entry was already confirmed or reverted.
func (l *Ledger) Rollback(id string) bool {
	return l.revert(id)
}

// revert removes the entry under the lock, then marks the handle and runs
// the closure outside it. Delete-before-act is what guarantees the closure
// runs at most once across Confirm, Rollback, the timer, and Cleanup.
func (l *Ledger) revert(id string) bool {
	l.mu.Lock()
	e, ok := l.entries[id]
	if ok {
		delete(l.entries, id)
	}
	l.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	e.handle.cancelled.Store(true)
	if e.rollback != nil {
		e.rollback()
	}
	return true
}

// RollbackAll reverts every pending update, oldest first. Returns how many
// rollbacks ran. Used at teardown.
func (l *Ledger) RollbackAll() int {
	return l.sweep(0, RevertShutdown)
}

// Cleanup reverts pending updates older than maxAge. A maxAge of zero
// reverts everything.
func (l *Ledger) Cleanup(maxAge time.Duration) int {
	return l.sweep(maxAge, RevertExpired)
}

func (l *Ledger) sweep(maxAge time.Duration, reason RevertReason) int {
	l.mu.Lock()
	var picked []*entry
	for _, e := range l.entries {
		if maxAge <= 0 || time.Since(e.registeredAt) > maxAge {
			picked = append(picked, e)
		}
	}
	l.mu.Unlock()

	sort.Slice(picked, func(i, j int) bool {
		return picked[i].registeredAt.Before(picked[j].registeredAt)
	})

	n := 0
	for _, e := range picked {
		if l.revert(e.id) {
			n++
		}
	}
	if n > 0 {
		log.Printf("optimistic: swept %d pending update(s) (%s)", n, reason)
	}
	return n
}

// Close reverts all pending updates and rejects further registrations.
func (l *Ledger) Close() int {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.RollbackAll()
}

// Len returns the number of pending updates.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Payload returns the payload stored with a pending update.
func (l *Ledger) Payload(id string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	return e.payload, true
}
