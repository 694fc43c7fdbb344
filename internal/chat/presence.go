package chat

import (
	"sync"
	"time"
)

// State is a step of the per-identity presence lifecycle.
type State int

// Presence lifecycle states. A record only moves forward from OfflinePending:
// back to Online on resume or on to Removed when its grace period elapses.
const (
	StateOnline State = iota
	StateOfflinePending
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOfflinePending:
		return "offline_pending"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Timer is the cancellable handle of a scheduled removal.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingRemoval struct {
	connID  string
	session string
	state   State
	timer   Timer
}

// PresenceManager owns the grace timers of disconnected identities. Timers are
// keyed by session id, so a new connection presenting the same credential finds
// and cancels them. Cancellation and expiry take the same lock: a record is
// either resumed or removed, never both.
type PresenceManager struct {
	mu        sync.Mutex
	grace     time.Duration
	afterFunc AfterFunc
	onExpire  func(connID string)
	pending   map[string][]*pendingRemoval
	closed    bool
}

// NewPresenceManager returns a manager that calls onExpire for every record
// whose grace period elapses without a reconnect.
func NewPresenceManager(grace time.Duration, afterFunc AfterFunc, onExpire func(connID string)) *PresenceManager {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if afterFunc == nil {
		afterFunc = timeAfterFunc
	}
	return &PresenceManager{
		grace:     grace,
		afterFunc: afterFunc,
		onExpire:  onExpire,
		pending:   make(map[string][]*pendingRemoval),
	}
}

// Schedule moves connID of session to OfflinePending and arms its removal.
func (p *PresenceManager) Schedule(session, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	entry := &pendingRemoval{connID: connID, session: session, state: StateOfflinePending}
	entry.timer = p.afterFunc(p.grace, func() { p.expire(entry) })
	p.pending[session] = append(p.pending[session], entry)
}

// Resume cancels the most recent pending removal of session and returns the
// connection id it was held under.
func (p *PresenceManager) Resume(session string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.pending[session]
	if len(entries) == 0 {
		return "", false
	}
	entry := entries[len(entries)-1]
	p.dropLocked(entry)
	entry.state = StateOnline
	entry.timer.Stop()
	return entry.connID, true
}

// Pending reports how many records of session await removal.
func (p *PresenceManager) Pending(session string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[session])
}

// Close stops every timer. Records still pending are left in place.
func (p *PresenceManager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, entries := range p.pending {
		for _, entry := range entries {
			entry.timer.Stop()
		}
	}
}

func (p *PresenceManager) expire(entry *pendingRemoval) {
	p.mu.Lock()
	if entry.state != StateOfflinePending || p.closed {
		p.mu.Unlock()
		return
	}
	entry.state = StateRemoved
	p.dropLocked(entry)
	p.mu.Unlock()

	if p.onExpire != nil {
		p.onExpire(entry.connID)
	}
}

func (p *PresenceManager) dropLocked(entry *pendingRemoval) {
	entries := p.pending[entry.session]
	for i, e := range entries {
		if e == entry {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(p.pending, entry.session)
		return
	}
	p.pending[entry.session] = entries
}
