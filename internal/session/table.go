// Package session implements the gateway's client↔radio session table:
// a concurrent map keyed by client endpoint and, via a reverse index, by
// radio endpoint, with background expiry and idle reaping.
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Principal identifies who a session belongs to. The zero value with
// Anonymous set to true is the sentinel "anonymous" principal.
type Principal struct {
	UserID    string
	Username  string
	Anonymous bool
}

// Hook is the subset of the external persistence contract the table
// invokes directly, on session creation and termination. A nil Hook is
// valid; every call site checks for it.
type Hook interface {
	RecordSessionCreated(s *Session)
	RecordSessionTerminated(id uint64, clientEndpoint, reason string)
}

// Session is the gateway's central mutable entity. Counter fields are
// updated with atomic operations by the forwarder; everything else is
// guarded by the owning Table's lock.
type Session struct {
	ID             uint64
	Principal      Principal
	ClientEndpoint string // immutable key

	RadioEndpoint string // "" if unassigned
	RadioName     string

	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time

	PacketsToRadio  atomic.Uint64
	PacketsToClient atomic.Uint64
	BytesToRadio    atomic.Uint64
	BytesToClient   atomic.Uint64
}

// Snapshot is an immutable, lock-free view of a session's counters for
// stats reporting.
type Snapshot struct {
	ID              uint64
	ClientEndpoint  string
	RadioEndpoint   string
	Age             time.Duration
	PacketsToRadio  uint64
	PacketsToClient uint64
	BytesToRadio    uint64
	BytesToClient   uint64
}

func (s *Session) snapshot(now time.Time) Snapshot {
	return Snapshot{
		ID:              s.ID,
		ClientEndpoint:  s.ClientEndpoint,
		RadioEndpoint:   s.RadioEndpoint,
		Age:             now.Sub(s.CreatedAt),
		PacketsToRadio:  s.PacketsToRadio.Load(),
		PacketsToClient: s.PacketsToClient.Load(),
		BytesToRadio:    s.BytesToRadio.Load(),
		BytesToClient:   s.BytesToClient.Load(),
	}
}

// Stats is the session-table-level counter set from spec §6.
type Stats struct {
	TotalSessions   atomic.Uint64
	ActiveSessions  atomic.Int64
	ExpiredSessions atomic.Uint64
	IdleTimeouts    atomic.Uint64
}

// Table is the concurrent client↔radio session table. Both indices are
// guarded by a single RWMutex; they are never updated independently of
// one another, closing the race a two-map, two-lock design would leave
// open.
type Table struct {
	mu       sync.RWMutex
	byClient map[string]*Session
	byRadio  map[string]string // radio endpoint -> client endpoint

	nextID atomic.Uint64
	hook   Hook

	Stats Stats
}

// NewTable constructs an empty table. hook may be nil.
func NewTable(hook Hook) *Table {
	return &Table{
		byClient: make(map[string]*Session),
		byRadio:  make(map[string]string),
		hook:     hook,
	}
}

// GetByClient returns the live session bound to clientEp, filtering out
// entries observed past their expiry.
func (t *Table) GetByClient(clientEp string, now time.Time) (*Session, bool) {
	t.mu.RLock()
	s, ok := t.byClient[clientEp]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

// GetClientByRadio returns the client endpoint currently bound to
// radioEp via the reverse index.
func (t *Table) GetClientByRadio(radioEp string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	clientEp, ok := t.byRadio[radioEp]
	return clientEp, ok
}

// Create inserts a new session for clientEp. If a session already
// exists for this client endpoint it is replaced, after logging a
// warning via the caller (Create itself only performs the table
// mutation and reverse-index cleanup); the displaced session's radio
// reverse-index entry is cleared.
func (t *Table) Create(principal Principal, clientEp string, now time.Time, sessionTTL time.Duration) *Session {
	t.mu.Lock()
	if old, ok := t.byClient[clientEp]; ok {
		if old.RadioEndpoint != "" && t.byRadio[old.RadioEndpoint] == clientEp {
			delete(t.byRadio, old.RadioEndpoint)
		}
		t.Stats.ActiveSessions.Add(-1)
	}

	s := &Session{
		ID:             t.nextID.Add(1),
		Principal:      principal,
		ClientEndpoint: clientEp,
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(sessionTTL),
	}
	t.byClient[clientEp] = s
	t.Stats.TotalSessions.Add(1)
	t.Stats.ActiveSessions.Add(1)
	t.mu.Unlock()

	if t.hook != nil {
		t.hook.RecordSessionCreated(s)
	}
	return s
}

// Replaced reports whether clientEp already has an entry in the table
// (live, or expired but not yet reaped) at the moment Create would run; callers use it to decide whether to log the
// replacement warning spec.md's invariant 1 requires. It must be called
// before Create.
func (t *Table) Replaced(clientEp string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byClient[clientEp]
	return ok
}

// AssignRadio sets the radio fields on the session bound to clientEp
// and updates the reverse index. If the session previously pointed at a
// different radio endpoint, that stale reverse-index entry is removed
// first. Last-writer-wins applies if radioEp is already claimed by
// another session: the prior claimant's RadioEndpoint field is left
// untouched, so it silently loses return traffic (spec.md invariant 2).
func (t *Table) AssignRadio(clientEp, radioEp, radioName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byClient[clientEp]
	if !ok {
		return false
	}
	if s.RadioEndpoint != "" && s.RadioEndpoint != radioEp {
		if t.byRadio[s.RadioEndpoint] == clientEp {
			delete(t.byRadio, s.RadioEndpoint)
		}
	}
	s.RadioEndpoint = radioEp
	s.RadioName = radioName
	t.byRadio[radioEp] = clientEp
	return true
}

// Touch updates last_activity for the session bound to clientEp. Takes
// the write lock because LastActivity is a plain (non-atomic,
// multi-word) field read concurrently by Sweep under RLock.
func (t *Table) Touch(clientEp string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byClient[clientEp]; ok {
		s.LastActivity = now
	}
}

// RadioEndpointFor returns the radio endpoint currently bound to the
// live session at clientEp, reading it under the table's lock. ok is
// false if the session is absent, expired, or not yet assigned a
// radio. Callers must use this instead of reading a *Session's
// RadioEndpoint field directly: that field is mutated by AssignRadio
// under the write lock and is not safe to read unlocked.
func (t *Table) RadioEndpointFor(clientEp string, now time.Time) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byClient[clientEp]
	if !ok || now.After(s.ExpiresAt) || s.RadioEndpoint == "" {
		return "", false
	}
	return s.RadioEndpoint, true
}

// Terminate removes the session bound to clientEp from both indices and
// invokes the external audit hook. Idempotent: terminating an
// already-absent client endpoint is a no-op.
func (t *Table) Terminate(clientEp, reason string, now time.Time) {
	t.mu.Lock()
	s, ok := t.byClient[clientEp]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byClient, clientEp)
	if s.RadioEndpoint != "" && t.byRadio[s.RadioEndpoint] == clientEp {
		delete(t.byRadio, s.RadioEndpoint)
	}
	t.Stats.ActiveSessions.Add(-1)
	t.mu.Unlock()

	if t.hook != nil {
		t.hook.RecordSessionTerminated(s.ID, clientEp, reason)
	}
}

// Sweep returns the client endpoints of sessions that are expired or
// idle as of now, without terminating them — callers must release any
// lock of their own before calling Terminate on the results, per the
// reaper's collect-then-release-then-terminate discipline.
func (t *Table) Sweep(now time.Time, idleTimeout time.Duration) (expired, idle []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for clientEp, s := range t.byClient {
		switch {
		case now.After(s.ExpiresAt):
			expired = append(expired, clientEp)
		case now.Sub(s.LastActivity) > idleTimeout:
			idle = append(idle, clientEp)
		}
	}
	return expired, idle
}

// Snapshots returns a point-in-time view of every live session's
// counters, for the stats flusher and the observability API.
func (t *Table) Snapshots(now time.Time) []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Snapshot, 0, len(t.byClient))
	for _, s := range t.byClient {
		out = append(out, s.snapshot(now))
	}
	return out
}

// Len returns the current number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byClient)
}

// SessionsForRadio counts live sessions whose RadioEndpoint field equals
// radioEndpoint, used by the least-loaded radio-selection policy. This
// scans every session rather than the reverse index, because the
// reverse index holds only the single last-writer-wins claimant while
// displaced sessions keep their RadioEndpoint field set (spec
// invariant 2).
func (t *Table) SessionsForRadio(radioEndpoint string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.byClient {
		if s.RadioEndpoint == radioEndpoint {
			n++
		}
	}
	return n
}
