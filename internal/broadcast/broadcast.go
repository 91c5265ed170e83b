// Package broadcast implements BroadcastSession and the BroadcastTable
// (spec.md §3, §4.4): shared-session listener sets keyed by broadcaster
// address, created lazily on first DIAL.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/conn"
)

// Session is a shared call fanning one broadcaster to many listeners
// (spec.md §3 BroadcastSession).
type Session struct {
	mu sync.RWMutex

	CallID      uuid.UUID
	Broadcaster *conn.Connection
	Metadata    map[string]any
	active      bool
	listeners   map[uuid.UUID]*conn.Connection // keyed by listener session id
}

// Listeners returns a snapshot of the current listener set.
func (s *Session) Listeners() []*conn.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

// HasListener reports whether a listener session is already joined
// (spec.md §4.4: "Duplicate joins by the same session are idempotent").
func (s *Session) HasListener(sessionID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.listeners[sessionID]
	return ok
}

// ListenerCount returns the current number of listeners.
func (s *Session) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

func (s *Session) addListener(l *conn.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[l.SessionID] = l
}

// RemoveListener removes a listener and reports whether the set is now
// empty.
func (s *Session) RemoveListener(sessionID uuid.UUID) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, sessionID)
	return len(s.listeners) == 0
}

// Table stores broadcast sessions keyed by call id and by broadcaster
// address (spec.md §4.4: "at most one BroadcastSession" per address).
type Table struct {
	mu         sync.RWMutex
	byCallID   map[uuid.UUID]*Session
	byBroadcaster map[string]*Session
}

// NewTable constructs an empty broadcast table.
func NewTable() *Table {
	return &Table{
		byCallID:      make(map[uuid.UUID]*Session),
		byBroadcaster: make(map[string]*Session),
	}
}

// ByBroadcaster returns the active session for a broadcaster address, if any.
func (t *Table) ByBroadcaster(address string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byBroadcaster[address]
	return s, ok
}

// Get looks up a session by call id.
func (t *Table) Get(callID uuid.UUID) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byCallID[callID]
	return s, ok
}

// GetOrCreate returns the existing session for the broadcaster, or lazily
// creates one with a fresh call id.
func (t *Table) GetOrCreate(callID uuid.UUID, broadcaster *conn.Connection, metadata map[string]any) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byBroadcaster[broadcaster.Address()]; ok {
		return s
	}
	s := &Session{
		CallID:      callID,
		Broadcaster: broadcaster,
		Metadata:    metadata,
		active:      true,
		listeners:   make(map[uuid.UUID]*conn.Connection),
	}
	t.byCallID[callID] = s
	t.byBroadcaster[broadcaster.Address()] = s
	return s
}

// Join adds a listener to a session; joined reports whether it was a new
// insertion (false means it was already present, per idempotent joins).
func (t *Table) Join(s *Session, listener *conn.Connection) (joined bool) {
	if s.HasListener(listener.SessionID) {
		return false
	}
	s.addListener(listener)
	return true
}

// Destroy removes a session from both indices.
func (t *Table) Destroy(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCallID, s.CallID)
	if cur, ok := t.byBroadcaster[s.Broadcaster.Address()]; ok && cur == s {
		delete(t.byBroadcaster, s.Broadcaster.Address())
	}
}
