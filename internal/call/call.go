// Package call implements point-to-point Call records and the CallTable
// (spec.md §3, §4.3).
package call

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/conn"
)

// State is a Call's position in its ringing -> connected -> ended
// lifecycle (spec.md §3). There are no back-transitions.
type State int

const (
	Ringing State = iota
	Connected
	Ended
)

// Call is a point-to-point call record (spec.md §3).
type Call struct {
	ID         uuid.UUID
	Caller     *conn.Connection
	Callee     *conn.Connection
	State      State
	StartedAt  time.Time
	EndedAt    time.Time
	EndReason  string
	Metadata   map[string]any
}

// Other returns the participant on the opposite side of self.
func (c *Call) Other(self *conn.Connection) *conn.Connection {
	if c.Caller == self {
		return c.Callee
	}
	return c.Caller
}

// IsParticipant reports whether c belongs to this call.
func (c *Call) IsParticipant(p *conn.Connection) bool {
	return c.Caller == p || c.Callee == p
}

// Table stores active point-to-point calls keyed by id (spec.md §4.3).
type Table struct {
	mu    sync.RWMutex
	calls map[uuid.UUID]*Call
}

// NewTable constructs an empty call table.
func NewTable() *Table {
	return &Table{calls: make(map[uuid.UUID]*Call)}
}

// Start creates and stores a new ringing Call.
func (t *Table) Start(id uuid.UUID, caller, callee *conn.Connection, metadata map[string]any) *Call {
	c := &Call{
		ID:        id,
		Caller:    caller,
		Callee:    callee,
		State:     Ringing,
		StartedAt: time.Now(),
		Metadata:  metadata,
	}
	t.mu.Lock()
	t.calls[id] = c
	t.mu.Unlock()
	return c
}

// Get looks up a call by id.
func (t *Table) Get(id uuid.UUID) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.calls[id]
	return c, ok
}

// Release removes a call from the table (it is terminal; spec.md §3:
// "Terminal state releases the record").
func (t *Table) Release(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, id)
}

// ByParticipant returns every non-ended call a connection participates in.
func (t *Table) ByParticipant(p *conn.Connection) []*Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Call
	for _, c := range t.calls {
		if c.State != Ended && c.IsParticipant(p) {
			out = append(out, c)
		}
	}
	return out
}
