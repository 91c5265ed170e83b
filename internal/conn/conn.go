// Package conn holds the Connection record the router keeps for every
// transport session (spec.md §3) and the Transport contract that
// abstracts away the WebSocket upgrade, JSON framing, and TLS termination
// the router itself never touches (spec.md §1, §6).
package conn

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/wake"
)

// Status is the connection's presence status (spec.md §3).
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusDND       Status = "dnd"
	StatusAway      Status = "away"
)

// ConcurrencyMode is the dispatch discipline of an address (spec.md §3, §9:
// represented as a tagged variant rather than an interface hierarchy).
type ConcurrencyMode int

const (
	Single ConcurrencyMode = iota
	Broadcast
	Parallel
)

func (m ConcurrencyMode) String() string {
	switch m {
	case Broadcast:
		return "broadcast"
	case Parallel:
		return "parallel"
	default:
		return "single"
	}
}

// ParseConcurrencyMode parses the wire string; ok is false for unknown
// values (spec.md §4.2: "unknown concurrency values -> ERROR{invalid_payload}").
func ParseConcurrencyMode(s string) (ConcurrencyMode, bool) {
	switch s {
	case "", "single":
		return Single, true
	case "broadcast":
		return Broadcast, true
	case "parallel":
		return Parallel, true
	default:
		return Single, false
	}
}

// WakeMode is the connection's wake-on-ring configuration (spec.md §3).
type WakeMode int

const (
	WakeNone WakeMode = iota
	WakeOnRing
)

// AutoSleep is the idle-to-sleep configuration (spec.md §3, §4.6).
type AutoSleep struct {
	IdleTimeoutSeconds float64
	WakeOnRing         bool
}

// Transport is the thin collaborator a Connection speaks through. It is
// implemented by the real WebSocket adapter, by the federation peer's
// synthetic link, and by test fakes (spec.md §6).
type Transport interface {
	Send(f frame.Frame) error
	Close(code int, reason string) error
}

// Connection is one per transport session (spec.md §3).
type Connection struct {
	SessionID uuid.UUID
	Transport Transport

	mu sync.Mutex // guards the mutable fields below

	address     string
	status      Status
	statusIsSet bool // true once the client has set an explicit status override
	metadata    map[string]any

	concurrency  ConcurrencyMode
	maxListeners int
	maxSessions  int

	activeCallIDs map[uuid.UUID]struct{}

	autoSleep *AutoSleep

	wakeMode    WakeMode
	wakeHandler wake.Handler

	lastHeartbeatAt time.Time

	// Timers are owned and only ever touched from the router's single
	// dispatch goroutine; they live here so disconnect can cancel them
	// without the router needing a side table.
	RingTimer    *time.Timer
	IdleTimer    *time.Timer
	PendingTimer *time.Timer
	WakeTimer    *time.Timer
}

// New constructs a fresh Connection in the "available" state.
func New(sessionID uuid.UUID, t Transport) *Connection {
	return &Connection{
		SessionID:     sessionID,
		Transport:     t,
		status:        StatusAvailable,
		metadata:      map[string]any{},
		concurrency:   Single,
		activeCallIDs: make(map[uuid.UUID]struct{}),
	}
}

func (c *Connection) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

func (c *Connection) SetAddress(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = addr
}

func (c *Connection) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

func (c *Connection) SetMetadata(md map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if md == nil {
		md = map[string]any{}
	}
	c.metadata = md
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus sets an explicit, client-requested status (spec.md §4.2 STATUS).
func (c *Connection) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	c.statusIsSet = s != StatusAvailable
}

// ReconcileStatus applies spec.md's invariant: "status = busy iff
// activeCallIds is non-empty OR the client explicitly set busy; a finished
// call restores available only if activeCallIds becomes empty and no
// explicit override is active." Call this after any activeCallIDs change.
func (c *Connection) ReconcileStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	hasCalls := len(c.activeCallIDs) > 0
	switch {
	case hasCalls:
		c.status = StatusBusy
	case c.statusIsSet:
		// an explicit dnd/away/busy override stays until the client changes it
	default:
		c.status = StatusAvailable
	}
}

// ClearStatusOverride drops any explicit status override, used when a
// connection is freshly (re)bound.
func (c *Connection) ClearStatusOverride() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusIsSet = false
	if len(c.activeCallIDs) == 0 {
		c.status = StatusAvailable
	}
}

func (c *Connection) Concurrency() ConcurrencyMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.concurrency
}

func (c *Connection) SetConcurrency(mode ConcurrencyMode, maxListeners, maxSessions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concurrency = mode
	c.maxListeners = maxListeners
	c.maxSessions = maxSessions
}

func (c *Connection) MaxListeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxListeners
}

func (c *Connection) MaxSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSessions
}

// ActiveCallIDs returns a snapshot of the active call id set.
func (c *Connection) ActiveCallIDs() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(c.activeCallIDs))
	for id := range c.activeCallIDs {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connection) ActiveCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeCallIDs)
}

func (c *Connection) HasActiveCall(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.activeCallIDs[id]
	return ok
}

func (c *Connection) AddActiveCall(id uuid.UUID) {
	c.mu.Lock()
	c.activeCallIDs[id] = struct{}{}
	c.mu.Unlock()
	c.ReconcileStatus()
}

func (c *Connection) RemoveActiveCall(id uuid.UUID) {
	c.mu.Lock()
	delete(c.activeCallIDs, id)
	c.mu.Unlock()
	c.ReconcileStatus()
}

func (c *Connection) AutoSleep() *AutoSleep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSleep
}

func (c *Connection) SetAutoSleep(as *AutoSleep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoSleep = as
}

func (c *Connection) WakeMode() WakeMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeMode
}

func (c *Connection) WakeHandler() wake.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeHandler
}

func (c *Connection) SetWake(mode WakeMode, h wake.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakeMode = mode
	c.wakeHandler = h
}

func (c *Connection) LastHeartbeatAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatAt
}

func (c *Connection) Touch(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeatAt = t
}

// WakeProfile builds the Profile to persist for this connection, if it is
// configured for wake-on-ring.
func (c *Connection) WakeProfile() (wake.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wakeMode != WakeOnRing {
		return wake.Profile{}, false
	}
	return wake.Profile{Address: c.address, Handler: c.wakeHandler}, true
}
