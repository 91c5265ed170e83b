// Package registry implements the ConnectionRegistry (spec.md §4.1):
// session->connection and address->connection maps with uniqueness,
// generalized from the teacher's package-level
// nameToUserSession/sessionIdToName maps guarded by a sync.RWMutex into a
// struct so a process can host more than one router instance.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/conn"
)

// ErrAddressInUse is returned by Bind when a different live connection
// already owns the address.
type ErrAddressInUse struct{ Address string }

func (e ErrAddressInUse) Error() string { return "address in use: " + e.Address }

// Registry maps session -> connection and address -> connection.
type Registry struct {
	mu        sync.RWMutex
	bySession map[uuid.UUID]*conn.Connection
	byAddress map[string]*conn.Connection
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		bySession: make(map[uuid.UUID]*conn.Connection),
		byAddress: make(map[string]*conn.Connection),
	}
}

// Create registers a brand-new connection keyed by session id only; it
// has no address until Bind succeeds.
func (r *Registry) Create(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[c.SessionID] = c
}

// Bind associates an address with a connection. Rebinding the same
// connection to the address it already holds is a metadata refresh and
// always succeeds. Binding a different connection to an address already
// held live by someone else fails with ErrAddressInUse. When the
// connection is moving from one address to another, the prior mapping is
// removed atomically before the new one is inserted (spec.md §4.1).
func (r *Registry) Bind(c *conn.Connection, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byAddress[address]; ok && existing != c {
		return ErrAddressInUse{Address: address}
	}

	if prior := c.Address(); prior != "" && prior != address {
		delete(r.byAddress, prior)
	}
	r.byAddress[address] = c
	c.SetAddress(address)
	return nil
}

// Unbind removes a connection from both maps.
func (r *Registry) Unbind(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, c.SessionID)
	if addr := c.Address(); addr != "" {
		if cur, ok := r.byAddress[addr]; ok && cur == c {
			delete(r.byAddress, addr)
		}
	}
}

// ByAddress looks up the live connection bound to an address.
func (r *Registry) ByAddress(address string) (*conn.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byAddress[address]
	return c, ok
}

// BySession looks up a connection by its session id.
func (r *Registry) BySession(sessionID uuid.UUID) (*conn.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySession[sessionID]
	return c, ok
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*conn.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(r.bySession))
	for _, c := range r.bySession {
		out = append(out, c)
	}
	return out
}

// Registered returns a snapshot of every live connection that holds an
// address (used by PresenceEngine).
func (r *Registry) Registered() []*conn.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(r.byAddress))
	for _, c := range r.byAddress {
		out = append(out, c)
	}
	return out
}
