// Package heartbeat implements the periodic sweep that evicts connections
// that have gone quiet past the configured HEARTBEAT_TIMEOUT (spec.md
// §4.2, §4.9).
package heartbeat

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

// Registry is the subset of *registry.Registry the sweeper needs.
type Registry interface {
	All() []*conn.Connection
}

// Router is the subset of *router.Router the sweeper needs.
type Router interface {
	Disconnect(sessionID uuid.UUID, reason string)
}

// Sweeper periodically disconnects connections that missed their
// heartbeat deadline (spec.md §4.9).
type Sweeper struct {
	interval time.Duration
	timeout  time.Duration
	registry Registry
	router   Router
	log      zerolog.Logger
	stop     chan struct{}
}

// New constructs a Sweeper. Call Run in its own goroutine.
func New(interval, timeout time.Duration, registry Registry, router Router, log zerolog.Logger) *Sweeper {
	return &Sweeper{interval: interval, timeout: timeout, registry: registry, router: router, log: log, stop: make(chan struct{})}
}

// Stop ends the sweep loop.
func (s *Sweeper) Stop() { close(s.stop) }

// Run blocks, sweeping every interval until Stop is called.
func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.timeout)
	for _, c := range s.registry.All() {
		last := c.LastHeartbeatAt()
		if last.IsZero() || last.After(cutoff) {
			continue
		}
		s.log.Debug().Str("session", c.SessionID.String()).Time("last_heartbeat", last).Msg("evicting stale connection")
		s.router.Disconnect(c.SessionID, frame.ReasonTimeout)
	}
}
