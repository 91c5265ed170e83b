// Package router implements the SystemX router core (spec.md §4.2-§4.11):
// the address lifecycle, the call state machine across its three
// concurrency disciplines, wake-on-ring drain, auto-sleep, the dial rate
// limiter, and disconnect semantics. All state mutation is funnelled
// through a single dispatch goroutine per Router (spec.md §5), following
// the "serialise one mailbox" option the specification explicitly
// permits, generalized from the teacher's single global sync.RWMutex
// (webrtc/service.go) into an actor-style event queue so that timers and
// inbound frames interleave safely without a lock held across I/O.
package router

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Foundation42/SystemX/internal/broadcast"
	"github.com/Foundation42/SystemX/internal/call"
	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/metrics"
	"github.com/Foundation42/SystemX/internal/registry"
	"github.com/Foundation42/SystemX/internal/wake"
)

// nowFunc is overridden in tests that need deterministic timestamps.
var nowFunc = time.Now

// Router is a single SystemX exchange instance.
type Router struct {
	Config Config
	Log    zerolog.Logger

	registry   *registry.Registry
	calls      *call.Table
	broadcasts *broadcast.Table
	wakeStore  *wake.Store
	wakeQueue  *wake.Queue
	executor   wake.Executor

	mailbox chan func()
	stop    chan struct{}
	stopped sync.Once

	dialMu       sync.Mutex
	dialWindows  map[uuid.UUID]*dialWindow

	routesMu sync.Mutex
	routes   []routeEntry // federation route patterns, most-recently-installed last
}

// routeEntry is one REGISTER_PBX-installed glob route (spec.md §4.11).
type routeEntry struct {
	pattern string
	peer    *conn.Connection
}

// New constructs a Router and starts its dispatch goroutine.
func New(cfg Config, log zerolog.Logger, executor wake.Executor) *Router {
	if executor == nil {
		executor = wake.NewNoopExecutor(log)
	}
	r := &Router{
		Config:      cfg,
		Log:         log,
		registry:    registry.New(),
		calls:       call.NewTable(),
		broadcasts:  broadcast.NewTable(),
		wakeStore:   wake.NewStore(),
		wakeQueue:   wake.NewQueue(),
		executor:    executor,
		mailbox:     make(chan func(), 256),
		stop:        make(chan struct{}),
		dialWindows: make(map[uuid.UUID]*dialWindow),
	}
	go r.run()
	return r
}

func (r *Router) run() {
	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.stop:
			return
		}
	}
}

// enqueue posts a unit of work onto the single dispatch goroutine. It
// never blocks the caller on the work's completion.
func (r *Router) enqueue(fn func()) {
	select {
	case r.mailbox <- fn:
	case <-r.stop:
	}
}

// Shutdown stops the dispatch goroutine. Pending mailbox items are
// dropped; in-flight timers are not individually cancelled here (callers
// disconnecting connections cancel their own timers first).
func (r *Router) Shutdown() {
	r.stopped.Do(func() { close(r.stop) })
}

// Connect registers a brand-new connection and returns it. Used by real
// transports, by FederationPeer's synthetic link, and by the
// log-broadcast publisher.
func (r *Router) Connect(t conn.Transport) *conn.Connection {
	c := conn.New(uuid.New(), t)
	done := make(chan struct{})
	r.enqueue(func() {
		r.registry.Create(c)
		metrics.ConnectionsActive.Inc()
		done <- struct{}{}
	})
	<-done
	return c
}

// Dispatch feeds one inbound frame into the router, to be handled in
// arrival order relative to other frames from the same session.
func (r *Router) Dispatch(sessionID uuid.UUID, f frame.Frame) {
	r.enqueue(func() { r.handleFrame(sessionID, f) })
}

// Sync blocks until every unit of work enqueued before this call has run.
// Callers that need to observe the effects of a Dispatch (tests, a
// graceful-shutdown flush) call this afterward.
func (r *Router) Sync() {
	done := make(chan struct{})
	r.enqueue(func() { close(done) })
	<-done
}

// Disconnect externally triggers disconnect semantics (transport close,
// heartbeat timeout, router-initiated teardown) for a session.
func (r *Router) Disconnect(sessionID uuid.UUID, reason string) {
	r.enqueue(func() { r.disconnect(sessionID, reason) })
}

// Registry exposes the live connection registry to the heartbeat sweeper,
// which needs to read connection state without funnelling through the
// dispatch goroutine.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Broadcasts exposes the broadcast session table so a broadcaster client
// (namely internal/logbroadcast) can look up its own session's call id
// before sending MSG, since its transport discards the RING frames that
// carry that call id.
func (r *Router) Broadcasts() *broadcast.Table {
	return r.broadcasts
}

// handleFrame is the single frame-type switch (spec.md §6), generalized
// from the teacher's webrtc/handler.go switch msg.Type loop. A panic from
// any one handler tears down only the offending connection (spec.md §7).
func (r *Router) handleFrame(sessionID uuid.UUID, f frame.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Log.Error().
				Interface("panic", rec).
				Str("session", sessionID.String()).
				Str("frame_type", f.Type).
				Msg("frame handler panicked; disconnecting connection")
			r.disconnect(sessionID, "internal_error")
		}
	}()

	c, ok := r.registry.BySession(sessionID)
	if !ok {
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(f.Type).Inc()

	switch f.Type {
	case frame.TypeRegister:
		r.handleRegister(c, f)
	case frame.TypeUnregister:
		r.handleUnregister(c, f)
	case frame.TypeStatus:
		r.handleStatus(c, f)
	case frame.TypeHeartbeat:
		r.handleHeartbeat(c, f)
	case frame.TypeDial:
		r.handleDial(c, f)
	case frame.TypeAnswer:
		r.handleAnswer(c, f)
	case frame.TypeHangup:
		r.handleHangup(c, f)
	case frame.TypeMsg:
		r.handleMsg(c, f)
	case frame.TypePresence:
		r.handlePresence(c, f)
	case frame.TypeSleepAck:
		r.handleSleepAck(c, f)
	case frame.TypeRegisterPBX:
		r.handleRegisterPBX(c, f)
	default:
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.ReasonUnknownFrame, "unknown frame type: "+f.Type))
	}
}

// send writes an outbound frame to a connection's transport, discarding
// (rather than propagating) a failure. The failure is not logged; the next
// heartbeat sweep evicts dead peers.
func send(c *conn.Connection, f frame.Frame) {
	if c == nil || c.Transport == nil {
		return
	}
	metrics.FramesSentTotal.WithLabelValues(f.Type).Inc()
	if err := c.Transport.Send(f); err != nil {
		// Best-effort: the heartbeat sweeper reconciles dead peers later.
		_ = err
	}
}
