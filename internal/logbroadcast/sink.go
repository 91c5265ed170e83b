// Package logbroadcast publishes the process's own log lines onto a
// broadcast address so any client can DIAL it and listen in. It connects
// through the router's ordinary Connect/Dispatch surface rather than
// reaching into router internals, so from the router's point of view it
// is indistinguishable from a real client (spec.md §9: "no monkey-patching
// the logger").
package logbroadcast

import (
	"sync"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/router"
)

// discardTransport absorbs whatever the router would otherwise send back
// to this synthetic client (its own REGISTERED ack, a RING per joining
// listener, HANGUP as listeners leave, etc.); none of it is actionable here.
type discardTransport struct{}

func (discardTransport) Send(frame.Frame) error  { return nil }
func (discardTransport) Close(int, string) error { return nil }

var _ conn.Transport = discardTransport{}

// Sink is a broadcaster publishing free-text log lines. It implements
// io.Writer so it can be handed straight to logging.NewFanOut.
type Sink struct {
	mu      sync.Mutex
	router  *router.Router
	conn    *conn.Connection
	address string
}

// New registers address on r with broadcast concurrency and returns the
// Sink ready to publish lines to it.
func New(r *router.Router, address string, maxListeners int) *Sink {
	c := r.Connect(discardTransport{})
	fields := map[string]any{
		"address":     address,
		"concurrency": "broadcast",
	}
	if maxListeners > 0 {
		fields["max_listeners"] = float64(maxListeners)
	}
	r.Dispatch(c.SessionID, frame.New(frame.TypeRegister, fields))
	return &Sink{router: r, conn: c, address: address}
}

// Write implements io.Writer, publishing p as one MSG frame to any
// currently-joined listeners. Lines written while no listener has joined
// are silently dropped, same as any other broadcaster MSG with an empty
// listener set (spec.md §4.4).
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.router.Broadcasts().ByBroadcaster(s.address)
	if !ok {
		return len(p), nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	s.router.Dispatch(s.conn.SessionID, frame.New(frame.TypeMsg, map[string]any{
		"call_id":      session.CallID.String(),
		"data":         string(line),
		"content_type": "text",
	}))
	return len(p), nil
}

// Close unregisters the sink's broadcaster connection.
func (s *Sink) Close() error {
	s.router.Disconnect(s.conn.SessionID, frame.ReasonShutdown)
	return nil
}
