// Package federation implements the outbound half of spec.md §4.11:
// dialing a remote exchange, splicing it into the local router as an
// ordinary synthetic Connection, and keeping the link alive with
// reconnect-with-backoff.
package federation

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/router"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Config describes one federation peer to maintain a link to.
type Config struct {
	URL              string
	Routes           []string
	HeartbeatInterval time.Duration
}

// Peer owns the reconnect loop for a single remote exchange.
type Peer struct {
	cfg    Config
	router *router.Router
	log    zerolog.Logger

	stop chan struct{}
	once sync.Once
}

// New constructs a Peer. Call Run to start its reconnect loop.
func New(cfg Config, r *router.Router, log zerolog.Logger) *Peer {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	return &Peer{cfg: cfg, router: r, log: log.With().Str("peer_url", cfg.URL).Logger(), stop: make(chan struct{})}
}

// Stop tears down the peer's reconnect loop. It does not block for the
// current attempt to finish.
func (p *Peer) Stop() {
	p.once.Do(func() { close(p.stop) })
}

// Run dials the peer, reconnecting with exponential backoff until Stop is
// called. It blocks and should be run in its own goroutine.
func (p *Peer) Run() {
	backoff := minBackoff
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		if err := p.runOnce(); err != nil {
			p.log.Warn().Err(err).Dur("retry_in", backoff).Msg("federation link down, retrying")
		}

		select {
		case <-p.stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce dials once, splices the synthetic connection into the router,
// and pumps frames until the socket drops. Run does not reset its backoff
// after a successful connection; the delay keeps doubling up to maxBackoff.
func (p *Peer) runOnce() error {
	wsConn, _, err := websocket.DefaultDialer.Dial(p.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer wsConn.Close()

	t := &peerTransport{conn: wsConn, log: p.log}
	c := p.router.Connect(t)
	defer p.router.Disconnect(c.SessionID, frame.ReasonConnectionLost)

	if len(p.cfg.Routes) > 0 {
		routes := make([]any, len(p.cfg.Routes))
		for i, r := range p.cfg.Routes {
			routes[i] = r
		}
		if err := t.Send(frame.New(frame.TypeRegisterPBX, map[string]any{"routes": routes})); err != nil {
			return err
		}
	}

	stopHeartbeat := make(chan struct{})
	go p.heartbeatLoop(t, stopHeartbeat)
	defer close(stopHeartbeat)

	for {
		var f frame.Frame
		if err := wsConn.ReadJSON(&f); err != nil {
			return err
		}
		p.router.Dispatch(c.SessionID, f)
	}
}

func (p *Peer) heartbeatLoop(t *peerTransport, stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := t.Send(frame.New(frame.TypeHeartbeat, nil)); err != nil {
				return
			}
		}
	}
}

// peerTransport is the synthetic conn.Transport splicing a federation
// peer into the local router (spec.md §4.11). It suppresses frame types
// that only make sense locally: REGISTERED_PBX/REGISTER_PBX_FAILED are the
// local router's replies to a REGISTER_PBX received from the peer and are
// not sent back to it, and forwarding ERROR frames back to the peer that
// likely caused them would loop.
type peerTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  zerolog.Logger
}

func (t *peerTransport) Send(f frame.Frame) error {
	switch f.Type {
	case frame.TypeRegisteredPBX, frame.TypeRegisterPBXFailed, frame.TypeError:
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(f)
}

func (t *peerTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return nil // wsConn itself is closed by runOnce's defer
}

var _ conn.Transport = (*peerTransport)(nil)
