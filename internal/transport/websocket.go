// Package transport adapts a network protocol onto the conn.Transport
// contract the router speaks through. The WebSocket adapter here is
// generalized from webrtc/handler.go's upgrade-then-read-loop shape: one
// goroutine per connection reading JSON frames, with writes serialized by
// a mutex so the read loop and the router's dispatch goroutine never race
// on the same socket.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/router"
)

// Upgrader wraps gorilla's websocket.Upgrader with the CheckOrigin policy
// and buffer sizes the teacher's signaling handler used.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsTransport is the conn.Transport backing a single client WebSocket.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(f frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(f)
}

func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

var _ conn.Transport = (*wsTransport)(nil)

// Serve upgrades an HTTP request to a WebSocket, connects it to r, and
// pumps inbound frames until the socket closes or errors.
func Serve(r *router.Router, log zerolog.Logger, w http.ResponseWriter, req *http.Request) {
	wsConn, err := Upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := r.Connect(&wsTransport{conn: wsConn})
	defer r.Disconnect(c.SessionID, frame.ReasonConnectionLost)

	for {
		var f frame.Frame
		if err := wsConn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", c.SessionID.String()).Msg("websocket read error")
			}
			return
		}
		r.Dispatch(c.SessionID, f)
	}
}
