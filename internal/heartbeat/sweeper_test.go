package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

type stubTransport struct{}

func (stubTransport) Send(_ frame.Frame) error    { return nil }
func (stubTransport) Close(_ int, _ string) error { return nil }

type fakeRegistry struct {
	conns []*conn.Connection
}

func (r fakeRegistry) All() []*conn.Connection { return r.conns }

type recordingRouter struct {
	mu        sync.Mutex
	disconnected []uuid.UUID
}

func (r *recordingRouter) Disconnect(sessionID uuid.UUID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, sessionID)
}

func (r *recordingRouter) wasDisconnected(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.disconnected {
		if d == id {
			return true
		}
	}
	return false
}

func TestSweepEvictsStaleConnections(t *testing.T) {
	stale := conn.New(uuid.New(), stubTransport{})
	stale.Touch(time.Now().Add(-time.Hour))

	fresh := conn.New(uuid.New(), stubTransport{})
	fresh.Touch(time.Now())

	reg := fakeRegistry{conns: []*conn.Connection{stale, fresh}}
	rtr := &recordingRouter{}
	s := New(time.Hour, 10*time.Second, reg, rtr, zerolog.Nop())

	s.sweep()

	assert.True(t, rtr.wasDisconnected(stale.SessionID))
	assert.False(t, rtr.wasDisconnected(fresh.SessionID))
}

func TestSweepSkipsZeroHeartbeatBaseline(t *testing.T) {
	neverTouched := conn.New(uuid.New(), stubTransport{})

	reg := fakeRegistry{conns: []*conn.Connection{neverTouched}}
	rtr := &recordingRouter{}
	s := New(time.Hour, 10*time.Second, reg, rtr, zerolog.Nop())

	s.sweep()

	assert.False(t, rtr.wasDisconnected(neverTouched.SessionID))
}

func TestRunStopsCleanly(t *testing.T) {
	reg := fakeRegistry{}
	rtr := &recordingRouter{}
	s := New(5*time.Millisecond, time.Second, reg, rtr, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	require.True(t, true)
}
