package router

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
	"github.com/Foundation42/SystemX/internal/wake"
)

// capturingTransport records every frame sent to it, for assertion.
type capturingTransport struct {
	mu     sync.Mutex
	frames []frame.Frame
	closed bool
}

func (t *capturingTransport) Send(f frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, f)
	return nil
}

func (t *capturingTransport) Close(_ int, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *capturingTransport) last() frame.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return frame.Frame{}
	}
	return t.frames[len(t.frames)-1]
}

func (t *capturingTransport) typesOf() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.frames))
	for i, f := range t.frames {
		out[i] = f.Type
	}
	return out
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := New(DefaultConfig(), zerolog.Nop(), wake.NewNoopExecutor(zerolog.Nop()))
	t.Cleanup(r.Shutdown)
	return r
}

func connectAndRegister(t *testing.T, r *Router, addr string, extra map[string]any) (*conn.Connection, *capturingTransport) {
	t.Helper()
	tr := &capturingTransport{}
	c := r.Connect(tr)
	fields := map[string]any{"address": addr}
	for k, v := range extra {
		fields[k] = v
	}
	r.Dispatch(c.SessionID, frame.New(frame.TypeRegister, fields))
	r.Sync()
	require.Equal(t, frame.TypeRegistered, tr.last().Type)
	return c, tr
}

func TestDialAnswerHangup(t *testing.T) {
	r := newTestRouter(t)
	caller, callerTr := connectAndRegister(t, r, "alice@x.com", nil)
	callee, calleeTr := connectAndRegister(t, r, "bob@x.com", nil)

	r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bob@x.com"}))
	r.Sync()

	ring := calleeTr.last()
	require.Equal(t, frame.TypeRing, ring.Type)
	callID, _ := ring.GetString("call_id")
	require.NotEmpty(t, callID)

	r.Dispatch(callee.SessionID, frame.New(frame.TypeAnswer, map[string]any{"call_id": callID}))
	r.Sync()
	require.Equal(t, frame.TypeConnected, callerTr.last().Type)

	r.Dispatch(caller.SessionID, frame.New(frame.TypeHangup, map[string]any{"call_id": callID, "reason": "normal"}))
	r.Sync()
	assert.Equal(t, frame.TypeHangupOut, calleeTr.last().Type)
	assert.Equal(t, conn.StatusAvailable, caller.Status())
	assert.Equal(t, conn.StatusAvailable, callee.Status())
}

func TestDialBusyWhenAlreadyRinging(t *testing.T) {
	r := newTestRouter(t)
	a, _ := connectAndRegister(t, r, "a@x.com", nil)
	_, _ = connectAndRegister(t, r, "b@x.com", nil)
	c, cTr := connectAndRegister(t, r, "c@x.com", nil)

	r.Dispatch(a.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "b@x.com"}))
	r.Sync()

	r.Dispatch(c.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "b@x.com"}))
	r.Sync()

	busy := cTr.last()
	require.Equal(t, frame.TypeBusy, busy.Type)
	reason, _ := busy.GetString("reason")
	assert.Equal(t, frame.ReasonAlreadyInCall, reason)
}

func TestDialUnknownAddressIsBusy(t *testing.T) {
	r := newTestRouter(t)
	a, aTr := connectAndRegister(t, r, "a@x.com", nil)
	r.Dispatch(a.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "ghost@x.com"}))
	r.Sync()

	busy := aTr.last()
	require.Equal(t, frame.TypeBusy, busy.Type)
	reason, _ := busy.GetString("reason")
	assert.Equal(t, frame.ReasonNoSuchAddress, reason)
}

func TestRingTimeoutEndsCallAsBusy(t *testing.T) {
	r := newTestRouter(t)
	r.Config.CallRingingTimeout = 10 * time.Millisecond
	caller, callerTr := connectAndRegister(t, r, "alice@x.com", nil)
	_, calleeTr := connectAndRegister(t, r, "bob@x.com", nil)

	r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bob@x.com"}))
	r.Sync()

	require.Eventually(t, func() bool {
		return callerTr.last().Type == frame.TypeBusy
	}, time.Second, 5*time.Millisecond)

	reason, _ := callerTr.last().GetString("reason")
	assert.Equal(t, frame.ReasonTimeout, reason)
	assert.Contains(t, calleeTr.typesOf(), frame.TypeHangupOut)
}

func TestBroadcastJoinFanoutAndLeave(t *testing.T) {
	r := newTestRouter(t)
	station, _ := connectAndRegister(t, r, "radio@x.com", map[string]any{"concurrency": "broadcast"})
	listener1, l1Tr := connectAndRegister(t, r, "l1@x.com", nil)
	listener2, l2Tr := connectAndRegister(t, r, "l2@x.com", nil)

	r.Dispatch(listener1.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "radio@x.com"}))
	r.Sync()
	r.Dispatch(listener2.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "radio@x.com"}))
	r.Sync()

	require.Equal(t, frame.TypeConnected, l1Tr.last().Type)
	require.Equal(t, frame.TypeConnected, l2Tr.last().Type)
	callID, _ := l1Tr.last().GetString("call_id")

	r.Dispatch(station.SessionID, frame.New(frame.TypeMsg, map[string]any{
		"call_id": callID, "data": "hello", "content_type": "text",
	}))
	r.Sync()
	assert.Equal(t, frame.TypeMsgOut, l1Tr.last().Type)
	assert.Equal(t, frame.TypeMsgOut, l2Tr.last().Type)

	r.Dispatch(listener1.SessionID, frame.New(frame.TypeHangup, map[string]any{"call_id": callID, "reason": "normal"}))
	r.Sync()
	assert.Equal(t, frame.TypeHangupOut, l1Tr.last().Type)
	assert.Equal(t, conn.StatusAvailable, listener1.Status())
}

func TestWakeOnRingDrainsOnRegister(t *testing.T) {
	r := newTestRouter(t)
	caller, callerTr := connectAndRegister(t, r, "caller@x.com", nil)

	sleeper := &capturingTransport{}
	sc := r.Connect(sleeper)
	r.Dispatch(sc.SessionID, frame.New(frame.TypeRegister, map[string]any{
		"address": "bot@x.com",
		"mode":    "wake_on_ring",
		"wakeHandler": map[string]any{
			"type":           "spawn",
			"command":        []any{"/bin/true"},
			"timeoutSeconds": float64(5),
		},
	}))
	r.Sync()
	r.Dispatch(sc.SessionID, frame.New(frame.TypeSleepAck, nil))
	r.Sync()

	r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bot@x.com"}))
	r.Sync()
	assert.Equal(t, conn.StatusBusy, caller.Status())

	waked := &capturingTransport{}
	wc := r.Connect(waked)
	r.Dispatch(wc.SessionID, frame.New(frame.TypeRegister, map[string]any{"address": "bot@x.com"}))
	r.Sync()

	require.Equal(t, frame.TypeRing, waked.last().Type)
	from, _ := waked.last().GetString("from")
	assert.Equal(t, "caller@x.com", from)
	assert.Contains(t, callerTr.typesOf(), frame.TypeRegistered)
}

func TestDisconnectEndsActiveCall(t *testing.T) {
	r := newTestRouter(t)
	caller, callerTr := connectAndRegister(t, r, "alice@x.com", nil)
	callee, calleeTr := connectAndRegister(t, r, "bob@x.com", nil)

	r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bob@x.com"}))
	r.Sync()
	ring := calleeTr.last()
	callID, _ := ring.GetString("call_id")
	r.Dispatch(callee.SessionID, frame.New(frame.TypeAnswer, map[string]any{"call_id": callID}))
	r.Sync()

	r.Disconnect(callee.SessionID, frame.ReasonConnectionLost)
	r.Sync()

	assert.Equal(t, frame.TypeHangupOut, callerTr.last().Type)
	assert.Equal(t, conn.StatusAvailable, caller.Status())
}

func TestPresenceExcludesRequesterAndFiltersDomain(t *testing.T) {
	r := newTestRouter(t)
	requester, reqTr := connectAndRegister(t, r, "me@x.com", nil)
	connectAndRegister(t, r, "other@x.com", nil)
	connectAndRegister(t, r, "third@y.com", nil)

	r.Dispatch(requester.SessionID, frame.New(frame.TypePresence, map[string]any{"domain": "x.com"}))
	r.Sync()

	result := reqTr.last()
	require.Equal(t, frame.TypePresenceResult, result.Type)
	addresses, _ := result.Data["addresses"].([]map[string]any)
	require.Len(t, addresses, 1)
	assert.Equal(t, "other@x.com", addresses[0]["address"])
}

func TestDialRateLimitExceeded(t *testing.T) {
	r := newTestRouter(t)
	r.Config.DialRateMaxAttempts = 2
	caller, callerTr := connectAndRegister(t, r, "alice@x.com", nil)
	connectAndRegister(t, r, "bob@x.com", nil)

	for i := 0; i < 2; i++ {
		r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bob@x.com"}))
		r.Sync()
		r.Dispatch(caller.SessionID, frame.New(frame.TypeHangup, map[string]any{
			"call_id": func() string {
				// a fresh random call id matches no call, so this HANGUP is
				// ignored; it only interleaves another frame between dials
				return uuid.New().String()
			}(),
		}))
		r.Sync()
	}

	r.Dispatch(caller.SessionID, frame.New(frame.TypeDial, map[string]any{"to": "bob@x.com"}))
	r.Sync()
	last := callerTr.last()
	require.Equal(t, frame.TypeError, last.Type)
	reason, _ := last.GetString("reason")
	assert.Equal(t, frame.ReasonRateLimited, reason)
}
