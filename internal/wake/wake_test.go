package wake

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUUID() uuid.UUID { return uuid.New() }

func testLogger() zerolog.Logger { return zerolog.Nop() }

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandlerTimeoutFloor(t *testing.T) {
	h := Handler{Kind: HandlerWebhook, URL: "http://x", TimeoutSeconds: 0.001}
	assert.Equal(t, MinTimeout, h.Timeout())

	h2 := Handler{Kind: HandlerWebhook, URL: "http://x", TimeoutSeconds: 2}
	assert.Equal(t, 2*time.Second, h2.Timeout())
}

func TestHandlerValidate(t *testing.T) {
	cases := []struct {
		name    string
		h       Handler
		wantErr bool
	}{
		{"webhook ok", Handler{Kind: HandlerWebhook, URL: "http://x", TimeoutSeconds: 1}, false},
		{"webhook missing url", Handler{Kind: HandlerWebhook, TimeoutSeconds: 1}, true},
		{"spawn ok", Handler{Kind: HandlerSpawn, Command: []string{"/bin/true"}, TimeoutSeconds: 1}, false},
		{"spawn missing command", Handler{Kind: HandlerSpawn, TimeoutSeconds: 1}, true},
		{"non-positive timeout", Handler{Kind: HandlerWebhook, URL: "http://x", TimeoutSeconds: 0}, true},
		{"unknown kind", Handler{Kind: HandlerKind(99), TimeoutSeconds: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.h.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorePutTakePeekDelete(t *testing.T) {
	s := NewStore()
	profile := Profile{Address: "bot@x.com", Handler: Handler{Kind: HandlerWebhook, URL: "http://x", TimeoutSeconds: 1}}

	_, ok := s.Peek("bot@x.com")
	assert.False(t, ok)

	s.Put(profile)
	got, ok := s.Peek("bot@x.com")
	require.True(t, ok)
	assert.Equal(t, profile, got)

	// Peek does not consume.
	_, ok = s.Peek("bot@x.com")
	assert.True(t, ok)

	taken, ok := s.Take("bot@x.com")
	require.True(t, ok)
	assert.Equal(t, profile, taken)

	_, ok = s.Take("bot@x.com")
	assert.False(t, ok)

	s.Put(profile)
	s.Delete("bot@x.com")
	_, ok = s.Peek("bot@x.com")
	assert.False(t, ok)
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	first := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com", CallerAddress: "a@x.com"}
	second := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com", CallerAddress: "b@x.com"}
	q.Enqueue(first)
	q.Enqueue(second)

	got, ok := q.Dequeue("bot@x.com")
	require.True(t, ok)
	assert.Equal(t, first.CallID, got.CallID)

	got, ok = q.Dequeue("bot@x.com")
	require.True(t, ok)
	assert.Equal(t, second.CallID, got.CallID)

	_, ok = q.Dequeue("bot@x.com")
	assert.False(t, ok)
}

func TestQueueRequeuePutsBackAtFront(t *testing.T) {
	q := NewQueue()
	first := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com"}
	second := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com"}
	q.Enqueue(first)
	q.Enqueue(second)

	dequeued, _ := q.Dequeue("bot@x.com")
	assert.Equal(t, first.CallID, dequeued.CallID)

	q.Requeue(dequeued)

	got, _ := q.Dequeue("bot@x.com")
	assert.Equal(t, first.CallID, got.CallID)
}

func TestQueueRemoveByCaller(t *testing.T) {
	q := NewQueue()
	callerSession := newUUID()
	pc := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com", CallerSessionID: callerSession}
	other := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com", CallerSessionID: newUUID()}
	q.Enqueue(pc)
	q.Enqueue(other)

	removed := q.RemoveByCaller(callerSession)
	require.Len(t, removed, 1)
	assert.Equal(t, pc.CallID, removed[0].CallID)

	remaining, ok := q.Dequeue("bot@x.com")
	require.True(t, ok)
	assert.Equal(t, other.CallID, remaining.CallID)
}

func TestQueueRemoveByCallID(t *testing.T) {
	q := NewQueue()
	pc := PendingCall{CallID: newUUID(), CalleeAddress: "bot@x.com"}
	q.Enqueue(pc)

	got, ok := q.RemoveByCallID("bot@x.com", pc.CallID)
	require.True(t, ok)
	assert.Equal(t, pc.CallID, got.CallID)

	_, ok = q.RemoveByCallID("bot@x.com", pc.CallID)
	assert.False(t, ok)
}

func TestNoopExecutorAlwaysSucceeds(t *testing.T) {
	e := NewNoopExecutor(testLogger())
	err := e.Wake(testContext(t), Profile{Address: "bot@x.com"})
	assert.NoError(t, err)
}

func TestDispatcherRoutesByHandlerKind(t *testing.T) {
	d := NewDispatcher(testLogger())
	err := d.Wake(testContext(t), Profile{
		Address: "bot@x.com",
		Handler: Handler{Kind: HandlerSpawn, Command: []string{"/bin/true"}, TimeoutSeconds: 1},
	})
	assert.NoError(t, err)
}
