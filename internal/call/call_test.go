package call

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

type stubTransport struct{}

func (stubTransport) Send(_ frame.Frame) error    { return nil }
func (stubTransport) Close(_ int, _ string) error { return nil }

func newConn() *conn.Connection {
	return conn.New(uuid.New(), stubTransport{})
}

func TestTableStartAndGet(t *testing.T) {
	tbl := NewTable()
	caller, callee := newConn(), newConn()
	id := uuid.New()

	c := tbl.Start(id, caller, callee, map[string]any{"k": "v"})
	assert.Equal(t, Ringing, c.State)
	assert.Equal(t, caller, c.Caller)
	assert.Equal(t, callee, c.Callee)

	got, ok := tbl.Get(id)
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestTableRelease(t *testing.T) {
	tbl := NewTable()
	caller, callee := newConn(), newConn()
	id := uuid.New()
	tbl.Start(id, caller, callee, nil)

	tbl.Release(id)
	_, ok := tbl.Get(id)
	assert.False(t, ok)
}

func TestCallOtherAndIsParticipant(t *testing.T) {
	caller, callee := newConn(), newConn()
	c := &Call{ID: uuid.New(), Caller: caller, Callee: callee, State: Connected}

	assert.Same(t, callee, c.Other(caller))
	assert.Same(t, caller, c.Other(callee))
	assert.True(t, c.IsParticipant(caller))
	assert.True(t, c.IsParticipant(callee))

	stranger := newConn()
	assert.False(t, c.IsParticipant(stranger))
}

func TestTableByParticipantExcludesEnded(t *testing.T) {
	tbl := NewTable()
	caller, callee := newConn(), newConn()
	active := tbl.Start(uuid.New(), caller, callee, nil)
	ended := tbl.Start(uuid.New(), caller, callee, nil)
	ended.State = Ended

	calls := tbl.ByParticipant(caller)
	require.Len(t, calls, 1)
	assert.Same(t, active, calls[0])
}
