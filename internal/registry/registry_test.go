package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

type fakeTransport struct{}

func (fakeTransport) Send(_ frame.Frame) error        { return nil }
func (fakeTransport) Close(_ int, _ string) error { return nil }

func newConn() *conn.Connection {
	return conn.New(uuid.New(), fakeTransport{})
}

func TestBindUniqueness(t *testing.T) {
	r := New()
	a := newConn()
	b := newConn()
	r.Create(a)
	r.Create(b)

	require.NoError(t, r.Bind(a, "x@y.com"))
	err := r.Bind(b, "x@y.com")
	assert.Error(t, err)
	assert.IsType(t, ErrAddressInUse{}, err)
}

func TestBindRefreshSameConnection(t *testing.T) {
	r := New()
	a := newConn()
	r.Create(a)
	require.NoError(t, r.Bind(a, "x@y.com"))
	require.NoError(t, r.Bind(a, "x@y.com"))
	got, ok := r.ByAddress("x@y.com")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestBindReassignReleasesPrior(t *testing.T) {
	r := New()
	a := newConn()
	r.Create(a)
	require.NoError(t, r.Bind(a, "old@y.com"))
	require.NoError(t, r.Bind(a, "new@y.com"))

	_, ok := r.ByAddress("old@y.com")
	assert.False(t, ok)
	got, ok := r.ByAddress("new@y.com")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestUnbindRemovesBothMaps(t *testing.T) {
	r := New()
	a := newConn()
	r.Create(a)
	require.NoError(t, r.Bind(a, "x@y.com"))
	r.Unbind(a)

	_, ok := r.ByAddress("x@y.com")
	assert.False(t, ok)
	_, ok = r.BySession(a.SessionID)
	assert.False(t, ok)
}
