package presence

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

type fakeSource struct {
	conns []*conn.Connection
}

func (s fakeSource) Registered() []*conn.Connection { return s.conns }

func registered(address string, metadata map[string]any) *conn.Connection {
	c := conn.New(uuid.New(), stubTransport{})
	c.SetAddress(address)
	if metadata != nil {
		c.SetMetadata(metadata)
	}
	return c
}

func TestRunExcludesRequester(t *testing.T) {
	requester := registered("me@x.com", nil)
	other := registered("other@x.com", nil)
	src := fakeSource{conns: []*conn.Connection{requester, other}}

	results := Run(src, requester, Query{})
	require.Len(t, results, 1)
	assert.Equal(t, "other@x.com", results[0].Address)
}

func TestRunFiltersByDomainCaseInsensitive(t *testing.T) {
	requester := registered("me@x.com", nil)
	inDomain := registered("a@X.COM", nil)
	outOfDomain := registered("b@y.com", nil)
	src := fakeSource{conns: []*conn.Connection{requester, inDomain, outOfDomain}}

	results := Run(src, requester, Query{Domain: "x.com"})
	require.Len(t, results, 1)
	assert.Equal(t, "a@X.COM", results[0].Address)
}

func TestRunFiltersByCapabilities(t *testing.T) {
	requester := registered("me@x.com", nil)
	hasBoth := registered("a@x.com", map[string]any{"capabilities": []any{"voice", "video"}})
	hasOne := registered("b@x.com", map[string]any{"capabilities": []any{"voice"}})
	src := fakeSource{conns: []*conn.Connection{requester, hasBoth, hasOne}}

	results := Run(src, requester, Query{Capabilities: []string{"voice", "video"}})
	require.Len(t, results, 1)
	assert.Equal(t, "a@x.com", results[0].Address)
}

func TestRunFiltersByRadius(t *testing.T) {
	requester := registered("me@x.com", nil)
	// London, roughly.
	near := registered("near@x.com", map[string]any{"location": map[string]any{"lat": 51.51, "lon": -0.13}})
	// New York, far away.
	far := registered("far@x.com", map[string]any{"location": map[string]any{"lat": 40.71, "lon": -74.01}})
	src := fakeSource{conns: []*conn.Connection{requester, near, far}}

	results := Run(src, requester, Query{Near: &Near{Lat: 51.50, Lon: -0.12, RadiusKM: 50}})
	require.Len(t, results, 1)
	assert.Equal(t, "near@x.com", results[0].Address)
}

func TestHaversineZeroAtSamePoint(t *testing.T) {
	assert.InDelta(t, 0, Haversine(10, 20, 10, 20), 0.0001)
}

func TestValidateQueryRejectsBadShapes(t *testing.T) {
	_, err := ValidateQuery(map[string]any{"domain": 5})
	assert.Error(t, err)

	_, err = ValidateQuery(map[string]any{"capabilities": "not-a-list"})
	assert.Error(t, err)

	_, err = ValidateQuery(map[string]any{"near": map[string]any{"lat": 1.0}})
	assert.Error(t, err)

	_, err = ValidateQuery(map[string]any{"near": map[string]any{"lat": 1.0, "lon": 2.0, "radius_km": -1.0}})
	assert.Error(t, err)
}

func TestValidateQueryAcceptsWellFormed(t *testing.T) {
	q, err := ValidateQuery(map[string]any{
		"domain":       "x.com",
		"capabilities": []any{"voice"},
		"near":         map[string]any{"lat": 1.0, "lon": 2.0, "radius_km": 10.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "x.com", q.Domain)
	assert.Equal(t, []string{"voice"}, q.Capabilities)
	require.NotNil(t, q.Near)
	assert.Equal(t, 10.0, q.Near.RadiusKM)
}
