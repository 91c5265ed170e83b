// Package presence implements the PresenceEngine (spec.md §4.10): domain,
// capability, and geo filters applied over a registry snapshot. The
// haversine distance calculation stays on the standard library's math
// package — no repository in the retrieval pack exercises a geo library
// in its actual source, only stdlib trigonometry, so there is nothing to
// ground a third-party choice on here (see DESIGN.md).
package presence

import (
	"fmt"
	"math"
	"strings"

	"github.com/Foundation42/SystemX/internal/address"
	"github.com/Foundation42/SystemX/internal/conn"
)

// earthRadiusKM is the mean Earth radius used by the haversine formula.
const earthRadiusKM = 6371.0

// Near is the optional geo filter (spec.md §4.10).
type Near struct {
	Lat      float64
	Lon      float64
	RadiusKM float64
}

// Query is a PRESENCE request's filter fields (spec.md §4.10).
type Query struct {
	Domain       string
	Capabilities []string
	Near         *Near
}

// Result is one entry of a PRESENCE_RESULT reply.
type Result struct {
	Address  string
	Status   conn.Status
	Metadata map[string]any
}

// Source supplies the live, registered connections to filter over.
type Source interface {
	Registered() []*conn.Connection
}

// Run applies q over every registered connection other than requester,
// returning the matching results in a stable order (spec.md §4.10).
func Run(src Source, requester *conn.Connection, q Query) []Result {
	var out []Result
	for _, c := range src.Registered() {
		if c == requester {
			continue
		}
		addr := c.Address()
		if addr == "" {
			continue
		}
		if q.Domain != "" && !strings.EqualFold(address.Domain(addr), q.Domain) {
			continue
		}
		md := c.Metadata()
		if len(q.Capabilities) > 0 && !hasAllCapabilities(md, q.Capabilities) {
			continue
		}
		if q.Near != nil && !withinRadius(md, *q.Near) {
			continue
		}
		out = append(out, Result{Address: addr, Status: c.Status(), Metadata: md})
	}
	return out
}

func hasAllCapabilities(md map[string]any, required []string) bool {
	raw, ok := md["capabilities"]
	if !ok {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	have := make(map[string]struct{}, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			have[s] = struct{}{}
		}
	}
	for _, req := range required {
		if _, ok := have[req]; !ok {
			return false
		}
	}
	return true
}

func withinRadius(md map[string]any, near Near) bool {
	loc, ok := md["location"].(map[string]any)
	if !ok {
		return false
	}
	lat, okLat := asFloat(loc["lat"])
	lon, okLon := asFloat(loc["lon"])
	if !okLat || !okLon {
		return false
	}
	return Haversine(near.Lat, near.Lon, lat, lon) <= near.RadiusKM
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Haversine returns the great-circle distance in kilometres between two
// lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// ValidateQuery checks field shapes per spec.md §4.10, returning a
// human-readable detail on failure.
func ValidateQuery(raw map[string]any) (Query, error) {
	var q Query
	if v, ok := raw["domain"]; ok {
		s, ok := v.(string)
		if !ok {
			return q, fmt.Errorf("domain must be a string")
		}
		q.Domain = s
	}
	if v, ok := raw["capabilities"]; ok {
		list, ok := v.([]any)
		if !ok {
			return q, fmt.Errorf("capabilities must be an array of strings")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return q, fmt.Errorf("capabilities must be an array of strings")
			}
			q.Capabilities = append(q.Capabilities, s)
		}
	}
	if v, ok := raw["near"]; ok {
		nm, ok := v.(map[string]any)
		if !ok {
			return q, fmt.Errorf("near must be an object")
		}
		lat, okLat := asFloat(nm["lat"])
		lon, okLon := asFloat(nm["lon"])
		radius, okRadius := asFloat(nm["radius_km"])
		if !okLat || !okLon || !okRadius || radius < 0 {
			return q, fmt.Errorf("near requires numeric lat, lon, and non-negative radius_km")
		}
		q.Near = &Near{Lat: lat, Lon: lon, RadiusKM: radius}
	}
	return q, nil
}
