package router

import (
	"path"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

// handleRegisterPBX implements spec.md §4.11: a federation peer installs
// one or more glob address patterns it is willing to forward DIALs for.
// Patterns are matched with the standard library's path.Match — no
// repository in the pack pulls in a dedicated glob library, and
// path.Match's shell-style wildcards are exactly what a domain-suffix
// route pattern like "*.example.com" needs (see DESIGN.md).
func (r *Router) handleRegisterPBX(c *conn.Connection, f frame.Frame) {
	rawPatterns, ok := f.Data["routes"].([]any)
	if !ok || len(rawPatterns) == 0 {
		send(c, frame.New(frame.TypeRegisterPBXFailed, map[string]any{"reason": frame.ReasonInvalidPayload}))
		return
	}
	patterns := make([]string, 0, len(rawPatterns))
	for _, v := range rawPatterns {
		s, ok := v.(string)
		if !ok || s == "" {
			send(c, frame.New(frame.TypeRegisterPBXFailed, map[string]any{"reason": frame.ReasonInvalidPayload}))
			return
		}
		if _, err := path.Match(s, "probe"); err != nil {
			send(c, frame.New(frame.TypeRegisterPBXFailed, map[string]any{"reason": frame.ReasonInvalidPayload}))
			return
		}
		patterns = append(patterns, s)
	}

	r.routesMu.Lock()
	for _, p := range patterns {
		r.routes = append(r.routes, routeEntry{pattern: p, peer: c})
	}
	r.routesMu.Unlock()

	send(c, frame.New(frame.TypeRegisteredPBX, map[string]any{"routes": patterns}))
}

// matchFederationRoute finds the most-recently-installed route pattern
// matching a destination address, skipping peers that have since
// disconnected (spec.md §4.11).
func (r *Router) matchFederationRoute(to string) (*conn.Connection, bool) {
	r.routesMu.Lock()
	defer r.routesMu.Unlock()
	for i := len(r.routes) - 1; i >= 0; i-- {
		entry := r.routes[i]
		ok, err := path.Match(entry.pattern, to)
		if err != nil || !ok {
			continue
		}
		if _, live := r.registry.BySession(entry.peer.SessionID); !live {
			continue // peer connection torn down; its routes are stale
		}
		return entry.peer, true
	}
	return nil, false
}

// removeRoutesFor drops every route owned by a federation peer connection,
// called on its disconnect (spec.md §4.11).
func (r *Router) removeRoutesFor(peer *conn.Connection) {
	r.routesMu.Lock()
	defer r.routesMu.Unlock()
	kept := r.routes[:0:0]
	for _, entry := range r.routes {
		if entry.peer != peer {
			kept = append(kept, entry)
		}
	}
	r.routes = kept
}
