package router

import (
	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/presence"
)

// handlePresence implements spec.md §4.10 PRESENCE.
func (r *Router) handlePresence(c *conn.Connection, f frame.Frame) {
	if c.Address() == "" {
		send(c, frame.ErrorFrame(frame.ReasonNotRegistered, frame.TypePresence, "must REGISTER before PRESENCE"))
		return
	}

	q, err := presence.ValidateQuery(f.Data)
	if err != nil {
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypePresence, err.Error()))
		return
	}

	results := presence.Run(r.registry, c, q)
	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{
			"address":  res.Address,
			"status":   string(res.Status),
			"metadata": res.Metadata,
		})
	}
	send(c, frame.New(frame.TypePresenceResult, map[string]any{"addresses": out}))
}
