package router

import (
	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/broadcast"
	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

// dialBroadcast implements the broadcast branch of spec.md §4.3/§4.4 DIAL.
func (r *Router) dialBroadcast(caller, callee *conn.Connection, metadata map[string]any) {
	admitted, reason := r.admitBroadcast(caller, callee, metadata, uuid.New())
	if !admitted {
		send(caller, frame.New(frame.TypeBusy, map[string]any{"to": callee.Address(), "reason": reason}))
	}
}

// admitBroadcast joins caller onto callee's broadcast session, creating it
// if needed with newCallID. It is shared by ordinary DIAL and by the
// wake-queue drain, which must reuse the call id generated at enqueue time
// (spec.md §4.5: "the generated callId is reused").
func (r *Router) admitBroadcast(caller, callee *conn.Connection, metadata map[string]any, newCallID uuid.UUID) (admitted bool, reason string) {
	session, existed := r.broadcasts.ByBroadcaster(callee.Address())
	if !existed {
		session = r.broadcasts.GetOrCreate(newCallID, callee, metadata)
		callee.AddActiveCall(session.CallID)
		r.cancelIdleTimers(callee)
	}

	alreadyJoined := session.HasListener(caller.SessionID)
	if !alreadyJoined && callee.MaxListeners() > 0 && session.ListenerCount() >= callee.MaxListeners() {
		return false, frame.ReasonMaxListenersReached
	}

	joined := r.broadcasts.Join(session, caller)
	caller.AddActiveCall(session.CallID)
	r.cancelIdleTimers(caller)

	send(caller, frame.New(frame.TypeConnected, map[string]any{
		"call_id": session.CallID.String(),
		"to":      callee.Address(),
	}))
	if joined {
		send(callee, frame.New(frame.TypeRing, map[string]any{
			"from":     caller.Address(),
			"call_id":  session.CallID.String(),
			"metadata": metadata,
		}))
	}
	return true, ""
}

// hangupBroadcastParticipant implements spec.md §4.4 HANGUP for both the
// broadcaster and a listener.
func (r *Router) hangupBroadcastParticipant(s *broadcast.Session, c *conn.Connection, reason string) {
	if c == s.Broadcaster {
		r.teardownBroadcast(s, reason)
		return
	}
	r.leaveBroadcast(s, c, reason)
}

// leaveBroadcast removes a single listener (spec.md §4.4: "Listener
// HANGUP / disconnect").
func (r *Router) leaveBroadcast(s *broadcast.Session, listener *conn.Connection, reason string) {
	empty := s.RemoveListener(listener.SessionID)
	listener.RemoveActiveCall(s.CallID)
	r.armIdleTimer(listener)

	send(listener, frame.New(frame.TypeHangupOut, map[string]any{"call_id": s.CallID.String(), "reason": reason}))
	send(s.Broadcaster, frame.New(frame.TypeHangupOut, map[string]any{
		"call_id": s.CallID.String(),
		"from":    listener.Address(),
		"reason":  reason,
	}))

	if empty {
		s.Broadcaster.RemoveActiveCall(s.CallID)
		r.armIdleTimer(s.Broadcaster)
		r.broadcasts.Destroy(s)
	}
}

// teardownBroadcast ends a session from the broadcaster's side: disconnect,
// explicit HANGUP, or re-registering with non-broadcast concurrency
// (spec.md §4.4).
func (r *Router) teardownBroadcast(s *broadcast.Session, reason string) {
	for _, l := range s.Listeners() {
		l.RemoveActiveCall(s.CallID)
		r.armIdleTimer(l)
		send(l, frame.New(frame.TypeHangupOut, map[string]any{"call_id": s.CallID.String(), "reason": reason}))
	}
	s.Broadcaster.RemoveActiveCall(s.CallID)
	r.armIdleTimer(s.Broadcaster)
	r.broadcasts.Destroy(s)
}

// routeBroadcastMsg implements spec.md §4.4 MSG fan-out / party-line.
func (r *Router) routeBroadcastMsg(s *broadcast.Session, sender *conn.Connection, data any, contentType string) {
	if sender == s.Broadcaster {
		for _, l := range s.Listeners() {
			send(l, frame.New(frame.TypeMsgOut, map[string]any{
				"call_id":      s.CallID.String(),
				"from":         s.Broadcaster.Address(),
				"data":         data,
				"content_type": contentType,
			}))
		}
		return
	}
	if s.HasListener(sender.SessionID) {
		send(s.Broadcaster, frame.New(frame.TypeMsgOut, map[string]any{
			"call_id":      s.CallID.String(),
			"from":         sender.Address(),
			"data":         data,
			"content_type": contentType,
		}))
	}
}
