package router

import (
	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/call"
	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/metrics"
)

// handleDial implements spec.md §4.3 DIAL.
func (r *Router) handleDial(c *conn.Connection, f frame.Frame) {
	metrics.DialsTotal.WithLabelValues("attempted").Inc()
	if !r.checkDialRate(c.SessionID) {
		metrics.DialsTotal.WithLabelValues("rate_limited").Inc()
		send(c, frame.ErrorFrame(frame.ReasonRateLimited, frame.TypeDial, "dial rate limit exceeded"))
		return
	}

	to, ok := f.GetString("to")
	if !ok || to == "" {
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeDial, "to is required"))
		return
	}
	metadata, _ := f.Data["metadata"].(map[string]any)

	callee, found := r.registry.ByAddress(to)
	if !found {
		r.dialUnknownAddress(c, to, metadata)
		return
	}

	if callee == c {
		send(c, frame.New(frame.TypeBusy, map[string]any{"to": to, "reason": frame.ReasonAlreadyInCall}))
		return
	}

	switch callee.Concurrency() {
	case conn.Broadcast:
		r.dialBroadcast(c, callee, metadata)
		return
	case conn.Parallel:
		r.dialDirect(c, callee, metadata, callee.MaxSessions(), frame.ReasonMaxSessionsReached)
		return
	default:
		r.dialDirect(c, callee, metadata, 1, frame.ReasonAlreadyInCall)
		return
	}
}

// dialUnknownAddress handles DIAL to an address with no live connection:
// forward across federation if a route matches, else attempt wake, else
// BUSY{no_such_address} (spec.md §4.3, §4.5, §4.11).
func (r *Router) dialUnknownAddress(c *conn.Connection, to string, metadata map[string]any) {
	if peer, ok := r.matchFederationRoute(to); ok {
		// Federation forwards ordinary frames rather than inventing a
		// dedicated DIAL_FORWARD type (spec.md §9 open question).
		send(peer, frame.New(frame.TypeDial, map[string]any{"to": to, "metadata": metadata}))
		return
	}
	if profile, ok := r.wakeStore.Peek(to); ok {
		r.enqueueWake(c, to, metadata, profile)
		return
	}
	send(c, frame.New(frame.TypeBusy, map[string]any{"to": to, "reason": frame.ReasonNoSuchAddress}))
}

// dialDirect starts or rejects a single/parallel call (spec.md §4.3: the
// two modes share "the shared start call primitive", differing only in
// their capacity cap and check).
func (r *Router) dialDirect(caller, callee *conn.Connection, metadata map[string]any, capLimit int, capReason string) {
	if admitted, reason := r.admitDirect(caller, callee, metadata, uuid.New(), capLimit, capReason); !admitted {
		send(caller, frame.New(frame.TypeBusy, map[string]any{"to": callee.Address(), "reason": reason}))
	}
}

// admitDirect is the capacity/status-gated half of dialDirect, shared with
// the wake-queue drain so a reused call id survives the sleep window
// (spec.md §4.5).
func (r *Router) admitDirect(caller, callee *conn.Connection, metadata map[string]any, callID uuid.UUID, capLimit int, capReason string) (admitted bool, reason string) {
	if blockedReason, blocked := blockReason(callee); blocked {
		return false, blockedReason
	}
	if callee.ActiveCallCount() >= capLimit {
		return false, capReason
	}
	r.startCall(callID, caller, callee, metadata)
	return true, ""
}

// blockReason reports the BUSY reason if the callee's explicit status
// blocks a DIAL outright (spec.md §4.3). A plain "busy" activeCallIds-based
// block is handled separately via capacity checks.
func blockReason(callee *conn.Connection) (string, bool) {
	switch callee.Status() {
	case conn.StatusDND:
		return frame.ReasonDND, true
	case conn.StatusAway:
		return frame.ReasonAway, true
	case conn.StatusBusy:
		if callee.ActiveCallCount() == 0 {
			// explicit busy override with no calls in progress
			return frame.ReasonBusy, true
		}
	}
	return "", false
}

// startCall creates a ringing Call, marks both sides busy, rings the
// callee, and arms the ring timeout (spec.md §4.3).
func (r *Router) startCall(callID uuid.UUID, caller, callee *conn.Connection, metadata map[string]any) *call.Call {
	ca := r.calls.Start(callID, caller, callee, metadata)
	r.cancelIdleTimers(caller)
	caller.AddActiveCall(callID)
	callee.AddActiveCall(callID)
	r.cancelIdleTimers(callee)

	send(callee, frame.New(frame.TypeRing, map[string]any{
		"from":     caller.Address(),
		"call_id":  callID.String(),
		"metadata": metadata,
	}))
	r.armRingTimer(callee, callID)
	return ca
}

// handleAnswer implements spec.md §4.3 ANSWER.
func (r *Router) handleAnswer(c *conn.Connection, f frame.Frame) {
	callID, ok := parseUUIDField(f, "callId", "call_id")
	if !ok {
		return
	}
	ca, ok := r.calls.Get(callID)
	if !ok || ca.Callee != c || ca.State != call.Ringing {
		return // unknown or unauthorized: idempotent no-op (spec.md §4.3)
	}
	cancelTimer(c.RingTimer)
	c.RingTimer = nil
	ca.State = call.Connected
	send(ca.Caller, frame.New(frame.TypeConnected, map[string]any{
		"call_id": callID.String(),
		"to":      ca.Callee.Address(),
	}))
}

// handleHangup implements spec.md §4.3/§4.4 HANGUP.
func (r *Router) handleHangup(c *conn.Connection, f frame.Frame) {
	callID, ok := parseUUIDField(f, "callId", "call_id")
	if !ok {
		return
	}
	reason, hasReason := f.GetString("reason")
	if !hasReason || reason == "" {
		reason = frame.ReasonNormal
	}

	if ca, ok := r.calls.Get(callID); ok {
		if !ca.IsParticipant(c) || ca.State == call.Ended {
			return
		}
		r.endCall(ca, reason)
		return
	}
	if bs, ok := r.broadcasts.Get(callID); ok {
		r.hangupBroadcastParticipant(bs, c, reason)
	}
}

// endCall terminates a point-to-point call, notifying the other party and
// restoring both sides' state (spec.md §4.3).
func (r *Router) endCall(ca *call.Call, reason string) {
	ca.State = call.Ended
	ca.EndedAt = nowFunc()
	ca.EndReason = reason
	cancelTimer(ca.Callee.RingTimer)
	ca.Callee.RingTimer = nil

	caller, callee := ca.Caller, ca.Callee
	caller.RemoveActiveCall(ca.ID)
	callee.RemoveActiveCall(ca.ID)
	r.armIdleTimer(caller)
	r.armIdleTimer(callee)
	r.calls.Release(ca.ID)
	metrics.CallDuration.WithLabelValues(callee.Concurrency().String()).Observe(ca.EndedAt.Sub(ca.StartedAt).Seconds())

	// Both participants receive HANGUP, the side that issued the hangup (or
	// that is disconnecting) included: endCall is not told which side
	// initiated, so it does not limit the frame to the other party.
	send(callee, frame.New(frame.TypeHangupOut, map[string]any{"call_id": ca.ID.String(), "reason": reason}))
	send(caller, frame.New(frame.TypeHangupOut, map[string]any{"call_id": ca.ID.String(), "reason": reason}))
}

// onRingTimeout fires when a call is still ringing after
// CallRingingTimeout (spec.md §4.3).
func (r *Router) onRingTimeout(callID uuid.UUID) {
	ca, ok := r.calls.Get(callID)
	if !ok || ca.State != call.Ringing {
		return
	}
	ca.State = call.Ended
	ca.EndedAt = nowFunc()
	ca.EndReason = frame.ReasonTimeout
	caller, callee := ca.Caller, ca.Callee
	caller.RemoveActiveCall(callID)
	callee.RemoveActiveCall(callID)
	r.armIdleTimer(caller)
	r.armIdleTimer(callee)
	r.calls.Release(callID)
	metrics.CallDuration.WithLabelValues(callee.Concurrency().String()).Observe(ca.EndedAt.Sub(ca.StartedAt).Seconds())

	send(caller, frame.New(frame.TypeBusy, map[string]any{"to": callee.Address(), "reason": frame.ReasonTimeout}))
	send(callee, frame.New(frame.TypeHangupOut, map[string]any{"call_id": callID.String(), "reason": frame.ReasonTimeout}))
}

// handleMsg implements spec.md §4.3/§4.4 MSG.
func (r *Router) handleMsg(c *conn.Connection, f frame.Frame) {
	callID, ok := parseUUIDField(f, "callId", "call_id")
	if !ok {
		return
	}
	data, hasData := f.Data["data"]
	if !hasData {
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeMsg, "data is required"))
		return
	}
	contentType, hasCT := f.GetString("content_type")
	if !hasCT || contentType == "" {
		contentType = "text"
	}
	if contentType != "text" && contentType != "json" && contentType != "binary" {
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeMsg, "unknown content_type"))
		return
	}

	if bs, ok := r.broadcasts.Get(callID); ok {
		r.routeBroadcastMsg(bs, c, data, contentType)
		return
	}

	ca, ok := r.calls.Get(callID)
	if !ok || !ca.IsParticipant(c) || ca.State != call.Connected {
		return
	}
	peer := ca.Other(c)
	send(peer, frame.New(frame.TypeMsgOut, map[string]any{
		"call_id":      callID.String(),
		"from":         c.Address(),
		"data":         data,
		"content_type": contentType,
	}))
}

func parseUUIDField(f frame.Frame, keys ...string) (uuid.UUID, bool) {
	for _, k := range keys {
		if s, ok := f.GetString(k); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id, true
			}
		}
	}
	return uuid.UUID{}, false
}
