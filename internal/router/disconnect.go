package router

import (
	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/metrics"
)

// disconnect implements spec.md §4.9's full teardown sequence. It is safe
// to call more than once for the same session; the second call is a no-op
// once the registry mapping is gone.
func (r *Router) disconnect(sessionID uuid.UUID, reason string) {
	c, ok := r.registry.BySession(sessionID)
	if !ok {
		return
	}

	cancelTimer(c.RingTimer)
	cancelTimer(c.IdleTimer)
	cancelTimer(c.PendingTimer)
	cancelTimer(c.WakeTimer)
	c.RingTimer, c.IdleTimer, c.PendingTimer, c.WakeTimer = nil, nil, nil, nil

	// spec.md §4.9 step 2: "If reason is timeout and wake is configured,
	// persist the WakeProfile." The sleep reason is already persisted by
	// its callers (handleSleepAck, onSleepPendingFire) before disconnect
	// runs, and client_requested is persisted by handleUnregister.
	if reason == frame.ReasonTimeout {
		if profile, ok := c.WakeProfile(); ok {
			r.wakeStore.Put(profile)
		}
	}

	r.registry.Unbind(c)
	r.clearDialRate(sessionID)
	r.removeRoutesFor(c)

	for _, callID := range c.ActiveCallIDs() {
		if ca, ok := r.calls.Get(callID); ok {
			r.endCall(ca, frame.ReasonPeerDisconnected)
			continue
		}
		if bs, ok := r.broadcasts.Get(callID); ok {
			r.hangupBroadcastParticipant(bs, c, frame.ReasonPeerDisconnected)
		}
	}

	for _, pc := range r.wakeQueue.RemoveByCaller(sessionID) {
		_ = pc // caller is gone; nothing to notify
	}

	if c.Transport != nil {
		_ = c.Transport.Close(1000, reason)
	}
	metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
	metrics.ConnectionsActive.Dec()
}
