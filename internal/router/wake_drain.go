package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/metrics"
	"github.com/Foundation42/SystemX/internal/wake"
)

// enqueueWake implements spec.md §4.5: a DIAL to a sleeping, wake-on-ring
// address queues a PendingCall, marks the caller busy, fires the wake
// executor fire-and-forget, and arms a timeout.
func (r *Router) enqueueWake(caller *conn.Connection, to string, metadata map[string]any, profile wake.Profile) {
	callID := uuid.New()
	timeout := profile.Handler.Timeout()
	pc := wake.PendingCall{
		CallID:          callID,
		CallerAddress:   caller.Address(),
		CallerSessionID: caller.SessionID,
		CalleeAddress:   to,
		Metadata:        metadata,
		Profile:         profile,
		Deadline:        nowFunc().Add(timeout),
	}
	r.wakeQueue.Enqueue(pc)
	caller.AddActiveCall(callID)
	r.cancelIdleTimers(caller)
	metrics.WakesTotal.WithLabelValues("enqueued").Inc()

	caller.WakeTimer = time.AfterFunc(timeout, func() {
		r.enqueue(func() { r.onWakeTimeout(to, callID) })
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := r.executor.Wake(ctx, profile); err != nil {
			r.enqueue(func() { r.failPendingWake(to, callID, frame.ReasonWakeFailed) })
		}
	}()
}

// onWakeTimeout fires when a wake handler's timeout elapses with no
// REGISTER from the callee (spec.md §4.5).
func (r *Router) onWakeTimeout(calleeAddress string, callID uuid.UUID) {
	r.failPendingWake(calleeAddress, callID, frame.ReasonTimeout)
}

// failPendingWake removes a still-pending PendingCall and informs its
// caller with BUSY{reason}, if it has not already been drained.
func (r *Router) failPendingWake(calleeAddress string, callID uuid.UUID, reason string) {
	pc, ok := r.wakeQueue.RemoveByCallID(calleeAddress, callID)
	if !ok {
		return
	}
	caller, ok := r.registry.BySession(pc.CallerSessionID)
	if !ok {
		return
	}
	cancelTimer(caller.WakeTimer)
	caller.WakeTimer = nil
	caller.RemoveActiveCall(callID)
	r.armIdleTimer(caller)
	metrics.WakesTotal.WithLabelValues(reason).Inc()
	send(caller, frame.New(frame.TypeBusy, map[string]any{"to": calleeAddress, "reason": reason}))
}

// drainPendingWakes runs on successful REGISTER, completing as many queued
// PendingCalls as the freshly-registered connection can accept
// (spec.md §4.2, §4.5).
func (r *Router) drainPendingWakes(callee *conn.Connection) {
	addr := callee.Address()
	for {
		pc, ok := r.wakeQueue.Dequeue(addr)
		if !ok {
			return
		}

		caller, ok := r.registry.BySession(pc.CallerSessionID)
		if !ok {
			// Caller vanished while the callee slept; drop silently and
			// keep draining the rest of the queue.
			continue
		}
		cancelTimer(caller.WakeTimer)
		caller.WakeTimer = nil
		caller.RemoveActiveCall(pc.CallID)

		var admitted bool
		var reason string
		switch callee.Concurrency() {
		case conn.Broadcast:
			admitted, reason = r.admitBroadcast(caller, callee, pc.Metadata, pc.CallID)
		case conn.Parallel:
			admitted, reason = r.admitDirect(caller, callee, pc.Metadata, pc.CallID, callee.MaxSessions(), frame.ReasonMaxSessionsReached)
		default:
			admitted, reason = r.admitDirect(caller, callee, pc.Metadata, pc.CallID, 1, frame.ReasonAlreadyInCall)
		}

		if admitted {
			metrics.WakesTotal.WithLabelValues("completed").Inc()
			continue
		}
		if reason == frame.ReasonMaxListenersReached || reason == frame.ReasonMaxSessionsReached || reason == frame.ReasonAlreadyInCall {
			// Callee filled up mid-drain: put this one back and stop, per
			// spec.md §4.2's "re-queue remaining pending calls".
			caller.AddActiveCall(pc.CallID)
			r.wakeQueue.Requeue(pc)
			return
		}
		caller.RemoveActiveCall(pc.CallID)
		r.armIdleTimer(caller)
		send(caller, frame.New(frame.TypeBusy, map[string]any{"to": addr, "reason": reason}))
	}
}
