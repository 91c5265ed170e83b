package router

import (
	"time"

	"github.com/google/uuid"

	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
)

// armRingTimer schedules the ring timeout for a newly ringing call
// (spec.md §4.3).
func (r *Router) armRingTimer(c *conn.Connection, callID uuid.UUID) {
	t := time.AfterFunc(r.Config.CallRingingTimeout, func() {
		r.enqueue(func() { r.onRingTimeout(callID) })
	})
	c.RingTimer = t
}

func cancelTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// armIdleTimer (re)arms a connection's auto-sleep idle timer per spec.md
// §4.6. Any existing idle/pending timers are always cancelled; a new idle
// timer is armed only when autoSleep.wakeOnRing is configured and the
// connection currently holds no active calls.
func (r *Router) armIdleTimer(c *conn.Connection) {
	cancelTimer(c.IdleTimer)
	c.IdleTimer = nil
	cancelTimer(c.PendingTimer)
	c.PendingTimer = nil

	as := c.AutoSleep()
	if as == nil || !as.WakeOnRing || c.ActiveCallCount() > 0 {
		return
	}
	d := time.Duration(as.IdleTimeoutSeconds * float64(time.Second))
	sessionID := c.SessionID
	c.IdleTimer = time.AfterFunc(d, func() {
		r.enqueue(func() { r.onIdleFire(sessionID) })
	})
}

// cancelIdleTimers cancels both phases of the auto-sleep timer, e.g. when
// a connection gains an active call or its autoSleep config is cleared.
func (r *Router) cancelIdleTimers(c *conn.Connection) {
	cancelTimer(c.IdleTimer)
	c.IdleTimer = nil
	cancelTimer(c.PendingTimer)
	c.PendingTimer = nil
}

// onIdleFire is phase 1 of auto-sleep: emit SLEEP_PENDING and arm phase 2.
func (r *Router) onIdleFire(sessionID uuid.UUID) {
	c, ok := r.registry.BySession(sessionID)
	if !ok {
		return
	}
	as := c.AutoSleep()
	if as == nil || !as.WakeOnRing || c.ActiveCallCount() > 0 {
		return
	}
	pendingWindow := pendingWindowFor(as.IdleTimeoutSeconds, r.Config.DefaultSleepPendingWindow)
	send(c, frame.New(frame.TypeSleepPending, map[string]any{
		"reason":               frame.ReasonIdleTimeout,
		"seconds_until_sleep":  pendingWindow.Seconds(),
	}))
	c.PendingTimer = time.AfterFunc(pendingWindow, func() {
		r.enqueue(func() { r.onSleepPendingFire(sessionID) })
	})
}

// onSleepPendingFire is phase 2 of auto-sleep: persist the wake profile
// and disconnect with reason "sleep" (spec.md §4.6).
func (r *Router) onSleepPendingFire(sessionID uuid.UUID) {
	c, ok := r.registry.BySession(sessionID)
	if !ok {
		return
	}
	as := c.AutoSleep()
	if as == nil || !as.WakeOnRing || c.ActiveCallCount() > 0 {
		return
	}
	if profile, ok := c.WakeProfile(); ok {
		r.wakeStore.Put(profile)
	}
	r.disconnect(sessionID, frame.ReasonSleep)
}

// pendingWindowFor clamps the second auto-sleep phase to 200ms..5s,
// proportional to the configured idle timeout (spec.md §4.6).
func pendingWindowFor(idleTimeoutSeconds float64, maxWindow time.Duration) time.Duration {
	d := time.Duration(idleTimeoutSeconds * 0.1 * float64(time.Second))
	min := 200 * time.Millisecond
	if d < min {
		return min
	}
	if d > maxWindow {
		return maxWindow
	}
	return d
}

// dialWindow is the per-session sliding window used by the dial rate
// limiter (spec.md §4.7).
type dialWindow struct {
	windowStart time.Time
	count       int
}

// checkDialRate reports whether a DIAL attempt is within the configured
// rate limit, bumping the session's counter as a side effect. The window
// resets when a new attempt arrives after the prior window has expired.
func (r *Router) checkDialRate(sessionID uuid.UUID) bool {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	now := nowFunc()
	w, ok := r.dialWindows[sessionID]
	if !ok || now.Sub(w.windowStart) >= r.Config.DialRateWindow {
		w = &dialWindow{windowStart: now, count: 0}
		r.dialWindows[sessionID] = w
	}
	w.count++
	return w.count <= r.Config.DialRateMaxAttempts
}

// clearDialRate drops a session's dial counter (spec.md §4.9 step 3).
func (r *Router) clearDialRate(sessionID uuid.UUID) {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()
	delete(r.dialWindows, sessionID)
}
