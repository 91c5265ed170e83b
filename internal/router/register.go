package router

import (
	"github.com/Foundation42/SystemX/internal/address"
	"github.com/Foundation42/SystemX/internal/conn"
	"github.com/Foundation42/SystemX/internal/frame"
	"github.com/Foundation42/SystemX/internal/wake"
)

// handleRegister implements spec.md §4.2 REGISTER.
func (r *Router) handleRegister(c *conn.Connection, f frame.Frame) {
	addr, ok := f.GetString("address")
	if !ok || addr == "" {
		send(c, frame.New(frame.TypeRegisterFailed, map[string]any{"reason": frame.ReasonInvalidAddress}))
		return
	}
	if !address.Valid(addr) {
		send(c, frame.New(frame.TypeRegisterFailed, map[string]any{"reason": frame.ReasonInvalidAddress}))
		return
	}

	mode := conn.Single
	maxListeners, maxSessions := 0, 0
	if rawConc, has := f.Data["concurrency"]; has {
		concStr, _ := rawConc.(string)
		parsed, ok := conn.ParseConcurrencyMode(concStr)
		if !ok {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "unknown concurrency value"))
			return
		}
		mode = parsed
	}
	if v, has := numField(f, "max_listeners"); has {
		if mode != conn.Broadcast || v <= 0 {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "max_listeners requires broadcast concurrency and a positive value"))
			return
		}
		maxListeners = int(v)
	}
	if v, has := numField(f, "max_sessions"); has {
		if mode != conn.Parallel || v <= 0 {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "max_sessions requires parallel concurrency and a positive value"))
			return
		}
		maxSessions = int(v)
	}
	// pool_size is accepted as a synonym for the mode's capacity cap.
	if v, has := numField(f, "pool_size"); has {
		if v <= 0 {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "pool_size must be positive"))
			return
		}
		switch mode {
		case conn.Broadcast:
			maxListeners = int(v)
		case conn.Parallel:
			maxSessions = int(v)
		default:
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "pool_size requires broadcast or parallel concurrency"))
			return
		}
	}

	var handler wake.Handler
	wakeMode := conn.WakeNone
	hasHandlerInFrame := false
	if modeStr, _ := f.GetString("mode"); modeStr == "wake_on_ring" {
		wakeMode = conn.WakeOnRing
		if raw, has := f.Data["wakeHandler"]; has {
			h, err := parseWakeHandler(raw)
			if err != nil {
				send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, err.Error()))
				return
			}
			handler = h
			hasHandlerInFrame = true
		}
	}

	// Reinstate a stored profile when the frame supplies no handler
	// (spec.md §4.2, §8: "removed from the store in the same handler").
	if wakeMode == conn.WakeOnRing && !hasHandlerInFrame {
		if stored, ok := r.wakeStore.Take(addr); ok {
			handler = stored.Handler
		}
	} else if wakeMode == conn.WakeOnRing {
		r.wakeStore.Delete(addr)
	}

	var metadata map[string]any
	if raw, has := f.Data["metadata"]; has {
		if m, ok := raw.(map[string]any); ok {
			metadata = m
		} else {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeRegister, "metadata must be an object"))
			return
		}
	}

	if err := r.registry.Bind(c, addr); err != nil {
		send(c, frame.New(frame.TypeRegisterFailed, map[string]any{"reason": frame.ReasonAddressInUse}))
		return
	}

	if mode != conn.Broadcast {
		if s, ok := r.broadcasts.ByBroadcaster(addr); ok && s.Broadcaster == c {
			r.teardownBroadcast(s, frame.ReasonReconfigured)
		}
	}

	c.SetConcurrency(mode, maxListeners, maxSessions)
	c.SetWake(wakeMode, handler)
	c.ClearStatusOverride()
	c.Touch(nowFunc())
	if metadata != nil {
		c.SetMetadata(metadata)
	}
	r.wakeStore.Delete(addr) // the address is live again; no stored profile should linger

	send(c, frame.New(frame.TypeRegistered, map[string]any{
		"address":   addr,
		"sessionId": c.SessionID.String(),
	}))

	r.drainPendingWakes(c)
}

// handleStatus implements spec.md §4.2 STATUS.
func (r *Router) handleStatus(c *conn.Connection, f frame.Frame) {
	statusStr, _ := f.GetString("status")
	var st conn.Status
	switch statusStr {
	case "available":
		st = conn.StatusAvailable
	case "busy":
		st = conn.StatusBusy
	case "dnd":
		st = conn.StatusDND
	case "away":
		st = conn.StatusAway
	default:
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeStatus, "invalid status value"))
		return
	}
	c.SetStatus(st)

	if raw, has := f.Data["autoSleep"]; has {
		as, err := parseAutoSleep(raw)
		if err != nil {
			send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeStatus, err.Error()))
			return
		}
		c.SetAutoSleep(&as)
		if as.WakeOnRing {
			r.armIdleTimer(c)
		} else {
			r.cancelIdleTimers(c)
		}
	}
}

// handleUnregister implements spec.md §4.2 UNREGISTER: if wake_on_ring is
// configured, persist its WakeProfile before disconnecting.
func (r *Router) handleUnregister(c *conn.Connection, _ frame.Frame) {
	if c.WakeMode() == conn.WakeOnRing {
		if profile, ok := c.WakeProfile(); ok {
			r.wakeStore.Put(profile)
		}
	}
	r.disconnect(c.SessionID, frame.ReasonClientRequested)
}

// handleHeartbeat implements spec.md §4.2 HEARTBEAT.
func (r *Router) handleHeartbeat(c *conn.Connection, _ frame.Frame) {
	now := nowFunc()
	c.Touch(now)
	r.armIdleTimer(c)
	send(c, frame.New(frame.TypeHeartbeatAck, map[string]any{"timestamp": now.UnixMilli()}))
}

// handleSleepAck implements spec.md §4.2 SLEEP_ACK.
func (r *Router) handleSleepAck(c *conn.Connection, _ frame.Frame) {
	if c.WakeMode() != conn.WakeOnRing {
		send(c, frame.ErrorFrame(frame.ReasonInvalidPayload, frame.TypeSleepAck, "wake_on_ring is not configured"))
		return
	}
	if profile, ok := c.WakeProfile(); ok {
		r.wakeStore.Put(profile)
	}
	r.disconnect(c.SessionID, frame.ReasonSleep)
}

func numField(f frame.Frame, key string) (float64, bool) {
	v, has := f.Data[key]
	if !has {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

func parseAutoSleep(raw any) (conn.AutoSleep, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return conn.AutoSleep{}, errInvalid("autoSleep must be an object")
	}
	idle, ok := m["idleTimeoutSeconds"].(float64)
	if !ok || idle < 0 {
		return conn.AutoSleep{}, errInvalid("autoSleep.idleTimeoutSeconds must be a non-negative number")
	}
	wakeOnRing, _ := m["wakeOnRing"].(bool)
	return conn.AutoSleep{IdleTimeoutSeconds: idle, WakeOnRing: wakeOnRing}, nil
}

func parseWakeHandler(raw any) (wake.Handler, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return wake.Handler{}, errInvalid("wakeHandler must be an object")
	}
	kindStr, _ := m["type"].(string)
	timeout, _ := m["timeoutSeconds"].(float64)
	var h wake.Handler
	h.TimeoutSeconds = timeout
	switch kindStr {
	case "webhook":
		h.Kind = wake.HandlerWebhook
		h.URL, _ = m["url"].(string)
	case "spawn":
		h.Kind = wake.HandlerSpawn
		if rawCmd, ok := m["command"].([]any); ok {
			for _, item := range rawCmd {
				s, _ := item.(string)
				h.Command = append(h.Command, s)
			}
		}
	default:
		return wake.Handler{}, errInvalid("wakeHandler.type must be webhook or spawn")
	}
	if err := h.Validate(); err != nil {
		return wake.Handler{}, err
	}
	return h, nil
}

type invalidErr string

func (e invalidErr) Error() string { return string(e) }

func errInvalid(msg string) error { return invalidErr(msg) }
