package router

import "time"

// Config carries the router's tunable timings and limits (spec.md §6
// Configuration). It is the subset of the process-wide config.Config the
// router itself needs.
type Config struct {
	CallRingingTimeout time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration

	DialRateMaxAttempts int
	DialRateWindow      time.Duration

	DefaultSleepPendingWindow time.Duration // clamp for the 200ms..5s second-phase timer
}

// DefaultConfig mirrors spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		CallRingingTimeout:        30 * time.Second,
		HeartbeatInterval:         15 * time.Second,
		HeartbeatTimeout:          45 * time.Second,
		DialRateMaxAttempts:       100,
		DialRateWindow:            60 * time.Second,
		DefaultSleepPendingWindow: 5 * time.Second,
	}
}
