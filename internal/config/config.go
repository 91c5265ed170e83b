// Package config loads process-wide SystemX configuration, grounded on
// the teacher pack's caarlos0/env + godotenv layering
// (LumenPrima-tr-engine's internal/config/config.go).
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-wide configuration: listen address, logging, and
// the knobs that seed router.Config (spec.md §4.2-§4.9).
type Config struct {
	HTTPAddr string `env:"SYSTEMX_HTTP_ADDR" envDefault:":8070"`
	LogLevel string `env:"SYSTEMX_LOG_LEVEL" envDefault:"info"`

	MetricsAddr string `env:"SYSTEMX_METRICS_ADDR" envDefault:":9090"`

	CallRingingTimeout   time.Duration `env:"SYSTEMX_RING_TIMEOUT" envDefault:"30s"`
	HeartbeatInterval    time.Duration `env:"SYSTEMX_HEARTBEAT_INTERVAL" envDefault:"15s"`
	HeartbeatTimeout     time.Duration `env:"SYSTEMX_HEARTBEAT_TIMEOUT" envDefault:"45s"`
	DialRateMaxAttempts  int           `env:"SYSTEMX_DIAL_RATE_MAX" envDefault:"100"`
	DialRateWindow       time.Duration `env:"SYSTEMX_DIAL_RATE_WINDOW" envDefault:"60s"`
	DefaultSleepPendingWindow time.Duration `env:"SYSTEMX_SLEEP_PENDING_MAX" envDefault:"5s"`

	FederationPeersFile string `env:"SYSTEMX_FEDERATION_PEERS_FILE"`

	LogBroadcastAddress string `env:"SYSTEMX_LOG_BROADCAST_ADDRESS" envDefault:"system.log@systemx.local"`
	LogBroadcastEnabled bool   `env:"SYSTEMX_LOG_BROADCAST_ENABLED" envDefault:"false"`
}

// Overrides holds CLI flag values that take priority over environment
// variables (LumenPrima-tr-engine's config.Overrides pattern).
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
}

// Load reads .env (if present), then environment variables, then applies
// CLI overrides. Priority: CLI flags > env vars > .env file > defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	return cfg, nil
}
