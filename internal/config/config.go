package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:3000"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"file:pairpad.db?_journal_mode=WAL"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Liveness monitor: clients are expected to ping every PingInterval and
	// are evicted once silent for longer than PingTimeout.
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	PingTimeout  time.Duration `envconfig:"PING_TIMEOUT" default:"60s"`

	// How long a session's in-memory state survives after its last
	// connection drops, so quick reconnects don't lose the hot cache.
	EvictionGrace time.Duration `envconfig:"EVICTION_GRACE" default:"30s"`

	// Per-connection inbound frame budget (token bucket).
	FrameRateLimit float64 `envconfig:"FRAME_RATE_LIMIT" default:"50"`
	FrameRateBurst int     `envconfig:"FRAME_RATE_BURST" default:"100"`

	// When true, multiple connections sharing a participant id occupy a
	// single roster slot instead of being counted separately.
	DedupeRoster bool `envconfig:"DEDUPE_ROSTER" default:"false"`

	// Interval between sweeps that delete sessions past their expiresAt.
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"5m"`
}

func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
