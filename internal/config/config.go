// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Layer file and environment overrides on top via Load.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath locates the sqlite database file.
	DBPath string `koanf:"db_path"`

	// CacheAddress enables the redis report cache when non-empty.
	CacheAddress string `koanf:"cache_address"`

	// CacheTTLSeconds bounds how long cached reports stay fresh.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// AlertQueueSize bounds the in-memory alert queue.
	AlertQueueSize int `koanf:"alert_queue_size"`

	// AlertWorkerCount sets the number of alert delivery workers.
	AlertWorkerCount int `koanf:"alert_worker_count"`

	// AtRiskStreak is how many consecutive at-risk sprints raise an alert.
	AtRiskStreak int `koanf:"at_risk_streak"`

	// AlertWindowHours is the dedup window for repeated alerts.
	AlertWindowHours int `koanf:"alert_window_hours"`

	// AuthTokens maps bearer tokens to roles (Admin, PM, Member). An empty
	// map disables authentication; every request then acts as an Admin.
	AuthTokens map[string]string `koanf:"auth_tokens"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		DBPath:           "pulse.db",
		CacheAddress:     "",
		CacheTTLSeconds:  30,
		AlertQueueSize:   1024,
		AlertWorkerCount: runtime.NumCPU() * 2,
		AtRiskStreak:     3,
		AlertWindowHours: 24,
		AuthTokens:       map[string]string{},
	}
}
