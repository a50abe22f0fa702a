// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and TTT_ environment variables.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers understood by StoreDriver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory command queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of dispatch workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many command keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// CheckinPeriodMS is the liveness period; a peer silent for two periods forfeits.
	CheckinPeriodMS int64 `koanf:"checkin_period_ms"`

	// MatchingTimeoutMS is how long a player may sit in matching=true before
	// the reconciler treats the pairing as stuck.
	MatchingTimeoutMS int64 `koanf:"matching_timeout_ms"`

	// ReconcileIntervalMS sets the reconciler schedule.
	ReconcileIntervalMS int64 `koanf:"reconcile_interval_ms"`

	// StoreDriver selects the record store: memory, sqlite or redis.
	StoreDriver string `koanf:"store_driver"`

	SQLitePath string `koanf:"sqlite_path"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// TransactMaxRetries caps optimistic transaction attempts.
	TransactMaxRetries int `koanf:"transact_max_retries"`

	// ShardCount configures the number of shards in the memory store.
	ShardCount int `koanf:"shard_count"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           50_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          100_000,
		CheckinPeriodMS:     20_000,
		MatchingTimeoutMS:   60_000,
		ReconcileIntervalMS: 15_000,
		StoreDriver:         DriverMemory,
		SQLitePath:          "tictac.db",
		RedisAddr:           "localhost:6379",
		RedisPrefix:         "tictac:",
		TransactMaxRetries:  25,
		ShardCount:          16,
	}
}

// CheckinPeriod returns the checkin period as a duration.
func (c *Config) CheckinPeriod() time.Duration {
	return time.Duration(c.CheckinPeriodMS) * time.Millisecond
}

// MatchingTimeout returns the stuck-pairing threshold as a duration.
func (c *Config) MatchingTimeout() time.Duration {
	return time.Duration(c.MatchingTimeoutMS) * time.Millisecond
}

// ReconcileInterval returns the reconciler schedule as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.CheckinPeriodMS <= 0:
		return fmt.Errorf("%w: checkin_period_ms must be positive, got %d", ErrInvalidConfig, c.CheckinPeriodMS)
	case c.MatchingTimeoutMS <= 0:
		return fmt.Errorf("%w: matching_timeout_ms must be positive, got %d", ErrInvalidConfig, c.MatchingTimeoutMS)
	case c.ReconcileIntervalMS <= 0:
		return fmt.Errorf("%w: reconcile_interval_ms must be positive, got %d", ErrInvalidConfig, c.ReconcileIntervalMS)
	case c.TransactMaxRetries <= 0:
		return fmt.Errorf("%w: transact_max_retries must be positive, got %d", ErrInvalidConfig, c.TransactMaxRetries)
	case c.ShardCount <= 0:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	}

	switch strings.ToLower(c.StoreDriver) {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
