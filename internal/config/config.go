package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Log      LogConfig      `mapstructure:"log"      validate:"required"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"  validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry"    validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"               validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// CleanupConfig controls how the database is reset.
type CleanupConfig struct {
	Schema            string   `mapstructure:"schema"             validate:"required"`
	ExcludeTables     []string `mapstructure:"exclude_tables"`
	ExpectedTables    []string `mapstructure:"expected_tables"`
	Cascade           bool     `mapstructure:"cascade"`
	RestartIdentity   bool     `mapstructure:"restart_identity"`
	VerifyConcurrency int      `mapstructure:"verify_concurrency" validate:"gte=1,lte=64"`
	// Introspector selects the schema reader: "catalog" or "atlas".
	Introspector string `mapstructure:"introspector" validate:"required,oneof=catalog atlas"`
}

// RetryConfig contains the retry and timeout policy applied to database operations.
type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"    validate:"gte=0,lte=20"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"  validate:"gt=0"`
	MaxDelay      time.Duration `mapstructure:"max_delay"      validate:"gtefield=InitialDelay"`
	BackoffFactor float64       `mapstructure:"backoff_factor" validate:"gte=1"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"gt=0"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	// File, when set, receives the metrics in Prometheus text format on exit.
	File string `mapstructure:"file"`
}
