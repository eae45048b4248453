package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-dbreset/internal/ciutil"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "SCRY"

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the config file, and
// non-empty overrides (keyed like "database.url") take precedence over both.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string, overrides map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("dbreset")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = ciutil.GetTestDatabaseURL(nil)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: validation failed: %w", ErrInvalidConfig, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cleanup.schema", "public")
	v.SetDefault("cleanup.exclude_tables", slices.Clone(depgraph.DefaultExclude))
	v.SetDefault("cleanup.expected_tables", []string{})
	v.SetDefault("cleanup.cascade", true)
	v.SetDefault("cleanup.restart_identity", true)
	v.SetDefault("cleanup.verify_concurrency", 4)
	v.SetDefault("cleanup.introspector", "catalog")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.timeout", "10s")

	v.SetDefault("metrics.file", "")
}
