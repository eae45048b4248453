package cleanup

import (
	"github.com/phrazzld/scry-dbreset/internal/config"
	"github.com/phrazzld/scry-dbreset/internal/dbretry"
)

// Config controls a Cleaner.
type Config struct {
	Schema string
	// ExcludeTables are never truncated or checked. Empty means
	// depgraph.DefaultExclude.
	ExcludeTables []string
	// ExpectedTables must exist for the schema to count as clean.
	ExpectedTables []string
	Cascade        bool
	// RestartIdentity also restarts sequences owned by truncated columns.
	RestartIdentity   bool
	VerifyConcurrency int
	Retry             dbretry.Config
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Schema:            "public",
		Cascade:           true,
		RestartIdentity:   true,
		VerifyConcurrency: 4,
		Retry:             dbretry.DefaultConfig(),
	}
}

// FromAppConfig maps the loaded application configuration onto a Config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Schema:            cfg.Cleanup.Schema,
		ExcludeTables:     cfg.Cleanup.ExcludeTables,
		ExpectedTables:    cfg.Cleanup.ExpectedTables,
		Cascade:           cfg.Cleanup.Cascade,
		RestartIdentity:   cfg.Cleanup.RestartIdentity,
		VerifyConcurrency: cfg.Cleanup.VerifyConcurrency,
		Retry: dbretry.Config{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
			Timeout:       cfg.Retry.Timeout,
		},
	}
}
