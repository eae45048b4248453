package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/scry-dbreset/internal/ciutil"
	"github.com/phrazzld/scry-dbreset/internal/cleanup"
	"github.com/phrazzld/scry-dbreset/internal/config"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/phrazzld/scry-dbreset/internal/platform/atlasschema"
	"github.com/phrazzld/scry-dbreset/internal/platform/logger"
	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// options holds the persistent flags.
type options struct {
	configFile   string
	databaseURL  string
	logLevel     string
	schema       string
	introspector string
	metricsFile  string
}

// overrides maps the flags that were set onto configuration keys.
func (o options) overrides() map[string]string {
	return map[string]string{
		"database.url":         o.databaseURL,
		"log.level":            o.logLevel,
		"cleanup.schema":       o.schema,
		"cleanup.introspector": o.introspector,
		"metrics.file":         o.metricsFile,
	}
}

// app carries the state shared by all commands of one invocation.
type app struct {
	opts options

	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	catalog  cleanup.Catalog
	registry *prometheus.Registry
	metrics  *cleanup.Metrics
}

// open loads the configuration, sets up logging and connects to the
// database. Commands call it before touching the database so that flag
// errors surface without a connection.
func (a *app) open(cmd *cobra.Command) error {
	if a.cfg == nil {
		cfg, err := config.Load(a.opts.configFile, a.opts.overrides())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		a.cfg = cfg
	}

	a.logger = logger.New(cmd.ErrOrStderr(), a.cfg.Log)
	slog.SetDefault(a.logger)
	a.logger.Debug("configuration loaded",
		"database_url", ciutil.MaskSensitiveValue(a.cfg.Database.URL),
		"schema", a.cfg.Cleanup.Schema,
		"introspector", a.cfg.Cleanup.Introspector,
	)

	if a.db == nil {
		db, err := setupDatabase(cmd.Context(), a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.db = db
	}

	catalog := postgres.NewCatalog(a.db, a.cfg.Cleanup.Schema)
	a.catalog = catalog
	if a.cfg.Cleanup.Introspector == "atlas" {
		insp, err := atlasschema.New(a.db, a.cfg.Cleanup.Schema)
		if err != nil {
			return err
		}
		a.catalog = &atlasCatalog{Catalog: catalog, insp: insp}
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = cleanup.NewMetrics(a.registry)
	return nil
}

// setupDatabase establishes a connection to the database and configures connection pools.
func setupDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Retry.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}

func (a *app) cleaner() *cleanup.Cleaner {
	return cleanup.New(a.db, a.catalog, cleanup.FromAppConfig(a.cfg),
		cleanup.WithLogger(a.logger),
		cleanup.WithMetrics(a.metrics),
	)
}

func (a *app) dependencyMap(ctx context.Context) (*depgraph.Map, error) {
	return a.cleaner().DependencyMap(ctx)
}

// close writes the metrics file, if configured, and closes the database.
func (a *app) close() error {
	var errs []error
	if a.registry != nil && a.cfg != nil && a.cfg.Metrics.File != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.File, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// atlasCatalog reads tables and foreign keys through Atlas and everything
// else through the catalog queries.
type atlasCatalog struct {
	*postgres.Catalog
	insp *atlasschema.Inspector
}

func (c *atlasCatalog) ListTables(ctx context.Context) ([]string, error) {
	return c.insp.ListTables(ctx)
}

func (c *atlasCatalog) ListForeignKeys(ctx context.Context, table string) ([]depgraph.ForeignKey, error) {
	return c.insp.ListForeignKeys(ctx, table)
}
