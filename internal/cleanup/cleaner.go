package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-dbreset/internal/dbretry"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/phrazzld/scry-dbreset/internal/platform/logger"
	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/phrazzld/scry-dbreset/internal/store"
)

var (
	// ErrUnknownTable is returned when a table passed to Truncate is not
	// part of the inspected schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownSequence is returned when a sequence passed to
	// ResetSequences does not exist in the schema.
	ErrUnknownSequence = errors.New("unknown sequence")

	// ErrStillReferenced is returned when a table left out of a truncation
	// still holds foreign keys into truncated rows once constraints are
	// checked again.
	ErrStillReferenced = errors.New("truncated rows are still referenced")
)

const (
	deferConstraintsStmt     = "SET CONSTRAINTS ALL DEFERRED"
	immediateConstraintsStmt = "SET CONSTRAINTS ALL IMMEDIATE"
)

// Catalog is the schema metadata a Cleaner needs.
type Catalog interface {
	depgraph.Introspector
	ListSequences(ctx context.Context) ([]postgres.Sequence, error)
	CountRows(ctx context.Context, table string) (int64, error)
	Setting(ctx context.Context, name string) (string, error)
}

// Cleaner truncates tables and restarts sequences of one schema.
type Cleaner struct {
	db      *sql.DB
	catalog Catalog
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records operations in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Cleaner) {
		c.metrics = m
	}
}

// New creates a Cleaner that runs its statements on db and reads metadata
// through catalog.
func New(db *sql.DB, catalog Catalog, cfg Config, opts ...Option) *Cleaner {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.VerifyConcurrency < 1 {
		cfg.VerifyConcurrency = 1
	}
	c := &Cleaner{
		db:      db,
		catalog: catalog,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run prepares the logger and context of one operation.
func (c *Cleaner) run(ctx context.Context, operation string) (context.Context, *slog.Logger) {
	log := c.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("operation", operation),
		slog.String("schema", c.cfg.Schema),
	)
	return logger.WithLogger(ctx, log), log
}

func (c *Cleaner) retryOptions(operation string, log *slog.Logger) []dbretry.Option {
	return []dbretry.Option{
		dbretry.WithLogger(log),
		dbretry.WithRetryHook(func(int, time.Duration, error) {
			c.metrics.retried(operation)
		}),
	}
}

func (c *Cleaner) exclusions() []string {
	if len(c.cfg.ExcludeTables) == 0 {
		return depgraph.DefaultExclude
	}
	return c.cfg.ExcludeTables
}

// DependencyMap inspects the schema and builds its dependency map.
func (c *Cleaner) DependencyMap(ctx context.Context) (*depgraph.Map, error) {
	ctx, log := c.run(ctx, "load")
	return c.dependencyMap(ctx, log)
}

func (c *Cleaner) dependencyMap(ctx context.Context, log *slog.Logger) (*depgraph.Map, error) {
	start := time.Now()
	load := dbretry.Safe(c.cfg.Retry, func(ctx context.Context) (*depgraph.Map, error) {
		return depgraph.Load(ctx, c.catalog, c.exclusions()...)
	}, c.retryOptions("load", log)...)

	m, err := load(ctx)
	c.metrics.observe("load", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency map: %w", err)
	}
	log.DebugContext(ctx, "dependency map loaded", "tables", len(m.Tables()))
	return m, nil
}

// TruncationOrder inspects the schema and resolves its truncation order.
func (c *Cleaner) TruncationOrder(ctx context.Context) (depgraph.Resolution, error) {
	ctx, log := c.run(ctx, "order")
	m, err := c.dependencyMap(ctx, log)
	if err != nil {
		return depgraph.Resolution{}, err
	}
	res := depgraph.Resolve(m)
	c.reportCycles(ctx, log, res)
	return res, nil
}

func (c *Cleaner) reportCycles(ctx context.Context, log *slog.Logger, res depgraph.Resolution) {
	if !res.HasCycles() {
		return
	}
	edges := make([]string, len(res.BrokenEdges))
	for i, e := range res.BrokenEdges {
		edges[i] = e.String()
	}
	log.WarnContext(ctx, "foreign key cycle detected, ordering is best effort",
		"broken_edges", edges,
	)
}

// Truncate empties the given tables, or every table of the schema when
// none are given. Tables referencing a requested table are truncated too.
// All statements run in one transaction with constraints deferred, in the
// order computed by depgraph.Resolve.
func (c *Cleaner) Truncate(ctx context.Context, tables ...string) (err error) {
	ctx, log := c.run(ctx, "truncate")
	start := time.Now()
	defer func() { c.metrics.observe("truncate", start, err) }()

	m, err := c.dependencyMap(ctx, log)
	if err != nil {
		return err
	}

	target := m
	if len(tables) > 0 {
		for _, t := range tables {
			if !m.Has(t) {
				return fmt.Errorf("%w: %s", ErrUnknownTable, t)
			}
		}
		target = m.Subgraph(m.Closure(tables))
	}

	res := depgraph.Resolve(target)
	if len(res.Order) == 0 {
		log.InfoContext(ctx, "no tables to truncate")
		return nil
	}
	c.reportCycles(ctx, log, res)
	c.metrics.brokenEdges(len(res.BrokenEdges))

	truncate := dbretry.Safe(c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		ctx = store.WithObjects(ctx, res.Order...)
		return struct{}{}, store.RunInTransaction(ctx, c.db, func(ctx context.Context, tx *sql.Tx) error {
			return c.truncateInTx(ctx, tx, res.Order)
		})
	}, c.retryOptions("truncate", log)...)

	if _, err := truncate(ctx); err != nil {
		log.ErrorContext(ctx, "truncation failed", "error", err)
		return fmt.Errorf("failed to truncate tables: %w", err)
	}

	c.metrics.truncated(len(res.Order))
	log.InfoContext(ctx, "tables truncated",
		"tables", res.Order,
		"duration", time.Since(start),
	)
	return nil
}

func (c *Cleaner) truncateInTx(ctx context.Context, tx *sql.Tx, order []string) error {
	if c.cfg.Retry.Timeout > 0 {
		if err := dbretry.SetStatementTimeout(ctx, tx, c.cfg.Retry.Timeout, true); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, deferConstraintsStmt); err != nil {
		return fmt.Errorf("failed to defer constraints: %w", err)
	}
	for _, stmt := range c.truncateStatements(order) {
		if _, err := tx.ExecContext(ctx, stmt.sql); err != nil {
			return store.NewStoreError(stmt.object, "truncate", "statement failed", err)
		}
	}
	if _, err := tx.ExecContext(ctx, immediateConstraintsStmt); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %w", ErrStillReferenced, err)
		}
		return fmt.Errorf("failed to check deferred constraints: %w", err)
	}
	return nil
}

type statement struct {
	object string
	sql    string
}

// truncateStatements renders the TRUNCATE statements for order. With
// CASCADE every table gets its own statement. Without it PostgreSQL
// rejects truncating a referenced table unless its referencing tables are
// named in the same statement, so all tables go into one.
func (c *Cleaner) truncateStatements(order []string) []statement {
	quoted := make([]string, len(order))
	for i, table := range order {
		quoted[i] = postgres.QuoteIdent(c.cfg.Schema, table)
	}
	if !c.cfg.Cascade {
		return []statement{{
			object: strings.Join(order, ", "),
			sql:    "TRUNCATE TABLE " + strings.Join(quoted, ", ") + c.truncateOptions(),
		}}
	}
	stmts := make([]statement, len(order))
	for i, table := range order {
		stmts[i] = statement{object: table, sql: "TRUNCATE TABLE " + quoted[i] + c.truncateOptions()}
	}
	return stmts
}

func (c *Cleaner) truncateOptions() string {
	var b strings.Builder
	if c.cfg.RestartIdentity {
		b.WriteString(" RESTART IDENTITY")
	}
	if c.cfg.Cascade {
		b.WriteString(" CASCADE")
	}
	return b.String()
}

// ResetSequences restarts the given sequences at 1, or every sequence of
// the schema not owned by an excluded table when none are given.
func (c *Cleaner) ResetSequences(ctx context.Context, sequences ...string) (err error) {
	ctx, log := c.run(ctx, "reset_sequences")
	start := time.Now()
	defer func() { c.metrics.observe("reset_sequences", start, err) }()

	list := dbretry.Safe(c.cfg.Retry, c.catalog.ListSequences, c.retryOptions("reset_sequences", log)...)
	existing, err := list(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sequences: %w", err)
	}

	var names []string
	if len(sequences) > 0 {
		for _, name := range sequences {
			if !slices.ContainsFunc(existing, func(s postgres.Sequence) bool { return s.Name == name }) {
				return fmt.Errorf("%w: %s", ErrUnknownSequence, name)
			}
		}
		names = sequences
	} else {
		for _, s := range c.ownedSequences(existing) {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		log.InfoContext(ctx, "no sequences to reset")
		return nil
	}

	reset := dbretry.Safe(c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		ctx = store.WithObjects(ctx, names...)
		return struct{}{}, store.RunInTransaction(ctx, c.db, func(ctx context.Context, tx *sql.Tx) error {
			for _, name := range names {
				stmt := "ALTER SEQUENCE " + postgres.QuoteIdent(c.cfg.Schema, name) + " RESTART WITH 1"
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return store.NewStoreError(name, "restart", "statement failed", err)
				}
			}
			return nil
		})
	}, c.retryOptions("reset_sequences", log)...)

	if _, err := reset(ctx); err != nil {
		log.ErrorContext(ctx, "sequence reset failed", "error", err)
		return fmt.Errorf("failed to reset sequences: %w", err)
	}

	c.metrics.sequences(len(names))
	log.InfoContext(ctx, "sequences reset", "sequences", names)
	return nil
}

// ownedSequences drops sequences owned by excluded tables.
func (c *Cleaner) ownedSequences(seqs []postgres.Sequence) []postgres.Sequence {
	excluded := c.exclusions()
	return slices.DeleteFunc(slices.Clone(seqs), func(s postgres.Sequence) bool {
		return s.Table != "" && slices.Contains(excluded, s.Table)
	})
}

// CleanAll truncates every table, restarts every sequence and reports the
// resulting state.
func (c *Cleaner) CleanAll(ctx context.Context) (Report, error) {
	if err := c.Truncate(ctx); err != nil {
		return Report{}, err
	}
	if err := c.ResetSequences(ctx); err != nil {
		return Report{}, err
	}
	return c.VerifyCleanState(ctx)
}
