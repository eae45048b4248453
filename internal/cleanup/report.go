package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/dbretry"
	"golang.org/x/sync/errgroup"
)

// Report is the outcome of VerifyCleanState. A schema that is not clean is
// described here rather than returned as an error.
type Report struct {
	TablesExist     bool `json:"tables_exist"     yaml:"tables_exist"`
	TablesEmpty     bool `json:"tables_empty"     yaml:"tables_empty"`
	SequencesReset  bool `json:"sequences_reset"  yaml:"sequences_reset"`
	SettingsCorrect bool `json:"settings_correct" yaml:"settings_correct"`

	MissingTables  []string `json:"missing_tables,omitempty"  yaml:"missing_tables,omitempty"`
	NonEmptyTables []string `json:"non_empty_tables,omitempty" yaml:"non_empty_tables,omitempty"`
	DirtySequences []string `json:"dirty_sequences,omitempty" yaml:"dirty_sequences,omitempty"`
	SearchPath     string   `json:"search_path"               yaml:"search_path"`
}

// Clean reports whether every check passed.
func (r Report) Clean() bool {
	return r.TablesExist && r.TablesEmpty && r.SequencesReset && r.SettingsCorrect
}

// VerifyCleanState checks that the expected tables exist, that every
// table is empty, that every sequence is at its start and that the
// search_path names the schema. Errors are only returned when the checks
// themselves could not run.
func (c *Cleaner) VerifyCleanState(ctx context.Context) (report Report, err error) {
	ctx, log := c.run(ctx, "verify")
	start := time.Now()
	defer func() { c.metrics.observe("verify", start, err) }()
	opts := c.retryOptions("verify", log)

	tables, err := dbretry.Safe(c.cfg.Retry, c.catalog.ListTables, opts...)(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list tables: %w", err)
	}
	excluded := c.exclusions()
	tables = slices.DeleteFunc(tables, func(t string) bool { return slices.Contains(excluded, t) })

	for _, want := range c.cfg.ExpectedTables {
		if !slices.Contains(tables, want) {
			report.MissingTables = append(report.MissingTables, want)
		}
	}
	report.TablesExist = len(report.MissingTables) == 0

	report.NonEmptyTables, err = c.nonEmptyTables(ctx, tables, opts)
	if err != nil {
		return Report{}, err
	}
	report.TablesEmpty = len(report.NonEmptyTables) == 0

	seqs, err := dbretry.Safe(c.cfg.Retry, c.catalog.ListSequences, opts...)(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list sequences: %w", err)
	}
	for _, s := range c.ownedSequences(seqs) {
		// last_value is NULL until nextval runs after a restart.
		if s.LastValue.Valid && s.LastValue.Int64 != 1 {
			report.DirtySequences = append(report.DirtySequences, s.Name)
		}
	}
	report.SequencesReset = len(report.DirtySequences) == 0

	searchPath, err := dbretry.Safe(c.cfg.Retry, func(ctx context.Context) (string, error) {
		return c.catalog.Setting(ctx, "search_path")
	}, opts...)(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read search_path: %w", err)
	}
	report.SearchPath = searchPath
	report.SettingsCorrect = searchPathContains(searchPath, c.cfg.Schema)

	c.metrics.setClean(report.Clean())
	level := slog.LevelInfo
	if !report.Clean() {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "clean state verified",
		"clean", report.Clean(),
		"missing_tables", report.MissingTables,
		"non_empty_tables", report.NonEmptyTables,
		"dirty_sequences", report.DirtySequences,
		"search_path", report.SearchPath,
	)
	return report, nil
}

func (c *Cleaner) nonEmptyTables(ctx context.Context, tables []string, opts []dbretry.Option) ([]string, error) {
	var (
		mu       sync.Mutex
		nonEmpty []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.VerifyConcurrency)
	for _, table := range tables {
		g.Go(func() error {
			n, err := dbretry.Safe(c.cfg.Retry, func(ctx context.Context) (int64, error) {
				return c.catalog.CountRows(ctx, table)
			}, opts...)(gctx)
			if err != nil {
				return fmt.Errorf("failed to count rows of %s: %w", table, err)
			}
			if n > 0 {
				mu.Lock()
				nonEmpty = append(nonEmpty, table)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(nonEmpty)
	return nonEmpty, nil
}

// searchPathContains reports whether schema is one of the entries of a
// search_path value such as `"$user", public`.
func searchPathContains(searchPath, schema string) bool {
	for _, entry := range strings.Split(searchPath, ",") {
		entry = strings.TrimSpace(entry)
		entry = strings.Trim(entry, `"`)
		if entry == schema {
			return true
		}
	}
	return false
}
