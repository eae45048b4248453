package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/cleanup"
	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// CleanTimeout bounds a single clean or truncate hook.
const CleanTimeout = 30 * time.Second

// NewCleaner returns a Cleaner for the public schema of db that leaves the
// goose bookkeeping table alone.
func NewCleaner(db *sql.DB) *cleanup.Cleaner {
	cfg := cleanup.DefaultConfig()
	cfg.ExcludeTables = []string{MigrationTableName}
	return cleanup.New(db, postgres.NewCatalog(db, cfg.Schema), cfg)
}

// CleanBefore empties every table and restarts every sequence now, failing
// the test if the database is not clean afterwards.
func CleanBefore(t *testing.T, db *sql.DB) {
	t.Helper()
	cleanAll(t, db)
}

// CleanAfter does what CleanBefore does once the test has finished.
func CleanAfter(t *testing.T, db *sql.DB) {
	t.Helper()
	t.Cleanup(func() {
		cleanAll(t, db)
	})
}

// TruncateBefore empties the given tables, and every table referencing
// them, now.
func TruncateBefore(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()
	truncate(t, db, tables)
}

// TruncateAfter does what TruncateBefore does once the test has finished.
func TruncateAfter(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()
	t.Cleanup(func() {
		truncate(t, db, tables)
	})
}

func cleanAll(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), CleanTimeout)
	defer cancel()

	report, err := NewCleaner(db).CleanAll(ctx)
	require.NoError(t, err, "Failed to clean database")
	require.True(t, report.Clean(), "Database not clean after cleanup: %+v", report)
}

func truncate(t *testing.T, db *sql.DB, tables []string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), CleanTimeout)
	defer cancel()

	require.NoError(t, NewCleaner(db).Truncate(ctx, tables...), "Failed to truncate %v", tables)
}
