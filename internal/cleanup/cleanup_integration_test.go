//go:build integration

package cleanup_test

import (
	"context"
	"testing"

	"github.com/phrazzld/scry-dbreset/internal/cleanup"
	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/phrazzld/scry-dbreset/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateWithoutCascade(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	testdb.SetupTestDatabaseSchema(t, db)
	testdb.CleanAfter(t, db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO users (email) VALUES ('ada@example.com')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO albums (owner_id, title) SELECT id, 'a' FROM users`)
	require.NoError(t, err)

	cfg := cleanup.DefaultConfig()
	cfg.Cascade = false
	cfg.ExcludeTables = []string{testdb.MigrationTableName}
	catalog := postgres.NewCatalog(db, cfg.Schema)
	c := cleanup.New(db, catalog, cfg)

	require.NoError(t, c.Truncate(ctx, "users"))

	for _, table := range []string{"users", "albums", "photos", "comments", "follows", "feed_items"} {
		n, err := catalog.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
}

func TestCleanAllWithCycle(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	testdb.SetupTestDatabaseSchema(t, db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for _, stmt := range []string{
		`SET CONSTRAINTS ALL DEFERRED`,
		`INSERT INTO authors (id, name, featured_book_id) VALUES (1, 'Borges', 1)`,
		`INSERT INTO books (id, author_id, title) VALUES (1, 1, 'Ficciones')`,
	} {
		_, err := tx.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	c := testdb.NewCleaner(db)
	res, err := c.TruncationOrder(ctx)
	require.NoError(t, err)
	assert.True(t, res.HasCycles())

	report, err := c.CleanAll(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "%+v", report)
}
