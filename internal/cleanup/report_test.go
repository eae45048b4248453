package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCleanState(t *testing.T) {
	t.Parallel()

	t.Run("clean schema", func(t *testing.T) {
		t.Parallel()
		catalog := gallery()
		cfg := testConfig()
		cfg.ExpectedTables = []string{"users", "photos"}
		c, _, metrics := newTestCleaner(t, catalog, cfg)

		report, err := c.VerifyCleanState(context.Background())

		require.NoError(t, err)
		assert.True(t, report.Clean())
		assert.True(t, report.TablesExist)
		assert.True(t, report.TablesEmpty)
		assert.True(t, report.SequencesReset)
		assert.True(t, report.SettingsCorrect)
		assert.Equal(t, `"$user", public`, report.SearchPath)
		assert.Equal(t, 4, catalog.counts, "excluded tables are not counted")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.clean))
	})

	t.Run("dirty schema", func(t *testing.T) {
		t.Parallel()
		catalog := gallery()
		catalog.rows = map[string]int64{"users": 2, "albums": 1}
		catalog.sequences = append(catalog.sequences, postgres.Sequence{
			Name:      "photos_id_seq",
			LastValue: sql.NullInt64{Int64: 17, Valid: true},
		})
		catalog.searchPath = "audit"
		cfg := testConfig()
		cfg.ExpectedTables = []string{"users", "orders"}
		c, _, metrics := newTestCleaner(t, catalog, cfg)

		report, err := c.VerifyCleanState(context.Background())

		require.NoError(t, err, "a dirty schema is reported, not returned as an error")
		assert.False(t, report.Clean())
		assert.False(t, report.TablesExist)
		assert.Equal(t, []string{"orders"}, report.MissingTables)
		assert.False(t, report.TablesEmpty)
		assert.Equal(t, []string{"albums", "users"}, report.NonEmptyTables)
		assert.False(t, report.SequencesReset)
		assert.Equal(t, []string{"photos_id_seq"}, report.DirtySequences)
		assert.False(t, report.SettingsCorrect)
		assert.Zero(t, testutil.ToFloat64(metrics.clean))
	})

	t.Run("count failure", func(t *testing.T) {
		t.Parallel()
		catalog := gallery()
		catalog.countErr = errors.New("relation does not exist")
		c, _, _ := newTestCleaner(t, catalog, testConfig())

		_, err := c.VerifyCleanState(context.Background())

		assert.ErrorIs(t, err, catalog.countErr)
	})

	t.Run("list failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		c, _, _ := newTestCleaner(t, &fakeCatalog{listErr: boom}, testConfig())

		_, err := c.VerifyCleanState(context.Background())

		assert.ErrorIs(t, err, boom)
	})
}

func TestCleanAll(t *testing.T) {
	t.Parallel()

	catalog := gallery()
	c, mock, _ := newTestCleaner(t, catalog, testConfig())
	expectTruncation(mock,
		`TRUNCATE TABLE "public"."comments" RESTART IDENTITY CASCADE`,
		`TRUNCATE TABLE "public"."photos" RESTART IDENTITY CASCADE`,
		`TRUNCATE TABLE "public"."albums" RESTART IDENTITY CASCADE`,
		`TRUNCATE TABLE "public"."users" RESTART IDENTITY CASCADE`,
	)
	mock.ExpectBegin()
	mock.ExpectExec(`ALTER SEQUENCE "public"."albums_id_seq" RESTART WITH 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER SEQUENCE "public"."users_id_seq" RESTART WITH 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	report, err := c.CleanAll(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestCleanAllStopsOnTruncateFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c, _, _ := newTestCleaner(t, &fakeCatalog{listErr: boom}, testConfig())

	_, err := c.CleanAll(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestSearchPathContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		searchPath string
		schema     string
		want       bool
	}{
		{`"$user", public`, "public", true},
		{`public`, "public", true},
		{`"Gallery", public`, "Gallery", true},
		{`"$user"`, "public", false},
		{`publicity`, "public", false},
		{``, "public", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, searchPathContains(tt.searchPath, tt.schema), tt.searchPath)
	}
}
