package testdb

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

// MigrationTableName is the name of the table used by goose to track migrations.
const MigrationTableName = "schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// SetupTestDatabaseSchema applies the fixture schema to db.
func SetupTestDatabaseSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	err := withGoose(&testGooseLogger{t: t}, func() error {
		return goose.Up(db, "migrations")
	})
	require.NoError(t, err, "Failed to run migrations")
}

// ResetTestDatabaseSchema rolls every fixture migration back.
func ResetTestDatabaseSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	err := withGoose(&testGooseLogger{t: t}, func() error {
		return goose.Reset(db, "migrations")
	})
	require.NoError(t, err, "Failed to roll back migrations")
}

func withGoose(logger goose.Logger, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(logger)
	goose.SetTableName(MigrationTableName)
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn()
}

// testGooseLogger implements a minimal logger interface for goose
type testGooseLogger struct {
	t *testing.T
}

// Printf implements the required logging method for goose's SetLogger
func (l *testGooseLogger) Printf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.t.Log("Goose: " + strings.TrimSpace(msg))
}

// Fatalf implements the required logging method for goose's SetLogger
func (l *testGooseLogger) Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.t.Fatal("Goose fatal error: " + strings.TrimSpace(msg))
}
