package dbretry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-dbreset/internal/dbretry"
	"github.com/phrazzld/scry-dbreset/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const setStatementTimeout = `SELECT set_config('statement_timeout', $1, $2)`

func budget(d time.Duration) dbretry.Config {
	cfg := fastConfig()
	cfg.Timeout = d
	return cfg
}

func TestWithTimeoutOverrunBecomesTimeoutError(t *testing.T) {
	t.Parallel()

	raw := errors.New("driver: bad connection state")
	op := func(ctx context.Context) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 0, raw
	}

	_, err := dbretry.WithTimeout(budget(10*time.Millisecond), op)(context.Background())

	var te *dbretry.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 10*time.Millisecond, te.Budget)
	assert.GreaterOrEqual(t, te.Elapsed, 30*time.Millisecond)
	assert.ErrorIs(t, err, raw)
}

func TestWithTimeoutDeadlineFires(t *testing.T) {
	t.Parallel()

	op := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := dbretry.WithTimeout(budget(10*time.Millisecond), op)(context.Background())

	assert.True(t, dbretry.IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutServerCancel(t *testing.T) {
	t.Parallel()

	canceled := &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}
	op := func(ctx context.Context) (int, error) {
		return 0, canceled
	}

	_, err := dbretry.WithTimeout(budget(time.Second), op)(context.Background())

	assert.True(t, dbretry.IsTimeout(err))
	assert.ErrorIs(t, err, canceled)
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	t.Parallel()

	t.Run("fast failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		_, err := dbretry.WithTimeout(budget(time.Second), func(ctx context.Context) (int, error) {
			return 0, boom
		})(context.Background())

		assert.Equal(t, boom, err)
	})

	t.Run("slow success", func(t *testing.T) {
		t.Parallel()
		got, err := dbretry.WithTimeout(budget(5*time.Millisecond), func(ctx context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 42, nil
		})(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})

	t.Run("caller cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := dbretry.WithTimeout(budget(time.Second), func(ctx context.Context) (int, error) {
			return 0, ctx.Err()
		})(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, dbretry.IsTimeout(err))
	})

	t.Run("zero budget disables the timeout", func(t *testing.T) {
		t.Parallel()
		_, err := dbretry.WithTimeout(budget(0), func(ctx context.Context) (int, error) {
			_, ok := ctx.Deadline()
			assert.False(t, ok)
			return 1, nil
		})(context.Background())

		assert.NoError(t, err)
	})
}

func newMockDB(t *testing.T) (store.DBTX, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestWithSessionSetsStatementTimeout(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectExec(setStatementTimeout).
		WithArgs("250", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	op := func(ctx context.Context, s store.DBTX) (int, error) {
		var n int
		err := s.QueryRowContext(ctx, "SELECT 1").Scan(&n)
		return n, err
	}

	got, err := dbretry.WithSession(budget(250*time.Millisecond), db, op)(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestWithSessionSetConfigFailure(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	boom := errors.New("permission denied")
	mock.ExpectExec(setStatementTimeout).WithArgs("1000", false).WillReturnError(boom)

	called := false
	op := func(ctx context.Context, s store.DBTX) (int, error) {
		called = true
		return 0, nil
	}

	_, err := dbretry.WithSession(budget(time.Second), db, op)(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestSafeSessionResetsTimeoutPerAttempt(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	for i := 0; i < 2; i++ {
		mock.ExpectExec(setStatementTimeout).
			WithArgs("1000", false).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	calls := 0
	op := func(ctx context.Context, s store.DBTX) (string, error) {
		calls++
		if calls == 1 {
			return "", deadlock()
		}
		return "clean", nil
	}

	got, err := dbretry.SafeSession(budget(time.Second), db, op)(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "clean", got)
	assert.Equal(t, 2, calls)
}

func TestSetStatementTimeoutLocal(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectExec(setStatementTimeout).
		WithArgs("1500", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, dbretry.SetStatementTimeout(context.Background(), db, 1500*time.Millisecond, true))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	te := &dbretry.TimeoutError{Budget: time.Second, Elapsed: 1500 * time.Millisecond, Err: errors.New("slow")}
	assert.Equal(t, "operation timed out after 1.5s (budget 1s): slow", te.Error())

	me := &dbretry.MaxRetriesExceededError{Attempts: 4, Err: errors.New("deadlock")}
	assert.Equal(t, "max retries exceeded after 4 attempts: deadlock", me.Error())
}
