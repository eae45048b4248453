package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/platform/logger"
)

// TxFn is a function that executes within a database transaction.
// The transaction is committed if the function returns nil, or rolled back if it returns an error.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type objectsKey struct{}

// WithObjects records the database objects a transaction is about to touch.
// RunInTransaction attaches them to every log line it writes.
func WithObjects(ctx context.Context, objects ...string) context.Context {
	return context.WithValue(ctx, objectsKey{}, objects)
}

// ObjectsFromContext returns the objects recorded by WithObjects, or nil.
func ObjectsFromContext(ctx context.Context) []string {
	objects, _ := ctx.Value(objectsKey{}).([]string)
	return objects
}

// RunInTransaction executes fn within a database transaction.
// If fn returns an error or panics, the transaction is rolled back and
// the failure propagated. Otherwise, the transaction is committed.
func RunInTransaction(ctx context.Context, db Beginner, fn TxFn) error {
	log := logger.FromContext(ctx)
	if objects := ObjectsFromContext(ctx); len(objects) > 0 {
		log = log.With(slog.Any("objects", objects))
	}
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if txErr := tx.Rollback(); txErr != nil {
				log.Error("failed to roll back transaction after panic",
					slog.String("error", txErr.Error()),
					slog.Any("panic", p))
			} else {
				log.Error("rolled back transaction after panic",
					slog.Any("panic", p))
			}
			// ALLOW-PANIC: Propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			log.Error("failed to roll back transaction",
				slog.String("rollback_error", rollbackErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf(
				"error rolling back transaction: %w: %v (original error: %w)",
				ErrRollbackFailed,
				rollbackErr,
				err,
			)
		}
		log.Debug("rolled back transaction",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrTransactionFailed, err)
	}

	log.Debug("transaction committed",
		slog.Duration("duration", time.Since(start)))
	return nil
}
