package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/tozd/go/errors"
)

const maxRetries = 10

// ErrMaxRetriesReached is returned when a transaction could not commit
// after maxRetries serialization-failure retries.
var ErrMaxRetriesReached = errors.Base("max retries reached")

// RetryTransaction executes fn inside a serializable PostgreSQL
// transaction, retrying automatically on serialization failures and
// deadlocks. This is how the server back-end keeps readers on a
// snapshot with no dirty reads, without the embedded back-end's
// process-level writer mutex.
func RetryTransaction(
	ctx context.Context, dbpool *pgxpool.Pool, accessMode pgx.TxAccessMode,
	fn func(ctx context.Context, tx pgx.Tx) errors.E,
) errors.E {
	for i := 0; i < maxRetries; i++ {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}

		errE := func() (errE errors.E) { //nolint:nonamedreturns
			tx, err := dbpool.BeginTx(ctx, pgx.TxOptions{
				IsoLevel:   pgx.Serializable,
				AccessMode: accessMode,
			})
			if err != nil {
				return WithPgxError(err)
			}
			defer func() {
				rollbackErr := tx.Rollback(ctx)
				if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
					errE = errors.Join(errE, rollbackErr)
				}
			}()

			errE = fn(ctx, tx)
			if errE != nil {
				return errE
			}

			err = tx.Commit(ctx)
			if err != nil && (errors.Is(err, pgx.ErrTxClosed) || errors.Is(err, pgx.ErrTxCommitRollback)) {
				// fn already committed or rolled back explicitly.
				return nil
			}
			return WithPgxError(err)
		}()

		if errE != nil {
			if errors.Is(errE, context.Canceled) || errors.Is(errE, context.DeadlineExceeded) {
				return errE
			}
			var pgError *pgconn.PgError
			if errors.As(errE, &pgError) {
				// See: https://www.postgresql.org/docs/current/mvcc-serialization-failure-handling.html
				switch pgError.Code {
				case ErrorCodeSerializationFailure, ErrorCodeDeadlockDetected:
					continue
				}
			}
			return errE
		}
		return nil
	}

	return errors.WithStack(ErrMaxRetriesReached)
}
