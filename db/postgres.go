package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	store "gitlab.com/rltbl/relatable/internal/pgxstore"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
)

type postgresDB struct {
	pool *pgxpool.Pool
}

func connectPostgres(ctx context.Context, uri string) (DB, errors.E) {
	pool, errE := store.InitPostgres(ctx, uri, zerolog.Nop())
	if errE != nil {
		return nil, errE
	}
	return &postgresDB{pool: pool}, nil
}

func (d *postgresDB) Kind() Kind { return Postgres }

func (d *postgresDB) Query(ctx context.Context, query string, params []any) ([]*Row, errors.E) {
	bound, errE := bindParams(params)
	if errE != nil {
		return nil, errE
	}
	rows, err := d.pool.Query(ctx, query, bound...)
	if err != nil {
		return nil, store.WithPgxError(err)
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (d *postgresDB) QueryOne(ctx context.Context, query string, params []any) (*Row, errors.E) {
	return queryOne(ctx, d, query, params)
}

func (d *postgresDB) QueryValue(ctx context.Context, query string, params []any) (any, errors.E) {
	return queryValue(ctx, d, query, params)
}

func (d *postgresDB) Begin(ctx context.Context) (Tx, errors.E) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, store.WithPgxError(err)
	}
	return &postgresTx{tx: tx}, nil
}

func (d *postgresDB) Close() errors.E {
	d.pool.Close()
	return nil
}

type postgresTx struct {
	tx       pgx.Tx
	finished bool
}

func (t *postgresTx) Kind() Kind { return Postgres }

func (t *postgresTx) Query(ctx context.Context, query string, params []any) ([]*Row, errors.E) {
	bound, errE := bindParams(params)
	if errE != nil {
		return nil, errE
	}
	rows, err := t.tx.Query(ctx, query, bound...)
	if err != nil {
		return nil, store.WithPgxError(err)
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (t *postgresTx) QueryOne(ctx context.Context, query string, params []any) (*Row, errors.E) {
	rows, errE := t.Query(ctx, query, params)
	if errE != nil {
		return nil, errE
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *postgresTx) QueryValue(ctx context.Context, query string, params []any) (any, errors.E) {
	row, errE := t.QueryOne(ctx, query, params)
	if errE != nil {
		return nil, errE
	}
	if row == nil || row.Len() == 0 {
		return nil, nil
	}
	v, _ := row.Get(row.Keys()[0])
	return v, nil
}

func (t *postgresTx) Commit(ctx context.Context) errors.E {
	if t.finished {
		return nil
	}
	t.finished = true
	err := t.tx.Commit(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return store.WithPgxError(err)
	}
	return nil
}

// Transact runs fn inside a transaction, retrying automatically when the
// server back-end reports a serialization conflict between concurrent
// writers. The embedded back-end's writer mutex makes such conflicts
// impossible, so there fn always runs exactly once.
func Transact(ctx context.Context, d DB, fn func(ctx context.Context, tx Tx) errors.E) errors.E {
	pg, ok := d.(*postgresDB)
	if !ok {
		tx, errE := d.Begin(ctx)
		if errE != nil {
			return errE
		}
		if errE := fn(ctx, tx); errE != nil {
			// Roll back eagerly rather than waiting for the dropped Tx's
			// finalizer: the embedded back-end's writer mutex is held
			// until the transaction finishes either way.
			if rb, ok := tx.(interface{ rollbackIfUnfinished() }); ok {
				rb.rollbackIfUnfinished()
			}
			return errE
		}
		return tx.Commit(ctx)
	}

	return store.RetryTransaction(ctx, pg.pool, pgx.ReadWrite, func(ctx context.Context, pgtx pgx.Tx) errors.E {
		return fn(ctx, &postgresTx{tx: pgtx})
	})
}

func scanPgxRows(rows pgx.Rows) ([]*Row, errors.E) {
	fields := rows.FieldDescriptions()
	var result []*Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, store.WithPgxError(err)
		}
		row := ordered.New[any]()
		for i, f := range fields {
			v, errE := normalizePgxValue(values[i])
			if errE != nil {
				return nil, errE
			}
			row.Set(string(f.Name), v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WithPgxError(err)
	}
	return result, nil
}

func normalizePgxValue(v any) (any, errors.E) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return t, nil
	case int32:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case []byte:
		return nil, rerr.Input("binary values are not supported in query results")
	default:
		// pgx returns concrete wrapper types (e.g. pgtype.Numeric) for many
		// column types; render them through their Stringer as a last resort.
		if s, ok := v.(interface{ String() string }); ok {
			return s.String(), nil
		}
		return nil, rerr.Input("unexpected value type %T in query result", v)
	}
}
