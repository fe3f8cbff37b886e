// Package db presents a single surface over the two SQL back-ends the
// core supports — an embedded, single-file engine (SQLite, via
// modernc.org/sqlite) and a server engine (PostgreSQL, via jackc/pgx) —
// hiding parameter-placeholder differences and locking differences
// between them.
//
// Every operation takes a context.Context and is a suspension point:
// callers that need a deadline impose one there: the core itself never
// times out an operation on its own.
package db

import (
	"context"
	"strings"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
)

// Kind names a supported SQL dialect.
type Kind int

const (
	// Sqlite is the embedded, single-file back-end.
	Sqlite Kind = iota
	// Postgres is the server back-end.
	Postgres
)

func (k Kind) String() string {
	switch k {
	case Sqlite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// Row is one database row as an ordered map of column name to typed
// value. Typed values are one of nil, bool, int64, float64, or string;
// the core never hands callers a raw driver type.
type Row = ordered.Map[any]

// DB is the uniform connection surface the rest of the core programs
// against. Implementations: *sqliteDB (embedded), *postgresDB (server).
type DB interface {
	// Kind reports which dialect this connection speaks, used by the
	// SQL emitter to choose placeholder style and dialect fragments.
	Kind() Kind

	// Query executes sql with positional params and returns every
	// resulting row, in order, as an ordered map of column to value.
	Query(ctx context.Context, sql string, params []any) ([]*Row, errors.E)

	// QueryOne returns the first row only, or nil if there were none.
	QueryOne(ctx context.Context, sql string, params []any) (*Row, errors.E)

	// QueryValue returns the first column of the first row, or nil if
	// there were no rows.
	QueryValue(ctx context.Context, sql string, params []any) (any, errors.E)

	// Begin opens a transaction. The writer lock (embedded back-end)
	// or pool connection (server back-end) is held until Commit is
	// called or the Tx is dropped, which rolls it back.
	Begin(ctx context.Context) (Tx, errors.E)

	// Close releases the underlying connection or pool.
	Close() errors.E
}

// Tx is an open transaction. There is no explicit Rollback: dropping an
// uncommitted Tx (letting it be garbage collected, or the process
// exiting) rolls it back.
type Tx interface {
	// Kind reports the dialect of the connection this Tx was opened
	// on, so callers building raw SQL outside the query/emit package
	// (the mutation engine, the catalogue loader) know which
	// placeholder style to interpolate.
	Kind() Kind

	Query(ctx context.Context, sql string, params []any) ([]*Row, errors.E)
	QueryOne(ctx context.Context, sql string, params []any) (*Row, errors.E)
	QueryValue(ctx context.Context, sql string, params []any) (any, errors.E)
	Commit(ctx context.Context) errors.E
}

// Connect opens a database. A connection string beginning with
// "postgres://" or "postgresql://" opens the server back-end; anything
// else is treated as a file path for the embedded engine, created if
// it does not already exist.
func Connect(ctx context.Context, connection string) (DB, errors.E) {
	if strings.HasPrefix(connection, "postgres://") || strings.HasPrefix(connection, "postgresql://") {
		return connectPostgres(ctx, connection)
	}
	return connectSqlite(ctx, connection)
}

// bindParams validates a caller-supplied parameter list: numbers bind as int64 when representable, otherwise
// float64; strings as text; nil as null; anything else is rejected.
func bindParams(params []any) ([]any, errors.E) {
	bound := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil:
			bound[i] = nil
		case bool:
			bound[i] = v
		case string:
			bound[i] = v
		case int:
			bound[i] = int64(v)
		case int32:
			bound[i] = int64(v)
		case int64:
			bound[i] = v
		case float32:
			bound[i] = coerceFloat(float64(v))
		case float64:
			bound[i] = coerceFloat(v)
		default:
			return nil, rerr.Input("cannot bind parameter of type %T", p)
		}
	}
	return bound, nil
}

// coerceFloat binds a number as int64 when it is exactly representable,
// otherwise leaves it as float64.
func coerceFloat(v float64) any {
	if i := int64(v); float64(i) == v {
		return i
	}
	return v
}
