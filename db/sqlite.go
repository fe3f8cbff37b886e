package db

import (
	"context"
	"database/sql"
	"runtime"
	"sync"

	"gitlab.com/tozd/go/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"gitlab.com/rltbl/relatable/rerr"
)

// sqliteDB is the embedded back-end. modernc.org/sqlite is pure Go (no
// cgo), matching the choice already made by the other repos in this
// codebase's lineage. A single process-level mutex serialises writers:
// Begin acquires it and Commit (or the Tx being dropped) releases it.
// Reads do not acquire it — SQLite itself serialises readers against
// the single writer under WAL.
type sqliteDB struct {
	conn   *sql.DB
	mu     sync.Mutex
	closed bool
}

func connectSqlite(ctx context.Context, path string) (DB, errors.E) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, rerr.IO(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, rerr.IO(err)
	}
	return &sqliteDB{conn: conn}, nil
}

func (d *sqliteDB) Kind() Kind { return Sqlite }

func (d *sqliteDB) Query(ctx context.Context, query string, params []any) ([]*Row, errors.E) {
	bound, errE := bindParams(params)
	if errE != nil {
		return nil, errE
	}
	rows, err := d.conn.QueryContext(ctx, query, bound...)
	if err != nil {
		return nil, rerr.Data("sqlite query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (d *sqliteDB) QueryOne(ctx context.Context, query string, params []any) (*Row, errors.E) {
	return queryOne(ctx, d, query, params)
}

func (d *sqliteDB) QueryValue(ctx context.Context, query string, params []any) (any, errors.E) {
	return queryValue(ctx, d, query, params)
}

func (d *sqliteDB) Begin(ctx context.Context) (Tx, errors.E) {
	d.mu.Lock()
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		d.mu.Unlock()
		return nil, rerr.Data("sqlite begin failed: %w", err)
	}
	t := &sqliteTx{tx: tx, release: d.mu.Unlock}
	// A Tx that is dropped without Commit rolls back: we have no language-level
	// destructor, so a finalizer plays that role, keeping the "no explicit
	// rollback" contract of the Tx interface.
	runtime.SetFinalizer(t, (*sqliteTx).rollbackIfUnfinished)
	return t, nil
}

func (d *sqliteDB) Close() errors.E {
	if err := d.conn.Close(); err != nil {
		return rerr.IO(err)
	}
	return nil
}

type sqliteTx struct {
	tx       *sql.Tx
	release  func()
	finished bool
}

func (t *sqliteTx) Kind() Kind { return Sqlite }

func (t *sqliteTx) Query(ctx context.Context, query string, params []any) ([]*Row, errors.E) {
	bound, errE := bindParams(params)
	if errE != nil {
		return nil, errE
	}
	rows, err := t.tx.QueryContext(ctx, query, bound...)
	if err != nil {
		return nil, rerr.Data("sqlite query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (t *sqliteTx) QueryOne(ctx context.Context, query string, params []any) (*Row, errors.E) {
	rows, errE := t.Query(ctx, query, params)
	if errE != nil {
		return nil, errE
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *sqliteTx) QueryValue(ctx context.Context, query string, params []any) (any, errors.E) {
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

func (t *sqliteTx) Commit(ctx context.Context) errors.E {
	if t.finished {
		return nil
	}
	t.finished = true
	runtime.SetFinalizer(t, nil)
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		_ = t.tx.Rollback()
		return rerr.Data("sqlite commit failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) rollbackIfUnfinished() {
	if t.finished {
		return
	}
	t.finished = true
	_ = t.tx.Rollback()
	t.release()
}
