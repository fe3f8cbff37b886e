package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
)

func newTestDB(t *testing.T) db.DB {
	t.Helper()
	ctx := context.Background()
	d, errE := db.Connect(ctx, t.TempDir()+"/test.db")
	require.NoError(t, errE)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, execSQL(t, d, `CREATE TABLE "t" ("id" INTEGER PRIMARY KEY, "n" REAL, "s" TEXT, "b" INTEGER)`))
	return d
}

func execSQL(t *testing.T, d db.DB, sql string) errors.E {
	t.Helper()
	_, errE := d.Query(context.Background(), sql, nil)
	return errE
}

func TestBindParamsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	_, errE := d.Query(ctx, `INSERT INTO "t" ("id", "n", "s", "b") VALUES (?, ?, ?, ?)`, []any{1, 1.5, "hello", nil})
	require.NoError(t, errE)

	row, errE := d.QueryOne(ctx, `SELECT * FROM "t" WHERE "id" = ?`, []any{1})
	require.NoError(t, errE)
	require.NotNil(t, row)

	n, _ := row.Get("n")
	assert.Equal(t, 1.5, n)
	s, _ := row.Get("s")
	assert.Equal(t, "hello", s)
	b, _ := row.Get("b")
	assert.Nil(t, b)
}

func TestBindParamsRejectsUnsupportedType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	_, errE := d.Query(ctx, `INSERT INTO "t" ("id") VALUES (?)`, []any{struct{}{}})
	require.Error(t, errE)
}

func TestQueryValueNoRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	v, errE := d.QueryValue(ctx, `SELECT "id" FROM "t" WHERE "id" = ?`, []any{999})
	require.NoError(t, errE)
	assert.Nil(t, v)
}

func TestBeginCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tx, errE := d.Begin(ctx)
	require.NoError(t, errE)
	_, errE = tx.Query(ctx, `INSERT INTO "t" ("id") VALUES (?)`, []any{42})
	require.NoError(t, errE)
	require.NoError(t, tx.Commit(ctx))

	v, errE := d.QueryValue(ctx, `SELECT "id" FROM "t" WHERE "id" = ?`, []any{42})
	require.NoError(t, errE)
	assert.EqualValues(t, 42, v)
}
