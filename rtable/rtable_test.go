package rtable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/fixture"
	"gitlab.com/rltbl/relatable/rtable"
)

func newTestDB(t *testing.T) db.DB {
	t.Helper()
	ctx := context.Background()
	d, errE := db.Connect(ctx, t.TempDir()+"/test.db")
	require.NoError(t, errE)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, fixture.Build(ctx, d))
	return d
}

func TestLoadTableEditable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tbl, errE := rtable.LoadTable(ctx, d, "penguin")
	require.NoError(t, errE)
	assert.True(t, tbl.HasMeta)
	assert.True(t, tbl.Editable)
	assert.Equal(t, "penguin_default_view", tbl.View)
	assert.True(t, tbl.Columns.Has("species"))
	assert.True(t, tbl.Columns.Has("_id"))
}

func TestLoadTableNonEditable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tbl, errE := rtable.LoadTable(ctx, d, "change")
	require.NoError(t, errE)
	assert.False(t, tbl.HasMeta)
	assert.False(t, tbl.Editable)
}

func TestLoadTableMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	_, errE := rtable.LoadTable(ctx, d, "nonexistent")
	require.Error(t, errE)
}

func TestNonMetaColumnsExcludesMeta(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tbl, errE := rtable.LoadTable(ctx, d, "penguin")
	require.NoError(t, errE)
	for _, c := range tbl.NonMetaColumns() {
		assert.NotEqual(t, "_id", c.Name)
		assert.NotEqual(t, "_order", c.Name)
	}
}

func TestPrepareNewAndAsInsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tbl, errE := rtable.LoadTable(ctx, d, "penguin")
	require.NoError(t, errE)

	tx, errE := d.Begin(ctx)
	require.NoError(t, errE)

	row, errE := rtable.PrepareNew(ctx, tx, tbl)
	require.NoError(t, errE)
	assert.Equal(t, int64(4), row.ID)
	assert.Equal(t, int64(4000), row.Order)

	for _, col := range tbl.NonMetaColumns() {
		cell, ok := row.Cells.Get(col.Name)
		require.True(t, ok)
		assert.Nil(t, cell.Value)
	}

	cell, _ := row.Cells.Get("species")
	cell.Value = "Gentoo"
	row.Cells.Set("species", cell)

	ph := db.NewPlaceholders(d.Kind())
	sql, params := rtable.AsInsert(row, tbl.Name, ph)
	assert.Contains(t, sql, `INSERT INTO "penguin"`)
	assert.Contains(t, sql, `"_id"`)
	assert.Contains(t, sql, `"_order"`)
	assert.Contains(t, params, "Gentoo")

	_, errE = tx.Query(ctx, sql, params)
	require.NoError(t, errE)
	require.NoError(t, tx.Commit(ctx))

	v, errE := d.QueryValue(ctx, `SELECT "species" FROM "penguin" WHERE "_id" = 4`, nil)
	require.NoError(t, errE)
	assert.Equal(t, "Gentoo", v)
}

func TestFromDBRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tbl, errE := rtable.LoadTable(ctx, d, "penguin")
	require.NoError(t, errE)

	raw, errE := d.QueryOne(ctx, `SELECT * FROM "penguin" WHERE "_id" = 1`, nil)
	require.NoError(t, errE)
	require.NotNil(t, raw)

	row, errE := rtable.FromDBRow(tbl, raw)
	require.NoError(t, errE)
	assert.Equal(t, int64(1), row.ID)
	assert.Equal(t, int64(1000), row.Order)
	species, ok := row.Cells.Get("species")
	require.True(t, ok)
	assert.Equal(t, "Adelie", species.Value)
	assert.Equal(t, "Adelie", species.Text)
}

func TestRenderText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", rtable.RenderText(nil))
	assert.Equal(t, "true", rtable.RenderText(true))
	assert.Equal(t, "false", rtable.RenderText(false))
	assert.Equal(t, "5", rtable.RenderText(int64(5)))
	assert.Equal(t, "5.5", rtable.RenderText(5.5))
	assert.Equal(t, "x", rtable.RenderText("x"))
}
