package change_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/change"
	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/fixture"
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

// TestAddUndoRoundTrip verifies adding a row between
// _order 2000 and 3000 lands it at 2500, and undoing the add removes it
// again, leaving max(_id) back where it was before the add.
func TestAddUndoRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	maxIDBefore, errE := d.QueryValue(ctx, `SELECT MAX("_id") FROM "penguin"`, nil)
	require.NoError(t, errE)
	require.EqualValues(t, 3, maxIDBefore)

	afterID := int64(2)
	_, errE = engine.SetValues(ctx, &change.ChangeSet{
		User:   "alice",
		Action: change.Do,
		Table:  "penguin",
		Changes: []change.Change{
			{Kind: change.Add, AfterID: &afterID},
		},
	})
	require.NoError(t, errE)

	order, errE := d.QueryValue(ctx, `SELECT "_order" FROM "penguin" WHERE "_id" = 4`, nil)
	require.NoError(t, errE)
	assert.EqualValues(t, 2500, order)

	_, errE = engine.Undo(ctx, "alice")
	require.NoError(t, errE)

	maxIDAfter, errE := d.QueryValue(ctx, `SELECT MAX("_id") FROM "penguin"`, nil)
	require.NoError(t, errE)
	assert.Equal(t, maxIDBefore, maxIDAfter)

	count, errE := d.QueryValue(ctx, `SELECT COUNT(1) FROM "penguin" WHERE "_id" = 4`, nil)
	require.NoError(t, errE)
	assert.EqualValues(t, 0, count)
}

// TestUndoRedoConvergesToPostDoState covers invariant 5: Do -> Undo ->
// Redo converges to the post-Do state.
func TestUndoRedoConvergesToPostDoState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: "penguin",
		Changes: []change.Change{{Kind: change.Update, Row: 1, Column: "species", Value: "Chinstrap"}},
	})
	require.NoError(t, errE)

	postDo, errE := d.QueryValue(ctx, `SELECT "species" FROM "penguin" WHERE "_id" = 1`, nil)
	require.NoError(t, errE)
	assert.Equal(t, "Chinstrap", postDo)

	_, errE = engine.Undo(ctx, "alice")
	require.NoError(t, errE)
	postUndo, errE := d.QueryValue(ctx, `SELECT "species" FROM "penguin" WHERE "_id" = 1`, nil)
	require.NoError(t, errE)
	assert.Equal(t, "Adelie", postUndo)

	_, errE = engine.Redo(ctx, "alice")
	require.NoError(t, errE)
	postRedo, errE := d.QueryValue(ctx, `SELECT "species" FROM "penguin" WHERE "_id" = 1`, nil)
	require.NoError(t, errE)
	assert.Equal(t, postDo, postRedo)
}

// TestReorderOnPrecisionExhaustion verifies repeatedly
// inserting between the same two neighbours eventually exhausts integer
// midpoint precision, triggering a reorder pass that the Add still
// succeeds through, and every row keeps a unique positive _order
// afterward (invariant 1).
func TestReorderOnPrecisionExhaustion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	afterID := int64(1)
	for i := 0; i < 20; i++ {
		_, errE := engine.SetValues(ctx, &change.ChangeSet{
			User: "alice", Action: change.Do, Table: "penguin",
			Changes: []change.Change{{Kind: change.Add, AfterID: &afterID}},
		})
		require.NoErrorf(t, errE, "insert %d", i)
	}

	rows, errE := d.Query(ctx, `SELECT "_id", "_order" FROM "penguin" ORDER BY "_order" ASC`, nil)
	require.NoError(t, errE)

	seen := map[int64]bool{}
	var last int64 = -1
	for _, row := range rows {
		orderV, _ := row.Get("_order")
		order := asInt64ForTest(t, orderV)
		require.Greaterf(t, order, int64(0), "order must be positive")
		require.Falsef(t, seen[order], "duplicate _order %d", order)
		seen[order] = true
		require.Greaterf(t, order, last, "orders must be strictly increasing in _order-sorted scan")
		last = order
	}
}

func asInt64ForTest(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		t.Fatalf("unexpected order type %T", v)
		return 0
	}
}

// TestReadonlyRefusesWrites covers the engine's readonly guard.
func TestReadonlyRefusesWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, true)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: "penguin",
		Changes: []change.Change{{Kind: change.Update, Row: 1, Column: "species", Value: "Chinstrap"}},
	})
	require.Error(t, errE)
}

// TestNonEditableTableRefusesWrites covers the editable-table guard:
// the service "change" table itself has no _order meta-column.
func TestNonEditableTableRefusesWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: "change",
		Changes: []change.Change{{Kind: change.Update, Row: 1, Column: "user", Value: "bob"}},
	})
	require.Error(t, errE)
}

// TestUpdateRejectsInjectedColumn covers the identifier-safety rule: an
// Update's column name is spliced directly into the emitted SQL, so a
// value that is not a simple identifier (e.g. one attempting to break
// out of the quoted identifier and append further SQL) must be rejected
// before it ever reaches the query, not merely fail as an unknown column.
func TestUpdateRejectsInjectedColumn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: "penguin",
		Changes: []change.Change{{Kind: change.Update, Row: 1, Column: `species" = 'x'; DROP TABLE "penguin`, Value: "Chinstrap"}},
	})
	require.Error(t, errE)

	species, errE := d.QueryValue(ctx, `SELECT "species" FROM "penguin" WHERE "_id" = 1`, nil)
	require.NoError(t, errE)
	assert.Equal(t, "Adelie", species)
}

// TestSetValuesRejectsInjectedTableName covers the same rule for the
// table name reaching LoadTable from a ChangeSet's Table field.
func TestSetValuesRejectsInjectedTableName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: `penguin"; DROP TABLE "penguin`,
		Changes: []change.Change{{Kind: change.Update, Row: 1, Column: "species", Value: "Chinstrap"}},
	})
	require.Error(t, errE)
}

// TestDeleteMissingRowFails covers the MissingError path for an
// addressed row that does not exist.
func TestDeleteMissingRowFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)
	engine := change.New(d, false)

	_, errE := engine.SetValues(ctx, &change.ChangeSet{
		User: "alice", Action: change.Do, Table: "penguin",
		Changes: []change.Change{{Kind: change.Delete, Row: 999}},
	})
	require.Error(t, errE)
}
