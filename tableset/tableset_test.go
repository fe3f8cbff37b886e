package tableset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/fixture"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/tableset"
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

// TestPlanSingleTableUnchanged covers the planner's short-circuit: a select
// whose filters reference only its own base table is returned unchanged.
func TestPlanSingleTableUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	sel := query.NewSelect("egg").Where(query.Filter{Column: "egg_id", Kind: query.Equal, Value: "E1"})
	planned, errE := tableset.Plan(ctx, d, fixture.TablesetName, sel)
	require.NoError(t, errE)
	assert.Same(t, sel, planned)
}

// TestPlanBuildsJoinChain verifies that a filter on a table other than
// the base table builds a left-join chain across the intervening
// tableset members and wraps the result as a single InSubquery filter.
// The chain must stop at "penguin": "study" sits at _order 1000, below
// the referenced tables' (penguin=2000, egg=3000) minimum, so the
// BETWEEN trim excludes it even though the "using"/"distinct" graph
// walk would otherwise reach it.
func TestPlanBuildsJoinChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	sel := query.NewSelect("egg").
		Where(query.Filter{Table: "penguin", Column: "species", Kind: query.Equal, Value: "Adelie"})

	planned, errE := tableset.Plan(ctx, d, fixture.TablesetName, sel)
	require.NoError(t, errE)

	require.Equal(t, "egg", planned.TableName)
	require.Len(t, planned.Filters, 1)
	f := planned.Filters[0]
	assert.Equal(t, query.InSubquery, f.Kind)
	assert.Equal(t, "egg_id", f.Column)
	require.NotNil(t, f.Subquery)

	inner := f.Subquery
	assert.Equal(t, "penguin", inner.TableName)
	require.Len(t, inner.Joins, 1)
	assert.Equal(t, "penguin", inner.Joins[0].LeftTable)
	assert.Equal(t, "individual_id", inner.Joins[0].LeftColumn)
	assert.Equal(t, "egg", inner.Joins[0].RightTable)
	assert.Equal(t, "individual_id", inner.Joins[0].RightColumn)

	require.Len(t, inner.Filters, 1)
	assert.Equal(t, "species", inner.Filters[0].Column)

	sql, params, errE := planned.ToSQL(db.Sqlite)
	require.NoError(t, errE)
	assert.Contains(t, sql, `"egg_id" IN (`)
	assert.NotContains(t, sql, `"study"`)
	assert.Contains(t, sql, `LEFT JOIN "egg" ON "penguin"."individual_id" = "egg"."individual_id"`)
	assert.Equal(t, []any{"Adelie"}, params)
}

// TestPlanUnknownTableFails covers the error path when a filtered
// table is not part of the named tableset.
func TestPlanUnknownTableFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	sel := query.NewSelect("egg").
		Where(query.Filter{Table: "nonexistent", Column: "x", Kind: query.Equal, Value: 1.0})
	_, errE := tableset.Plan(ctx, d, fixture.TablesetName, sel)
	require.Error(t, errE)
}

// TestPlanUnknownTablesetFails covers the MissingError path for an
// unconfigured tableset name.
func TestPlanUnknownTablesetFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	sel := query.NewSelect("egg").
		Where(query.Filter{Table: "penguin", Column: "species", Kind: query.Equal, Value: "Adelie"})
	_, errE := tableset.Plan(ctx, d, "no-such-tableset", sel)
	require.Error(t, errE)
}
