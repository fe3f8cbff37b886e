package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/query"
)

// TestFilterParse covers the URL-param scenario: {sample_number: "eq.5",
// limit: "1", offset: "2"} on path "penguin.json".
func TestFilterParse(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin.json", []query.KeyValue{
		{Key: "sample_number", Value: "eq.5"},
		{Key: "limit", Value: "1"},
		{Key: "offset", Value: "2"},
	})
	require.NoError(t, err)

	sql, params, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)

	assert.Equal(t, "SELECT *\nFROM \"penguin\"\nWHERE \"sample_number\" = ?\nORDER BY \"penguin\"._order ASC\nLIMIT 1\nOFFSET 2", sql)
	assert.Equal(t, []any{"5"}, params)
}

// TestQualifiedFilter covers a table-qualified filter key.
func TestQualifiedFilter(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin.json", []query.KeyValue{
		{Key: "foo.bar", Value: "eq.5"},
		{Key: "limit", Value: "1"},
	})
	require.NoError(t, err)

	sql, params, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)

	assert.Contains(t, sql, `WHERE "foo"."bar" = ?`)
	assert.Contains(t, sql, `ORDER BY "penguin"._order ASC`)
	assert.Equal(t, []any{"5"}, params)
}

// TestSubquery covers an InSubquery filter wrapping a
// joined inner select.
func TestSubquery(t *testing.T) {
	t.Parallel()

	inner := query.NewSelect("penguin").
		LeftJoin("penguin", "individual_id", "egg", "individual_id").
		Where(query.Filter{Column: "individual_id", Kind: query.Equal, Value: "N1"})
	inner.Select("penguin", "individual_id", "")

	outer := query.NewSelect("penguin").
		Where(query.Filter{
			Kind:     query.InSubquery,
			Column:   "individual_id",
			Subquery: inner,
		})

	sql, params, errE := outer.ToSQL(db.Sqlite)
	require.NoError(t, errE)

	assert.Contains(t, sql, `"individual_id" IN (`)
	assert.Contains(t, sql, "  SELECT")
	assert.Contains(t, sql, `LEFT JOIN "egg" ON "penguin"."individual_id" = "egg"."individual_id"`)
	assert.Equal(t, []any{"N1"}, params)
}

// TestCountStripsOrdering verifies ToSQLCount strips
// ORDER/LIMIT/OFFSET from the outer select and from an inner
// InSubquery's own form.
func TestCountStripsOrdering(t *testing.T) {
	t.Parallel()

	inner := query.NewSelect("penguin").
		OrderBy("", "sample_number", query.Asc)
	inner.Limit = 5

	outer := query.NewSelect("penguin").
		Where(query.Filter{
			Kind:     query.InSubquery,
			Column:   "individual_id",
			Subquery: inner,
		})
	outer.OrderBy("", "sample_number", query.Desc)
	outer.Limit = 10

	sql, _, errE := outer.ToSQLCount(db.Sqlite)
	require.NoError(t, errE)

	assert.Contains(t, sql, `SELECT COUNT(1) AS "count"`)
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "OFFSET")
}

// TestToSQLAndCountShareParams covers invariant 7: to_sql and
// to_sql_count produce identical parameter vectors.
func TestToSQLAndCountShareParams(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Column: "species", Kind: query.Equal, Value: "Adelie"}).
		Where(query.Filter{Column: "island", Kind: query.NotEqual, Value: "Biscoe"})
	s.Limit = 1
	s.Offset = 2

	_, sqlParams, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)
	_, countParams, errE := s.ToSQLCount(db.Sqlite)
	require.NoError(t, errE)

	assert.Equal(t, sqlParams, countParams)
}

// TestNotEqualUsesDiamond verifies NotEqual renders SQL "<>", not "!=".
func TestNotEqualUsesDiamond(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Column: "species", Kind: query.NotEqual, Value: "Adelie"})

	sql, _, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)
	assert.Contains(t, sql, `"species" <> ?`)
	assert.NotContains(t, sql, "!=")
}

// TestPostgresIsDistinctFrom confirms the dialect-specific Is/IsNot forms.
func TestPostgresIsDistinctFrom(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Column: "island", Kind: query.Is, Value: nil})

	sql, _, errE := s.ToSQL(db.Postgres)
	require.NoError(t, errE)
	assert.Contains(t, sql, `"island" IS NOT DISTINCT FROM $1`)

	sqlite, _, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)
	assert.Contains(t, sqlite, `"island" IS ?`)
}

// TestMixedTypeInFails confirms In/NotIn reject mixed-type arrays.
func TestMixedTypeInFails(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Column: "sample_number", Kind: query.In, Value: []any{1.0, "two"}})

	_, _, errE := s.ToSQL(db.Sqlite)
	require.Error(t, errE)
}

// TestInvalidIdentifierRejected confirms an
// attempted-injection string in an identifier position fails closed
// rather than being interpolated.
func TestInvalidIdentifierRejected(t *testing.T) {
	t.Parallel()

	s := query.NewSelect(`penguin"; DROP TABLE penguin; --`)
	_, _, errE := s.ToSQL(db.Sqlite)
	require.Error(t, errE)

	s2 := query.NewSelect("penguin").
		Where(query.Filter{Column: `species"; --`, Kind: query.Equal, Value: "Adelie"})
	_, _, errE = s2.ToSQL(db.Sqlite)
	require.Error(t, errE)
}

// TestChangeIDFilterInjectsSubquery covers the synthetic _change_id
// projection.
func TestChangeIDFilterInjectsSubquery(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Column: "_change_id", Kind: query.Equal, Value: 3.0})

	sql, params, errE := s.ToSQL(db.Sqlite)
	require.NoError(t, errE)

	assert.Contains(t, sql, `AS "_change_id"`)
	assert.Contains(t, sql, `FROM "history" WHERE "table" = ?`)
	// The correlated subquery's own table-name parameter comes first,
	// ahead of any real WHERE-clause parameters.
	require.Len(t, params, 1)
	assert.Equal(t, "penguin", params[0])
	assert.NotContains(t, sql, `WHERE "_change_id"`)
}
