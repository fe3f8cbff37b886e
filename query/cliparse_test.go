package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/query"
)

func TestParseCLIFilterOperators(t *testing.T) {
	t.Parallel()

	cases := []struct {
		expr   string
		kind   query.FilterKind
		column string
		value  any
	}{
		{`species = "Adelie"`, query.Equal, "species", "Adelie"},
		{"sample_number != 5", query.NotEqual, "sample_number", 5.0},
		{"sample_number >= 5", query.GreaterThanOrEqual, "sample_number", 5.0},
		{"sample_number <= 5", query.LessThanOrEqual, "sample_number", 5.0},
		{"sample_number > 5", query.GreaterThan, "sample_number", 5.0},
		{"sample_number < 5", query.LessThan, "sample_number", 5.0},
		{`species ~= "Ade*"`, query.Like, "species", "Ade*"},
		{"individual_id IS NOT NULL", query.IsNot, "individual_id", nil},
		{"individual_id IS NULL", query.Is, "individual_id", nil},
	}

	for _, c := range cases {
		f, err := query.ParseCLIFilter(c.expr)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.kind, f.Kind, c.expr)
		assert.Equal(t, c.column, f.Column, c.expr)
		assert.Equal(t, c.value, f.Value, c.expr)
	}
}

func TestParseCLIFilterIn(t *testing.T) {
	t.Parallel()

	f, err := query.ParseCLIFilter("sample_number IN (1,2,3)")
	require.NoError(t, err)
	assert.Equal(t, query.In, f.Kind)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, f.Value)

	f, err = query.ParseCLIFilter("sample_number NOT IN (1,2)")
	require.NoError(t, err)
	assert.Equal(t, query.NotIn, f.Kind)
	assert.Equal(t, []any{1.0, 2.0}, f.Value)
}

func TestParseCLIFilterUnparseable(t *testing.T) {
	t.Parallel()

	_, err := query.ParseCLIFilter("this is not a filter")
	require.Error(t, err)
}

func TestParseCLIFilterQualifiedColumn(t *testing.T) {
	t.Parallel()

	f, err := query.ParseCLIFilter(`penguin.species = "Adelie"`)
	require.NoError(t, err)
	assert.Equal(t, "penguin", f.Table)
	assert.Equal(t, "species", f.Column)
}
