package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/query"
)

func TestParseURLTableFromPath(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin.pretty.json", nil)
	require.NoError(t, err)
	assert.Equal(t, "penguin", s.TableName)
}

func TestParseURLIsNull(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin", []query.KeyValue{
		{Key: "individual_id", Value: "is.null"},
		{Key: "egg_id", Value: "is_not.NULL"},
	})
	require.NoError(t, err)
	require.Len(t, s.Filters, 2)
	assert.Equal(t, query.Is, s.Filters[0].Kind)
	assert.Nil(t, s.Filters[0].Value)
	assert.Equal(t, query.IsNot, s.Filters[1].Kind)
	assert.Nil(t, s.Filters[1].Value)
}

func TestParseURLInList(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin", []query.KeyValue{
		{Key: "species", Value: "in.(Adelie,Gentoo)"},
	})
	require.NoError(t, err)
	require.Len(t, s.Filters, 1)
	assert.Equal(t, query.In, s.Filters[0].Kind)
	assert.Equal(t, []any{"Adelie", "Gentoo"}, s.Filters[0].Value)
}

func TestParseURLInvalidPrefixIgnored(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin", []query.KeyValue{
		{Key: "bogus.prefix.here", Value: "whatever"},
	})
	require.NoError(t, err)
	assert.Empty(t, s.Filters)
}

func TestParseURLInvalidLimitFails(t *testing.T) {
	t.Parallel()

	_, err := query.ParseURL("penguin", []query.KeyValue{{Key: "limit", Value: "not-a-number"}})
	require.Error(t, err)
}

func TestParseURLQualifiedFilterKey(t *testing.T) {
	t.Parallel()

	s, err := query.ParseURL("penguin", []query.KeyValue{
		{Key: "foo.bar", Value: "eq.5"},
	})
	require.NoError(t, err)
	require.Len(t, s.Filters, 1)
	assert.Equal(t, "foo", s.Filters[0].Table)
	assert.Equal(t, "bar", s.Filters[0].Column)
}
