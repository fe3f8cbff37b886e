package query_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/query"
)

// TestURLRoundTrip covers invariant 6: to_url(to_sql⁻¹(select))
// round-trips any Select built only from Column projections,
// non-subquery filters, and no joins.
func TestURLRoundTrip(t *testing.T) {
	t.Parallel()

	original, err := query.ParseURL("penguin.json", []query.KeyValue{
		{Key: "select", Value: "species"},
		{Key: "species", Value: `eq."Adelie"`},
		{Key: "island", Value: "not_eq.Biscoe"},
		{Key: "order", Value: "sample_number.desc"},
		{Key: "limit", Value: "10"},
		{Key: "offset", Value: "5"},
	})
	require.NoError(t, err)

	rendered, err := original.ToURL("/api", "json")
	require.NoError(t, err)

	path, params := parseRenderedURL(t, rendered)
	reparsed, err := query.ParseURL(path, params)
	require.NoError(t, err)

	reurl, err := reparsed.ToURL("/api", "json")
	require.NoError(t, err)

	assert.Equal(t, rendered, reurl)
}

// TestJoinCannotRoundTrip confirms a select carrying a join refuses
// ToParams/ToURL.
func TestJoinCannotRoundTrip(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").LeftJoin("penguin", "individual_id", "egg", "individual_id")
	_, err := s.ToParams()
	require.Error(t, err)
}

// TestSubqueryFilterCannotRoundTrip confirms a subquery filter refuses
// ToParams/ToURL.
func TestSubqueryFilterCannotRoundTrip(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").
		Where(query.Filter{Kind: query.InSubquery, Column: "individual_id", Subquery: query.NewSelect("egg")})
	_, err := s.ToParams()
	require.Error(t, err)
}

// TestExpressionFieldCannotRoundTrip confirms an expression projection
// refuses ToParams/ToURL.
func TestExpressionFieldCannotRoundTrip(t *testing.T) {
	t.Parallel()

	s := query.NewSelect("penguin").SelectExpr("count(1)", "n")
	_, err := s.ToParams()
	require.Error(t, err)
}

// parseRenderedURL splits a ToURL result (e.g. "/api/penguin.json?a=b")
// back into the table.ext path segment and ordered query parameters.
func parseRenderedURL(t *testing.T, rendered string) (string, []query.KeyValue) {
	t.Helper()

	pathPart, queryPart, _ := strings.Cut(rendered, "?")
	i := strings.LastIndexByte(pathPart, '/')
	path := pathPart
	if i >= 0 {
		path = pathPart[i+1:]
	}

	var params []query.KeyValue
	if queryPart != "" {
		for _, kv := range strings.Split(queryPart, "&") {
			k, v, _ := strings.Cut(kv, "=")
			key, err := url.QueryUnescape(k)
			require.NoError(t, err)
			value, err := url.QueryUnescape(v)
			require.NoError(t, err)
			params = append(params, query.KeyValue{Key: key, Value: value})
		}
	}
	return path, params
}
