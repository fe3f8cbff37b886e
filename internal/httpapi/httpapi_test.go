package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rltbl/relatable/rerr"
)

func TestSplitFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		segment string
		name    string
		format  Format
	}{
		{"penguin", "penguin", HTML},
		{"penguin.html", "penguin", HTML},
		{"penguin.json", "penguin", JSON},
		{"penguin.pretty.json", "penguin", PrettyJSON},
		{"penguin.value.json", "penguin", ValueJSON},
	}
	for _, c := range cases {
		name, format, errE := splitFormat(c.segment)
		require.NoError(t, errE)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.format, format)
	}
}

func TestSplitFormatUnknownSuffix(t *testing.T) {
	t.Parallel()

	_, _, errE := splitFormat("penguin.xml")
	require.Error(t, errE)
	assert.ErrorIs(t, errE, rerr.ErrFormat)
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 404, StatusCode(rerr.Missing("nope")))
	assert.Equal(t, 404, StatusCode(rerr.Format("nope")))
	assert.Equal(t, 403, StatusCode(rerr.User("nope")))
	assert.Equal(t, 500, StatusCode(rerr.Input("nope")))
}
