package relatable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCellValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(42), parseCellValue("42"))
	assert.Equal(t, true, parseCellValue("true"))
	assert.Equal(t, nil, parseCellValue("null"))
	assert.Equal(t, "Adelie", parseCellValue("Adelie"))
	assert.Equal(t, "Adelie", parseCellValue(`"Adelie"`))
}

func TestParseCells(t *testing.T) {
	t.Parallel()

	cells, errE := parseCells([]string{"species=Adelie", "weight=3200"})
	require.NoError(t, errE)

	species, ok := cells.Get("species")
	require.True(t, ok)
	assert.Equal(t, "Adelie", species)

	weight, ok := cells.Get("weight")
	require.True(t, ok)
	assert.Equal(t, float64(3200), weight)
}

func TestParseCellsRejectsMissingEquals(t *testing.T) {
	t.Parallel()

	_, errE := parseCells([]string{"species"})
	require.Error(t, errE)
}
