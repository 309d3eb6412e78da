package geo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoundsReader struct {
	bounds map[string]Bounds
}

func (f *fakeBoundsReader) ReadBounds(path string) (Bounds, error) {
	b, ok := f.bounds[path]
	if !ok {
		return Bounds{}, assert.AnError
	}
	return b, nil
}

var worldCovering = Bounds{West: -180, South: -90, East: 180, North: 90}

func smallAOI() json.RawMessage {
	return json.RawMessage(`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`)
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize(json.RawMessage(`{"b":1,"a":2}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":1}`, string(out))
}

func TestEqualIgnoresKeyOrderAndNumericForm(t *testing.T) {
	eq, err := Equal(json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`{"b":2.0,"a":1.0}`))
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(json.RawMessage(``)))
	assert.True(t, IsEmpty(json.RawMessage(`null`)))
	assert.False(t, IsEmpty(json.RawMessage(`{"type":"Point"}`)))
}

func TestDaysInclusive(t *testing.T) {
	from, _ := time.Parse("2006-01-02", "2024-01-01")
	to, _ := time.Parse("2006-01-02", "2024-01-03")
	assert.Equal(t, 3, daysInclusive(from, to))
}

func TestIsCoveredEmptyGeometryAlwaysCovered(t *testing.T) {
	checker := NewCoverageChecker(t.TempDir(), &fakeBoundsReader{})
	for _, ds := range []string{"landsat", "prism", "nldas"} {
		ok, err := checker.IsCovered(ds, nil, "2024-01-01", "2024-01-02")
		require.NoError(t, err)
		assert.True(t, ok, "dataset %s", ds)
	}
}

func TestIsCoveredUnknownDataset(t *testing.T) {
	checker := NewCoverageChecker(t.TempDir(), &fakeBoundsReader{})
	_, err := checker.IsCovered("unknown", smallAOI(), "2024-01-01", "2024-01-02")
	assert.Error(t, err)
}

func TestLandsatNotCoveredWhenNoFiles(t *testing.T) {
	checker := NewCoverageChecker(t.TempDir(), &fakeBoundsReader{})
	ok, err := checker.IsCovered("landsat", smallAOI(), "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRectWKTOrdersCoordinatesAsClosedRing(t *testing.T) {
	wkt := rectWKT(Bounds{West: 0, South: 0, East: 1, North: 1})
	assert.Contains(t, wkt, "POLYGON((0.000000 0.000000,1.000000 0.000000,1.000000 1.000000,0.000000 1.000000,0.000000 0.000000))")
}
