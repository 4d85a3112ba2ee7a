package spectral

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func band(values ...float32) *raster.Band {
	return raster.NewBand("", len(values), 1, values)
}

func sampleBands() Bands {
	return Bands{
		Blue:    band(0.1, 0.05, 0.2, 0.12),
		Green:   band(0.2, 0.15, 0.25, 0.3),
		Red:     band(0.3, 0.1, 0.2, 0.08),
		NIR:     band(0.6, 0.7, 0.3, 0.55),
		RedEdge: band(0.4, 0.35, 0.3, 0.33),
	}
}

func TestComputeKnownPixel(t *testing.T) {
	indices, err := Compute(sampleBands())
	require.NoError(t, err)
	require.Len(t, indices, 15)

	at := func(name IndexName) float64 { return float64(indices[name].Values[0]) }
	assert.InDelta(t, 1.0/3, at(NDVI), 1e-6)
	assert.InDelta(t, 0.5, at(GNDVI), 1e-6)
	assert.InDelta(t, 0.0, at(ExG), 1e-6)
	assert.InDelta(t, 0.19, at(ExR), 1e-6)
	assert.InDelta(t, 1.0, at(CI), 1e-6)
	assert.InDelta(t, 1.0/3, at(PRI), 1e-6)
	assert.InDelta(t, (0.04-0.09)/(0.04+0.09), at(MGRVI), 1e-6)
	assert.InDelta(t, 0.3*1.5/1.4, at(SAVI), 1e-6)
	assert.InDelta(t, 0.3/1.06, at(OSAVI), 1e-6)
	assert.InDelta(t, 2.5*0.3/(0.6+1.8-0.75+1), at(EVI), 1e-6)
	assert.InDelta(t, 700+40*((0.35-0.2)/0.2), at(REIP), 1e-4)
	mcari := (0.4 - 0.3) - 0.2*(0.4-0.2)*(0.4/0.3)
	assert.InDelta(t, mcari, at(MCARI), 1e-6)
	assert.InDelta(t, 3*mcari, at(TCARI), 1e-6)
	msavi := 0.5 * (2.2 - math.Sqrt(2.2*2.2-8*0.3))
	assert.InDelta(t, msavi, at(MSAVI), 1e-6)
}

func TestComputeIsDeterministic(t *testing.T) {
	first, err := Compute(sampleBands())
	require.NoError(t, err)
	second, err := Compute(sampleBands())
	require.NoError(t, err)

	for _, name := range Catalogue() {
		a, b := first[name].Values, second[name].Values
		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, math.Float32bits(a[i]), math.Float32bits(b[i]), "%s pixel %d", name, i)
		}
	}
}

func TestTVIFollowsNDVI(t *testing.T) {
	indices, err := Compute(sampleBands())
	require.NoError(t, err)

	for i, v := range indices[NDVI].Values {
		if float64(v) < -0.5 {
			continue
		}
		assert.InDelta(t, math.Sqrt(float64(v)+0.5), float64(indices[TVI].Values[i]), 1e-6)
	}
}

func TestComputeRejectsMismatchedShapes(t *testing.T) {
	in := sampleBands()
	in.RedEdge = band(0.1, 0.2)

	_, err := Compute(in)
	assert.True(t, errs.IsShapeMismatch(err))
}

func TestComputeRejectsMissingBand(t *testing.T) {
	in := sampleBands()
	in.NIR = nil

	_, err := Compute(in)
	assert.True(t, errs.IsMissingChannel(err))
}

// Zero denominators are not caught at computation time. The degenerate values are only
// flagged as warnings here and rejected when the written file is loaded again.
func TestDegeneratePixelsSurviveComputeButFailReload(t *testing.T) {
	in := Bands{
		Blue:    band(0, 0.1),
		Green:   band(0, 0.2),
		Red:     band(0, 0.3),
		NIR:     band(0, 0.6),
		RedEdge: band(0, 0.4),
	}

	indices, err := Compute(in)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(indices[NDVI].Values[0])))

	warnings := Degeneracies(indices)
	require.NotEmpty(t, warnings)
	flagged := map[string]bool{}
	for _, w := range warnings {
		flagged[w.Index] = true
		assert.Equal(t, 2, w.Total)
	}
	assert.True(t, flagged["NDVI"])
	assert.True(t, flagged["CI"])
	assert.False(t, flagged["ExG"])

	dir := t.TempDir()
	paths, err := Write(Indices{NDVI: indices[NDVI]}, dir, "1", "1")
	require.NoError(t, err)

	_, err = raster.Load(paths[0], false)
	assert.True(t, errs.IsCorruptData(err))
}

func TestWriteNamesFilesAndCreatesFolder(t *testing.T) {
	indices, err := Compute(sampleBands())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	paths, err := Write(indices, dir, "3", "7")
	require.NoError(t, err)
	require.Len(t, paths, 15)
	assert.Equal(t, filepath.Join(dir, "CI_3_7.tif"), paths[0])

	for _, name := range Catalogue() {
		_, err := os.Stat(filepath.Join(dir, FileName(name, "3", "7")))
		assert.NoError(t, err, name)
	}

	back, err := raster.ReadRaw(filepath.Join(dir, "NDVI_3_7.tif"))
	require.NoError(t, err)
	assert.Equal(t, indices[NDVI].Values, back.Values)
	assert.Equal(t, raster.PlaceholderGeoTransform, back.GeoTransform)
}
