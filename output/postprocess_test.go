package output

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskTensor(h, w int, values ...float32) *dataset.Tensor {
	t := dataset.NewTensor(1, h, w, len(values)/(h*w))
	copy(t.Data, values)
	return t
}

func sumCategories(c Categories) float64 {
	return c.Weed + c.Vegetation + c.Misc
}

func TestPostprocessAllZerosIsNeutral(t *testing.T) {
	p, err := Postprocess(dataset.NewTensor(1, 4, 4, 1), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)

	assert.Equal(t, "100.00%", p.Categories.Info()["Misc/Other"])
	assert.Equal(t, "0.00%", p.Categories.Info()["Weed"])
	assert.Equal(t, "0.00%", p.Categories.Info()["Vegetation"])
	assert.Nil(t, p.PreviewImage)

	_, err = uuid.Parse(p.ID)
	assert.NoError(t, err)
}

func TestPostprocessWeedVegetationSplit(t *testing.T) {
	values := make([]float32, 100)
	for i := range values {
		if i < 30 {
			values[i] = -0.8
		} else {
			values[i] = 0.6
		}
	}

	p, err := Postprocess(maskTensor(10, 10, values...), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)
	info := p.Categories.Info()
	assert.Equal(t, "30.00%", info["Weed"])
	assert.Equal(t, "70.00%", info["Vegetation"])
	assert.Equal(t, "0.00%", info["Misc/Other"])
	assert.Equal(t, 30, p.Categories.WeedPixels)
}

func TestPostprocessSplitAtHalfValues(t *testing.T) {
	values := make([]float32, 100)
	for i := range values {
		if i < 30 {
			values[i] = 0.5
		} else {
			values[i] = -0.5
		}
	}

	p, err := Postprocess(maskTensor(10, 10, values...), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)
	info := p.Categories.Info()
	assert.Equal(t, "30.00%", info["Vegetation"])
	assert.Equal(t, "70.00%", info["Weed"])
	assert.Equal(t, "0.00%", info["Misc/Other"])
	assert.Equal(t, 70, p.Categories.WeedPixels)
}

func TestPostprocessClipsAndSumsToHundred(t *testing.T) {
	nan := float32(math.NaN())
	p, err := Postprocess(maskTensor(1, 7, -3, -0.05, 0.05, 0.2, 5, nan, -0.5), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)

	assert.Equal(t, []float64{-1, float64(float32(-0.05)), float64(float32(0.05)), float64(float32(0.2)), 1, 0, -0.5}, p.Mask)
	for _, v := range p.Mask {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 100, sumCategories(p.Categories), 1e-9)
	assert.Equal(t, 2, p.Categories.WeedPixels)
	assert.Equal(t, 2, p.Categories.VegetationPixels)
	assert.Equal(t, 3, p.Categories.MiscPixels)
	assert.Equal(t, -1.0, p.Summary.Min)
	assert.Equal(t, 1.0, p.Summary.Max)
}

func TestPostprocessUsesFreshIDs(t *testing.T) {
	a, err := Postprocess(dataset.NewTensor(1, 2, 2, 1), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)
	b, err := Postprocess(dataset.NewTensor(1, 2, 2, 1), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCollapseTwoChannel(t *testing.T) {
	// (ndvi, exr) pairs
	raw := maskTensor(1, 4,
		0.9, 0.7, // exr above limit: weed
		0.3, 0.1, // low ndvi: vegetation
		0.8, 0.2, // keeps ndvi
		0.5, 0.5, // exr at the limit is not weed
	)

	p, err := Postprocess(raw, nil, ml.TwoChannelRegression, Options{})
	require.NoError(t, err)
	assert.Equal(t, -1.0, p.Mask[0])
	assert.Equal(t, 1.0, p.Mask[1])
	assert.InDelta(t, 0.8, p.Mask[2], 1e-6)
	assert.Equal(t, 1.0, p.Mask[3])

	_, err = Postprocess(maskTensor(1, 1, 0.1, 0.2, 0.3), nil, ml.TwoChannelRegression, Options{})
	assert.True(t, errs.IsShapeMismatch(err))
}

func TestCollapseCategorical(t *testing.T) {
	raw := maskTensor(1, 3,
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.1, 0.2, 0.7,
	)

	p, err := Postprocess(raw, nil, ml.CategoricalSegmentation, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1}, p.Mask)

	p, err = Postprocess(raw, nil, ml.CategoricalSegmentation, Options{Classes: []float64{1, 0, -1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1}, p.Mask)

	_, err = Postprocess(raw, nil, ml.CategoricalSegmentation, Options{Classes: []float64{-1, 1}})
	assert.True(t, errs.IsShapeMismatch(err))
}

func TestValueToColorStops(t *testing.T) {
	red := valueToColor(-1)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{red.R, red.G, red.B})
	white := valueToColor(0)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{white.R, white.G, white.B})
	green := valueToColor(1)
	assert.Equal(t, [3]uint8{0, 255, 0}, [3]uint8{green.R, green.G, green.B})

	half := valueToColor(0.5)
	assert.Equal(t, uint8(128), half.R)
	assert.Equal(t, uint8(255), half.G)

	assert.Equal(t, valueToColor(0), valueToColor(math.NaN()))
	assert.Equal(t, valueToColor(1), valueToColor(4))
}

func TestRenderedFramesHaveFixedSize(t *testing.T) {
	preview := &raster.Band{Width: 3, Height: 2, Channels: 3, Values: make([]float32, 18)}
	p, err := Postprocess(dataset.NewTensor(1, 2, 3, 1), preview, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)

	require.NotNil(t, p.PreviewImage)
	assert.Equal(t, FrameSize, p.MaskImage.Bounds().Dx())
	assert.Equal(t, FrameSize, p.MaskImage.Bounds().Dy())
	assert.Equal(t, FrameSize, p.PreviewImage.Bounds().Dx())

	_, err = Postprocess(dataset.NewTensor(1, 2, 3, 1), &raster.Band{Width: 3, Height: 2, Channels: 1, Values: make([]float32, 6)},
		ml.SingleChannelRegression, Options{})
	assert.True(t, errs.IsShapeMismatch(err))
}

func TestTo8Bit(t *testing.T) {
	assert.Equal(t, uint8(0), to8bit(0))
	assert.Equal(t, uint8(255), to8bit(1))
	assert.Equal(t, uint8(127), to8bit(0.5))
	assert.Equal(t, uint8(255), to8bit(3))
	assert.Equal(t, uint8(0), to8bit(-1))
}

func TestSaveWritesAllArtefacts(t *testing.T) {
	for _, format := range []Format{PNG, JPEG, WebP} {
		t.Run(string(format), func(t *testing.T) {
			preview := &raster.Band{Width: 2, Height: 2, Channels: 3, Values: make([]float32, 12)}
			p, err := Postprocess(maskTensor(2, 2, -1, 0, 0.5, 1), preview, ml.SingleChannelRegression, Options{Source: "field7.zip"})
			require.NoError(t, err)

			dir := t.TempDir()
			files, err := p.Save(dir, format)
			require.NoError(t, err)

			assert.Equal(t, filepath.Join("input", p.ID+"_RGB."+string(format)), files.Preview)
			assert.Equal(t, filepath.Join("draw", p.ID+"_predicted."+string(format)), files.Mask)
			for _, rel := range []string{files.Preview, files.Mask, files.Distribution, files.Stats, files.Footprint} {
				info, err := os.Stat(filepath.Join(dir, rel))
				require.NoError(t, err, rel)
				assert.Positive(t, info.Size(), rel)
			}
		})
	}
}

func TestFootprintCarriesCategories(t *testing.T) {
	p, err := Postprocess(maskTensor(2, 4, -1, -1, 1, 1, 0, 0, 0, 0), nil, ml.SingleChannelRegression, Options{})
	require.NoError(t, err)

	data, err := p.Footprint().MarshalJSON()
	require.NoError(t, err)

	var doc struct {
		Features []struct {
			Geometry struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 1)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)
	assert.Equal(t, "25.00%", doc.Features[0].Properties["Weed"])
	assert.Equal(t, "50.00%", doc.Features[0].Properties["Misc/Other"])
	assert.Contains(t, doc.Features[0].Geometry.Coordinates[0], []float64{4, 0})
	assert.Contains(t, doc.Features[0].Geometry.Coordinates[0], []float64{0, -2})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": PNG, "PNG": PNG, "jpg": JPEG, ".jpeg": JPEG, "webp": WebP} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("gif")
	assert.Error(t, err)
}
