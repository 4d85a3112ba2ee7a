package raster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Band is one raster held in memory. Values are row-major and channel-interleaved:
// the value of channel c at (x, y) lives at (y*Width+x)*Channels + c.
type Band struct {
	Name         string
	Path         string
	Width        int
	Height       int
	Channels     int
	Values       []float32
	GeoTransform [6]float64
}

func NewBand(name string, width, height int, values []float32) *Band {
	return &Band{
		Name:         name,
		Width:        width,
		Height:       height,
		Channels:     1,
		Values:       values,
		GeoTransform: PlaceholderGeoTransform,
	}
}

// Shape returns height, width and channel count.
func (b *Band) Shape() []int {
	return []int{b.Height, b.Width, b.Channels}
}

func (b *Band) SameGrid(o *Band) bool {
	return b.Width == o.Width && b.Height == o.Height
}

func (b *Band) At(x, y, c int) float32 {
	return b.Values[(y*b.Width+x)*b.Channels+c]
}

// Channel extracts a single channel as a new band sharing the grid and provenance.
func (b *Band) Channel(c int) *Band {
	if b.Channels == 1 && c == 0 {
		return b
	}
	out := make([]float32, b.Width*b.Height)
	for i := range out {
		out[i] = b.Values[i*b.Channels+c]
	}
	return &Band{
		Name:         b.Name,
		Path:         b.Path,
		Width:        b.Width,
		Height:       b.Height,
		Channels:     1,
		Values:       out,
		GeoTransform: b.GeoTransform,
	}
}

// MinMax returns the extrema over every channel.
func (b *Band) MinMax() (float64, float64) {
	if len(b.Values) == 0 {
		return 0, 0
	}
	vals := make([]float64, len(b.Values))
	for i, v := range b.Values {
		vals[i] = float64(v)
	}
	return floats.Min(vals), floats.Max(vals)
}

// NonFinite counts NaN and infinite values.
func (b *Band) NonFinite() (nan, inf int) {
	for _, v := range b.Values {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			nan++
		case math.IsInf(f, 0):
			inf++
		}
	}
	return nan, inf
}

// NeedsScaling reports whether a non-RGB band falls outside [0, 1].
func NeedsScaling(min, max float64) bool {
	return min < 0 || max > 1
}

// MinMaxScale rescales values in place to [0, 1]. A flat band becomes all zeros.
func MinMaxScale(values []float32, min, max float64) {
	span := max - min
	if span == 0 {
		for i := range values {
			values[i] = 0
		}
		return
	}
	for i, v := range values {
		values[i] = float32((float64(v) - min) / span)
	}
}
