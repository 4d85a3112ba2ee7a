package spectral

import (
	"math"

	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/intellicrop/weedmask-api/internal/utils"
)

type IndexName string

const (
	CI    IndexName = "CI"
	EVI   IndexName = "EVI"
	ExG   IndexName = "ExG"
	ExR   IndexName = "ExR"
	GNDVI IndexName = "GNDVI"
	MCARI IndexName = "MCARI"
	MGRVI IndexName = "MGRVI"
	MSAVI IndexName = "MSAVI"
	NDVI  IndexName = "NDVI"
	OSAVI IndexName = "OSAVI"
	PRI   IndexName = "PRI"
	SAVI  IndexName = "SAVI"
	TVI   IndexName = "TVI"
	REIP  IndexName = "REIP"
	TCARI IndexName = "TCARI"
)

// SAVI soil brightness correction.
const saviL = 0.5

// Bands are the five physical inputs of every index.
type Bands struct {
	Blue    *raster.Band
	Green   *raster.Band
	Red     *raster.Band
	NIR     *raster.Band
	RedEdge *raster.Band
}

// Indices maps every catalogue entry to its derived band.
type Indices map[IndexName]*raster.Band

type pixel struct {
	blue, green, red, nir, re float64
}

// Division by zero is left to IEEE semantics: the results are Inf or NaN and are only
// rejected when the written file is loaded again.
func ndvi(p pixel) float64 {
	return (p.nir - p.red) / (p.nir + p.red)
}

func mcari(p pixel) float64 {
	return (p.re - p.red) - 0.2*(p.re-p.green)*(p.re/p.red)
}

var formulas = []struct {
	name IndexName
	fn   func(p pixel) float64
}{
	{GNDVI, func(p pixel) float64 { return (p.nir - p.green) / (p.nir + p.green) }},
	{SAVI, func(p pixel) float64 { return (p.nir - p.red) * (1 + saviL) / (p.nir + p.red + saviL) }},
	{MSAVI, func(p pixel) float64 {
		a := 2*p.nir + 1
		return 0.5 * (a - math.Sqrt(a*a-8*(p.nir-p.red)))
	}},
	{ExG, func(p pixel) float64 { return 2*p.green - p.red - p.blue }},
	{ExR, func(p pixel) float64 { return 1.3*p.red - p.green }},
	{PRI, func(p pixel) float64 { return (p.green - p.blue) / (p.green + p.blue) }},
	{MGRVI, func(p pixel) float64 {
		g2, r2 := p.green*p.green, p.red*p.red
		return (g2 - r2) / (g2 + r2)
	}},
	{NDVI, ndvi},
	{EVI, func(p pixel) float64 { return 2.5 * (p.nir - p.red) / (p.nir + 6*p.red - 7.5*p.blue + 1) }},
	{REIP, func(p pixel) float64 { return 700 + 40*(((p.red+p.re)/2-p.green)/(p.re-p.green)) }},
	{CI, func(p pixel) float64 { return p.nir/p.red - 1 }},
	{OSAVI, func(p pixel) float64 { return (p.nir - p.red) / (p.nir + p.red + 0.16) }},
	{TVI, func(p pixel) float64 { return math.Sqrt(ndvi(p) + 0.5) }},
	{MCARI, mcari},
	{TCARI, func(p pixel) float64 { return 3 * mcari(p) }},
}

// Catalogue lists every index Compute produces.
func Catalogue() []IndexName {
	names := make([]IndexName, len(formulas))
	for i, f := range formulas {
		names[i] = f.name
	}
	return names
}

func (b Bands) named() []struct {
	name string
	band *raster.Band
} {
	return []struct {
		name string
		band *raster.Band
	}{
		{string(Blue), b.Blue},
		{string(Green), b.Green},
		{string(Red), b.Red},
		{string(NIR), b.NIR},
		{string(RedEdge), b.RedEdge},
	}
}

func (b Bands) validate() error {
	var ref *raster.Band
	for _, nb := range b.named() {
		if nb.band == nil {
			return errs.NewMissingChannelError("", nb.name)
		}
		if nb.band.Channels != 1 {
			return errs.NewShapeMismatchError("compute indices: "+nb.name, []int{nb.band.Height, nb.band.Width, 1}, nb.band.Shape())
		}
		if ref == nil {
			ref = nb.band
			continue
		}
		if !ref.SameGrid(nb.band) {
			return errs.NewShapeMismatchError("compute indices: "+nb.name, ref.Shape(), nb.band.Shape())
		}
	}
	return nil
}

func (b Bands) pixel(i int) pixel {
	return pixel{
		blue:  float64(b.Blue.Values[i]),
		green: float64(b.Green.Values[i]),
		red:   float64(b.Red.Values[i]),
		nir:   float64(b.NIR.Values[i]),
		re:    float64(b.RedEdge.Values[i]),
	}
}

// Compute derives the full index catalogue. It is pure: identical inputs give
// bitwise-identical outputs. No clamping or finiteness check is applied here.
func Compute(in Bands) (Indices, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	width, height := in.Blue.Width, in.Blue.Height
	n := width * height
	out := make(Indices, len(formulas))
	for _, f := range formulas {
		values := make([]float32, n)
		for i := 0; i < n; i++ {
			values[i] = float32(f.fn(in.pixel(i)))
		}
		out[f.name] = raster.NewBand(string(f.name), width, height, values)
	}
	return out, nil
}

// Degeneracies returns a warning for every index holding non-finite pixels.
func Degeneracies(indices Indices) []*errs.DivisionDegeneracyWarning {
	var warnings []*errs.DivisionDegeneracyWarning
	for _, name := range utils.SortedKeys(indices) {
		band := indices[name]
		nan, inf := band.NonFinite()
		if nan+inf > 0 {
			warnings = append(warnings, errs.NewDivisionDegeneracyWarning(string(name), nan+inf, len(band.Values)))
		}
	}
	return warnings
}
