package output

import (
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
)

const (
	weedThreshold       = -0.1
	vegetationThreshold = 0.1

	// Two-channel targets: a pixel is weed when ExR exceeds exrWeedLimit, vegetation
	// when NDVI is at most ndviVegetationLimit, otherwise its NDVI is kept.
	exrWeedLimit        = 0.5
	ndviVegetationLimit = 0.54
)

// DefaultClasses maps categorical output channels to mask values: weed, neutral,
// vegetation.
var DefaultClasses = []float64{-1, 0, 1}

type Options struct {
	// Classes maps each categorical channel to its mask value. Defaults to
	// DefaultClasses.
	Classes      []float64
	GeoTransform [6]float64
	Source       string
}

// Categories holds the share of mask pixels in each class, in percent.
type Categories struct {
	Vegetation float64 `json:"vegetation" bson:"vegetation"`
	Weed       float64 `json:"weed" bson:"weed"`
	Misc       float64 `json:"misc" bson:"misc"`

	VegetationPixels int `json:"vegetation_pixels" bson:"vegetation_pixels"`
	WeedPixels       int `json:"weed_pixels" bson:"weed_pixels"`
	MiscPixels       int `json:"misc_pixels" bson:"misc_pixels"`
}

// Info renders the percentages the way they are reported to clients.
func (c Categories) Info() map[string]string {
	return map[string]string{
		"Vegetation": fmt.Sprintf("%.2f%%", c.Vegetation),
		"Weed":       fmt.Sprintf("%.2f%%", c.Weed),
		"Misc/Other": fmt.Sprintf("%.2f%%", c.Misc),
	}
}

// Summary describes the distribution of the clipped mask values.
type Summary struct {
	Min    float64 `json:"min" bson:"min" csv:"min"`
	Max    float64 `json:"max" bson:"max" csv:"max"`
	Mean   float64 `json:"mean" bson:"mean" csv:"mean"`
	Median float64 `json:"median" bson:"median" csv:"median"`
	StdDev float64 `json:"std_dev" bson:"std_dev" csv:"std_dev"`
}

// Prediction is the post-processed result of one inference. It is not modified after
// Postprocess returns it.
type Prediction struct {
	ID           string
	Mode         ml.TargetMode
	Width        int
	Height       int
	Mask         []float64
	Categories   Categories
	Summary      Summary
	MaskImage    image.Image
	PreviewImage image.Image
	GeoTransform [6]float64
	Source       string
}

// Postprocess collapses the first sample of a raw model output into a single-channel
// mask in [-1, 1], counts its categories and renders the mask and preview frames.
// preview may be nil.
func Postprocess(raw *dataset.Tensor, preview *raster.Band, mode ml.TargetMode, opts Options) (*Prediction, error) {
	if raw == nil || !raw.Valid() {
		return nil, fmt.Errorf("cannot post-process a malformed tensor")
	}

	mask, err := collapse(raw, mode, opts.Classes)
	if err != nil {
		return nil, err
	}
	for i, v := range mask {
		mask[i] = clip(v)
	}

	gt := opts.GeoTransform
	if gt == ([6]float64{}) {
		gt = raster.PlaceholderGeoTransform
	}

	p := &Prediction{
		ID:           uuid.New().String(),
		Mode:         mode,
		Width:        raw.Width(),
		Height:       raw.Height(),
		Mask:         mask,
		Categories:   categorize(mask),
		GeoTransform: gt,
		Source:       opts.Source,
	}
	p.Summary, err = summarize(mask)
	if err != nil {
		return nil, err
	}

	p.MaskImage = Frame("Predicted Mask", maskImage(mask, p.Width, p.Height), &p.Categories)
	if preview != nil {
		img, err := previewImage(preview)
		if err != nil {
			return nil, err
		}
		p.PreviewImage = Frame("Original RGB", img, nil)
	}

	log.Info().
		Str("id", p.ID).
		Str("mode", mode.String()).
		Ints("shape", []int{p.Height, p.Width}).
		Float64("min", p.Summary.Min).
		Float64("max", p.Summary.Max).
		Interface("image_info", p.Categories.Info()).
		Msg("prediction post-processed")
	return p, nil
}

func collapse(raw *dataset.Tensor, mode ml.TargetMode, classes []float64) ([]float64, error) {
	h, w, c := raw.Height(), raw.Width(), raw.Channels()
	n := h * w
	mask := make([]float64, n)
	at := func(px, ch int) float64 { return float64(raw.Data[px*c+ch]) }

	switch mode {
	case ml.SingleChannelRegression:
		for px := 0; px < n; px++ {
			mask[px] = at(px, 0)
		}
	case ml.TwoChannelRegression:
		if c != 2 {
			return nil, errs.NewShapeMismatchError("collapse two-channel output", []int{2}, []int{c})
		}
		for px := 0; px < n; px++ {
			ndvi, exr := at(px, 0), at(px, 1)
			switch {
			case exr > exrWeedLimit:
				mask[px] = -1
			case ndvi <= ndviVegetationLimit:
				mask[px] = 1
			default:
				mask[px] = ndvi
			}
		}
	case ml.CategoricalSegmentation:
		if len(classes) == 0 {
			classes = DefaultClasses
		}
		if c != len(classes) {
			return nil, errs.NewShapeMismatchError("collapse categorical output", []int{len(classes)}, []int{c})
		}
		for px := 0; px < n; px++ {
			best := 0
			for k := 1; k < c; k++ {
				if at(px, k) > at(px, best) {
					best = k
				}
			}
			mask[px] = classes[best]
		}
	default:
		return nil, fmt.Errorf("unsupported target mode %s", mode)
	}
	return mask, nil
}

func categorize(mask []float64) Categories {
	var c Categories
	for _, v := range mask {
		switch {
		case v < weedThreshold:
			c.WeedPixels++
		case v > vegetationThreshold:
			c.VegetationPixels++
		default:
			c.MiscPixels++
		}
	}
	total := float64(len(mask))
	if total == 0 {
		return c
	}
	c.Weed = float64(c.WeedPixels) / total * 100
	c.Vegetation = float64(c.VegetationPixels) / total * 100
	c.Misc = float64(c.MiscPixels) / total * 100
	return c
}

func summarize(mask []float64) (Summary, error) {
	data := stats.Float64Data(mask)
	var (
		s   Summary
		err error
	)
	if s.Min, err = data.Min(); err != nil {
		return s, fmt.Errorf("mask summary: %w", err)
	}
	if s.Max, err = data.Max(); err != nil {
		return s, fmt.Errorf("mask summary: %w", err)
	}
	if s.Mean, err = data.Mean(); err != nil {
		return s, fmt.Errorf("mask summary: %w", err)
	}
	if s.Median, err = data.Median(); err != nil {
		return s, fmt.Errorf("mask summary: %w", err)
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return s, fmt.Errorf("mask summary: %w", err)
	}
	return s, nil
}
