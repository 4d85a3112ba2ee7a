package dataset

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gammazero/workerpool"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Layout selects which directories under the base directory are samples.
type Layout int

const (
	// LayoutFlat treats the base directory itself as the only sample.
	LayoutFlat Layout = iota
	// LayoutNested treats every descendant directory named smalldata_* as a sample.
	LayoutNested
)

const nestedPrefix = "smalldata_"

func (l Layout) String() string {
	if l == LayoutNested {
		return "nested"
	}
	return "flat"
}

func ParseLayout(s string) Layout {
	if strings.EqualFold(s, "nested") {
		return LayoutNested
	}
	return LayoutFlat
}

// Sample is one capture directory stacked in channel order.
type Sample struct {
	Dir     string
	Height  int
	Width   int
	Stack   []float32 // H*W*C, channel-interleaved
	Preview *raster.Band
	// GeoTransform of the stacked grid, taken from the first channel.
	GeoTransform [6]float64
}

// Rejection records why a candidate directory was left out.
type Rejection struct {
	Dir string
	Err error
}

// Dataset is the assembled input of one inference run. Previews, GeoTransforms,
// SampleDirs and the first tensor dimension are parallel.
type Dataset struct {
	Tensor        *Tensor
	Previews      []*raster.Band
	GeoTransforms [][6]float64
	Order         ChannelOrder
	SampleDirs    []string
	Rejected      []Rejection
}

// GeoTransform returns the grid transform of sample i, falling back to the
// placeholder when it is unknown.
func (d *Dataset) GeoTransform(i int) [6]float64 {
	if i >= 0 && i < len(d.GeoTransforms) && d.GeoTransforms[i] != ([6]float64{}) {
		return d.GeoTransforms[i]
	}
	if p := d.Preview(i); p != nil && p.GeoTransform != ([6]float64{}) {
		return p.GeoTransform
	}
	return raster.PlaceholderGeoTransform
}

// Preview returns the RGB preview of sample i, nil when the capture carried none.
func (d *Dataset) Preview(i int) *raster.Band {
	if i < 0 || i >= len(d.Previews) {
		return nil
	}
	return d.Previews[i]
}

type Assembler struct {
	Order    ChannelOrder
	Registry Registry
	Layout   Layout
	Workers  int
	Progress bool
}

func NewAssembler(order ChannelOrder, layout Layout) *Assembler {
	return &Assembler{
		Order:    order,
		Registry: DefaultRegistry(order),
		Layout:   layout,
		Workers:  runtime.NumCPU(),
	}
}

type sampleResult struct {
	sample *Sample
	err    error
}

// Assemble scans baseDir and stacks every valid sample. A sample that misses a
// channel, holds corrupt data or disagrees in size with the first accepted sample is
// logged and excluded. EmptyDatasetError is returned when nothing survives.
func (a *Assembler) Assemble(ctx context.Context, baseDir string) (*Dataset, error) {
	candidates, err := a.candidates(baseDir)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("base_dir", baseDir).
		Str("layout", a.Layout.String()).
		Str("order", a.Order.Version).
		Int("candidates", len(candidates)).
		Msg("assembling dataset")

	var bar *progressbar.ProgressBar
	if a.Progress {
		bar = progressbar.Default(int64(len(candidates)), "Assembling samples")
	} else {
		bar = progressbar.DefaultSilent(int64(len(candidates)))
	}

	workers := a.Workers
	if workers < 1 {
		workers = 1
	}
	results := make([]sampleResult, len(candidates))
	wp := workerpool.New(workers)
	for i, dir := range candidates {
		wp.Submit(func() {
			defer bar.Add(1)
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			results[i].sample, results[i].err = a.loadSample(dir)
		})
	}
	wp.StopWait()
	bar.Finish()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds := &Dataset{Order: a.Order}
	var accepted []*Sample
	for i, res := range results {
		dir := candidates[i]
		if res.err == nil && len(accepted) > 0 {
			first := accepted[0]
			if res.sample.Height != first.Height || res.sample.Width != first.Width {
				res.err = errs.NewShapeMismatchError("assemble "+dir,
					[]int{first.Height, first.Width}, []int{res.sample.Height, res.sample.Width})
			}
		}
		if res.err != nil {
			logRejection(dir, res.err)
			ds.Rejected = append(ds.Rejected, Rejection{Dir: dir, Err: res.err})
			continue
		}
		accepted = append(accepted, res.sample)
	}

	if len(accepted) == 0 {
		return nil, errs.NewEmptyDatasetError(baseDir, len(candidates), len(ds.Rejected))
	}

	h, w, c := accepted[0].Height, accepted[0].Width, a.Order.Len()
	ds.Tensor = NewTensor(len(accepted), h, w, c)
	per := h * w * c
	for i, s := range accepted {
		copy(ds.Tensor.Data[i*per:(i+1)*per], s.Stack)
		ds.Previews = append(ds.Previews, s.Preview)
		ds.GeoTransforms = append(ds.GeoTransforms, s.GeoTransform)
		ds.SampleDirs = append(ds.SampleDirs, s.Dir)
	}

	log.Info().
		Int("samples", len(accepted)).
		Int("rejected", len(ds.Rejected)).
		Ints("shape", ds.Tensor.ShapeSlice()).
		Msg("finished creating dataset")
	return ds, nil
}

func logRejection(dir string, err error) {
	ev := log.Warn().Str("dir", dir)
	var m zerolog.LogObjectMarshaler
	if errs.As(err, &m) {
		ev = ev.EmbedObject(m)
	}
	ev.Err(err).Msg("skipping sample")
}

func (a *Assembler) candidates(baseDir string) ([]string, error) {
	if a.Layout == LayoutFlat {
		return []string{baseDir}, nil
	}

	var dirs []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), nestedPrefix) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrapf(err, "scan %s", baseDir)
	}
	return dirs, nil
}

func (a *Assembler) loadSample(dir string) (*Sample, error) {
	sample := &Sample{Dir: dir}
	planes := make([]*raster.Band, 0, a.Order.Len())

	for _, ch := range a.Order.Channels {
		name, ok, err := a.Registry.Resolve(dir, ch)
		if err != nil {
			return nil, errs.Wrapf(err, "list %s", dir)
		}
		if !ok {
			return nil, errs.NewMissingChannelError(dir, ch)
		}

		path := filepath.Join(dir, name)
		band, err := raster.Load(path, ch == RGBChannel)
		if err != nil {
			return nil, err
		}

		plane := band
		if ch == RGBChannel {
			sample.Preview = band
			plane = band.Channel(0)
		}
		if len(planes) > 0 && !planes[0].SameGrid(plane) {
			return nil, errs.NewShapeMismatchError("stack "+path, planes[0].Shape(), plane.Shape())
		}
		planes = append(planes, plane)
	}

	if len(planes) != a.Order.Len() {
		return nil, errs.NewShapeMismatchError("stack "+dir, []int{a.Order.Len()}, []int{len(planes)})
	}

	if sample.Preview == nil {
		sample.Preview = a.optionalPreview(dir)
	}

	sample.Height, sample.Width = planes[0].Height, planes[0].Width
	sample.GeoTransform = planes[0].GeoTransform
	c := len(planes)
	sample.Stack = make([]float32, sample.Height*sample.Width*c)
	for ci, p := range planes {
		for px, v := range p.Values {
			sample.Stack[px*c+ci] = v
		}
	}
	return sample, nil
}

// optionalPreview loads an RGB file for display when the order does not stack one.
func (a *Assembler) optionalPreview(dir string) *raster.Band {
	name, ok, err := a.Registry.Resolve(dir, RGBChannel)
	if err != nil || !ok {
		return nil
	}
	band, err := raster.Load(filepath.Join(dir, name), true)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("preview unavailable")
		return nil
	}
	return band
}
