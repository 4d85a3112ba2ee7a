package delivery

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/rs/zerolog/log"
)

// ManifestRow summarises one channel of one assembled sample.
type ManifestRow struct {
	Sample  string  `csv:"sample"`
	Channel string  `csv:"channel"`
	Height  int     `csv:"height"`
	Width   int     `csv:"width"`
	Min     float64 `csv:"min"`
	Max     float64 `csv:"max"`
	Mean    float64 `csv:"mean"`
}

func Manifest(ds *dataset.Dataset) []*ManifestRow {
	t := ds.Tensor
	rows := make([]*ManifestRow, 0, t.Samples()*t.Channels())
	for n := 0; n < t.Samples(); n++ {
		for c := 0; c < t.Channels(); c++ {
			plane := t.Plane(n, c)
			lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
			for _, v := range plane {
				f := float64(v)
				lo = math.Min(lo, f)
				hi = math.Max(hi, f)
				sum += f
			}
			rows = append(rows, &ManifestRow{
				Sample:  ds.SampleDirs[n],
				Channel: ds.Order.Channels[c],
				Height:  t.Height(),
				Width:   t.Width(),
				Min:     lo,
				Max:     hi,
				Mean:    sum / float64(len(plane)),
			})
		}
	}
	return rows
}

// RunCreateDataset assembles baseDir and writes a per-channel manifest CSV to
// outputPath.
func RunCreateDataset(ctx context.Context, assembler *dataset.Assembler, baseDir, outputPath string) (*dataset.Dataset, error) {
	ds, err := assembler.Assemble(ctx, baseDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer file.Close()

	rows := Manifest(ds)
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	log.Info().
		Str("base_dir", baseDir).
		Str("manifest", outputPath).
		Int("samples", ds.Tensor.Samples()).
		Int("rejected", len(ds.Rejected)).
		Msg("dataset assembled")
	return ds, nil
}
