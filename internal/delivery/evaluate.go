package delivery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/intellicrop/weedmask-api/internal/cache"
	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/spectral"
	"github.com/intellicrop/weedmask-api/internal/store"
	"github.com/intellicrop/weedmask-api/output"
	"github.com/rs/zerolog/log"
)

type Notifier interface {
	Success(ctx context.Context, message string, info map[string]string) error
	Error(ctx context.Context, errorMessage string) error
}

// Pipeline runs one prediction request end to end. It is safe for concurrent use
// once configured.
type Pipeline struct {
	Compute        *ml.ComputeContext
	Order          dataset.ChannelOrder
	Layout         dataset.Layout
	ComputeIndices bool
	Format         output.Format
	ResultDir      string
	Workers        int
	Progress       bool

	Cache    cache.CacheService[store.Record]
	Store    store.Store
	Notifier Notifier
}

func NewPipeline(compute *ml.ComputeContext, order dataset.ChannelOrder, layout dataset.Layout, resultDir string) (*Pipeline, error) {
	if err := dataset.ValidateOrder(order, compute.InputChannels()); err != nil {
		return nil, err
	}
	return &Pipeline{
		Compute:   compute,
		Order:     order,
		Layout:    layout,
		Format:    output.PNG,
		ResultDir: resultDir,
	}, nil
}

// Evaluate predicts the weed mask for a capture directory or a .zip archive of one.
func (p *Pipeline) Evaluate(ctx context.Context, inputPath string) (*store.Record, error) {
	start := time.Now()
	record, err := p.evaluate(ctx, inputPath)
	if err != nil {
		p.notifyError(ctx, inputPath, err)
		return nil, err
	}
	log.Info().
		Str("id", record.ID).
		Str("input", inputPath).
		Dur("took", time.Since(start)).
		Msg("evaluation finished")
	return record, nil
}

func (p *Pipeline) evaluate(ctx context.Context, inputPath string) (*store.Record, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	var key string
	if p.Cache != nil {
		abs, _ := filepath.Abs(inputPath)
		key = p.Cache.GenerateKey(abs, info.Size(), info.ModTime().UnixNano(), p.Order.Version, p.Compute.Mode())
		if cached, ok := p.Cache.Get(key); ok && p.filesExist(cached.Files) {
			log.Info().Str("id", cached.ID).Str("input", inputPath).Msg("prediction served from cache")
			return &cached, nil
		}
	}

	root, err := p.captureRoot(inputPath, info)
	if err != nil {
		return nil, err
	}

	if p.ComputeIndices {
		if err := ProcessCaptures(root); err != nil {
			return nil, err
		}
	}

	stepStart := time.Now()
	assembler := dataset.NewAssembler(p.Order, p.Layout)
	if p.Workers > 0 {
		assembler.Workers = p.Workers
	}
	assembler.Progress = p.Progress
	ds, err := assembler.Assemble(ctx, root)
	if err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(stepStart)).Ints("shape", ds.Tensor.ShapeSlice()).Msg("dataset assembled")

	in, err := dataset.Reconcile(ds.Tensor, p.Compute.InputChannels())
	if err != nil {
		return nil, err
	}

	stepStart = time.Now()
	out, err := p.Compute.Predictor().Predict(ctx, in)
	if err != nil {
		return nil, errs.Wrapf(err, "prediction failed for %s", inputPath)
	}
	if err := ml.ValidateOutput(in, out, p.Compute.Mode()); err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(stepStart)).Ints("shape", out.ShapeSlice()).Msg("model output received")

	pred, err := output.Postprocess(out, ds.Preview(0), p.Compute.Mode(), output.Options{
		Source:       filepath.Base(inputPath),
		GeoTransform: ds.GeoTransform(0),
	})
	if err != nil {
		return nil, err
	}
	files, err := pred.Save(p.ResultDir, p.Format)
	if err != nil {
		return nil, err
	}

	record := newRecord(pred, ds, files)
	if p.Cache != nil {
		if err := p.Cache.Set(key, *record); err != nil {
			log.Warn().Err(err).Str("id", record.ID).Msg("failed to cache prediction")
		}
	}
	if p.Store != nil {
		if err := p.Store.Save(ctx, record); err != nil {
			log.Warn().Err(err).Str("id", record.ID).Msg("failed to store prediction")
		}
	}
	if p.Notifier != nil {
		msg := fmt.Sprintf("Weed mask %s ready for %s", record.ID, record.Source)
		if err := p.Notifier.Success(ctx, msg, record.ImageInfo); err != nil {
			log.Warn().Err(err).Msg("failed to send success notification")
		}
	}
	return record, nil
}

func (p *Pipeline) captureRoot(inputPath string, info fs.FileInfo) (string, error) {
	dir := inputPath
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(inputPath), ".zip") {
			return "", fmt.Errorf("unsupported input %s: expected a directory or a .zip archive", inputPath)
		}
		extracted, err := dataset.ExtractArchive(inputPath)
		if err != nil {
			return "", err
		}
		dir = extracted
	}
	return dataset.ResolveCaptureRoot(dir)
}

func (p *Pipeline) filesExist(files output.Files) bool {
	for _, rel := range []string{files.Preview, files.Mask} {
		if rel == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(p.ResultDir, rel)); err != nil {
			return false
		}
	}
	return files.Mask != ""
}

func (p *Pipeline) notifyError(ctx context.Context, inputPath string, err error) {
	if p.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("%s: %v", filepath.Base(inputPath), err)
	if nerr := p.Notifier.Error(ctx, msg); nerr != nil {
		log.Warn().Err(nerr).Msg("failed to send error notification")
	}
}

// ProcessCaptures computes the spectral indices of every directory that directly
// holds raw band files.
func ProcessCaptures(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, ok := spectral.ClassifyRawBand(e.Name()); ok && !e.IsDir() {
				dirs = append(dirs, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s for raw bands: %w", root, err)
	}

	for _, dir := range dirs {
		written, err := spectral.ProcessCapture(dir, filepath.Base(dir), "indices")
		if err != nil {
			return err
		}
		log.Info().Str("dir", dir).Int("files", len(written)).Msg("spectral indices written")
	}
	return nil
}

func newRecord(pred *output.Prediction, ds *dataset.Dataset, files output.Files) *store.Record {
	rejected := make([]string, 0, len(ds.Rejected))
	for _, r := range ds.Rejected {
		rejected = append(rejected, r.Dir)
	}
	return &store.Record{
		ID:           pred.ID,
		Source:       pred.Source,
		OrderVersion: ds.Order.Version,
		Mode:         pred.Mode.String(),
		Width:        pred.Width,
		Height:       pred.Height,
		Samples:      ds.Tensor.Samples(),
		Rejected:     rejected,
		ImageInfo:    pred.Categories.Info(),
		Categories:   pred.Categories,
		Summary:      pred.Summary,
		Files:        files,
		CreatedAt:    time.Now().UTC(),
	}
}
