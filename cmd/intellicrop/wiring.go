package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/intellicrop/weedmask-api/internal/cache"
	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/delivery"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/notification"
	"github.com/intellicrop/weedmask-api/internal/properties"
	"github.com/intellicrop/weedmask-api/internal/store"
	"github.com/intellicrop/weedmask-api/output"
	"github.com/rs/zerolog/log"
)

func modelConfig(cfg properties.Config) (ml.Config, error) {
	mode, err := ml.ParseTargetMode(cfg.Pipeline.Mode)
	if err != nil {
		return ml.Config{}, err
	}
	return ml.Config{
		Backend:     ml.Backend(cfg.Model.Backend),
		ModelPath:   cfg.Model.Path,
		LibraryPath: cfg.Model.LibraryPath,
		Channels:    cfg.Model.Channels,
		Timeout:     cfg.Model.Timeout,
		Mode:        mode,
		GRPC: ml.GRPCConfig{
			Address:      cfg.Model.Address,
			Channels:     cfg.Model.Channels,
			TokenURL:     cfg.Model.TokenURL,
			ClientID:     cfg.Model.ClientID,
			ClientSecret: cfg.Model.ClientSecret,
			Scopes:       cfg.Model.Scopes,
		},
	}, nil
}

func assembler(cfg properties.Config) (*dataset.Assembler, error) {
	order, err := dataset.OrderByVersion(cfg.Pipeline.Order)
	if err != nil {
		return nil, err
	}
	a := dataset.NewAssembler(order, dataset.ParseLayout(cfg.Pipeline.Layout))
	if cfg.Pipeline.Workers > 0 {
		a.Workers = cfg.Pipeline.Workers
	}
	a.Progress = cfg.Pipeline.Progress
	return a, nil
}

type runtimeDeps struct {
	pipeline *delivery.Pipeline
	compute  *ml.ComputeContext
	records  store.Store
	mongo    *store.MongoStore
}

func (d *runtimeDeps) Close() {
	if d.compute != nil {
		if err := d.compute.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release model runtime")
		}
	}
	if d.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.mongo.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect from mongo")
		}
	}
}

// buildRuntime creates the compute context once and the pipeline around it.
func buildRuntime(ctx context.Context, cfg properties.Config) (*runtimeDeps, error) {
	mcfg, err := modelConfig(cfg)
	if err != nil {
		return nil, err
	}
	order, err := dataset.OrderByVersion(cfg.Pipeline.Order)
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return nil, err
	}

	deps := &runtimeDeps{}
	deps.compute, err = ml.NewComputeContext(mcfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := delivery.NewPipeline(deps.compute, order, dataset.ParseLayout(cfg.Pipeline.Layout), cfg.HTTP.ResultDir)
	if err != nil {
		deps.Close()
		return nil, err
	}
	pipeline.ComputeIndices = cfg.Pipeline.ComputeIndices
	pipeline.Format = format
	pipeline.Workers = cfg.Pipeline.Workers
	pipeline.Progress = cfg.Pipeline.Progress
	pipeline.Notifier = notification.NewDiscord(cfg.Notifications.DiscordErrorURL, cfg.Notifications.DiscordSuccessURL)
	if cfg.CacheDir != "" {
		pipeline.Cache = cache.NewFileCache[store.Record](filepath.Join(cfg.RootPath, cfg.CacheDir, "predictions"))
	}

	if cfg.Mongo.URI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		deps.mongo, err = store.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.records = deps.mongo
	} else {
		deps.records = store.NewMemoryStore()
	}
	pipeline.Store = deps.records
	deps.pipeline = pipeline
	return deps, nil
}
