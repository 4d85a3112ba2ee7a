package main

import (
	"testing"
	"time"

	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelConfigFromProperties(t *testing.T) {
	cfg := properties.Defaults()
	cfg.Pipeline.Mode = "categorical"
	cfg.Model.Timeout = 30 * time.Second
	cfg.Model.TokenURL = "https://auth.example.org/token"

	mcfg, err := modelConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ml.CategoricalSegmentation, mcfg.Mode)
	assert.Equal(t, 30*time.Second, mcfg.Timeout)
	assert.Equal(t, 13, mcfg.GRPC.Channels)
	assert.Equal(t, "https://auth.example.org/token", mcfg.GRPC.TokenURL)

	cfg.Pipeline.Mode = "regression-ish"
	_, err = modelConfig(cfg)
	assert.Error(t, err)
}

func TestAssemblerFromProperties(t *testing.T) {
	cfg := properties.Defaults()
	cfg.Pipeline.Layout = "nested"
	cfg.Pipeline.Workers = 3

	a, err := assembler(cfg)
	require.NoError(t, err)
	assert.Equal(t, dataset.LayoutNested, a.Layout)
	assert.Equal(t, 3, a.Workers)
	assert.Equal(t, dataset.RGB14.Version, a.Order.Version)

	cfg.Pipeline.Order = "indices-99"
	_, err = assembler(cfg)
	assert.Error(t, err)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cfg := properties.Defaults()
	root := newRootCmd(&cfg)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"indices", "assemble", "predict", "serve", "model-server"}, names)
}
