package ml

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Backend string

const (
	BackendGRPC Backend = "grpc"
	BackendONNX Backend = "onnx"
)

type Config struct {
	Backend     Backend
	ModelPath   string
	LibraryPath string
	Channels    int
	Timeout     time.Duration
	Mode        TargetMode
	GRPC        GRPCConfig
}

// ComputeContext owns the inference runtime for the life of the process. It is
// created once at startup and shared by every request.
type ComputeContext struct {
	cfg       Config
	raw       Predictor
	predictor Predictor
}

func NewComputeContext(cfg Config) (*ComputeContext, error) {
	var (
		p   Predictor
		err error
	)
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendONNX:
		p, err = NewONNXPredictor(cfg.ModelPath, cfg.LibraryPath, cfg.Channels)
	case BackendGRPC, "":
		grpcCfg := cfg.GRPC
		if grpcCfg.Channels == 0 {
			grpcCfg.Channels = cfg.Channels
		}
		p, err = NewGRPCPredictor(grpcCfg)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return newComputeContext(cfg, p), nil
}

// NewComputeContextWith wraps an already built predictor.
func NewComputeContextWith(cfg Config, p Predictor) *ComputeContext {
	return newComputeContext(cfg, p)
}

func newComputeContext(cfg Config, p Predictor) *ComputeContext {
	log.Info().
		Str("backend", string(cfg.Backend)).
		Str("mode", cfg.Mode.String()).
		Int("channels", p.InputChannels()).
		Dur("timeout", cfg.Timeout).
		Msg("compute context ready")
	return &ComputeContext{cfg: cfg, raw: p, predictor: WithDeadline(p, cfg.Timeout)}
}

// Predictor returns the deadline-bound predictor.
func (c *ComputeContext) Predictor() Predictor {
	return c.predictor
}

func (c *ComputeContext) Mode() TargetMode {
	return c.cfg.Mode
}

func (c *ComputeContext) InputChannels() int {
	return c.raw.InputChannels()
}

func (c *ComputeContext) Close() error {
	return c.raw.Close()
}
