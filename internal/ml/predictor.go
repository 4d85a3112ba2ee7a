package ml

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/intellicrop/weedmask-api/internal/errs"
)

// Predictor runs the trained image-to-image model on an NHWC tensor.
type Predictor interface {
	Predict(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error)
	InputChannels() int
	Close() error
}

// TargetMode is what the model was trained to emit.
type TargetMode int

const (
	// SingleChannelRegression emits one value per pixel in [-1, 1].
	SingleChannelRegression TargetMode = iota
	// TwoChannelRegression emits an (NDVI, ExR) pair per pixel.
	TwoChannelRegression
	// CategoricalSegmentation emits per-class probabilities summing to 1.
	CategoricalSegmentation
)

var targetModeNames = map[TargetMode]string{
	SingleChannelRegression: "single",
	TwoChannelRegression:    "two-channel",
	CategoricalSegmentation: "categorical",
}

func (m TargetMode) String() string {
	if s, ok := targetModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("TargetMode(%d)", int(m))
}

func ParseTargetMode(s string) (TargetMode, error) {
	for m, name := range targetModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown target mode %q", s)
}

const softmaxTolerance = 1e-3

// ValidateOutput checks a model output against its input and the target mode.
func ValidateOutput(in, out *dataset.Tensor, mode TargetMode) error {
	if out == nil || !out.Valid() {
		return fmt.Errorf("model returned a malformed tensor")
	}
	if out.Samples() < 1 || out.Height() != in.Height() || out.Width() != in.Width() {
		return errs.NewShapeMismatchError("validate model output",
			[]int{in.Samples(), in.Height(), in.Width()}, []int{out.Samples(), out.Height(), out.Width()})
	}

	c := out.Channels()
	switch mode {
	case SingleChannelRegression:
		if c != 1 {
			return errs.NewShapeMismatchError("validate single-channel output", []int{1}, []int{c})
		}
		return nil
	case TwoChannelRegression:
		if c != 2 {
			return errs.NewShapeMismatchError("validate two-channel output", []int{2}, []int{c})
		}
		return nil
	case CategoricalSegmentation:
		if c < 2 {
			return errs.NewShapeMismatchError("validate categorical output", []int{3}, []int{c})
		}
		for px := 0; px < len(out.Data)/c; px++ {
			var sum float64
			for k := 0; k < c; k++ {
				sum += float64(out.Data[px*c+k])
			}
			if math.Abs(sum-1) > softmaxTolerance {
				return fmt.Errorf("categorical output at pixel %d sums to %.4f, expected 1", px, sum)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported target mode %s", mode)
	}
}

type deadlinePredictor struct {
	Predictor
	timeout time.Duration
}

// WithDeadline bounds every Predict call of p. Backends that ignore the context are
// abandoned when the deadline passes.
func WithDeadline(p Predictor, timeout time.Duration) Predictor {
	if timeout <= 0 {
		return p
	}
	return &deadlinePredictor{Predictor: p, timeout: timeout}
}

func (d *deadlinePredictor) Predict(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		out *dataset.Tensor
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := d.Predictor.Predict(ctx, in)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("model call did not finish within %s: %w", d.timeout, ctx.Err())
	}
}

// FuncPredictor adapts a plain function.
type FuncPredictor struct {
	Channels int
	Fn       func(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error)
}

func (f FuncPredictor) Predict(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error) {
	return f.Fn(ctx, in)
}

func (f FuncPredictor) InputChannels() int { return f.Channels }

func (f FuncPredictor) Close() error { return nil }
