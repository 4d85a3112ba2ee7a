package ml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/rs/zerolog/log"
	onnxrt "github.com/yalue/onnxruntime_go"
)

var defaultLibraryPaths = []string{
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/libonnxruntime.so",
	"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if !onnxrt.IsInitialized() {
		path, err := findLibrary(libraryPath)
		if err != nil {
			return err
		}
		onnxrt.SetSharedLibraryPath(path)
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return fmt.Errorf("init onnx: %w", err)
		}
		log.Info().Str("library", path).Msg("onnx runtime initialized")
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs > 0 || !onnxrt.IsInitialized() {
		return nil
	}
	return onnxrt.DestroyEnvironment()
}

func findLibrary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("onnx runtime library: %w", err)
		}
		return configured, nil
	}
	for _, p := range defaultLibraryPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("onnx runtime library not found, set ONNX_LIBRARY_PATH")
}

// ONNXPredictor runs an exported model in-process. The model takes and returns
// NHWC float32 tensors.
type ONNXPredictor struct {
	session  *onnxrt.DynamicAdvancedSession
	input    onnxrt.InputOutputInfo
	output   onnxrt.InputOutputInfo
	channels int
}

// NewONNXPredictor loads modelPath. The input channel count comes from the model's
// declared input shape, falling back to channels when that dimension is dynamic.
func NewONNXPredictor(modelPath, libraryPath string, channels int) (*ONNXPredictor, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if err := acquireEnvironment(libraryPath); err != nil {
		return nil, err
	}

	p, err := openSession(modelPath, channels)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	log.Info().
		Str("model", modelPath).
		Str("input", p.input.Name).
		Str("output", p.output.Name).
		Int("channels", p.channels).
		Msg("onnx model loaded")
	return p, nil
}

func openSession(modelPath string, channels int) (*ONNXPredictor, error) {
	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input, got %dD", len(in.Dimensions))
	}
	if c := in.Dimensions[3]; c > 0 {
		channels = int(c)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("model %s declares a dynamic channel dimension and none was configured", modelPath)
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer opts.Destroy()

	sess, err := onnxrt.NewDynamicAdvancedSession(modelPath, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &ONNXPredictor{session: sess, input: in, output: out, channels: channels}, nil
}

func (p *ONNXPredictor) Predict(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shape := onnxrt.NewShape(int64(in.Shape[0]), int64(in.Shape[1]), int64(in.Shape[2]), int64(in.Shape[3]))
	input, err := onnxrt.NewTensor(shape, in.Data)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []onnxrt.Value{nil}
	if err := p.session.Run([]onnxrt.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dims := t.GetShape()
	if len(dims) != 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	out := dataset.NewTensor(int(dims[0]), int(dims[1]), int(dims[2]), int(dims[3]))
	copy(out.Data, t.GetData())
	return out, nil
}

func (p *ONNXPredictor) InputChannels() int {
	return p.channels
}

func (p *ONNXPredictor) Close() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	if rerr := releaseEnvironment(); err == nil {
		err = rerr
	}
	return err
}
