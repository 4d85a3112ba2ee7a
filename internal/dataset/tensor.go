package dataset

import (
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/rs/zerolog/log"
)

// Tensor is a dense NHWC float32 array.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

func NewTensor(n, h, w, c int) *Tensor {
	return &Tensor{Shape: [4]int{n, h, w, c}, Data: make([]float32, n*h*w*c)}
}

func (t *Tensor) Samples() int  { return t.Shape[0] }
func (t *Tensor) Height() int   { return t.Shape[1] }
func (t *Tensor) Width() int    { return t.Shape[2] }
func (t *Tensor) Channels() int { return t.Shape[3] }

func (t *Tensor) index(n, y, x, c int) int {
	return ((n*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3] + c
}

func (t *Tensor) At(n, y, x, c int) float32 {
	return t.Data[t.index(n, y, x, c)]
}

func (t *Tensor) Set(n, y, x, c int, v float32) {
	t.Data[t.index(n, y, x, c)] = v
}

// Plane copies channel c of sample n into a row-major H*W slice.
func (t *Tensor) Plane(n, c int) []float32 {
	h, w := t.Height(), t.Width()
	out := make([]float32, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = t.At(n, y, x, c)
		}
	}
	return out
}

// Valid reports whether Data holds exactly the elements Shape describes.
func (t *Tensor) Valid() bool {
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return false
		}
		n *= d
	}
	return len(t.Data) == n
}

func (t *Tensor) ShapeSlice() []int {
	return t.Shape[:]
}

// DropLeadingChannel returns a copy without channel 0.
func (t *Tensor) DropLeadingChannel() *Tensor {
	n, h, w, c := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(n, h, w, c-1)
	for px := 0; px < n*h*w; px++ {
		copy(out.Data[px*(c-1):(px+1)*(c-1)], t.Data[px*c+1:(px+1)*c])
	}
	return out
}

// Reconcile fits a tensor to the channel count a model expects. One surplus channel
// is removed from the front; any other difference is a ShapeMismatchError.
func Reconcile(t *Tensor, expected int) (*Tensor, error) {
	switch t.Channels() {
	case expected:
		return t, nil
	case expected + 1:
		log.Info().Int("channels", t.Channels()).Int("expected", expected).Msg("dropping leading channel")
		return t.DropLeadingChannel(), nil
	default:
		return nil, errs.NewShapeMismatchError("reconcile channels", []int{expected}, []int{t.Channels()})
	}
}
