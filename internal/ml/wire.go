package ml

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/intellicrop/weedmask-api/internal/dataset"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName   = "intellicrop.model.v1.Predictor"
	predictMethod = "/" + serviceName + "/Predict"
	shapeHeader   = "x-tensor-shape"
)

func formatShape(shape [4]int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseShape(values []string) ([4]int, error) {
	var shape [4]int
	if len(values) == 0 {
		return shape, fmt.Errorf("missing %s metadata", shapeHeader)
	}
	parts := strings.Split(values[0], ",")
	if len(parts) != 4 {
		return shape, fmt.Errorf("expected 4 dimensions in %s, got %q", shapeHeader, values[0])
	}
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return shape, fmt.Errorf("invalid dimension %q in %s", p, shapeHeader)
		}
		shape[i] = d
	}
	return shape, nil
}

func encodeTensor(t *dataset.Tensor) *wrapperspb.BytesValue {
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return wrapperspb.Bytes(buf)
}

func decodeTensor(shape [4]int, msg *wrapperspb.BytesValue) (*dataset.Tensor, error) {
	raw := msg.GetValue()
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("payload holds %d bytes, not a whole number of float32 values", len(raw))
	}
	// The header is client supplied; size it against the payload before allocating.
	want := int64(len(raw) / 4)
	n := int64(1)
	for _, d := range shape {
		if d <= 0 || int64(d) > want || n > want/int64(d) {
			return nil, fmt.Errorf("shape %v does not match a payload of %d values", shape, want)
		}
		n *= int64(d)
	}
	if n != want {
		return nil, fmt.Errorf("payload holds %d values, shape %v needs %d", want, shape, n)
	}
	t := dataset.NewTensor(shape[0], shape[1], shape[2], shape[3])
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return t, nil
}
