package dataset

import (
	"fmt"
	"strings"

	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/spectral"
	"github.com/rs/zerolog/log"
)

// RGBChannel is the 3-band preview channel. Only its first band enters the stack.
const RGBChannel = "RGB"

// ChannelOrder is the fixed sequence in which channels are stacked into the tensor.
type ChannelOrder struct {
	Version  string
	Channels []string
}

func (o ChannelOrder) Len() int {
	return len(o.Channels)
}

// RGBPrefixed reports whether the order starts with the preview channel.
func (o ChannelOrder) RGBPrefixed() bool {
	return len(o.Channels) > 0 && o.Channels[0] == RGBChannel
}

// WithoutLeading returns the order minus its first channel, the same reduction
// Reconcile applies to a tensor.
func (o ChannelOrder) WithoutLeading() ChannelOrder {
	if len(o.Channels) == 0 {
		return o
	}
	return ChannelOrder{
		Version:  o.Version + "-dropped",
		Channels: append([]string(nil), o.Channels[1:]...),
	}
}

func (o ChannelOrder) String() string {
	return fmt.Sprintf("%s[%s]", o.Version, strings.Join(o.Channels, ","))
}

var indexChannels = []string{
	string(spectral.CI),
	string(spectral.EVI),
	string(spectral.ExG),
	string(spectral.ExR),
	string(spectral.GNDVI),
	string(spectral.MCARI),
	string(spectral.MGRVI),
	string(spectral.MSAVI),
	string(spectral.NDVI),
	string(spectral.OSAVI),
	string(spectral.PRI),
	string(spectral.SAVI),
	string(spectral.TVI),
}

var (
	// Indices13 is the 13-index order the model was trained on.
	Indices13 = ChannelOrder{Version: "indices-13-v1", Channels: indexChannels}

	// RGB14 prefixes Indices13 with the preview channel. The extra channel is dropped
	// again before inference.
	RGB14 = ChannelOrder{Version: "rgb-14-v1", Channels: append([]string{RGBChannel}, indexChannels...)}
)

var orders = map[string]ChannelOrder{
	Indices13.Version: Indices13,
	RGB14.Version:     RGB14,
}

// OrderByVersion looks up a known channel order.
func OrderByVersion(version string) (ChannelOrder, error) {
	o, ok := orders[version]
	if !ok {
		return ChannelOrder{}, fmt.Errorf("unknown channel order %q", version)
	}
	return o, nil
}

// ValidateOrder checks an order against the channel count a model expects. An order
// with exactly one extra leading RGB channel is accepted; the channel is dropped by
// Reconcile.
func ValidateOrder(order ChannelOrder, expected int) error {
	switch {
	case order.Len() == expected:
		return nil
	case order.Len() == expected+1 && order.RGBPrefixed():
		log.Warn().
			Str("order", order.Version).
			Int("expected_channels", expected).
			Msg("channel order carries a leading RGB channel, it will be dropped before inference")
		return nil
	default:
		return errs.NewShapeMismatchError("validate channel order "+order.Version, []int{expected}, []int{order.Len()})
	}
}
