package output

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	weedColor       = colorful.Color{R: 1, G: 0, B: 0}
	neutralColor    = colorful.Color{R: 1, G: 1, B: 1}
	vegetationColor = colorful.Color{R: 0, G: 1, B: 0}
)

// clip maps a mask value into [-1, 1]. NaN counts as neutral.
func clip(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}

// valueToColor is a linear diverging scale: -1 red, 0 white, +1 green.
func valueToColor(v float64) color.NRGBA {
	v = clip(v)
	var c colorful.Color
	if v < 0 {
		c = weedColor.BlendRgb(neutralColor, v+1)
	} else {
		c = neutralColor.BlendRgb(vegetationColor, v)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
