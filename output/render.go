package output

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"golang.org/x/image/font/basicfont"
)

// Every rendered image is a fixed FrameSize square.
const FrameSize = 500

const (
	titleHeight   = 30
	legendHeight  = 70
	framePadding  = 20
	legendSpacing = 20
)

func maskImage(mask []float64, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, valueToColor(mask[y*width+x]))
		}
	}
	return img
}

// previewImage converts a normalized 3-channel band to 8-bit RGB.
func previewImage(b *raster.Band) (*image.NRGBA, error) {
	if b.Channels != 3 {
		return nil, errs.NewShapeMismatchError("render preview", []int{b.Height, b.Width, 3}, b.Shape())
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: to8bit(b.At(x, y, 0)),
				G: to8bit(b.At(x, y, 1)),
				B: to8bit(b.At(x, y, 2)),
				A: 255,
			})
		}
	}
	return img, nil
}

func to8bit(v float32) uint8 {
	f := float64(v) * 255
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 255:
		return 255
	default:
		return uint8(f)
	}
}

// Frame draws img scaled into a FrameSize square under a title. When categories is
// not nil a colour legend with the category shares is drawn below the image.
func Frame(title string, img image.Image, categories *Categories) image.Image {
	dc := gg.NewContext(FrameSize, FrameSize)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, FrameSize/2, titleHeight/2, 0.5, 0.5)

	areaH := FrameSize - titleHeight - framePadding
	if categories != nil {
		areaH -= legendHeight
	}
	areaW := FrameSize - 2*framePadding

	bounds := img.Bounds()
	if bounds.Dx() > 0 && bounds.Dy() > 0 {
		scale := math.Min(float64(areaW)/float64(bounds.Dx()), float64(areaH)/float64(bounds.Dy()))
		w := max(1, int(float64(bounds.Dx())*scale))
		h := max(1, int(float64(bounds.Dy())*scale))
		scaled := imaging.Resize(img, w, h, imaging.NearestNeighbor)
		dc.DrawImageAnchored(scaled, FrameSize/2, titleHeight+areaH/2, 0.5, 0.5)
	}

	if categories != nil {
		drawLegend(dc, titleHeight+areaH+framePadding/2, *categories)
	}
	return dc.Image()
}

func drawLegend(dc *gg.Context, top int, c Categories) {
	entries := []struct {
		label string
		share float64
		color color.NRGBA
	}{
		{"Weed", c.Weed, toNRGBA(weedColor)},
		{"Misc/Other", c.Misc, toNRGBA(neutralColor)},
		{"Vegetation", c.Vegetation, toNRGBA(vegetationColor)},
	}

	x := float64(framePadding)
	for i, e := range entries {
		y := float64(top + i*legendSpacing)

		dc.SetColor(e.color)
		dc.DrawRectangle(x, y, 15, 15)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(x, y, 15, 15)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.DrawStringAnchored(fmt.Sprintf("%s %.2f%%", e.label, e.share), x+20, y+7, 0, 0.5)
	}
}
