package raster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/rs/zerolog/log"
)

// PlaceholderEPSG and PlaceholderGeoTransform are written when a capture carries no
// usable geolocation: WGS84, origin (0, 0), one unit per pixel, north-up.
const PlaceholderEPSG = 4326

var PlaceholderGeoTransform = [6]float64{0, 1, 0, 0, 0, -1}

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

func quietWarnings() godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			return nil
		}
		return errors.New(msg)
	}
}

// Load reads a GeoTIFF for the dataset. Non-RGB files contribute band 1, RGB files
// bands 1 to 3. Files holding NaN or infinite values are rejected. RGB data is always
// min-max scaled to [0, 1]; other data only when it leaves [0, 1].
func Load(path string, isRGB bool) (*Band, error) {
	channels := 1
	if isRGB {
		channels = 3
	}
	band, err := read(path, channels)
	if err != nil {
		return nil, err
	}

	if nan, inf := band.NonFinite(); nan > 0 || inf > 0 {
		log.Warn().Str("path", path).Int("nan", nan).Int("inf", inf).Msg("NaN detected in file")
		reason := "NaN detected"
		if nan == 0 {
			reason = "infinite values detected"
		}
		return nil, errs.NewCorruptDataError(path, reason, nan+inf)
	}

	min, max := band.MinMax()
	switch {
	case isRGB:
		log.Debug().Str("path", path).Msg("loading RGB image")
		MinMaxScale(band.Values, min, max)
	case NeedsScaling(min, max):
		log.Debug().Str("path", path).Float64("min", min).Float64("max", max).Msg("scaling applied")
		MinMaxScale(band.Values, min, max)
	default:
		log.Debug().Str("path", path).Float64("min", min).Float64("max", max).Msg("no scaling needed")
	}
	return band, nil
}

// ReadRaw reads band 1 without validation or scaling.
func ReadRaw(path string) (*Band, error) {
	return read(path, 1)
}

func read(path string, channels int) (*Band, error) {
	registerDrivers()

	ds, err := godal.Open(path, godal.ErrLogger(quietWarnings()))
	if err != nil {
		return nil, fmt.Errorf("failed to open TIFF file %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < channels {
		return nil, errs.NewShapeMismatchError("read "+path, []int{channels}, []int{st.NBands})
	}

	width, height := st.SizeX, st.SizeY
	values := make([]float32, width*height*channels)
	buf := make([]float32, width*height)
	bands := ds.Bands()
	for c := 0; c < channels; c++ {
		if err := bands[c].Read(0, 0, buf, width, height); err != nil {
			return nil, fmt.Errorf("failed to read raster data from %s band %d: %w", path, c+1, err)
		}
		if channels == 1 {
			copy(values, buf)
			continue
		}
		for i, v := range buf {
			values[i*channels+c] = v
		}
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		gt = PlaceholderGeoTransform
	}

	return &Band{
		Path:         path,
		Width:        width,
		Height:       height,
		Channels:     channels,
		Values:       values,
		GeoTransform: gt,
	}, nil
}

// WriteGeoTIFF writes every channel of b as a Float32 band, tagged with the given EPSG
// code and the band's geotransform.
func WriteGeoTIFF(path string, b *Band, epsg int) error {
	registerDrivers()

	ds, err := godal.Create(godal.GTiff, path, b.Channels, godal.Float32, b.Width, b.Height)
	if err != nil {
		return fmt.Errorf("failed to create TIFF file %s: %w", path, err)
	}

	if err := describe(ds, b, epsg); err != nil {
		ds.Close()
		return err
	}

	bands := ds.Bands()
	for c := 0; c < b.Channels; c++ {
		if err := bands[c].Write(0, 0, b.Channel(c).Values, b.Width, b.Height); err != nil {
			ds.Close()
			return fmt.Errorf("failed to write band %d of %s: %w", c+1, path, err)
		}
	}

	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

func describe(ds *godal.Dataset, b *Band, epsg int) error {
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("failed to build spatial reference EPSG:%d: %w", epsg, err)
	}
	defer sr.Close()

	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	if err := ds.SetGeoTransform(b.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	return nil
}

// Bounds returns the (minX, minY, maxX, maxY) extent covered by a grid of the given
// size under geotransform gt.
func Bounds(gt [6]float64, width, height int) (float64, float64, float64, float64) {
	xs := []float64{gt[0], gt[0] + gt[1]*float64(width) + gt[2]*float64(height)}
	ys := []float64{gt[3], gt[3] + gt[4]*float64(width) + gt[5]*float64(height)}
	minX, maxX := xs[0], xs[1]
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := ys[0], ys[1]
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}
