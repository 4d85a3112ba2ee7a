package spectral

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/rs/zerolog/log"
)

// RawBand names a physical sensor channel of a capture.
type RawBand string

const (
	Blue    RawBand = "Blue"
	Green   RawBand = "Green"
	Red     RawBand = "Red"
	NIR     RawBand = "NIR"
	RedEdge RawBand = "RedEdge"
)

// RawBandMatchers recognise raw band files by name. Order matters: a file is assigned
// to the first matcher that accepts it, and RGB previews are never a raw band.
var RawBandMatchers = []struct {
	Band  RawBand
	Match func(fileName string) bool
}{
	{Blue, func(n string) bool { return strings.Contains(n, "Blue") }},
	{Green, func(n string) bool { return strings.Contains(n, "Green") }},
	{Red, func(n string) bool { return strings.Contains(n, "Red_") && !strings.Contains(n, "RedEdge") }},
	{NIR, func(n string) bool { return strings.Contains(n, "NIR") }},
	{RedEdge, func(n string) bool { return strings.Contains(n, "RedEdge") }},
}

func isTIFF(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff")
}

// ClassifyRawBand returns the raw band a file name belongs to.
func ClassifyRawBand(fileName string) (RawBand, bool) {
	if !isTIFF(fileName) {
		return "", false
	}
	for _, m := range RawBandMatchers {
		if m.Match(fileName) {
			return m.Band, true
		}
	}
	return "", false
}

// DiscoverBands walks dir recursively and returns the path of each raw band. The first
// file in lexical walk order wins.
func DiscoverBands(dir string) (map[RawBand]string, error) {
	found := make(map[RawBand]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		band, ok := ClassifyRawBand(d.Name())
		if !ok {
			return nil
		}
		if prev, dup := found[band]; dup {
			log.Warn().Str("band", string(band)).Str("kept", prev).Str("ignored", path).Msg("duplicate raw band file")
			return nil
		}
		found[band] = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range RawBandMatchers {
		if _, ok := found[m.Band]; !ok {
			return nil, errs.NewMissingChannelError(dir, string(m.Band))
		}
	}
	return found, nil
}

// LoadBands reads the five raw bands unscaled.
func LoadBands(paths map[RawBand]string) (Bands, error) {
	loaded := make(map[RawBand]*raster.Band, len(paths))
	for band, path := range paths {
		b, err := raster.ReadRaw(path)
		if err != nil {
			return Bands{}, err
		}
		b.Name = string(band)
		loaded[band] = b
	}
	return Bands{
		Blue:    loaded[Blue],
		Green:   loaded[Green],
		Red:     loaded[Red],
		NIR:     loaded[NIR],
		RedEdge: loaded[RedEdge],
	}, nil
}

// ProcessCapture computes every index for the capture in dir and writes them next to
// the raw bands as {Index}_{tag1}_{tag2}.tif.
func ProcessCapture(dir, tag1, tag2 string) ([]string, error) {
	paths, err := DiscoverBands(dir)
	if err != nil {
		return nil, err
	}
	bands, err := LoadBands(paths)
	if err != nil {
		return nil, err
	}
	indices, err := Compute(bands)
	if err != nil {
		return nil, err
	}
	for _, w := range Degeneracies(indices) {
		errs.Warn(w)
	}
	return Write(indices, dir, tag1, tag2)
}
