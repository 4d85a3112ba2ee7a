package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

const jpegQuality = 95

// Files lists the artefacts written by Save, relative to the result directory. Preview
// is empty when the prediction has no preview image.
type Files struct {
	Preview      string `json:"preview,omitempty" bson:"preview,omitempty"`
	Mask         string `json:"mask" bson:"mask"`
	Distribution string `json:"distribution" bson:"distribution"`
	Stats        string `json:"stats" bson:"stats"`
	Footprint    string `json:"footprint" bson:"footprint"`
}

// Save writes the prediction under resultDir:
//
//	input/{id}_RGB.{ext}
//	draw/{id}_predicted.{ext}
//	draw/{id}_distribution.png
//	stats/{id}.csv
//	stats/{id}.geojson
func (p *Prediction) Save(resultDir string, format Format) (Files, error) {
	var files Files
	for _, sub := range []string{"input", "draw", "stats"} {
		if err := os.MkdirAll(filepath.Join(resultDir, sub), os.ModePerm); err != nil {
			return files, fmt.Errorf("failed to create result folder: %w", err)
		}
	}

	ext := string(format)
	if p.PreviewImage != nil {
		files.Preview = filepath.Join("input", fmt.Sprintf("%s_RGB.%s", p.ID, ext))
		if err := SaveImage(p.PreviewImage, filepath.Join(resultDir, files.Preview), format); err != nil {
			return files, err
		}
	}

	files.Mask = filepath.Join("draw", fmt.Sprintf("%s_predicted.%s", p.ID, ext))
	if err := SaveImage(p.MaskImage, filepath.Join(resultDir, files.Mask), format); err != nil {
		return files, err
	}

	files.Distribution = filepath.Join("draw", p.ID+"_distribution.png")
	if err := p.SaveDistributionChart(filepath.Join(resultDir, files.Distribution)); err != nil {
		return files, err
	}

	files.Stats = filepath.Join("stats", p.ID+".csv")
	if err := p.SaveStatsCSV(filepath.Join(resultDir, files.Stats)); err != nil {
		return files, err
	}

	files.Footprint = filepath.Join("stats", p.ID+".geojson")
	if err := p.SaveFootprint(filepath.Join(resultDir, files.Footprint)); err != nil {
		return files, err
	}

	log.Info().Str("id", p.ID).Str("dir", resultDir).Str("format", ext).Msg("prediction saved")
	return files, nil
}

func SaveImage(img image.Image, path string, format Format) error {
	switch format {
	case WebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := webp.Encode(f, img, &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		return nil
	case JPEG:
		return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
	default:
		return imaging.Save(img, path)
	}
}
