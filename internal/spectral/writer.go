package spectral

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/intellicrop/weedmask-api/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const writeConcurrency = 4

func FileName(name IndexName, tag1, tag2 string) string {
	return fmt.Sprintf("%s_%s_%s.tif", name, tag1, tag2)
}

// Write saves each index as its own single-band GeoTIFF in outputFolder, creating the
// folder if needed. CRS and geotransform are placeholders. Paths come back sorted by
// index name.
func Write(indices Indices, outputFolder, tag1, tag2 string) ([]string, error) {
	if err := os.MkdirAll(outputFolder, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	names := utils.SortedKeys(indices)
	paths := make([]string, len(names))

	var g errgroup.Group
	g.SetLimit(writeConcurrency)
	for i, name := range names {
		g.Go(func() error {
			path := filepath.Join(outputFolder, FileName(name, tag1, tag2))
			band := *indices[name]
			band.GeoTransform = raster.PlaceholderGeoTransform
			if err := raster.WriteGeoTIFF(path, &band, raster.PlaceholderEPSG); err != nil {
				return fmt.Errorf("failed to save %s: %w", name, err)
			}
			paths[i] = path
			log.Debug().Str("path", path).Msg("saved index")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
