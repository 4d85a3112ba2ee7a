package output

import (
	"fmt"
	"os"

	"github.com/intellicrop/weedmask-api/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Footprint returns the area covered by the mask as a single-feature collection
// carrying the category shares.
func (p *Prediction) Footprint() *geojson.FeatureCollection {
	minX, minY, maxX, maxY := raster.Bounds(p.GeoTransform, p.Width, p.Height)
	bound := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}

	feature := geojson.NewFeature(bound.ToPolygon())
	feature.Properties["id"] = p.ID
	feature.Properties["mode"] = p.Mode.String()
	feature.Properties["width"] = p.Width
	feature.Properties["height"] = p.Height
	for k, v := range p.Categories.Info() {
		feature.Properties[k] = v
	}
	if p.Source != "" {
		feature.Properties["source"] = p.Source
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	return fc
}

func (p *Prediction) SaveFootprint(path string) error {
	data, err := p.Footprint().MarshalJSON()
	if err != nil {
		return fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	return nil
}
