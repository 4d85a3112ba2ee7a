package output

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

type StatsRow struct {
	ID         string  `csv:"id"`
	Category   string  `csv:"category"`
	Pixels     int     `csv:"pixels"`
	Percentage float64 `csv:"percentage"`
	Min        float64 `csv:"mask_min"`
	Max        float64 `csv:"mask_max"`
	Mean       float64 `csv:"mask_mean"`
	Median     float64 `csv:"mask_median"`
}

func (p *Prediction) StatsRows() []*StatsRow {
	row := func(category string, pixels int, share float64) *StatsRow {
		return &StatsRow{
			ID:         p.ID,
			Category:   category,
			Pixels:     pixels,
			Percentage: share,
			Min:        p.Summary.Min,
			Max:        p.Summary.Max,
			Mean:       p.Summary.Mean,
			Median:     p.Summary.Median,
		}
	}
	return []*StatsRow{
		row("Vegetation", p.Categories.VegetationPixels, p.Categories.Vegetation),
		row("Weed", p.Categories.WeedPixels, p.Categories.Weed),
		row("Misc/Other", p.Categories.MiscPixels, p.Categories.Misc),
	}
}

func (p *Prediction) SaveStatsCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create stats file: %w", err)
	}
	defer file.Close()

	rows := p.StatsRows()
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}
