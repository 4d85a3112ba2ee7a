package output

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveDistributionChart draws the category shares as a bar chart.
func (p *Prediction) SaveDistributionChart(path string) error {
	pl := plot.New()
	pl.Title.Text = "Category distribution"
	pl.Y.Label.Text = "%"
	pl.Y.Min = 0
	pl.Y.Max = 100

	bars := []struct {
		share float64
		color color.Color
	}{
		{p.Categories.Weed, toNRGBA(weedColor)},
		{p.Categories.Misc, toNRGBA(neutralColor)},
		{p.Categories.Vegetation, toNRGBA(vegetationColor)},
	}
	for i, b := range bars {
		chart, err := plotter.NewBarChart(plotter.Values{b.share}, vg.Points(60))
		if err != nil {
			return fmt.Errorf("failed to build bar chart: %w", err)
		}
		chart.XMin = float64(i)
		chart.Color = b.color
		chart.LineStyle.Width = vg.Length(1)
		pl.Add(chart)
	}
	pl.NominalX("Weed", "Misc/Other", "Vegetation")

	if err := pl.Save(4*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save distribution chart: %w", err)
	}
	return nil
}
