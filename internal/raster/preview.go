package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// gridXYZ adapts a Grid to the plotter's grid interface. The heat map
// wants row 0 at the bottom and NaN for missing cells.
type gridXYZ struct {
	g *Grid
}

func (d gridXYZ) Dims() (c, r int) { return d.g.Cols, d.g.Rows }

func (d gridXYZ) Z(c, r int) float64 {
	v := d.g.At(d.g.Rows-1-r, c)
	if v == d.g.NoData {
		return math.NaN()
	}
	return v
}

func (d gridXYZ) X(c int) float64 {
	x, _ := d.g.CellCenter(0, c)
	return x
}

func (d gridXYZ) Y(r int) float64 {
	_, y := d.g.CellCenter(d.g.Rows-1-r, 0)
	return y
}

// WritePreviewPNG renders the grid as a heat-map image for quick visual
// inspection alongside the ASCII raster.
func WritePreviewPNG(path, title string, g *Grid) error {
	if g.ValidCount() == 0 {
		return fmt.Errorf("grid has no valid cells, nothing to preview")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"

	h := plotter.NewHeatMap(gridXYZ{g}, palette.Heat(16, 1))
	p.Add(h)

	width := 8 * vg.Inch
	height := width * vg.Length(float64(g.Rows)/float64(g.Cols))
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}
