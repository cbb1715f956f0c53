// Package raster holds the output grid type, its post-processing filters
// and its writers.
package raster

import "math"

// Grid is a row-major raster with a georeferenced origin. Row 0 is the
// top row, so y decreases with increasing row index. A cell holding the
// NoData sentinel is invalid.
type Grid struct {
	Cols, Rows int
	// OriginX, OriginY locate the outer corner of cell (0,0), the
	// north-west corner of the grid.
	OriginX, OriginY float64
	Spacing          float64
	NoData           float64
	Cells            []float64
}

// New allocates a grid with every cell set to the nodata sentinel.
func New(cols, rows int, originX, originY, spacing, noData float64) *Grid {
	g := &Grid{
		Cols: cols, Rows: rows,
		OriginX: originX, OriginY: originY,
		Spacing: spacing, NoData: noData,
		Cells: make([]float64, cols*rows),
	}
	for i := range g.Cells {
		g.Cells[i] = noData
	}
	return g
}

func (g *Grid) At(row, col int) float64     { return g.Cells[row*g.Cols+col] }
func (g *Grid) Set(row, col int, v float64) { g.Cells[row*g.Cols+col] = v }

// Valid reports whether the cell holds a real value.
func (g *Grid) Valid(row, col int) bool { return g.At(row, col) != g.NoData }

// CellCenter is the projected-plane location of a cell's midpoint.
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.Spacing
	y = g.OriginY - (float64(row)+0.5)*g.Spacing
	return x, y
}

// ValidCount is the number of cells holding real values.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Cells {
		if v != g.NoData {
			n++
		}
	}
	return n
}

// Round snaps every valid cell to the nearest multiple of step, bounding
// the precision stored in text outputs. Nodata cells are untouched.
func (g *Grid) Round(step float64) {
	if step <= 0 {
		return
	}
	for i, v := range g.Cells {
		if v == g.NoData {
			continue
		}
		g.Cells[i] = math.Round(v/step) * step
	}
}

// Clone copies the grid, cells included.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Cells = make([]float64, len(g.Cells))
	copy(out.Cells, g.Cells)
	return &out
}
