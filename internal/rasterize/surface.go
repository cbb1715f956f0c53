package rasterize

import (
	"context"
	"fmt"
	"math"

	"github.com/ridgeline-data/demgrid/internal/cloud"
	"github.com/ridgeline-data/demgrid/internal/geodesy"
	"github.com/ridgeline-data/demgrid/internal/raster"
)

// PointImage is a 2-D organised point cloud, row-major, where adjacent
// entries are adjacent on the scanned surface. Only organised producers
// (a stereo pipeline, a synthetic grid) can supply one; points recovered
// from unordered files cannot.
type PointImage struct {
	Cols, Rows int
	Pts        []cloud.Point
	Valid      []bool
}

func (im *PointImage) index(row, col int) int { return row*im.Cols + col }

// At returns the point at (row, col) and whether it is valid.
func (im *PointImage) At(row, col int) (cloud.Point, bool) {
	i := im.index(row, col)
	return im.Pts[i], im.Valid[i]
}

// RunSurface grids an organised point image by triangulated
// interpolation instead of weighted gathering. Only callers that keep
// surface adjacency (a stereo pipeline) can use it; file inputs go
// through Run.
func RunSurface(ctx context.Context, opts Options, im *PointImage, ref *geodesy.GeoRef) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Spacings) == 0 {
		return nil, fmt.Errorf("%w: no output spacing", ErrConfig)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	n := 0
	for i, p := range im.Pts {
		if !im.Valid[i] {
			continue
		}
		n++
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	if n == 0 {
		return nil, fmt.Errorf("point image has no valid points")
	}

	res := &Result{Ref: ref, PointCount: n}
	for si, spacing := range opts.Spacings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols := int(math.Ceil((maxX-minX)/spacing)) + 1
		rows := int(math.Ceil((maxY-minY)/spacing)) + 1
		g := raster.New(cols, rows, minX, maxY, spacing, *opts.NoData)
		RasterizeSurface(im, g)
		postFilter(opts, ChannelHeight, g)
		res.Grids = append(res.Grids, GridOutput{
			Channel: ChannelHeight, Spacing: spacing, SpacingIdx: si, Grid: g,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeOutputs(opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RasterizeSurface interprets the point image as a triangulated surface:
// each quad of adjacent points becomes two triangles, and every grid
// cell whose centre falls inside a triangle gets the barycentric
// interpolation of the corner heights. Cells outside all triangles keep
// nodata.
func RasterizeSurface(im *PointImage, g *raster.Grid) {
	for row := 0; row+1 < im.Rows; row++ {
		for col := 0; col+1 < im.Cols; col++ {
			a, okA := im.At(row, col)
			b, okB := im.At(row, col+1)
			c, okC := im.At(row+1, col)
			d, okD := im.At(row+1, col+1)
			if okA && okB && okC {
				fillTriangle(g, a, b, c)
			}
			if okB && okD && okC {
				fillTriangle(g, b, d, c)
			}
		}
	}
}

func fillTriangle(g *raster.Grid, a, b, c cloud.Point) {
	minX := min3(a.X, b.X, c.X)
	maxX := max3(a.X, b.X, c.X)
	minY := min3(a.Y, b.Y, c.Y)
	maxY := max3(a.Y, b.Y, c.Y)

	// Cell index range covering the triangle's bounding box.
	col0 := int((minX - g.OriginX) / g.Spacing)
	col1 := int((maxX-g.OriginX)/g.Spacing) + 1
	row0 := int((g.OriginY - maxY) / g.Spacing)
	row1 := int((g.OriginY-minY)/g.Spacing) + 1
	if col0 < 0 {
		col0 = 0
	}
	if row0 < 0 {
		row0 = 0
	}
	if col1 > g.Cols {
		col1 = g.Cols
	}
	if row1 > g.Rows {
		row1 = g.Rows
	}

	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if det == 0 {
		return // degenerate triangle
	}

	for row := row0; row < row1; row++ {
		for col := col0; col < col1; col++ {
			px, py := g.CellCenter(row, col)
			wa := ((b.Y-c.Y)*(px-c.X) + (c.X-b.X)*(py-c.Y)) / det
			wb := ((c.Y-a.Y)*(px-c.X) + (a.X-c.X)*(py-c.Y)) / det
			wc := 1 - wa - wb
			if wa < 0 || wb < 0 || wc < 0 {
				continue
			}
			g.Set(row, col, wa*a.Z+wb*b.Z+wc*c.Z)
		}
	}
}

func min3(a, b, c float64) float64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func max3(a, b, c float64) float64 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}
