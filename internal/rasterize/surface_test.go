package rasterize

import (
	"context"
	"math"
	"testing"

	"github.com/ridgeline-data/demgrid/internal/cloud"
	"github.com/ridgeline-data/demgrid/internal/geodesy"
	"github.com/ridgeline-data/demgrid/internal/raster"
)

// planeImage builds an organised rows x cols image sampling z = f(x, y)
// on a unit-spaced lattice.
func planeImage(cols, rows int, f func(x, y float64) float64) *PointImage {
	im := &PointImage{
		Cols: cols, Rows: rows,
		Pts:   make([]cloud.Point, cols*rows),
		Valid: make([]bool, cols*rows),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := float64(c), float64(rows-1-r)
			i := r*cols + c
			im.Pts[i] = cloud.Point{X: x, Y: y, Z: f(x, y)}
			im.Valid[i] = true
		}
	}
	return im
}

func TestRasterizeSurfaceLinearPlane(t *testing.T) {
	// Barycentric interpolation reproduces a linear surface exactly at
	// every covered cell centre.
	f := func(x, y float64) float64 { return 2*x - 3*y + 7 }
	im := planeImage(5, 5, f)

	g := raster.New(8, 8, 0, 4, 0.5, -9999)
	RasterizeSurface(im, g)

	covered := 0
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if !g.Valid(row, col) {
				continue
			}
			covered++
			x, y := g.CellCenter(row, col)
			if want := f(x, y); math.Abs(g.At(row, col)-want) > 1e-9 {
				t.Fatalf("cell (%d,%d) = %g, want %g", row, col, g.At(row, col), want)
			}
		}
	}
	if covered == 0 {
		t.Fatal("no cell was covered by the mesh")
	}
}

func TestRasterizeSurfaceSkipsInvalidQuads(t *testing.T) {
	im := planeImage(3, 3, func(x, y float64) float64 { return 1 })
	// Knocking out the centre point invalidates all four quads around it.
	im.Valid[4] = false

	g := raster.New(4, 4, 0, 2, 0.5, -9999)
	RasterizeSurface(im, g)
	// Cell centred at (1.25, 0.75) lies in the quad above-right of the
	// centre point, which lost two of its corners.
	if g.Valid(2, 2) {
		t.Errorf("cell inside a broken quad got value %g", g.At(2, 2))
	}
}

func TestRunSurface(t *testing.T) {
	f := func(x, y float64) float64 { return x + y }
	im := planeImage(6, 6, f)
	ref := geodesy.NewUTM(geodesy.WGS84, 10, true)

	opts := Options{Spacings: []float64{1, 2.5}, UseSurfaceSampling: true}
	res, err := RunSurface(context.Background(), opts, im, ref)
	if err != nil {
		t.Fatal(err)
	}
	if res.PointCount != 36 {
		t.Errorf("PointCount = %d, want 36", res.PointCount)
	}
	if len(res.Grids) != 2 {
		t.Fatalf("produced %d grids, want 2", len(res.Grids))
	}
	g := res.Grids[0].Grid
	if g.ValidCount() == 0 {
		t.Fatal("surface run produced an empty grid")
	}

	empty := &PointImage{Cols: 2, Rows: 2, Pts: make([]cloud.Point, 4), Valid: make([]bool, 4)}
	if _, err := RunSurface(context.Background(), opts, empty, ref); err == nil {
		t.Error("image with no valid points must fail")
	}
}
