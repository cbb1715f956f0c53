package raster

// Erode invalidates every valid cell within erodeLen cells of a nodata
// cell or of the grid edge. Gridding smears point influence outward by
// the search radius, so the outermost ring of cells around a gap is
// suspect and gets trimmed before hole filling.
func Erode(g *Grid, erodeLen int) {
	if erodeLen <= 0 {
		return
	}

	src := g.Cells
	out := make([]float64, len(src))
	copy(out, src)

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if src[row*g.Cols+col] == g.NoData {
				continue
			}
			if nearInvalid(g, src, row, col, erodeLen) {
				out[row*g.Cols+col] = g.NoData
			}
		}
	}
	g.Cells = out
}

func nearInvalid(g *Grid, src []float64, row, col, dist int) bool {
	for r := row - dist; r <= row+dist; r++ {
		for c := col - dist; c <= col+dist; c++ {
			if r < 0 || r >= g.Rows || c < 0 || c >= g.Cols {
				return true
			}
			if src[r*g.Cols+c] == g.NoData {
				return true
			}
		}
	}
	return false
}
