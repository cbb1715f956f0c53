package raster

import "log"

// fillWarnWindow is the window size above which hole filling logs a
// resource warning before proceeding.
const fillWarnWindow = 512

// FillHoles replaces each nodata cell with the average of the valid
// cells inside a square window of side 2*fillLen+1 centered on it. Cells
// with no valid neighbor in the window stay nodata. The pass reads the
// original cells only, so filled values never feed later fills.
func FillHoles(g *Grid, fillLen int) {
	if fillLen <= 0 {
		return
	}
	window := 2*fillLen + 1
	if window > fillWarnWindow {
		log.Printf("hole-fill window %dx%d is large; filling may be slow and memory-hungry", window, window)
	}

	src := g.Cells
	out := make([]float64, len(src))
	copy(out, src)

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if src[row*g.Cols+col] != g.NoData {
				continue
			}
			sum, n := 0.0, 0
			for r := row - fillLen; r <= row+fillLen; r++ {
				if r < 0 || r >= g.Rows {
					continue
				}
				for c := col - fillLen; c <= col+fillLen; c++ {
					if c < 0 || c >= g.Cols {
						continue
					}
					if v := src[r*g.Cols+c]; v != g.NoData {
						sum += v
						n++
					}
				}
			}
			if n > 0 {
				out[row*g.Cols+col] = sum / float64(n)
			}
		}
	}
	g.Cells = out
}
