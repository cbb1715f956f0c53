package raster

import "sort"

// MedianReject invalidates spikes: a valid cell becomes nodata when its
// value differs from the median of the valid cells in a windowLen x
// windowLen neighborhood by more than threshold. windowLen must be odd
// and at least 3 for the pass to do anything.
func MedianReject(g *Grid, windowLen int, threshold float64) {
	if windowLen < 3 || windowLen%2 == 0 || threshold <= 0 {
		return
	}
	half := windowLen / 2

	src := g.Cells
	out := make([]float64, len(src))
	copy(out, src)
	window := make([]float64, 0, windowLen*windowLen)

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v := src[row*g.Cols+col]
			if v == g.NoData {
				continue
			}
			window = window[:0]
			for r := row - half; r <= row+half; r++ {
				if r < 0 || r >= g.Rows {
					continue
				}
				for c := col - half; c <= col+half; c++ {
					if c < 0 || c >= g.Cols {
						continue
					}
					if w := src[r*g.Cols+c]; w != g.NoData {
						window = append(window, w)
					}
				}
			}
			med := median(window)
			if v-med > threshold || med-v > threshold {
				out[row*g.Cols+col] = g.NoData
			}
		}
	}
	g.Cells = out
}

// median of a non-empty slice; reorders it.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
