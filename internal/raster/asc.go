package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// WriteASC streams the grid as an Esri ASCII raster: a six-line header
// followed by one whitespace-separated line per row, top row first. The
// lower-left corner in the header is derived from the grid's north-west
// origin.
func WriteASC(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)

	yll := g.OriginY - float64(g.Rows)*g.Spacing
	fmt.Fprintf(bw, "ncols %d\n", g.Cols)
	fmt.Fprintf(bw, "nrows %d\n", g.Rows)
	fmt.Fprintf(bw, "xllcorner %.6f\n", g.OriginX)
	fmt.Fprintf(bw, "yllcorner %.6f\n", yll)
	fmt.Fprintf(bw, "cellsize %.6f\n", g.Spacing)
	fmt.Fprintf(bw, "nodata_value %g\n", g.NoData)

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%g", g.At(row, col))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteASCFile writes the grid to path, replacing any existing file.
func WriteASCFile(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", path, err)
	}
	if err := WriteASC(f, g); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	return nil
}
