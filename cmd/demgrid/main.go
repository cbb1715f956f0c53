package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ridgeline-data/demgrid/internal/rasterize"
	"github.com/ridgeline-data/demgrid/internal/version"
)

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	// Input interpretation
	csvFormat := flag.String("csv-format", "", "Column descriptor for text inputs, e.g. '1:lon 2:lat 3:height_above_datum'")
	csvProj := flag.String("csv-proj", "", "SRS override for text inputs, e.g. 'utm:10N' or 'longlat'")
	datum := flag.String("datum", "", "Well-known datum name (WGS84, WGS72, NAD83, NAD27, D_MOON, D_MARS)")
	semiMajor := flag.Float64("semi-major-axis", 0, "Custom spheroid semi-major axis in meters")
	semiMinor := flag.Float64("semi-minor-axis", 0, "Custom spheroid semi-minor axis in meters")

	// Gridding
	spacings := flag.String("spacing", "", "Comma-separated output cell sizes in plane units (e.g. 1.0 or 1.0,4.0)")
	searchRadiusFactor := flag.Float64("search-radius-factor", 1, "Gather radius as a multiple of the spacing")
	useMinZ := flag.Bool("use-min-z", false, "Write the minimum observed height instead of nodata when the gather radius is empty")

	// Outlier removal
	removeOutliers := flag.Bool("remove-outliers", false, "Estimate an error threshold and drop points above it")
	outlierPercentile := flag.Float64("outlier-percentile", 75, "Percentile for outlier threshold estimation")
	outlierFactor := flag.Float64("outlier-factor", 3, "Multiplier for outlier threshold estimation")
	maxValidError := flag.Float64("max-valid-error", 0, "Absolute error cutoff in meters (overrides estimation when positive)")

	// Surface mode (needs organised points, so it is rejected for file inputs)
	surfaceSampling := flag.Bool("use-surface-sampling", false, "Triangulate an organised point image instead of binned gridding")
	medianParams := flag.String("median-filter-params", "", "Window,threshold for median spike rejection (e.g. 11,40)")

	// Post filters
	erodeLen := flag.Int("erode-length", 0, "Cells to trim from every valid-data boundary")
	demFill := flag.Int("dem-hole-fill-len", 0, "Hole-fill window half-length for the height grid")
	orthoFill := flag.Int("orthoimage-hole-fill-len", 0, "Hole-fill window half-length for the intensity grid")
	errFill := flag.Int("error-hole-fill-len", 0, "Hole-fill window half-length for the error grids")
	rounding := flag.Float64("rounding-error", 0, "Round cell values to a multiple of this step (0 disables)")

	// Output
	outPrefix := flag.String("o", "output", "Output path prefix")
	noData := flag.Float64("nodata-value", rasterize.DefaultNoData, "Value written for empty cells")
	preview := flag.Bool("preview", false, "Write a PNG heat map beside the height grid")
	reportPath := flag.String("report", "", "Write an HTML QA report to this path")
	runDB := flag.String("rundb", "", "Record run metadata into this sqlite database")

	// Scheduling
	tileLen := flag.Int("tile-size", rasterize.DefaultTileLen, "Side length in cells of one work tile")
	binCapacity := flag.Int("bin-capacity", rasterize.DefaultBinCapacity, "Target point count per spatial bin")
	workers := flag.Int("workers", 0, "Rasterizing goroutines (0 = number of CPUs)")

	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("demgrid %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		log.Fatalf("No input point files given (pass them as positional arguments)")
	}

	spacingVals, err := parseCSVFloatSlice(*spacings)
	if err != nil {
		log.Fatalf("Invalid -spacing: %v", err)
	}

	var medianWindow int
	var medianThreshold float64
	if *medianParams != "" {
		vals, err := parseCSVFloatSlice(*medianParams)
		if err != nil || len(vals) != 2 {
			log.Fatalf("Invalid -median-filter-params (want window,threshold): %v", err)
		}
		medianWindow = int(vals[0])
		medianThreshold = vals[1]
	}

	opts := rasterize.Options{
		Inputs:             inputs,
		CSVFormat:          *csvFormat,
		CSVProj:            *csvProj,
		DatumName:          *datum,
		SemiMajorM:         *semiMajor,
		SemiMinorM:         *semiMinor,
		OutPrefix:          *outPrefix,
		Spacings:           spacingVals,
		SearchRadiusFactor: *searchRadiusFactor,
		UseMinZFallback:    *useMinZ,
		RemoveOutliers:     *removeOutliers,
		OutlierPercentile:  *outlierPercentile,
		OutlierFactor:      *outlierFactor,
		MaxValidErrorM:     *maxValidError,
		MedianWindow:       medianWindow,
		MedianThreshold:    medianThreshold,
		ErodeLen:           *erodeLen,
		UseSurfaceSampling: *surfaceSampling,
		DEMHoleFillLen:     *demFill,
		OrthoHoleFillLen:   *orthoFill,
		ErrHoleFillLen:     *errFill,
		NoData:             noData,
		RoundingStep:       *rounding,
		TileLen:            *tileLen,
		BinCapacity:        *binCapacity,
		NumWorkers:         *workers,
		Preview:            *preview,
		ReportPath:         *reportPath,
		RunDBPath:          *runDB,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := rasterize.Run(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("Interrupted, no outputs written")
			os.Exit(1)
		}
		log.Fatalf("Gridding failed: %v", err)
	}

	log.Printf("Gridded %d points into %d output grid(s)", res.PointCount, len(res.Grids))
	for _, g := range res.Grids {
		if g.Path != "" {
			log.Printf("  %s", g.Path)
		}
	}
}
