// Package rasterize turns binned point clouds into regular grids: the
// per-cell weighted gridding core plus the driver that schedules it over
// tiles and worker goroutines.
package rasterize

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ridgeline-data/demgrid/internal/outlier"
)

// ErrConfig wraps every validation failure so callers can distinguish
// bad configuration from I/O and data errors.
var ErrConfig = errors.New("invalid configuration")

const (
	DefaultNoData      = -32768.0
	DefaultTileLen     = 256
	DefaultBinCapacity = 1024
)

// Options is the immutable per-run configuration. Zero values mean
// "feature off" except where a default is documented.
type Options struct {
	// Inputs are point files, dispatched on extension (.las is binary,
	// anything else is delimited text).
	Inputs []string

	// CSVFormat is the column descriptor for text inputs, for example
	// "1:lon 2:lat 3:radius_km".
	CSVFormat string
	// CSVProj overrides the projection for text inputs (WKT-style SRS).
	CSVProj string

	// DatumName selects a well-known datum. SemiMajorM/SemiMinorM define
	// a custom spheroid instead; setting both is an error.
	DatumName  string
	SemiMajorM float64
	SemiMinorM float64

	// OutPrefix is the output path prefix. Empty suppresses all file
	// output (the grids are still returned).
	OutPrefix string

	// Spacings are the output cell sizes in plane units. At least one is
	// required for file inputs.
	Spacings []float64

	// SearchRadiusFactor scales the per-cell gather radius relative to
	// the spacing. Defaults to 1.
	SearchRadiusFactor float64

	// UseMinZFallback writes the minimum observed height instead of
	// nodata when a cell's gather radius is empty but its bins are not.
	UseMinZFallback bool

	// RemoveOutliers enables threshold estimation from the error channel.
	RemoveOutliers    bool
	OutlierPercentile float64 // default 75
	OutlierFactor     float64 // default 3

	// MaxValidErrorM is an absolute error cutoff. When positive it
	// overrides the estimated threshold entirely.
	MaxValidErrorM float64

	// MedianWindow/MedianThreshold configure spike rejection. Requires
	// surface-organised input, so it is rejected alongside file inputs.
	MedianWindow    int
	MedianThreshold float64

	// ErodeLen trims this many cells from every valid-data boundary.
	ErodeLen int

	// Hole-fill window half-lengths per output channel.
	DEMHoleFillLen   int
	OrthoHoleFillLen int
	ErrHoleFillLen   int

	// UseSurfaceSampling switches to triangulated interpolation over a
	// 2-D organised point image. Scattered file inputs lack the required
	// adjacency, so the two are mutually exclusive.
	UseSurfaceSampling bool

	// NoData is the sentinel written for empty cells. nil selects
	// DefaultNoData; a pointer to any value, zero included, is used
	// as given.
	NoData       *float64
	RoundingStep float64 // 0 disables value rounding

	TileLen     int // default DefaultTileLen
	BinCapacity int // default DefaultBinCapacity
	NumWorkers  int // default runtime.NumCPU()

	// Preview writes a PNG heat map beside the DEM.
	Preview bool
	// ReportPath writes an HTML QA report when set.
	ReportPath string
	// RunDBPath records run metadata into a sqlite database when set.
	RunDBPath string
}

// withDefaults fills unset fields. Validate is still required.
func (o Options) withDefaults() Options {
	if o.SearchRadiusFactor == 0 {
		o.SearchRadiusFactor = 1
	}
	if o.OutlierPercentile == 0 {
		o.OutlierPercentile = outlier.DefaultPercentile
	}
	if o.OutlierFactor == 0 {
		o.OutlierFactor = outlier.DefaultFactor
	}
	if o.NoData == nil {
		v := DefaultNoData
		o.NoData = &v
	}
	if o.TileLen == 0 {
		o.TileLen = DefaultTileLen
	}
	if o.BinCapacity == 0 {
		o.BinCapacity = DefaultBinCapacity
	}
	if o.NumWorkers == 0 {
		o.NumWorkers = runtime.NumCPU()
	}
	return o
}

// Validate checks the option set before any input is opened. All
// failures wrap ErrConfig.
func (o Options) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
	}

	fileInputs := len(o.Inputs) > 0
	if fileInputs {
		if len(o.Spacings) == 0 {
			return fail("an output spacing is required for point-file inputs")
		}
		if o.UseSurfaceSampling {
			return fail("surface sampling needs organised points; file inputs are unordered")
		}
		if o.MedianWindow > 0 {
			return fail("the median filter needs organised points; file inputs are unordered")
		}
	}
	for _, s := range o.Spacings {
		if s <= 0 {
			return fail("spacing must be positive, got %g", s)
		}
	}
	if o.SearchRadiusFactor < 0 {
		return fail("search radius factor must not be negative")
	}
	if o.DatumName != "" && (o.SemiMajorM != 0 || o.SemiMinorM != 0) {
		return fail("datum name and custom spheroid axes are mutually exclusive")
	}
	if (o.SemiMajorM != 0) != (o.SemiMinorM != 0) {
		return fail("a custom spheroid needs both semi-major and semi-minor axes")
	}
	if o.RemoveOutliers {
		if o.OutlierPercentile <= 0 || o.OutlierPercentile > 100 {
			return fail("outlier percentile must be in (0, 100], got %g", o.OutlierPercentile)
		}
		if o.OutlierFactor <= 0 {
			return fail("outlier factor must be positive, got %g", o.OutlierFactor)
		}
	}
	if o.MaxValidErrorM < 0 {
		return fail("max valid error must not be negative")
	}
	if o.MedianWindow < 0 || (o.MedianWindow > 0 && o.MedianWindow%2 == 0) {
		return fail("median window must be a positive odd number, got %d", o.MedianWindow)
	}
	if o.MedianWindow > 0 && o.MedianThreshold <= 0 {
		return fail("median filtering needs a positive threshold")
	}
	if o.ErodeLen < 0 {
		return fail("erode length must not be negative")
	}
	if o.DEMHoleFillLen < 0 || o.OrthoHoleFillLen < 0 || o.ErrHoleFillLen < 0 {
		return fail("hole-fill lengths must not be negative")
	}
	if o.RoundingStep < 0 {
		return fail("rounding step must not be negative")
	}
	if o.TileLen < 0 || o.BinCapacity < 0 || o.NumWorkers < 0 {
		return fail("tile length, bin capacity and worker count must not be negative")
	}
	return nil
}
