package rasterize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ridgeline-data/demgrid/internal/chipper"
	"github.com/ridgeline-data/demgrid/internal/cloud"
	"github.com/ridgeline-data/demgrid/internal/geodesy"
	"github.com/ridgeline-data/demgrid/internal/outlier"
	"github.com/ridgeline-data/demgrid/internal/raster"
	"github.com/ridgeline-data/demgrid/internal/report"
	"github.com/ridgeline-data/demgrid/internal/rundb"
)

const ingestBatchSize = 1 << 14

// GridOutput is one produced raster plus where it was written (Path is
// empty when file output is off).
type GridOutput struct {
	Channel    Channel
	Spacing    float64
	SpacingIdx int
	Grid       *raster.Grid
	Path       string
}

// Result is everything a run produced, returned to the caller whether or
// not files were written.
type Result struct {
	Ref        *geodesy.GeoRef
	PointCount int
	Threshold  float64
	Degraded   bool
	Grids      []GridOutput

	// ErrSample holds error magnitudes sampled during the run, kept for
	// the QA report.
	ErrSample []float64
}

// Run opens the configured input files and produces every requested
// grid. Cancelling ctx abandons the run before any output file is
// written.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrConfig)
	}

	datum, err := resolveDatum(opts)
	if err != nil {
		return nil, err
	}

	var format *cloud.Format
	if opts.CSVFormat != "" {
		format, err = cloud.ParseFormat(opts.CSVFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	sources := make([]cloud.Source, 0, len(opts.Inputs))
	closeAll := func() {
		for _, s := range sources {
			s.Close()
		}
	}
	textRef := geodesy.NewGeographic(datum)
	for _, path := range opts.Inputs {
		if cloud.IsText(path) && format == nil {
			closeAll()
			return nil, fmt.Errorf("%w: text input %s requires --csv-format", ErrConfig, path)
		}
		src, err := cloud.Open(path, format, textRef)
		if err != nil {
			closeAll()
			return nil, err
		}
		sources = append(sources, src)
	}
	defer closeAll()

	ref, err := resolveRef(opts, datum, format, sources)
	if err != nil {
		return nil, err
	}
	return RunSources(ctx, opts, sources, ref)
}

// RunSources produces grids from already-open sources. The caller keeps
// ownership of the sources and closes them.
func RunSources(ctx context.Context, opts Options, sources []cloud.Source, ref *geodesy.GeoRef) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Spacings) == 0 {
		return nil, fmt.Errorf("%w: no output spacing", ErrConfig)
	}
	started := time.Now()

	comp, err := cloud.NewComposite(sources, planeNormalizer(ref), 0, opts.TileLen)
	if err != nil {
		return nil, err
	}

	arena, err := ingest(ctx, comp)
	if err != nil {
		return nil, err
	}
	if len(arena) == 0 {
		return nil, fmt.Errorf("no points were read from the inputs")
	}

	channels := comp.Channels()
	degraded := comp.ChannelsDegraded()
	if degraded {
		log.Printf("sources carry mismatched channels; error output and outlier removal are disabled for this run")
	}

	threshold, errSample, err := deriveThreshold(opts, arena, channels, degraded)
	if err != nil {
		return nil, err
	}

	bins, err := chipper.Build(arena, opts.BinCapacity, 0)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Ref:        ref,
		PointCount: len(arena),
		Threshold:  threshold,
		Degraded:   degraded,
		ErrSample:  errSample,
	}

	outChans := outputChannels(channels, degraded)
	for si, spacing := range opts.Spacings {
		rz := &Rasterizer{
			Bins:         bins,
			Radius:       opts.SearchRadiusFactor * spacing,
			Sigma:        opts.SearchRadiusFactor * spacing / 2,
			Threshold:    threshold,
			MinZFallback: opts.UseMinZFallback,
			Ref:          ref,
		}
		grids := make([]*raster.Grid, len(outChans))
		for i := range outChans {
			grids[i] = newOutputGrid(bins.Bounds, spacing, *opts.NoData)
		}
		if err := rasterizeTiled(ctx, opts, rz, outChans, grids); err != nil {
			return nil, err
		}
		for i, ch := range outChans {
			postFilter(opts, ch, grids[i])
			res.Grids = append(res.Grids, GridOutput{
				Channel: ch, Spacing: spacing, SpacingIdx: si, Grid: grids[i],
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeOutputs(opts, res); err != nil {
		return nil, err
	}
	if opts.ReportPath != "" {
		if err := writeReport(opts, res); err != nil {
			return nil, err
		}
	}
	if opts.RunDBPath != "" {
		if err := recordRun(opts, res, started); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// planeNormalizer converts every source convention to projected plane
// plus height. The mean longitude used for 360-degree renormalisation is
// fixed from the first non-plane point (hemisphere of the first ECEF
// point, or the first geodetic longitude); ingest is serial, so no
// locking is required.
func planeNormalizer(ref *geodesy.GeoRef) cloud.Normalizer {
	meanLonSet := false
	meanLon := 0.0
	return func(p cloud.Point, kind cloud.CoordKind) cloud.Point {
		switch kind {
		case cloud.CoordPlane:
			return p
		case cloud.CoordGeodetic:
			if !meanLonSet {
				meanLon, meanLonSet = p.X, true
			}
			lon := geodesy.RecenterLongitude(p.X, meanLon)
			x, y := ref.LonLatToPoint(lon, p.Y)
			p.X, p.Y = x, y
			return p
		default: // CoordECEF
			if !meanLonSet {
				if p.X >= 0 {
					meanLon = 0
				} else {
					meanLon = 180
				}
				meanLonSet = true
			}
			lon, lat, h := ref.Datum.CartesianToGeodetic(p.X, p.Y, p.Z)
			lon = geodesy.RecenterLongitude(lon, meanLon)
			x, y := ref.LonLatToPoint(lon, lat)
			out := p
			out.X, out.Y, out.Z = x, y, h
			return out
		}
	}
}

func ingest(ctx context.Context, comp *cloud.Composite) ([]cloud.Point, error) {
	var arena []cloud.Point
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := comp.NextBatch(ingestBatchSize)
		if err != nil {
			return nil, fmt.Errorf("reading points: %w", err)
		}
		if len(batch) == 0 {
			return arena, nil
		}
		arena = append(arena, batch...)
	}
}

// deriveThreshold picks the outlier cutoff: an absolute option wins,
// otherwise the estimator runs over the ingested cloud. A sample of
// error magnitudes is returned for reporting regardless.
func deriveThreshold(opts Options, arena []cloud.Point, channels cloud.ChannelMask, degraded bool) (float64, []float64, error) {
	var sample []float64
	if channels.HasError() {
		stride := len(arena)/8192 + 1
		for i := 0; i < len(arena); i += stride {
			if m := arena[i].ErrMag(); m > 0 {
				sample = append(sample, m)
			}
		}
	}

	if opts.MaxValidErrorM > 0 {
		if opts.RemoveOutliers {
			log.Printf("absolute max valid error %g m overrides outlier estimation", opts.MaxValidErrorM)
		}
		return opts.MaxValidErrorM, sample, nil
	}
	if !opts.RemoveOutliers {
		return 0, sample, nil
	}
	if !channels.HasError() || degraded {
		log.Printf("outlier removal requested but no usable error channel; proceeding without")
		return 0, sample, nil
	}
	th, err := outlier.Estimate(arena, opts.OutlierPercentile, opts.OutlierFactor)
	if err != nil {
		if errors.Is(err, outlier.ErrNoSamples) {
			return 0, sample, fmt.Errorf("outlier removal requested: %w", err)
		}
		return 0, sample, err
	}
	log.Printf("outlier threshold: %g m (percentile %g, factor %g)", th, opts.OutlierPercentile, opts.OutlierFactor)
	return th, sample, nil
}

func outputChannels(channels cloud.ChannelMask, degraded bool) []Channel {
	out := []Channel{ChannelHeight}
	if channels.Has(cloud.ChanIntensity) {
		out = append(out, ChannelIntensity)
	}
	if degraded {
		return out
	}
	if channels.Has(cloud.ChanErrVector) {
		out = append(out, ChannelErrNorth, ChannelErrEast, ChannelErrDown)
	} else if channels.Has(cloud.ChanErrScalar) {
		out = append(out, ChannelErrMag)
	}
	return out
}

func newOutputGrid(bounds chipper.Rect, spacing, noData float64) *raster.Grid {
	cols := int(math.Ceil(bounds.Width() / spacing))
	if cols < 1 {
		cols = 1
	}
	rows := int(math.Ceil(bounds.Height() / spacing))
	if rows < 1 {
		rows = 1
	}
	return raster.New(cols, rows, bounds.MinX, bounds.MaxY, spacing, noData)
}

type tileRegion struct {
	row0, row1, col0, col1 int
}

// rasterizeTiled fans tile regions out to a worker pool. Regions are
// disjoint, so the workers write to the shared grids without locking;
// every cell is a pure function of the read-only bin set, making the
// result independent of scheduling.
func rasterizeTiled(ctx context.Context, opts Options, rz *Rasterizer, chans []Channel, grids []*raster.Grid) error {
	g0 := grids[0]
	jobs := make(chan tileRegion)
	var wg sync.WaitGroup
	for w := 0; w < opts.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for reg := range jobs {
				if ctx.Err() != nil {
					continue
				}
				for i, ch := range chans {
					rz.RasterizeRegion(grids[i], ch, reg.row0, reg.row1, reg.col0, reg.col1)
				}
			}
		}()
	}

	tl := opts.TileLen
send:
	for row0 := 0; row0 < g0.Rows; row0 += tl {
		for col0 := 0; col0 < g0.Cols; col0 += tl {
			reg := tileRegion{
				row0: row0, row1: minInt(row0+tl, g0.Rows),
				col0: col0, col1: minInt(col0+tl, g0.Cols),
			}
			select {
			case jobs <- reg:
			case <-ctx.Done():
				break send
			}
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

func postFilter(opts Options, ch Channel, g *raster.Grid) {
	switch ch {
	case ChannelHeight:
		raster.Erode(g, opts.ErodeLen)
		raster.MedianReject(g, opts.MedianWindow, opts.MedianThreshold)
		raster.FillHoles(g, opts.DEMHoleFillLen)
		g.Round(opts.RoundingStep)
	case ChannelIntensity:
		raster.FillHoles(g, opts.OrthoHoleFillLen)
	default:
		raster.FillHoles(g, opts.ErrHoleFillLen)
	}
}

func channelSuffix(ch Channel) string {
	switch ch {
	case ChannelHeight:
		return "-DEM.asc"
	case ChannelIntensity:
		return "-DRG.asc"
	case ChannelErrMag:
		return "-IntersectionErr.asc"
	case ChannelErrNorth:
		return "-IntersectionErr-north.asc"
	case ChannelErrEast:
		return "-IntersectionErr-east.asc"
	case ChannelErrDown:
		return "-IntersectionErr-down.asc"
	}
	return ".asc"
}

func writeOutputs(opts Options, res *Result) error {
	if opts.OutPrefix == "" {
		return nil
	}
	for i := range res.Grids {
		out := &res.Grids[i]
		prefix := opts.OutPrefix
		if out.SpacingIdx > 0 {
			prefix = fmt.Sprintf("%s_%d", prefix, out.SpacingIdx)
		}
		out.Path = prefix + channelSuffix(out.Channel)
		if err := raster.WriteASCFile(out.Path, out.Grid); err != nil {
			return err
		}
		log.Printf("wrote %s (%dx%d cells, %.1f%% valid)", out.Path,
			out.Grid.Cols, out.Grid.Rows,
			100*float64(out.Grid.ValidCount())/float64(len(out.Grid.Cells)))

		if opts.Preview && out.Channel == ChannelHeight {
			png := prefix + "-DEM.png"
			if err := raster.WritePreviewPNG(png, "DEM preview", out.Grid); err != nil {
				log.Printf("preview skipped: %v", err)
			}
		}
	}
	return nil
}

func writeReport(opts Options, res *Result) error {
	d := report.Data{
		Title:     "demgrid run",
		ErrMags:   res.ErrSample,
		Threshold: res.Threshold,
	}
	for _, out := range res.Grids {
		g := out.Grid
		d.Grids = append(d.Grids, report.GridSummary{
			Name:          out.Channel.String(),
			Spacing:       out.Spacing,
			Cols:          g.Cols,
			Rows:          g.Rows,
			ValidFraction: float64(g.ValidCount()) / float64(len(g.Cells)),
		})
	}
	if err := report.Write(opts.ReportPath, d); err != nil {
		return err
	}
	log.Printf("wrote QA report %s", opts.ReportPath)
	return nil
}

func recordRun(opts Options, res *Result, started time.Time) error {
	store, err := rundb.Open(opts.RunDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id := rundb.NewRunID()
	err = store.RecordRun(rundb.Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Inputs:     opts.Inputs,
		Config:     opts,
		PointCount: res.PointCount,
		Threshold:  res.Threshold,
		Degraded:   res.Degraded,
	})
	if err != nil {
		return err
	}
	for _, out := range res.Grids {
		g := out.Grid
		minV, maxV := gridExtrema(g)
		err := store.RecordGrid(id, rundb.GridStat{
			Channel:    out.Channel.String(),
			Spacing:    out.Spacing,
			SpacingIdx: out.SpacingIdx,
			Cols:       g.Cols,
			Rows:       g.Rows,
			ValidCells: g.ValidCount(),
			MinValue:   minV,
			MaxValue:   maxV,
			Path:       out.Path,
		})
		if err != nil {
			return err
		}
	}
	log.Printf("recorded run %s in %s", id, opts.RunDBPath)
	return nil
}

func gridExtrema(g *raster.Grid) (minV, maxV float64) {
	first := true
	for _, v := range g.Cells {
		if v == g.NoData {
			continue
		}
		if first {
			minV, maxV, first = v, v, false
			continue
		}
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	return minV, maxV
}

func resolveDatum(opts Options) (geodesy.Datum, error) {
	if opts.SemiMajorM != 0 {
		d, err := geodesy.UserDatum(opts.SemiMajorM, opts.SemiMinorM)
		if err != nil {
			return geodesy.Datum{}, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return d, nil
	}
	if opts.DatumName != "" {
		d, err := geodesy.DatumByName(opts.DatumName)
		if err != nil {
			return geodesy.Datum{}, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return d, nil
	}
	return geodesy.WGS84, nil
}

// resolveRef picks the working georeference: an explicit SRS option
// first, then the format descriptor's zone prefix, then the first
// reference embedded in a source header, and finally plain geographic
// coordinates on the chosen datum.
func resolveRef(opts Options, datum geodesy.Datum, format *cloud.Format, sources []cloud.Source) (*geodesy.GeoRef, error) {
	if opts.CSVProj != "" {
		ref, err := geodesy.ParseSRS(opts.CSVProj)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return ref, nil
	}
	if format != nil {
		if ref := format.Ref(datum); ref != nil {
			return ref, nil
		}
	}
	for _, s := range sources {
		if ref, ok := s.EmbeddedRef(); ok {
			return ref, nil
		}
	}
	return geodesy.NewGeographic(datum), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
