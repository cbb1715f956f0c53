// Package report renders a single-page HTML QA summary of a gridding
// run: the distribution of the error channel against the chosen
// threshold, and how much of each output grid holds valid data.
package report

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const histogramBuckets = 24

// GridSummary is the per-grid line of the report.
type GridSummary struct {
	Name          string
	Spacing       float64
	Cols, Rows    int
	ValidFraction float64 // 0..1
}

// Data is everything the report shows.
type Data struct {
	Title     string
	ErrMags   []float64 // sampled error magnitudes, may be empty
	Threshold float64   // 0 when outlier rejection was off
	Grids     []GridSummary
}

// Write renders the report to an HTML file at path.
func Write(path string, d Data) error {
	page := components.NewPage()
	page.PageTitle = d.Title
	if d.Title == "" {
		page.PageTitle = "gridding QA report"
	}

	if hist := errorHistogram(d); hist != nil {
		page.AddCharts(hist)
	}
	page.AddCharts(coverageChart(d))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create report %q: %w", path, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}

func errorHistogram(d Data) *charts.Bar {
	if len(d.ErrMags) == 0 {
		return nil
	}

	mags := append([]float64(nil), d.ErrMags...)
	sort.Float64s(mags)

	lo, hi := floats.Min(mags), floats.Max(mags)
	width := (hi - lo) / histogramBuckets
	if width == 0 {
		width = 1
	}

	// stat.Histogram wants one more divider than buckets and a sorted
	// sample. Push the last divider past the maximum so it lands inside.
	dividers := make([]float64, histogramBuckets+1)
	floats.Span(dividers, lo, lo+width*histogramBuckets)
	dividers[histogramBuckets] = math.Nextafter(dividers[histogramBuckets], math.Inf(1))
	counts := stat.Histogram(nil, dividers, mags, nil)

	labels := make([]string, histogramBuckets)
	data := make([]opts.BarData, histogramBuckets)
	for i := range counts {
		labels[i] = fmt.Sprintf("%.2f", lo+(float64(i)+0.5)*width)
		data[i] = opts.BarData{Value: int(counts[i])}
	}

	mean := stat.Mean(mags, nil)
	subtitle := fmt.Sprintf("outlier rejection off, mean error %.3g m", mean)
	if d.Threshold > 0 {
		subtitle = fmt.Sprintf("threshold = %g m, mean error %.3g m", d.Threshold, mean)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Error magnitude distribution", Subtitle: subtitle}),
		charts.WithXAxisOpts(opts.XAxis{Name: "error (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries("points", data)
	return bar
}

func coverageChart(d Data) *charts.Bar {
	labels := make([]string, len(d.Grids))
	data := make([]opts.BarData, len(d.Grids))
	for i, g := range d.Grids {
		labels[i] = fmt.Sprintf("%s @ %gm", g.Name, g.Spacing)
		data[i] = opts.BarData{Value: math.Round(g.ValidFraction * 1000) / 10}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Valid-cell coverage"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% valid", Max: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries("coverage", data)
	return bar
}
