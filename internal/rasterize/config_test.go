package rasterize

import (
	"errors"
	"testing"
)

func validFileOpts() Options {
	return Options{
		Inputs:    []string{"a.las"},
		Spacings:  []float64{1},
		CSVFormat: "1:x 2:y 3:z",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	o := validFileOpts().withDefaults()
	if err := o.Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	if o.SearchRadiusFactor != 1 || *o.NoData != DefaultNoData || o.TileLen != DefaultTileLen {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestWithDefaultsKeepsExplicitNoData(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"zero", 0},
		{"positive", 9999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.value
			o := Options{NoData: &v}.withDefaults()
			if *o.NoData != tt.value {
				t.Fatalf("nodata %g became %g", tt.value, *o.NoData)
			}
		})
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no spacing for files", func(o *Options) { o.Spacings = nil }},
		{"negative spacing", func(o *Options) { o.Spacings = []float64{-2} }},
		{"zero spacing", func(o *Options) { o.Spacings = []float64{1, 0} }},
		{"surface sampling with files", func(o *Options) { o.UseSurfaceSampling = true }},
		{"median filter with files", func(o *Options) { o.MedianWindow = 3; o.MedianThreshold = 1 }},
		{"datum and spheroid", func(o *Options) {
			o.DatumName = "wgs_1984"
			o.SemiMajorM, o.SemiMinorM = 6378137, 6356752
		}},
		{"half a spheroid", func(o *Options) { o.SemiMajorM = 6378137 }},
		{"percentile too high", func(o *Options) { o.RemoveOutliers = true; o.OutlierPercentile = 150; o.OutlierFactor = 3 }},
		{"zero outlier factor", func(o *Options) { o.RemoveOutliers = true; o.OutlierPercentile = 75; o.OutlierFactor = -1 }},
		{"negative max error", func(o *Options) { o.MaxValidErrorM = -5 }},
		{"even median window", func(o *Options) { o.Inputs = nil; o.MedianWindow = 4; o.MedianThreshold = 1 }},
		{"median without threshold", func(o *Options) { o.Inputs = nil; o.MedianWindow = 3 }},
		{"negative erode", func(o *Options) { o.ErodeLen = -1 }},
		{"negative hole fill", func(o *Options) { o.DEMHoleFillLen = -2 }},
		{"negative rounding", func(o *Options) { o.RoundingStep = -0.1 }},
		{"negative workers", func(o *Options) { o.NumWorkers = -3 }},
		{"negative radius factor", func(o *Options) { o.SearchRadiusFactor = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validFileOpts()
			tt.mutate(&o)
			err := o.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("error %v does not wrap ErrConfig", err)
			}
		})
	}
}

func TestValidateLibraryOnlyFeatures(t *testing.T) {
	// Without file inputs the organised-surface features are available.
	o := Options{
		Spacings:        []float64{1},
		MedianWindow:    5,
		MedianThreshold: 2,
	}
	if err := o.Validate(); err != nil {
		t.Errorf("median filter without file inputs rejected: %v", err)
	}
	o = Options{Spacings: []float64{1}, UseSurfaceSampling: true}
	if err := o.Validate(); err != nil {
		t.Errorf("surface sampling without file inputs rejected: %v", err)
	}
}
