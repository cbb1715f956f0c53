package outlier

import (
	"errors"
	"math"
	"testing"

	"github.com/ridgeline-data/demgrid/internal/cloud"
)

func cloudWithErrors(mags []float64) []cloud.Point {
	pts := make([]cloud.Point, len(mags))
	for i, m := range mags {
		pts[i] = cloud.Point{Err: [3]float64{m, 0, 0}}
	}
	return pts
}

func TestThresholdDocumentedExample(t *testing.T) {
	// Samples [0,0,2,4,6,8,10] at percentile 75, multiplier 3: the two
	// zeros are excluded before Threshold sees the set, leaving L=5,
	// k = min(4, floor(0.75*5)) = 3, sorted[3] = 8, 8*3*4 = 96.
	got, err := Estimate(cloudWithErrors([]float64{0, 0, 2, 4, 6, 8, 10}), 75, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != 96 {
		t.Errorf("threshold = %g, want 96", got)
	}
}

func TestThresholdIndexClamp(t *testing.T) {
	tests := []struct {
		name       string
		samples    []float64
		percentile float64
		want       float64
	}{
		{"single sample", []float64{5}, 75, 5 * 3 * 4},
		{"full percentile clamps to max", []float64{1, 2, 3}, 100, 3 * 3 * 4},
		{"low percentile", []float64{1, 2, 3, 4}, 10, 1 * 3 * 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Threshold(tt.samples, tt.percentile, 3); got != tt.want {
				t.Errorf("threshold = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestEstimateMonotonicInFactor(t *testing.T) {
	pts := cloudWithErrors([]float64{0.5, 1.5, 2.5, 3.5, 9, 0, 4})
	prev := 0.0
	for _, f := range []float64{0.5, 1, 2, 3, 10} {
		got, err := Estimate(pts, 75, f)
		if err != nil {
			t.Fatal(err)
		}
		if got < prev {
			t.Fatalf("threshold dropped from %g to %g as the factor rose to %g", prev, got, f)
		}
		prev = got
	}
}

func TestEstimateStrideDensification(t *testing.T) {
	// One nonzero error buried in a large all-zero cloud at an index no
	// coarse stride hits: only the full-density pass finds it.
	mags := make([]float64, 3000)
	mags[1031] = 2.5
	got, err := Estimate(cloudWithErrors(mags), 75, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2.5 * 3 * 4; math.Abs(got-want) > 1e-12 {
		t.Errorf("threshold = %g, want %g", got, want)
	}
}

func TestEstimateNoSamples(t *testing.T) {
	_, err := Estimate(cloudWithErrors(make([]float64, 500)), 75, 3)
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("err = %v, want ErrNoSamples", err)
	}
	if _, err := Estimate(nil, 75, 3); !errors.Is(err, ErrNoSamples) {
		t.Errorf("empty cloud err = %v, want ErrNoSamples", err)
	}
}

func TestEstimateValidation(t *testing.T) {
	pts := cloudWithErrors([]float64{1})
	for _, p := range []float64{0, -1, 101} {
		if _, err := Estimate(pts, p, 3); err == nil {
			t.Errorf("percentile %g accepted", p)
		}
	}
	if _, err := Estimate(pts, 75, 0); err == nil {
		t.Error("zero factor accepted")
	}
}
