// Package outlier derives a single maximum-valid-error threshold from a
// sparse sample of the per-point error channel. Points whose error
// magnitude exceeds the threshold are dropped during rasterization.
package outlier

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ridgeline-data/demgrid/internal/cloud"
)

// ErrNoSamples is returned when every sampled error magnitude is zero
// even at full density. Zero errors mark already-invalid points, so an
// all-zero channel carries no usable signal.
var ErrNoSamples = errors.New("no nonzero error samples in the cloud")

const (
	DefaultPercentile = 75.0
	DefaultFactor     = 3.0

	// Sampling starts at this stride and halves until a nonzero sample
	// appears or the full cloud has been scanned.
	maxStride = 1 << 11
)

// Estimate samples the error-vector magnitude across pts at decreasing
// stride and converts the first usable sample set into a threshold.
func Estimate(pts []cloud.Point, percentile, factor float64) (float64, error) {
	if percentile <= 0 || percentile > 100 {
		return 0, fmt.Errorf("percentile must be in (0, 100], got %g", percentile)
	}
	if factor <= 0 {
		return 0, fmt.Errorf("multiplier must be positive, got %g", factor)
	}

	var samples []float64
	for stride := maxStride; stride >= 1; stride /= 2 {
		samples = samples[:0]
		for i := 0; i < len(pts); i += stride {
			if m := pts[i].ErrMag(); m > 0 {
				samples = append(samples, m)
			}
		}
		if len(samples) > 0 {
			return Threshold(samples, percentile, factor), nil
		}
	}
	return 0, ErrNoSamples
}

// Threshold sorts the nonzero samples and picks the value at index
// k = min(L-1, floor(percentile/100 * L)), then scales it by the user
// multiplier and a fixed 4x margin. The margin compensates for a coarse
// sample under-representing the true error tail. samples is reordered
// in place and must be non-empty.
func Threshold(samples []float64, percentile, factor float64) float64 {
	sort.Float64s(samples)
	k := int(percentile / 100 * float64(len(samples)))
	if k > len(samples)-1 {
		k = len(samples) - 1
	}
	return samples[k] * factor * 4
}
