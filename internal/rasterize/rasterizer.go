package rasterize

import (
	"math"

	"github.com/ridgeline-data/demgrid/internal/chipper"
	"github.com/ridgeline-data/demgrid/internal/cloud"
	"github.com/ridgeline-data/demgrid/internal/geodesy"
	"github.com/ridgeline-data/demgrid/internal/raster"
)

// Channel selects which per-point value a gridding pass accumulates.
type Channel int

const (
	ChannelHeight Channel = iota
	ChannelIntensity
	ChannelErrMag
	// ChannelErrNorth..Down are the components of the error vector
	// rotated into the local north-east-down frame at the cell centre.
	ChannelErrNorth
	ChannelErrEast
	ChannelErrDown
)

func (c Channel) String() string {
	switch c {
	case ChannelHeight:
		return "height"
	case ChannelIntensity:
		return "intensity"
	case ChannelErrMag:
		return "error"
	case ChannelErrNorth:
		return "error-north"
	case ChannelErrEast:
		return "error-east"
	case ChannelErrDown:
		return "error-down"
	}
	return "unknown"
}

// Rasterizer computes weighted cell values from a read-only bin set. It
// carries no per-cell state, so one value may serve any number of
// concurrent tile workers.
type Rasterizer struct {
	Bins   *chipper.BinSet
	Radius float64 // gather radius around each cell centre
	Sigma  float64 // Gaussian falloff, conventionally Radius/2

	// Threshold drops points whose error magnitude exceeds it. Zero
	// disables rejection.
	Threshold float64

	// MinZFallback substitutes the minimum height seen in the candidate
	// bins when the gather radius itself is empty.
	MinZFallback bool

	// Ref rotates error vectors into the local tangent frame for the
	// ChannelErr* components. Required only for those channels.
	Ref *geodesy.GeoRef
}

// CellValue grids one cell: Gaussian-weighted mean of the channel over
// all points within Radius of the cell centre. ok is false when the cell
// has no contribution and no fallback applies.
func (rz *Rasterizer) CellValue(ch Channel, cx, cy float64, scratch []int) (v float64, ok bool) {
	probe := chipper.Rect{
		MinX: cx - rz.Radius, MinY: cy - rz.Radius,
		MaxX: cx + rz.Radius, MaxY: cy + rz.Radius,
	}
	idxs := rz.Bins.Query(probe, scratch[:0])

	var ned [9]float64
	if ch >= ChannelErrNorth {
		lon, lat := rz.Ref.PointToLonLat(cx, cy)
		ned = rz.Ref.Datum.NEDMatrix(lon, lat)
	}

	r2 := rz.Radius * rz.Radius
	twoSigma2 := 2 * rz.Sigma * rz.Sigma
	var wsum, vsum float64
	minZ, sawPoint := math.Inf(1), false

	for _, bi := range idxs {
		for _, p := range rz.Bins.Bins[bi].Points {
			if rz.Threshold > 0 && p.ErrMag() > rz.Threshold {
				continue
			}
			if p.Z < minZ {
				minZ, sawPoint = p.Z, true
			}
			dx, dy := p.X-cx, p.Y-cy
			d2 := dx*dx + dy*dy
			if d2 > r2 {
				continue
			}
			w := math.Exp(-d2 / twoSigma2)
			wsum += w
			vsum += w * channelValue(ch, p, &ned)
		}
	}

	if wsum > 0 {
		return vsum / wsum, true
	}
	if rz.MinZFallback && sawPoint && ch == ChannelHeight {
		return minZ, true
	}
	return 0, false
}

func channelValue(ch Channel, p cloud.Point, ned *[9]float64) float64 {
	switch ch {
	case ChannelHeight:
		return p.Z
	case ChannelIntensity:
		return p.Intensity
	case ChannelErrMag:
		return p.ErrMag()
	case ChannelErrNorth:
		return ned[0]*p.Err[0] + ned[1]*p.Err[1] + ned[2]*p.Err[2]
	case ChannelErrEast:
		return ned[3]*p.Err[0] + ned[4]*p.Err[1] + ned[5]*p.Err[2]
	case ChannelErrDown:
		return ned[6]*p.Err[0] + ned[7]*p.Err[1] + ned[8]*p.Err[2]
	}
	return 0
}

// RasterizeRegion fills the half-open cell rectangle [row0,row1)x[col0,col1)
// of g. Regions of concurrent calls must not overlap; the cells written
// here are touched by no other goroutine.
func (rz *Rasterizer) RasterizeRegion(g *raster.Grid, ch Channel, row0, row1, col0, col1 int) {
	scratch := make([]int, 0, 16)
	for row := row0; row < row1; row++ {
		for col := col0; col < col1; col++ {
			cx, cy := g.CellCenter(row, col)
			if v, ok := rz.CellValue(ch, cx, cy, scratch); ok {
				g.Set(row, col, v)
			}
		}
	}
}
