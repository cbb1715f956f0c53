// Package cloud ingests heterogeneous point sources (delimited text and
// binary LAS laser scans) and normalises them into one coordinate
// convention so the downstream binning and rasterization stages are
// format-agnostic.
package cloud

import "math"

// ChannelMask declares which optional per-point channels a source carries
// beyond the 3-D coordinate.
type ChannelMask uint8

const (
	// ChanIntensity marks a texture/intensity value per point.
	ChanIntensity ChannelMask = 1 << iota
	// ChanErrScalar marks a scalar triangulation-error magnitude per point.
	ChanErrScalar
	// ChanErrVector marks a 3-component triangulation error per point.
	ChanErrVector
)

// Has reports whether all channels in want are present.
func (m ChannelMask) Has(want ChannelMask) bool { return m&want == want }

// HasError reports whether any error channel is present.
func (m ChannelMask) HasError() bool { return m&(ChanErrScalar|ChanErrVector) != 0 }

// CoordKind identifies the coordinate convention of a normalised source.
// Every point of one source shares the same kind, fixed at open time.
type CoordKind uint8

const (
	// CoordPlane is projected plane x/y plus height (or lon/lat/height
	// under a geographic reference).
	CoordPlane CoordKind = iota
	// CoordGeodetic is lon/lat degrees plus height above the datum.
	CoordGeodetic
	// CoordECEF is raw Earth-centred Cartesian meters.
	CoordECEF
)

// Point is one normalised measurement. X, Y, Z are interpreted per the
// owning source's CoordKind. Channel values are meaningful only when the
// source's ChannelMask declares them.
type Point struct {
	X, Y, Z   float64
	Intensity float64
	Err       [3]float64
}

// ErrMag returns the magnitude of the error channel. For scalar errors the
// value lives in Err[0] and the remaining components are zero, so the norm
// covers both layouts.
func (p Point) ErrMag() float64 {
	return math.Sqrt(p.Err[0]*p.Err[0] + p.Err[1]*p.Err[1] + p.Err[2]*p.Err[2])
}
