// Package geodesy provides the minimal datum and map-projection math the
// gridding core needs: geodetic <-> Earth-centred Cartesian conversion on a
// reference ellipsoid, UTM / plate carrée plane projections, and the local
// north-east-down rotation used to express error vectors per grid cell.
package geodesy

import (
	"fmt"
	"math"
	"strings"
)

// Datum is a reference ellipsoid. Axes are in meters.
type Datum struct {
	Name       string
	SemiMajorM float64
	SemiMinorM float64
}

// Well-known datums accepted by name. Planetary spheres are modelled as
// ellipsoids with equal axes.
var wellKnownDatums = map[string]Datum{
	"wgs_1984": {Name: "WGS_1984", SemiMajorM: 6378137.0, SemiMinorM: 6356752.314245},
	"wgs84":    {Name: "WGS_1984", SemiMajorM: 6378137.0, SemiMinorM: 6356752.314245},
	"earth":    {Name: "WGS_1984", SemiMajorM: 6378137.0, SemiMinorM: 6356752.314245},
	"wgs72":    {Name: "WGS72", SemiMajorM: 6378135.0, SemiMinorM: 6356750.52},
	"nad83":    {Name: "NAD83", SemiMajorM: 6378137.0, SemiMinorM: 6356752.314140},
	"nad27":    {Name: "NAD27", SemiMajorM: 6378206.4, SemiMinorM: 6356583.8},
	"d_moon":   {Name: "D_MOON", SemiMajorM: 1737400.0, SemiMinorM: 1737400.0},
	"moon":     {Name: "D_MOON", SemiMajorM: 1737400.0, SemiMinorM: 1737400.0},
	"d_mars":   {Name: "D_MARS", SemiMajorM: 3396190.0, SemiMinorM: 3396190.0},
	"mars":     {Name: "D_MARS", SemiMajorM: 3396190.0, SemiMinorM: 3396190.0},
	"mola":     {Name: "MOLA", SemiMajorM: 3396000.0, SemiMinorM: 3396000.0},
}

// WGS84 is the default datum when nothing else is specified.
var WGS84 = wellKnownDatums["wgs_1984"]

// DatumByName looks up a well-known datum. Matching is case-insensitive.
func DatumByName(name string) (Datum, error) {
	d, ok := wellKnownDatums[strings.ToLower(name)]
	if !ok {
		return Datum{}, fmt.Errorf("unknown datum %q", name)
	}
	return d, nil
}

// UserDatum builds a datum from explicit semi-axes.
func UserDatum(semiMajorM, semiMinorM float64) (Datum, error) {
	if semiMajorM <= 0 || semiMinorM <= 0 || semiMinorM > semiMajorM {
		return Datum{}, fmt.Errorf("invalid spheroid axes: %g, %g", semiMajorM, semiMinorM)
	}
	return Datum{Name: "User Specified Spheroid", SemiMajorM: semiMajorM, SemiMinorM: semiMinorM}, nil
}

// e2 returns the first eccentricity squared.
func (d Datum) e2() float64 {
	a, b := d.SemiMajorM, d.SemiMinorM
	return 1 - (b*b)/(a*a)
}

// GeodeticToCartesian converts lon/lat (degrees) and height above the
// ellipsoid (meters) to Earth-centred XYZ (meters).
func (d Datum) GeodeticToCartesian(lonDeg, latDeg, heightM float64) (x, y, z float64) {
	lon := lonDeg * math.Pi / 180
	lat := latDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	e2 := d.e2()
	n := d.SemiMajorM / math.Sqrt(1-e2*sinLat*sinLat)

	x = (n + heightM) * cosLat * cosLon
	y = (n + heightM) * cosLat * sinLon
	z = (n*(1-e2) + heightM) * sinLat
	return x, y, z
}

// CartesianToGeodetic converts Earth-centred XYZ (meters) to lon/lat
// (degrees) and height above the ellipsoid (meters). Latitude is solved
// iteratively; convergence is well under a nanometer in a handful of steps.
func (d Datum) CartesianToGeodetic(x, y, z float64) (lonDeg, latDeg, heightM float64) {
	e2 := d.e2()
	p := math.Hypot(x, y)
	lon := math.Atan2(y, x)

	if p == 0 {
		// On the polar axis.
		lat := math.Pi / 2
		if z < 0 {
			lat = -lat
		}
		return lon * 180 / math.Pi, lat * 180 / math.Pi, math.Abs(z) - d.SemiMinorM
	}

	lat := math.Atan2(z, p*(1-e2))
	var n float64
	for i := 0; i < 16; i++ {
		sinLat := math.Sin(lat)
		n = d.SemiMajorM / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(z+e2*n*sinLat, p)
		if math.Abs(next-lat) < 1e-14 {
			lat = next
			break
		}
		lat = next
	}
	sinLat, cosLat := math.Sincos(lat)
	n = d.SemiMajorM / math.Sqrt(1-e2*sinLat*sinLat)
	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = p/cosLat - n
	} else {
		h = z/sinLat - n*(1-e2)
	}
	return lon * 180 / math.Pi, lat * 180 / math.Pi, h
}

// NEDMatrix returns the 3x3 row-major rotation taking an Earth-centred
// vector to the local north-east-down frame at the given lon/lat.
func (d Datum) NEDMatrix(lonDeg, latDeg float64) [9]float64 {
	lon := lonDeg * math.Pi / 180
	lat := latDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return [9]float64{
		-sinLat * cosLon, -sinLat * sinLon, cosLat,
		-sinLon, cosLon, 0,
		-cosLat * cosLon, -cosLat * sinLon, -sinLat,
	}
}

// RecenterLongitude shifts lonDeg by whole multiples of 360 degrees so it
// lands as close as possible to meanLonDeg.
func RecenterLongitude(lonDeg, meanLonDeg float64) float64 {
	return lonDeg + 360*math.Round((meanLonDeg-lonDeg)/360)
}
