package geodesy

import (
	"fmt"
	"math"
	"strconv"
)

// Projection maps lon/lat (degrees) to plane coordinates and back.
type Projection interface {
	// Forward projects lon/lat (degrees) to plane x/y.
	Forward(lonDeg, latDeg float64) (x, y float64)
	// Inverse unprojects plane x/y to lon/lat (degrees).
	Inverse(x, y float64) (lonDeg, latDeg float64)
	// Describe returns a short human-readable projection tag.
	Describe() string
}

// PlateCarree is the identity projection: plane units are degrees.
type PlateCarree struct{}

func (PlateCarree) Forward(lonDeg, latDeg float64) (float64, float64) { return lonDeg, latDeg }
func (PlateCarree) Inverse(x, y float64) (float64, float64)          { return x, y }
func (PlateCarree) Describe() string                                 { return "geographic" }

// UTM is a transverse Mercator projection for one standard 6-degree zone.
type UTM struct {
	Datum Datum
	Zone  int
	North bool
}

const (
	utmScale        = 0.9996
	utmFalseEasting = 500000.0
	utmFalseNorthS  = 10000000.0
)

func (u UTM) centralMeridianRad() float64 {
	return float64(u.Zone*6-183) * math.Pi / 180
}

func (u UTM) Describe() string {
	hemi := "N"
	if !u.North {
		hemi = "S"
	}
	return fmt.Sprintf("utm:%d%s", u.Zone, hemi)
}

// meridianArc computes the ellipsoidal meridian arc length from the equator.
func (u UTM) meridianArc(lat float64) float64 {
	a := u.Datum.SemiMajorM
	e2 := u.Datum.e2()
	e4 := e2 * e2
	e6 := e4 * e2
	return a * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))
}

// Forward implements the standard transverse Mercator series expansion.
func (u UTM) Forward(lonDeg, latDeg float64) (float64, float64) {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180

	a := u.Datum.SemiMajorM
	e2 := u.Datum.e2()
	ep2 := e2 / (1 - e2)

	sinLat, cosLat := math.Sincos(lat)
	tanLat := sinLat / cosLat

	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	c := ep2 * cosLat * cosLat
	av := cosLat * (lon - u.centralMeridianRad())

	m := u.meridianArc(lat)

	x := utmScale*n*(av+(1-t+c)*av*av*av/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(av, 5)/120) + utmFalseEasting
	y := utmScale * (m + n*tanLat*(av*av/2+(5-t+9*c+4*c*c)*math.Pow(av, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(av, 6)/720))
	if !u.North {
		y += utmFalseNorthS
	}
	return x, y
}

// Inverse unprojects via the footpoint-latitude series.
func (u UTM) Inverse(x, y float64) (float64, float64) {
	a := u.Datum.SemiMajorM
	e2 := u.Datum.e2()
	ep2 := e2 / (1 - e2)

	x -= utmFalseEasting
	if !u.North {
		y -= utmFalseNorthS
	}

	m := y / utmScale
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sincos(phi1)
	tanPhi1 := sinPhi1 / cosPhi1

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := a / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := a * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * utmScale)

	lat := phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := u.centralMeridianRad() + (d-(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cosPhi1

	return lon * 180 / math.Pi, lat * 180 / math.Pi
}

// ParseUTMZone parses a zone token like "10N" or "58s".
func ParseUTMZone(s string) (zone int, north bool, err error) {
	if len(s) < 2 {
		return 0, false, fmt.Errorf("could not parse UTM zone %q", s)
	}
	hemi := s[len(s)-1]
	zone, err = strconv.Atoi(s[:len(s)-1])
	if err != nil || zone < 1 || zone > 60 {
		return 0, false, fmt.Errorf("could not parse UTM zone %q", s)
	}
	switch hemi {
	case 'n', 'N':
		north = true
	case 's', 'S':
		north = false
	default:
		return 0, false, fmt.Errorf("could not parse UTM zone %q", s)
	}
	return zone, north, nil
}
