package geodesy

import (
	"fmt"
	"regexp"
	"strings"
)

// GeoRef ties a datum to a plane projection. It is immutable once a run
// starts: readers and the rasterizer share one value.
type GeoRef struct {
	Datum Datum
	Proj  Projection
}

// NewGeographic returns a georeference with plane coordinates in degrees.
func NewGeographic(d Datum) *GeoRef {
	return &GeoRef{Datum: d, Proj: PlateCarree{}}
}

// NewUTM returns a georeference projected to the given UTM zone.
func NewUTM(d Datum, zone int, north bool) *GeoRef {
	return &GeoRef{Datum: d, Proj: UTM{Datum: d, Zone: zone, North: north}}
}

// PointToLonLat unprojects plane coordinates to lon/lat degrees.
func (g *GeoRef) PointToLonLat(x, y float64) (lonDeg, latDeg float64) {
	return g.Proj.Inverse(x, y)
}

// LonLatToPoint projects lon/lat degrees to plane coordinates.
func (g *GeoRef) LonLatToPoint(lonDeg, latDeg float64) (x, y float64) {
	return g.Proj.Forward(lonDeg, latDeg)
}

// IsProjected reports whether plane units are meters rather than degrees.
func (g *GeoRef) IsProjected() bool {
	_, geographic := g.Proj.(PlateCarree)
	return !geographic
}

func (g *GeoRef) String() string {
	return fmt.Sprintf("%s on %s", g.Proj.Describe(), g.Datum.Name)
}

var (
	wktUTMZoneRe  = regexp.MustCompile(`(?i)UTM zone (\d{1,2})(N|S)`)
	wktSpheroidRe = regexp.MustCompile(`(?i)SPHEROID\[\s*"[^"]*"\s*,\s*([0-9.]+)\s*,\s*([0-9.]+)`)
)

// ParseSRS interprets the spatial-reference descriptor string carried by a
// laser-scan header. Only the subset the gridding core produces and consumes
// is understood: an optional UTM zone and an optional ellipsoid definition.
// An empty string yields (nil, nil): the source has no embedded reference.
func ParseSRS(srs string) (*GeoRef, error) {
	srs = strings.TrimSpace(srs)
	if srs == "" {
		return nil, nil
	}

	datum := WGS84
	if m := wktSpheroidRe.FindStringSubmatch(srs); m != nil {
		var semiMajor, invFlat float64
		if _, err := fmt.Sscanf(m[1], "%g", &semiMajor); err != nil {
			return nil, fmt.Errorf("bad spheroid in SRS: %w", err)
		}
		if _, err := fmt.Sscanf(m[2], "%g", &invFlat); err != nil {
			return nil, fmt.Errorf("bad spheroid in SRS: %w", err)
		}
		semiMinor := semiMajor
		if invFlat > 0 {
			semiMinor = semiMajor * (1 - 1/invFlat)
		}
		d, err := UserDatum(semiMajor, semiMinor)
		if err != nil {
			return nil, fmt.Errorf("bad spheroid in SRS: %w", err)
		}
		datum = d
	}

	if m := wktUTMZoneRe.FindStringSubmatch(srs); m != nil {
		zone, north, err := ParseUTMZone(m[1] + m[2])
		if err != nil {
			return nil, err
		}
		return NewUTM(datum, zone, north), nil
	}
	return NewGeographic(datum), nil
}
