package cloud

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// Scheme is the coordinate interpretation of a delimited-text source.
// Exactly one scheme is active per source.
type Scheme int

const (
	SchemeXYZ Scheme = iota
	SchemeLonLatRadiusM
	SchemeLonLatRadiusKM
	SchemeHeightLatLon
	SchemeEastingNorthingHeight
)

func (s Scheme) String() string {
	switch s {
	case SchemeXYZ:
		return "x/y/z"
	case SchemeLonLatRadiusM:
		return "lon/lat/radius_m"
	case SchemeLonLatRadiusKM:
		return "lon/lat/radius_km"
	case SchemeHeightLatLon:
		return "lon/lat/height_above_datum"
	case SchemeEastingNorthingHeight:
		return "easting/northing/height_above_datum"
	}
	return "unknown"
}

// fileSlot is the sorted position reserved for the identifier column.
const fileSlot = 3

// slotForName maps a column name to its canonical slot. Slots 0..2 hold the
// coordinate triple in scheme order; slot 3 holds the identifier string.
func slotForName(name string) (int, error) {
	switch name {
	case "lon", "x", "easting":
		return 0, nil
	case "lat", "y", "northing":
		return 1, nil
	case "radius_m", "radius_km", "z", "height_above_datum":
		return 2, nil
	case "file":
		return fileSlot, nil
	}
	return 0, fmt.Errorf("unsupported column name: %q", name)
}

// Format is a parsed descriptor such as
// "1:x 2:y 3:z" or "utm:10N 1:easting 2:northing 3:height_above_datum".
// It drives both line parsing and the coordinate conversion in each
// direction.
type Format struct {
	Raw    string
	Scheme Scheme

	// UTM zone carried by the descriptor prefix, if any.
	HasUTM   bool
	UTMZone  int
	UTMNorth bool

	colToSlot  map[int]int // 0-based column index -> slot
	fileCol    int         // 0-based column of the identifier, -1 when absent
	numTargets int
}

// ParseFormat parses a format descriptor string. Column indices in the
// descriptor are 1-based, must be unique, and together with an optional
// identifier column must select exactly one coordinate scheme.
func ParseFormat(raw string) (*Format, error) {
	local := strings.ToLower(raw)
	local = strings.ReplaceAll(local, ":", " ")
	local = strings.ReplaceAll(local, ",", " ")
	tokens := strings.Fields(local)

	f := &Format{Raw: raw, colToSlot: make(map[int]int), fileCol: -1}

	if len(tokens) > 0 && tokens[0] == "utm" {
		if len(tokens) < 2 {
			return nil, fmt.Errorf("format %q: utm prefix without a zone", raw)
		}
		zone, north, err := geodesy.ParseUTMZone(tokens[1])
		if err != nil {
			return nil, fmt.Errorf("format %q: %w", raw, err)
		}
		f.HasUTM, f.UTMZone, f.UTMNorth = true, zone, north
		tokens = tokens[2:]
	}

	if len(tokens) == 0 || len(tokens)%2 != 0 {
		return nil, fmt.Errorf("could not parse format %q", raw)
	}

	slotNames := map[int]string{}
	for i := 0; i < len(tokens); i += 2 {
		col, err := strconv.Atoi(tokens[i])
		if err != nil || col < 1 {
			return nil, fmt.Errorf("format %q: illegal column index %q", raw, tokens[i])
		}
		col-- // to 0-based
		name := tokens[i+1]
		slot, err := slotForName(name)
		if err != nil {
			return nil, fmt.Errorf("format %q: %w", raw, err)
		}
		if _, dup := f.colToSlot[col]; dup || (slot == fileSlot && f.fileCol == col) {
			return nil, fmt.Errorf("format %q: duplicate column index %d", raw, col+1)
		}
		if prev, dup := slotNames[slot]; dup {
			return nil, fmt.Errorf("format %q: %s and %s map to the same coordinate", raw, prev, name)
		}
		slotNames[slot] = name
		if slot == fileSlot {
			if f.fileCol >= 0 {
				return nil, fmt.Errorf("format %q: more than one file column", raw)
			}
			f.fileCol = col
		} else {
			f.colToSlot[col] = slot
		}
		f.numTargets++
	}

	if len(f.colToSlot) != 3 {
		return nil, fmt.Errorf("format %q: expected exactly 3 coordinate columns, got %d",
			raw, len(f.colToSlot))
	}

	switch [3]string{slotNames[0], slotNames[1], slotNames[2]} {
	case [3]string{"x", "y", "z"}:
		f.Scheme = SchemeXYZ
	case [3]string{"lon", "lat", "radius_m"}:
		f.Scheme = SchemeLonLatRadiusM
	case [3]string{"lon", "lat", "radius_km"}:
		f.Scheme = SchemeLonLatRadiusKM
	case [3]string{"lon", "lat", "height_above_datum"}:
		f.Scheme = SchemeHeightLatLon
	case [3]string{"easting", "northing", "height_above_datum"}:
		f.Scheme = SchemeEastingNorthingHeight
	default:
		return nil, fmt.Errorf("cannot understand the format string %q", raw)
	}
	return f, nil
}

// Ref builds the georeference implied by the descriptor's UTM prefix, or nil
// when the descriptor carries no projection of its own.
func (f *Format) Ref(d geodesy.Datum) *geodesy.GeoRef {
	if !f.HasUTM {
		return nil
	}
	return geodesy.NewUTM(d, f.UTMZone, f.UTMNorth)
}

// Record is one parsed line: the coordinate triple in slot order plus the
// optional identifier.
type Record struct {
	Vals [3]float64
	File string
}

// lineDelimiters are the accepted field separators for text sources.
const lineDelimiters = " \t,;"

// ParseLine splits a text line and extracts the declared columns. The error
// is non-nil when the number of extracted values does not match the
// declared target count or a numeric field fails to parse; the caller
// decides whether that is a tolerated header line or a fatal abort.
func (f *Format) ParseLine(line string) (Record, error) {
	var rec Record
	numRead := 0

	col := 0
	for _, token := range strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(lineDelimiters, r)
	}) {
		if numRead >= f.numTargets {
			break
		}
		colIdx := col
		col++

		if colIdx == f.fileCol {
			rec.File = token
			numRead++
			continue
		}
		slot, ok := f.colToSlot[colIdx]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return rec, fmt.Errorf("bad numeric field %q", token)
		}
		rec.Vals[slot] = v
		numRead++
	}

	if numRead != f.numTargets {
		return rec, fmt.Errorf("parsed %d of %d declared fields", numRead, f.numTargets)
	}
	return rec, nil
}

// Kind returns the coordinate convention Normalize produces for this
// scheme.
func (f *Format) Kind() CoordKind {
	switch f.Scheme {
	case SchemeXYZ:
		return CoordECEF
	case SchemeEastingNorthingHeight:
		return CoordPlane
	default:
		return CoordGeodetic
	}
}

// Normalize converts a parsed record to the source's working coordinates,
// preferring projected-plane (or geodetic) coordinates over Earth-centred
// ones so the chipper bins on plane proximity.
func (f *Format) Normalize(rec Record, ref *geodesy.GeoRef) (Point, CoordKind) {
	v := rec.Vals
	switch f.Scheme {
	case SchemeXYZ:
		return Point{X: v[0], Y: v[1], Z: v[2]}, CoordECEF
	case SchemeEastingNorthingHeight:
		return Point{X: v[0], Y: v[1], Z: v[2]}, CoordPlane
	case SchemeHeightLatLon:
		return Point{X: v[0], Y: v[1], Z: v[2]}, CoordGeodetic
	default: // lon/lat/radius in meters or kilometers
		x, y, z := f.sphereToCartesian(v, ref)
		lon, lat, h := ref.Datum.CartesianToGeodetic(x, y, z)
		return Point{X: lon, Y: lat, Z: h}, CoordGeodetic
	}
}

// ToCartesian converts a parsed record all the way to Earth-centred XYZ.
func (f *Format) ToCartesian(rec Record, ref *geodesy.GeoRef) Point {
	v := rec.Vals
	switch f.Scheme {
	case SchemeXYZ:
		return Point{X: v[0], Y: v[1], Z: v[2]}
	case SchemeEastingNorthingHeight:
		lon, lat := ref.PointToLonLat(v[0], v[1])
		x, y, z := ref.Datum.GeodeticToCartesian(lon, lat, v[2])
		return Point{X: x, Y: y, Z: z}
	case SchemeHeightLatLon:
		x, y, z := ref.Datum.GeodeticToCartesian(v[0], v[1], v[2])
		return Point{X: x, Y: y, Z: z}
	default:
		x, y, z := f.sphereToCartesian(v, ref)
		return Point{X: x, Y: y, Z: z}
	}
}

// sphereToCartesian handles the lon/lat/radius schemes: convert at zero
// height via the ellipsoid, then rescale the vector to the declared radius
// so the result lies on a sphere of that radius rather than the ellipsoid.
func (f *Format) sphereToCartesian(v [3]float64, ref *geodesy.GeoRef) (x, y, z float64) {
	radius := v[2]
	if f.Scheme == SchemeLonLatRadiusKM {
		radius *= 1000
	}
	x, y, z = ref.Datum.GeodeticToCartesian(v[0], v[1], 0)
	norm := math.Sqrt(x*x + y*y + z*z)
	scale := radius / norm
	return x * scale, y * scale, z * scale
}

// FromCartesian inverts ToCartesian, producing the coordinate triple in
// slot order. Longitudes are renormalised by whole multiples of 360 degrees
// toward meanLonDeg.
func (f *Format) FromCartesian(p Point, ref *geodesy.GeoRef, meanLonDeg float64) [3]float64 {
	if f.Scheme == SchemeXYZ {
		return [3]float64{p.X, p.Y, p.Z}
	}

	lon, lat, h := ref.Datum.CartesianToGeodetic(p.X, p.Y, p.Z)
	lon = geodesy.RecenterLongitude(lon, meanLonDeg)

	switch f.Scheme {
	case SchemeEastingNorthingHeight:
		e, n := ref.LonLatToPoint(lon, lat)
		return [3]float64{e, n, h}
	case SchemeHeightLatLon:
		return [3]float64{lon, lat, h}
	default:
		radius := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
		if f.Scheme == SchemeLonLatRadiusKM {
			radius /= 1000
		}
		return [3]float64{lon, lat, radius}
	}
}

// Unsort reorders a slot-ordered triple into the original file column
// order, for writing records back out in the declared layout.
func (f *Format) Unsort(vals [3]float64) [3]float64 {
	cols := make([]int, 0, 3)
	for col := range f.colToSlot {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	var out [3]float64
	for i, col := range cols {
		out[i] = vals[f.colToSlot[col]]
	}
	return out
}
