package cloud

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// Source is a strictly sequential reader of normalised points: a single
// forward pass, no random access. The binary laser format is a continuous
// record stream, so ingestion from one source is single-threaded even
// though rasterization downstream is parallel.
type Source interface {
	// Next advances to the next point, reporting false at end of input or
	// on error (check Err).
	Next() bool
	// Point returns the point read by the last successful Next.
	Point() Point
	// CountEstimate returns the expected number of points, used to size the
	// composite. It need not be exact for text sources.
	CountEstimate() uint64
	// EmbeddedRef returns the georeference embedded in the source header,
	// when the format carries one.
	EmbeddedRef() (*geodesy.GeoRef, bool)
	// Kind is the coordinate convention of every point in this source.
	Kind() CoordKind
	// Channels declares the optional channels present on every point.
	Channels() ChannelMask
	// Err returns the first fatal error encountered while reading.
	Err() error
	Close() error
}

// IsLAS reports whether the path names a binary laser-scan file.
func IsLAS(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".las"
}

// IsText reports whether the path names a delimited-text point file.
func IsText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".xyz":
		return true
	}
	return false
}

// Open selects the reader implementation from the file extension. The
// format descriptor and georeference apply to text sources; a LAS source
// carries its reference in its own header, when it has one at all.
func Open(path string, format *Format, ref *geodesy.GeoRef) (Source, error) {
	switch {
	case IsLAS(path):
		return OpenLAS(path)
	case IsText(path):
		if format == nil {
			return nil, fmt.Errorf("%s: text input requires a format descriptor", path)
		}
		return OpenCSV(path, format, ref)
	}
	return nil, fmt.Errorf("unknown point file type: %s", path)
}
