package cloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// lasHeader is the fixed-size public header block of a LAS file (versions
// 1.0 through 1.3), little-endian on disk. Only the fields the reader needs
// are retained after parsing.
type lasHeader struct {
	VersionMajor, VersionMinor uint8
	HeaderSize                 uint16
	PointDataOffset            uint32
	VLRCount                   uint32
	PointFormat                uint8
	PointRecordLen             uint16
	PointCount                 uint32
	ScaleX, ScaleY, ScaleZ     float64
	OffsetX, OffsetY, OffsetZ  float64
}

const (
	lasSignature     = "LASF"
	lasFixedHeaderSz = 227 // LAS 1.0-1.2 public header block size
	lasVLRHeaderSz   = 54

	// OGC coordinate system WKT variable-length record.
	lasProjectionUserID = "LASF_Projection"
	lasWKTRecordID      = 2112
)

// LASSource reads a binary laser-scan file as a continuous record stream.
// Coordinates are the file's own CRS (projected plane + height in the
// usual survey products), so points pass through as plane coordinates.
type LASSource struct {
	path string
	f    *os.File
	r    *bufio.Reader

	header   lasHeader
	embedded *geodesy.GeoRef // from the header WKT, nil when absent

	record []byte // scratch buffer, one point record
	read   uint32
	cur    Point
	err    error
}

// OpenLAS opens a LAS file, parses the header and variable-length records,
// and positions the stream at the first point record. A zero-length
// spatial-reference descriptor in the header is not an error: the source is
// then reference-less and the caller supplies one.
func OpenLAS(path string) (*LASSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}

	s := &LASSource{path: path, f: f, r: bufio.NewReaderSize(f, 1<<16)}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.record = make([]byte, s.header.PointRecordLen)
	return s, nil
}

func (s *LASSource) readHeader() error {
	buf := make([]byte, lasFixedHeaderSz)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return fmt.Errorf("short header: %w", err)
	}
	if string(buf[0:4]) != lasSignature {
		return fmt.Errorf("bad signature %q, want %q", buf[0:4], lasSignature)
	}

	h := &s.header
	h.VersionMajor = buf[24]
	h.VersionMinor = buf[25]
	h.HeaderSize = binary.LittleEndian.Uint16(buf[94:96])
	h.PointDataOffset = binary.LittleEndian.Uint32(buf[96:100])
	h.VLRCount = binary.LittleEndian.Uint32(buf[100:104])
	h.PointFormat = buf[104]
	h.PointRecordLen = binary.LittleEndian.Uint16(buf[105:107])
	h.PointCount = binary.LittleEndian.Uint32(buf[107:111])
	h.ScaleX = lasF64(buf[131:139])
	h.ScaleY = lasF64(buf[139:147])
	h.ScaleZ = lasF64(buf[147:155])
	h.OffsetX = lasF64(buf[155:163])
	h.OffsetY = lasF64(buf[163:171])
	h.OffsetZ = lasF64(buf[171:179])

	// 1.4 moved the point count to a 64-bit field; the legacy field read
	// above may be zero there, so newer minors are rejected rather than
	// silently read as empty.
	if h.VersionMajor != 1 || h.VersionMinor > 3 {
		return fmt.Errorf("unsupported LAS version %d.%d", h.VersionMajor, h.VersionMinor)
	}
	if h.PointFormat > 3 {
		return fmt.Errorf("unsupported point data format %d", h.PointFormat)
	}
	if h.PointRecordLen < 20 {
		return fmt.Errorf("implausible point record length %d", h.PointRecordLen)
	}

	consumed := uint32(lasFixedHeaderSz)

	// Header sizes beyond the 1.2 fixed block (1.3 adds a waveform
	// pointer) are skipped; nothing in the extension is needed here.
	if uint32(h.HeaderSize) > consumed {
		skip := uint32(h.HeaderSize) - consumed
		if _, err := s.r.Discard(int(skip)); err != nil {
			return fmt.Errorf("header extension: %w", err)
		}
		consumed += skip
	}

	// Walk the variable-length records looking for the coordinate system
	// WKT. Everything else is skipped.
	for i := uint32(0); i < h.VLRCount; i++ {
		vlr := make([]byte, lasVLRHeaderSz)
		if _, err := io.ReadFull(s.r, vlr); err != nil {
			return fmt.Errorf("VLR %d header: %w", i, err)
		}
		userID := cString(vlr[2:18])
		recordID := binary.LittleEndian.Uint16(vlr[18:20])
		payloadLen := binary.LittleEndian.Uint16(vlr[20:22])
		consumed += lasVLRHeaderSz

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(s.r, payload); err != nil {
			return fmt.Errorf("VLR %d payload: %w", i, err)
		}
		consumed += uint32(payloadLen)

		if userID == lasProjectionUserID && recordID == lasWKTRecordID {
			ref, err := geodesy.ParseSRS(cString(payload))
			if err != nil {
				return fmt.Errorf("embedded SRS: %w", err)
			}
			s.embedded = ref
		}
	}

	// Forward-only stream: discard any padding before the point records.
	if h.PointDataOffset < consumed {
		return fmt.Errorf("point data offset %d inside header block", h.PointDataOffset)
	}
	if skip := h.PointDataOffset - consumed; skip > 0 {
		if _, err := s.r.Discard(int(skip)); err != nil {
			return fmt.Errorf("pre-point padding: %w", err)
		}
	}
	return nil
}

func (s *LASSource) Next() bool {
	if s.err != nil || s.read >= s.header.PointCount {
		return false
	}
	if _, err := io.ReadFull(s.r, s.record); err != nil {
		s.err = fmt.Errorf("%s: point %d: %w", s.path, s.read, err)
		return false
	}
	s.read++

	h := &s.header
	x := int32(binary.LittleEndian.Uint32(s.record[0:4]))
	y := int32(binary.LittleEndian.Uint32(s.record[4:8]))
	z := int32(binary.LittleEndian.Uint32(s.record[8:12]))
	intensity := binary.LittleEndian.Uint16(s.record[12:14])

	s.cur = Point{
		X:         float64(x)*h.ScaleX + h.OffsetX,
		Y:         float64(y)*h.ScaleY + h.OffsetY,
		Z:         float64(z)*h.ScaleZ + h.OffsetZ,
		Intensity: float64(intensity),
	}
	return true
}

func (s *LASSource) Point() Point          { return s.cur }
func (s *LASSource) CountEstimate() uint64 { return uint64(s.header.PointCount) }
func (s *LASSource) Kind() CoordKind       { return CoordPlane }
func (s *LASSource) Channels() ChannelMask { return ChanIntensity }
func (s *LASSource) Err() error            { return s.err }
func (s *LASSource) Close() error          { return s.f.Close() }

func (s *LASSource) EmbeddedRef() (*geodesy.GeoRef, bool) {
	return s.embedded, s.embedded != nil
}

func lasF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
