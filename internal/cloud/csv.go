package cloud

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// CSVSource reads a delimited-text point file line by line. The first line
// may be a header: a parse failure there is silently retried on the next
// line; any later failure is fatal for the whole source.
type CSVSource struct {
	path   string
	f      *os.File
	sc     *bufio.Scanner
	format *Format
	ref    *geodesy.GeoRef
	kind   CoordKind

	count     uint64
	firstLine bool
	cur       Point
	err       error
}

// OpenCSV opens a text source. A counting pre-pass establishes the point
// estimate; reading then restarts from the top in a single forward pass.
func OpenCSV(path string, format *Format, ref *geodesy.GeoRef) (*CSVSource, error) {
	count, err := countTextPoints(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}

	s := &CSVSource{
		path:      path,
		f:         f,
		sc:        bufio.NewScanner(f),
		format:    format,
		ref:       ref,
		count:     count,
		firstLine: true,
		kind:      format.Kind(),
	}
	return s, nil
}

// countTextPoints counts candidate point lines: non-empty lines that are
// not comments. The header line, if present, inflates the estimate by one,
// which is harmless for sizing.
func countTextPoints(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer f.Close()

	var n uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if validTextLine(sc.Text()) {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading %q: %w", path, err)
	}
	return n, nil
}

// validTextLine reports whether a line can hold a point record: it is not
// blank and not a '#' comment.
func validTextLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && trimmed[0] != '#'
}

func (s *CSVSource) Next() bool {
	if s.err != nil {
		return false
	}
	// Two attempts at most: the first may consume the header line.
	for attempt := 0; attempt < 2; attempt++ {
		line, ok := s.nextLine()
		if !ok {
			return false
		}
		rec, err := s.format.ParseLine(line)
		if err != nil {
			if !s.firstLine {
				s.err = fmt.Errorf("%s: failed to read line %q: %w", s.path, line, err)
				return false
			}
			s.firstLine = false
			continue
		}
		s.firstLine = false
		s.cur, _ = s.format.Normalize(rec, s.ref)
		return true
	}
	// Header retry also failed to yield a point.
	if s.err == nil {
		s.err = fmt.Errorf("%s: no parsable point records", s.path)
	}
	return false
}

// nextLine scans past blank and comment lines.
func (s *CSVSource) nextLine() (string, bool) {
	for s.sc.Scan() {
		if validTextLine(s.sc.Text()) {
			return s.sc.Text(), true
		}
	}
	if err := s.sc.Err(); err != nil {
		s.err = fmt.Errorf("reading %q: %w", s.path, err)
	}
	return "", false
}

func (s *CSVSource) Point() Point           { return s.cur }
func (s *CSVSource) CountEstimate() uint64  { return s.count }
func (s *CSVSource) Kind() CoordKind        { return s.kind }
func (s *CSVSource) Channels() ChannelMask  { return 0 }
func (s *CSVSource) Err() error             { return s.err }
func (s *CSVSource) Close() error           { return s.f.Close() }

// EmbeddedRef: text sources never embed a georeference; the descriptor's
// UTM prefix, when present, is applied by the caller before opening.
func (s *CSVSource) EmbeddedRef() (*geodesy.GeoRef, bool) { return nil, false }
