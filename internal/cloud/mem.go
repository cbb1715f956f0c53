package cloud

import "github.com/ridgeline-data/demgrid/internal/geodesy"

// MemSource serves an in-memory point slice through the Source interface.
// Used by tests and by callers that synthesise clouds (for example the
// stereo pipeline handing over triangulated points with error vectors).
type MemSource struct {
	Pts      []Point
	PtKind   CoordKind
	Mask     ChannelMask
	Embedded *geodesy.GeoRef

	pos int
}

func (m *MemSource) Next() bool {
	if m.pos >= len(m.Pts) {
		return false
	}
	m.pos++
	return true
}

func (m *MemSource) Point() Point          { return m.Pts[m.pos-1] }
func (m *MemSource) CountEstimate() uint64 { return uint64(len(m.Pts)) }
func (m *MemSource) Kind() CoordKind       { return m.PtKind }
func (m *MemSource) Channels() ChannelMask { return m.Mask }
func (m *MemSource) Err() error            { return nil }
func (m *MemSource) Close() error          { return nil }

func (m *MemSource) EmbeddedRef() (*geodesy.GeoRef, bool) {
	return m.Embedded, m.Embedded != nil
}
