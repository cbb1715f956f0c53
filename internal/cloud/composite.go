package cloud

import (
	"fmt"
	"math"
	"sync"

	"github.com/ridgeline-data/demgrid/internal/geodesy"
)

// Normalizer converts one point from its source's coordinate convention to
// the shared working convention (projected plane + height). Supplied by the
// run driver, which owns the georeference and longitude recentering policy.
type Normalizer func(p Point, kind CoordKind) Point

// Composite lazily concatenates several point sources into one logical
// 2-D-indexed array, consumed batch by batch. The virtual extent is fixed
// up front from the count estimates and the tile length; batches are
// produced by pumping the underlying readers, which are strictly
// sequential, so only one batch call may be in flight at a time.
type Composite struct {
	sources []Source
	norm    Normalizer

	rows, cols int
	tileLen    int

	channels ChannelMask
	degraded bool

	mu  sync.Mutex
	idx int // current source
}

// NewComposite sizes the virtual array: rows come from the largest source
// estimate (or the supplied row hint), rounded up to whole tiles; columns
// fit ceil(total/rows) points per row, again in whole tiles.
func NewComposite(sources []Source, norm Normalizer, rowHint, tileLen int) (*Composite, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no point sources")
	}
	if tileLen <= 0 {
		return nil, fmt.Errorf("tile length must be positive, got %d", tileLen)
	}

	var total, maxCount uint64
	for _, s := range sources {
		n := s.CountEstimate()
		total += n
		if n > maxCount {
			maxCount = n
		}
	}

	rows := rowHint
	if rows <= 0 {
		rows = int(math.Ceil(math.Sqrt(float64(maxCount))))
		if rows < 1 {
			rows = 1
		}
	}
	rowTiles := int(math.Ceil(float64(rows) / float64(tileLen)))
	if rowTiles < 1 {
		rowTiles = 1
	}
	rows = rowTiles * tileLen

	perRow := int(math.Ceil(float64(total) / float64(rows)))
	colTiles := int(math.Ceil(float64(perRow) / float64(tileLen)))
	if colTiles < 1 {
		colTiles = 1
	}
	cols := colTiles * tileLen

	c := &Composite{
		sources: sources,
		norm:    norm,
		rows:    rows,
		cols:    cols,
		tileLen: tileLen,
	}
	c.channels, c.degraded = mergeChannels(sources)
	return c, nil
}

// mergeChannels intersects the channel masks of all sources. The degraded
// flag reports that at least one source carried an error channel that the
// intersection lost, which disables error-map output and outlier removal
// for the run.
func mergeChannels(sources []Source) (ChannelMask, bool) {
	merged := sources[0].Channels()
	anyErr := merged.HasError()
	for _, s := range sources[1:] {
		merged &= s.Channels()
		anyErr = anyErr || s.Channels().HasError()
	}
	return merged, anyErr && !merged.HasError()
}

// Rows and Cols give the fixed virtual extent in points.
func (c *Composite) Rows() int { return c.rows }
func (c *Composite) Cols() int { return c.cols }

// TileLen is the edge length of one virtual tile in points.
func (c *Composite) TileLen() int { return c.tileLen }

// Channels is the channel set shared by every source.
func (c *Composite) Channels() ChannelMask { return c.channels }

// ChannelsDegraded reports that error channels were present on some but
// not all sources.
func (c *Composite) ChannelsDegraded() bool { return c.degraded }

// EmbeddedRef returns the first embedded georeference across the sources.
func (c *Composite) EmbeddedRef() (*geodesy.GeoRef, bool) {
	for _, s := range c.sources {
		if ref, ok := s.EmbeddedRef(); ok {
			return ref, true
		}
	}
	return nil, false
}

// NextBatch reads up to max normalised points, crossing source boundaries
// as needed. An empty batch means all sources are exhausted. Concurrent
// calls serialise on an internal lock to honour the sequential reader
// contract.
func (c *Composite) NextBatch(max int) ([]Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := make([]Point, 0, max)
	for len(batch) < max && c.idx < len(c.sources) {
		src := c.sources[c.idx]
		if !src.Next() {
			if err := src.Err(); err != nil {
				return nil, err
			}
			c.idx++
			continue
		}
		batch = append(batch, c.norm(src.Point(), src.Kind()))
	}
	return batch, nil
}

// Close closes all sources, returning the first error.
func (c *Composite) Close() error {
	var first error
	for _, s := range c.sources {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
