// Package chipper regroups an unordered point stream into spatially
// coherent rectangular bins so that later per-cell lookups touch only a
// handful of point sub-lists instead of the whole cloud.
package chipper

import (
	"fmt"
	"sort"

	"github.com/ridgeline-data/demgrid/internal/cloud"
)

// Rect is an axis-aligned rectangle in projected 2-D space. Core
// rectangles are half-open ([MinX,MaxX) x [MinY,MaxY)) so that sibling
// bins sharing a split plane never overlap.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Expand grows the rectangle by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{r.MinX - d, r.MinY - d, r.MaxX + d, r.MaxY + d}
}

// Intersects reports whether the half-open extents of two rectangles
// overlap. Rectangles that only touch along an edge do not intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX &&
		r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Bin is one leaf of the recursive split: a core rectangle plus the
// points whose plane location falls inside it. Bins are built once and
// read-only afterwards; the point slices alias the caller's arena.
type Bin struct {
	Core   Rect
	Points []cloud.Point
}

// BinSet is the immutable result of chipping one cloud. The bin slice is
// flat; queries hand out indices into it rather than copies, so tile
// workers share it without ownership transfer.
type BinSet struct {
	Bins   []Bin
	Bounds Rect
}

// Build partitions pts into bins of at most capacity points each by
// recursive median splitting: at every level the axis with the larger
// coordinate spread is split at the median coordinate (ties prefer X).
// A positive minSide stops splitting once a rectangle side would drop
// below it. pts is reordered in place and aliased by the result.
func Build(pts []cloud.Point, capacity int, minSide float64) (*BinSet, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("bin capacity must be positive, got %d", capacity)
	}
	if len(pts) == 0 {
		return &BinSet{}, nil
	}

	bounds := Rect{pts[0].X, pts[0].Y, pts[0].X, pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < bounds.MinX {
			bounds.MinX = p.X
		}
		if p.X > bounds.MaxX {
			bounds.MaxX = p.X
		}
		if p.Y < bounds.MinY {
			bounds.MinY = p.Y
		}
		if p.Y > bounds.MaxY {
			bounds.MaxY = p.Y
		}
	}

	s := &BinSet{Bounds: bounds}
	s.split(pts, bounds, capacity, minSide)
	return s, nil
}

func (s *BinSet) split(pts []cloud.Point, rect Rect, capacity int, minSide float64) {
	if len(pts) <= capacity {
		s.Bins = append(s.Bins, Bin{Core: rect, Points: pts})
		return
	}

	spreadX, spreadY := pointSpread(pts)
	alongY := spreadY > spreadX
	if spreadX == 0 && spreadY == 0 {
		// All points identical: recursion cannot shrink the partition.
		s.Bins = append(s.Bins, Bin{Core: rect, Points: pts})
		return
	}
	if minSide > 0 {
		side := rect.Width()
		if alongY {
			side = rect.Height()
		}
		if side < 2*minSide {
			s.Bins = append(s.Bins, Bin{Core: rect, Points: pts})
			return
		}
	}

	coord := func(p cloud.Point) float64 { return p.X }
	if alongY {
		coord = func(p cloud.Point) float64 { return p.Y }
	}
	sort.Slice(pts, func(i, j int) bool { return coord(pts[i]) < coord(pts[j]) })

	// Split at the median value, keeping coord < split on the left and
	// coord >= split on the right. When the median equals the minimum the
	// cut moves up to the next distinct value so both halves stay
	// non-empty (the nonzero spread guarantees one exists).
	splitVal := coord(pts[len(pts)/2])
	cut := sort.Search(len(pts), func(i int) bool { return coord(pts[i]) >= splitVal })
	if cut == 0 {
		cut = sort.Search(len(pts), func(i int) bool { return coord(pts[i]) > splitVal })
		splitVal = coord(pts[cut])
	}

	left, right := rect, rect
	if alongY {
		left.MaxY, right.MinY = splitVal, splitVal
	} else {
		left.MaxX, right.MinX = splitVal, splitVal
	}
	s.split(pts[:cut], left, capacity, minSide)
	s.split(pts[cut:], right, capacity, minSide)
}

func pointSpread(pts []cloud.Point) (sx, sy float64) {
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return maxX - minX, maxY - minY
}

// Query appends to dst the indices of all bins whose core rectangle
// intersects rect (callers expand rect by the search radius first) and
// returns the extended slice. Safe for concurrent use.
func (s *BinSet) Query(rect Rect, dst []int) []int {
	for i := range s.Bins {
		if s.Bins[i].Core.Intersects(rect) {
			dst = append(dst, i)
		}
	}
	return dst
}

// TotalPoints is the number of points across all bins.
func (s *BinSet) TotalPoints() int {
	n := 0
	for i := range s.Bins {
		n += len(s.Bins[i].Points)
	}
	return n
}
