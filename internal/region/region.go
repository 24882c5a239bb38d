// Package region implements pixel-set algebra over axis-aligned rectangles.
//
// A Region is stored in y-x banded form: rectangles are grouped into
// horizontal bands of equal top and height, bands are ordered top to bottom,
// rectangles inside a band are ordered left to right and never touch, and
// vertically adjacent bands with identical spans are merged. The form is
// canonical, so two regions covering the same pixels compare equal
// structurally.
package region

import (
	"sort"
	"strings"
)

// Region is an immutable set of pixels. The zero value is the empty region.
type Region struct {
	rects []Rect
}

// New returns the union of the given rectangles. Empty rectangles are ignored.
func New(rects ...Rect) Region {
	in := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if !r.Empty() {
			in = append(in, r)
		}
	}
	switch len(in) {
	case 0:
		return Region{}
	case 1:
		return Region{rects: in}
	}
	return combine(in, nil, opUnion)
}

// FromRect returns the region covering r.
func FromRect(r Rect) Region {
	if r.Empty() {
		return Region{}
	}
	return Region{rects: []Rect{r}}
}

// IsEmpty reports whether the region covers no pixels.
func (g Region) IsEmpty() bool { return len(g.rects) == 0 }

// NumRects returns the number of rectangles in the normalized form.
func (g Region) NumRects() int { return len(g.rects) }

// Rects returns a copy of the normalized rectangles.
func (g Region) Rects() []Rect {
	out := make([]Rect, len(g.rects))
	copy(out, g.rects)
	return out
}

// Bounds returns the smallest rectangle containing the region.
func (g Region) Bounds() Rect {
	if len(g.rects) == 0 {
		return Rect{}
	}
	x1, y1 := g.rects[0].X, g.rects[0].Y
	x2, y2 := g.rects[0].Right(), g.rects[0].Bottom()
	for _, r := range g.rects[1:] {
		x1 = min(x1, r.X)
		y1 = min(y1, r.Y)
		x2 = max(x2, r.Right())
		y2 = max(y2, r.Bottom())
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Area returns the number of pixels covered.
func (g Region) Area() int {
	total := 0
	for _, r := range g.rects {
		total += r.Width * r.Height
	}
	return total
}

// Equal reports whether both regions cover exactly the same pixels.
func (g Region) Equal(o Region) bool {
	if len(g.rects) != len(o.rects) {
		return false
	}
	for i := range g.rects {
		if g.rects[i] != o.rects[i] {
			return false
		}
	}
	return true
}

// Union returns g ∪ o.
func (g Region) Union(o Region) Region {
	if o.IsEmpty() {
		return g
	}
	if g.IsEmpty() {
		return o
	}
	return combine(g.rects, o.rects, opUnion)
}

// UnionRect returns g ∪ r.
func (g Region) UnionRect(r Rect) Region {
	return g.Union(FromRect(r))
}

// Subtract returns g − o.
func (g Region) Subtract(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() {
		return g
	}
	return combine(g.rects, o.rects, opSubtract)
}

// SubtractRect returns g − r.
func (g Region) SubtractRect(r Rect) Region {
	return g.Subtract(FromRect(r))
}

// Intersect returns g ∩ o.
func (g Region) Intersect(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() {
		return Region{}
	}
	return combine(g.rects, o.rects, opIntersect)
}

// IntersectRect returns g ∩ r.
func (g Region) IntersectRect(r Rect) Region {
	return g.Intersect(FromRect(r))
}

// Translate returns the region moved by (dx, dy).
func (g Region) Translate(dx, dy int) Region {
	if g.IsEmpty() || (dx == 0 && dy == 0) {
		return g
	}
	out := make([]Rect, len(g.rects))
	for i, r := range g.rects {
		out[i] = r.Translate(dx, dy)
	}
	return Region{rects: out}
}

// Contains reports whether every pixel of r is in g.
func (g Region) Contains(r Rect) bool {
	return FromRect(r).Subtract(g).IsEmpty()
}

// Overlaps reports whether g and r share at least one pixel.
func (g Region) Overlaps(r Rect) bool {
	for _, gr := range g.rects {
		if gr.Overlaps(r) {
			return true
		}
	}
	return false
}

func (g Region) String() string {
	if g.IsEmpty() {
		return "Region{}"
	}
	parts := make([]string, len(g.rects))
	for i, r := range g.rects {
		parts[i] = r.String()
	}
	return "Region{" + strings.Join(parts, " ") + "}"
}

type op int

const (
	opUnion op = iota
	opSubtract
	opIntersect
)

func (o op) keep(inA, inB bool) bool {
	switch o {
	case opUnion:
		return inA || inB
	case opSubtract:
		return inA && !inB
	default:
		return inA && inB
	}
}

type span struct {
	x1, x2 int
}

// combine applies o slab by slab. Every rectangle edge is a slab boundary,
// so a rectangle touching a slab covers it completely.
func combine(a, b []Rect, o op) Region {
	ys := make([]int, 0, 2*(len(a)+len(b)))
	for _, r := range a {
		ys = append(ys, r.Y, r.Bottom())
	}
	for _, r := range b {
		ys = append(ys, r.Y, r.Bottom())
	}
	ys = sortUnique(ys)

	var (
		out        []Rect
		prev       []span
		prevBottom int
		prevStart  int
	)
	for i := 0; i+1 < len(ys); i++ {
		y0, y1 := ys[i], ys[i+1]
		spans := combineSpans(spansAt(a, y0, y1), spansAt(b, y0, y1), o)
		if len(spans) == 0 {
			prev = nil
			continue
		}
		if prev != nil && prevBottom == y0 && equalSpans(prev, spans) {
			for j := prevStart; j < len(out); j++ {
				out[j].Height = y1 - out[j].Y
			}
			prevBottom = y1
			continue
		}
		prevStart = len(out)
		for _, s := range spans {
			out = append(out, Rect{X: s.x1, Y: y0, Width: s.x2 - s.x1, Height: y1 - y0})
		}
		prev = spans
		prevBottom = y1
	}
	return Region{rects: out}
}

// spansAt returns the sorted, merged horizontal spans of rects covering [y0, y1).
func spansAt(rects []Rect, y0, y1 int) []span {
	var spans []span
	for _, r := range rects {
		if r.Y <= y0 && r.Bottom() >= y1 {
			spans = append(spans, span{r.X, r.Right()})
		}
	}
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].x1 < spans[j].x1 })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.x1 <= last.x2 {
			last.x2 = max(last.x2, s.x2)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func combineSpans(a, b []span, o op) []span {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	xs := make([]int, 0, 2*(len(a)+len(b)))
	for _, s := range a {
		xs = append(xs, s.x1, s.x2)
	}
	for _, s := range b {
		xs = append(xs, s.x1, s.x2)
	}
	xs = sortUnique(xs)

	var out []span
	ia, ib := 0, 0
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		for ia < len(a) && a[ia].x2 <= x0 {
			ia++
		}
		for ib < len(b) && b[ib].x2 <= x0 {
			ib++
		}
		inA := ia < len(a) && a[ia].x1 <= x0
		inB := ib < len(b) && b[ib].x1 <= x0
		if !o.keep(inA, inB) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].x2 == x0 {
			out[n-1].x2 = x1
			continue
		}
		out = append(out, span{x0, x1})
	}
	return out
}

func equalSpans(a, b []span) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortUnique(v []int) []int {
	sort.Ints(v)
	out := v[:0]
	for _, x := range v {
		if len(out) == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
