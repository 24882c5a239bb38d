// Package paint holds the paint handlers driven by the compositing core.
package paint

import (
	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
)

// DefaultBackBuffers is the number of alternating back buffers.
const DefaultBackBuffers = 2

// bufferRing tracks which back buffer is drawn next and how stale each one is.
type bufferRing struct {
	frame   int
	painted []int
	next    int
}

func newBufferRing(n int) *bufferRing {
	if n <= 0 {
		n = DefaultBackBuffers
	}
	r := &bufferRing{painted: make([]int, n)}
	r.invalidate()
	return r
}

// age returns how many frames behind the next buffer is, 0 if its contents
// are undefined.
func (r *bufferRing) age() int {
	p := r.painted[r.next]
	if p < 0 {
		return 0
	}
	return r.frame - p
}

// present records that the next buffer now holds the current frame.
func (r *bufferRing) present() {
	r.painted[r.next] = r.frame
	r.frame++
	r.next = (r.next + 1) % len(r.painted)
}

// invalidate forgets the contents of every buffer.
func (r *bufferRing) invalidate() {
	for i := range r.painted {
		r.painted[i] = -1
	}
}

// repaintArea returns what must be drawn into a buffer of the given age.
func repaintArea(age int, roster *compositor.FrameRoster, mask compositor.DamageMask, damage region.Region, screen region.Rect) region.Region {
	if mask&compositor.MaskAll != 0 {
		return region.FromRect(screen)
	}
	if roster == nil {
		return damage
	}
	return roster.DamageForFrameAge(age).Union(damage).IntersectRect(screen)
}
