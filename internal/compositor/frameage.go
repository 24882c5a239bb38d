package compositor

import (
	"errors"

	"github.com/1broseidon/tilecomp/internal/region"
)

// DefaultFrameHistory is the number of frames a roster retains.
const DefaultFrameHistory = 10

// AreaShouldBeMarkedDirty decides whether a damaged area is tracked by a roster.
type AreaShouldBeMarkedDirty func(r region.Region) bool

// AgeingDamageBufferObserver is a per-surface damage history fed by the
// AgeingDamageBuffers registry.
type AgeingDamageBufferObserver interface {
	IncrementFrameAges()
	DirtyAreaOnCurrentFrame(r region.Region)
	SubtractObscuredArea(r region.Region)
	OverdrawRegionOnPaintingFrame(r region.Region) error
}

// FrameRoster keeps the damage of the most recent frames of one surface.
// The last frame is the one currently being built.
type FrameRoster struct {
	screen      region.Rect
	capacity    int
	shouldTrack AreaShouldBeMarkedDirty
	frames      []region.Region
}

// NewFrameRoster returns a roster holding a single empty frame. A nil
// predicate tracks every area.
func NewFrameRoster(screen region.Rect, capacity int, shouldTrack AreaShouldBeMarkedDirty) *FrameRoster {
	if capacity <= 0 {
		capacity = DefaultFrameHistory
	}
	return &FrameRoster{
		screen:      screen,
		capacity:    capacity,
		shouldTrack: shouldTrack,
		frames:      make([]region.Region, 1, capacity),
	}
}

// SetScreen changes the rectangle returned when history is insufficient.
func (f *FrameRoster) SetScreen(r region.Rect) { f.screen = r }

// Len returns the number of retained frames, the current one included.
func (f *FrameRoster) Len() int { return len(f.frames) }

// IncrementFrameAges opens a new empty current frame, evicting the oldest
// when the roster is full.
func (f *FrameRoster) IncrementFrameAges() {
	if len(f.frames) >= f.capacity {
		copy(f.frames, f.frames[1:])
		f.frames = f.frames[:len(f.frames)-1]
	}
	f.frames = append(f.frames, region.Region{})
}

// DirtyAreaOnCurrentFrame adds r to the current frame if the predicate accepts it.
func (f *FrameRoster) DirtyAreaOnCurrentFrame(r region.Region) {
	if f.shouldTrack != nil && !f.shouldTrack(r) {
		return
	}
	last := len(f.frames) - 1
	f.frames[last] = f.frames[last].Union(r)
}

// SubtractObscuredArea removes r from the current frame.
func (f *FrameRoster) SubtractObscuredArea(r region.Region) {
	last := len(f.frames) - 1
	f.frames[last] = f.frames[last].Subtract(r)
}

// OverdrawRegionOnPaintingFrame adds r to the frame before the current one.
func (f *FrameRoster) OverdrawRegionOnPaintingFrame(r region.Region) error {
	if len(f.frames) < 2 {
		return ErrFrameHistoryTooShort
	}
	prev := len(f.frames) - 2
	f.frames[prev] = f.frames[prev].Union(r)
	return nil
}

// DamageForFrameAge returns the area to redraw in a buffer that is age
// frames old: the union of the last age frames, or the whole screen when
// age is zero or reaches past the retained history.
func (f *FrameRoster) DamageForFrameAge(age int) region.Region {
	if age <= 0 || age >= len(f.frames) {
		return region.FromRect(f.screen)
	}
	var acc region.Region
	for i := len(f.frames) - age; i < len(f.frames); i++ {
		acc = acc.Union(f.frames[i])
	}
	return acc
}

// CurrentFrameDamage returns the damage of the frame being built.
func (f *FrameRoster) CurrentFrameDamage() region.Region {
	return f.frames[len(f.frames)-1]
}

// AgeingDamageBuffers fans damage out to every registered roster. It never
// owns a roster; owners unobserve before discarding one.
type AgeingDamageBuffers struct {
	trackers handlerList[AgeingDamageBufferObserver]
}

// Observe registers t. Registering the same tracker twice has no effect.
func (b *AgeingDamageBuffers) Observe(t AgeingDamageBufferObserver) { b.trackers.add(t) }

// Unobserve forgets t. It is safe to call from inside a forwarded call.
func (b *AgeingDamageBuffers) Unobserve(t AgeingDamageBufferObserver) { b.trackers.remove(t) }

// Len returns the number of registered trackers.
func (b *AgeingDamageBuffers) Len() int { return b.trackers.len() }

// IncrementAges opens a new frame on every tracker.
func (b *AgeingDamageBuffers) IncrementAges() {
	b.trackers.each(func(t AgeingDamageBufferObserver) {
		t.IncrementFrameAges()
	})
}

// MarkAreaDirty adds r to the current frame of every tracker.
func (b *AgeingDamageBuffers) MarkAreaDirty(r region.Region) {
	b.trackers.each(func(t AgeingDamageBufferObserver) {
		t.DirtyAreaOnCurrentFrame(r)
	})
}

// SubtractObscuredArea removes r from the current frame of every tracker.
func (b *AgeingDamageBuffers) SubtractObscuredArea(r region.Region) {
	b.trackers.each(func(t AgeingDamageBufferObserver) {
		t.SubtractObscuredArea(r)
	})
}

// MarkAreaDirtyOnLastFrame adds r to the painting frame of every tracker.
// Trackers with a too short history are reported in the joined error.
func (b *AgeingDamageBuffers) MarkAreaDirtyOnLastFrame(r region.Region) error {
	var errs []error
	b.trackers.each(func(t AgeingDamageBufferObserver) {
		if err := t.OverdrawRegionOnPaintingFrame(r); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// ObserveDamage lets the registry follow an Accumulator.
func (b *AgeingDamageBuffers) ObserveDamage(r region.Region) { b.MarkAreaDirty(r) }
