package compositor

import "github.com/1broseidon/tilecomp/internal/region"

// DefaultRectLimit is the rectangle count above which precise damage
// tracking is abandoned for full-screen damage.
const DefaultRectLimit = 100

// Accumulator owns the screen-wide damage region and its state mask.
type Accumulator struct {
	screen    region.Rect
	mask      DamageMask
	damage    region.Region
	rectLimit int

	observers handlerList[DamageObserver]
	onDamage  func()
}

// NewAccumulator creates an accumulator for a screen of the given size.
func NewAccumulator(screen region.Rect, rectLimit int) *Accumulator {
	if rectLimit <= 0 {
		rectLimit = DefaultRectLimit
	}
	return &Accumulator{screen: screen, rectLimit: rectLimit}
}

// SetScreen updates the screen rectangle used for full damage and clipping.
func (a *Accumulator) SetScreen(r region.Rect) { a.screen = r }

// Screen returns the current screen rectangle.
func (a *Accumulator) Screen() region.Rect { return a.screen }

// SetRectLimit changes the escalation threshold.
func (a *Accumulator) SetRectLimit(n int) {
	if n > 0 {
		a.rectLimit = n
	}
}

// OnDamage installs the hook called after every damage report.
func (a *Accumulator) OnDamage(fn func()) { a.onDamage = fn }

// Observe registers o after all existing observers.
func (a *Accumulator) Observe(o DamageObserver) { a.observers.add(o) }

// Unobserve removes o by identity.
func (a *Accumulator) Unobserve(o DamageObserver) { a.observers.remove(o) }

// Mask returns the live damage mask.
func (a *Accumulator) Mask() DamageMask { return a.mask }

// Region returns the live accumulated region.
func (a *Accumulator) Region() region.Region { return a.damage }

// AllDamaged reports whether full-screen damage is pending.
func (a *Accumulator) AllDamaged() bool { return a.mask&MaskAll != 0 }

// DamageScreen marks the whole screen stale and drops the precise region.
func (a *Accumulator) DamageScreen() {
	already := a.mask&MaskAll != 0
	a.mask |= MaskAll
	a.mask &^= MaskRegion
	a.damage = region.Region{}
	if !already {
		a.notify(region.FromRect(a.screen))
	}
	a.requestRepaint()
}

// DamageRect is DamageRegion for a single rectangle.
func (a *Accumulator) DamageRect(r region.Rect) {
	a.DamageRegion(region.FromRect(r))
}

// DamageRegion adds r to the accumulated damage. It is a no-op while
// full-screen damage is pending, and escalates to DamageScreen once the
// region holds more than the rectangle limit.
func (a *Accumulator) DamageRegion(r region.Region) {
	if r.IsEmpty() {
		return
	}
	a.notify(r)
	if a.mask&MaskAll != 0 {
		return
	}
	a.damage = a.damage.Union(r)
	a.mask |= MaskRegion
	if a.damage.NumRects() > a.rectLimit {
		a.DamageScreen()
		return
	}
	a.requestRepaint()
}

// DamagePending records that a repaint is owed without naming an area.
func (a *Accumulator) DamagePending() {
	a.mask |= MaskPending
	a.requestRepaint()
}

// Consume returns the damage for the paint cycle and clears the live state.
// The uncomposited area is removed from the result, the result is clipped to
// the screen, and region damage covering the whole screen is promoted to
// full damage.
func (a *Accumulator) Consume(uncomposited region.Region) (DamageMask, region.Region) {
	screen := region.FromRect(a.screen)
	mask, damage := a.mask, a.damage
	a.mask = 0
	a.damage = region.Region{}

	uncomposited = uncomposited.Intersect(screen)
	if !uncomposited.IsEmpty() {
		if mask&MaskAll != 0 {
			mask = mask&^MaskAll | MaskRegion
			damage = screen
		}
		damage = damage.Subtract(uncomposited)
	}

	if mask&MaskAll != 0 {
		return mask, screen
	}
	damage = damage.Intersect(screen)
	if mask&MaskRegion != 0 && damage.Equal(screen) {
		mask = mask&^MaskRegion | MaskAll
	}
	return mask, damage
}

func (a *Accumulator) notify(r region.Region) {
	a.observers.each(func(o DamageObserver) {
		o.ObserveDamage(r)
	})
}

func (a *Accumulator) requestRepaint() {
	if a.onDamage != nil {
		a.onDamage()
	}
}
