package compositor

import (
	"fmt"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

type manualClock struct {
	t time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeTimer struct {
	armed   bool
	delay   time.Duration
	resets  int
	stopped int
}

func (t *fakeTimer) Reset(d time.Duration) {
	t.armed = true
	t.delay = d
	t.resets++
}

func (t *fakeTimer) Stop() {
	t.armed = false
	t.stopped++
}

type paintCall struct {
	outputs []Output
	mask    DamageMask
	damage  region.Region
}

type recordingPainter struct {
	vsync    bool
	prepared int
	calls    []paintCall
	// during runs inside PaintOutputs.
	during func()
}

func (p *recordingPainter) PrepareDrawing() { p.prepared++ }

func (p *recordingPainter) PaintOutputs(outputs []Output, mask DamageMask, damage region.Region) {
	p.calls = append(p.calls, paintCall{outputs: outputs, mask: mask, damage: damage})
	if p.during != nil {
		p.during()
	}
}

func (p *recordingPainter) HasVSync() bool { return p.vsync }

func (p *recordingPainter) last() paintCall {
	return p.calls[len(p.calls)-1]
}

type fakeOutputs struct {
	screen  region.Rect
	outputs []Output
	hz      float64
}

func (o *fakeOutputs) ScreenRect() region.Rect { return o.screen }
func (o *fakeOutputs) Outputs() []Output       { return o.outputs }
func (o *fakeOutputs) RefreshRate() float64    { return o.hz }

type fakeSource struct {
	windows map[WindowID]WindowInfo
}

func newFakeSource() *fakeSource {
	return &fakeSource{windows: make(map[WindowID]WindowInfo)}
}

func (s *fakeSource) WindowInfo(id WindowID) (WindowInfo, error) {
	info, ok := s.windows[id]
	if !ok {
		return WindowInfo{}, fmt.Errorf("no such window %d", id)
	}
	return info, nil
}

type fakeBinder struct {
	viewable   map[WindowID]bool
	redirected map[WindowID]bool
	next       BufferHandle
	binds      int
	released   []BufferHandle
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{
		viewable:   make(map[WindowID]bool),
		redirected: make(map[WindowID]bool),
		next:       100,
	}
}

func (b *fakeBinder) Redirect(id WindowID) error {
	b.redirected[id] = true
	return nil
}

func (b *fakeBinder) Unredirect(id WindowID) error {
	delete(b.redirected, id)
	return nil
}

func (b *fakeBinder) Bind(id WindowID) (BufferHandle, error) {
	b.binds++
	if !b.viewable[id] {
		return 0, ErrNotViewable
	}
	b.next++
	return b.next, nil
}

func (b *fakeBinder) Release(id WindowID, h BufferHandle) {
	b.released = append(b.released, h)
}

type fakeShaper struct {
	shapes []region.Region
}

func (s *fakeShaper) UpdateOutputShape(r region.Region) error {
	s.shapes = append(s.shapes, r)
	return nil
}

type fakeActivator struct {
	err         error
	replaceSeen bool
	active      bool
}

func (a *fakeActivator) Activate(replace bool) error {
	a.replaceSeen = replace
	if a.err != nil && !replace {
		return a.err
	}
	a.active = true
	return nil
}

func (a *fakeActivator) Deactivate() { a.active = false }

type recordingObserver struct {
	seen []region.Region
}

func (o *recordingObserver) ObserveDamage(r region.Region) { o.seen = append(o.seen, r) }

type recordingParticipant struct {
	name    string
	log     *[]string
	elapsed []time.Duration
}

func (p *recordingParticipant) PreparePaint(elapsed time.Duration) {
	p.elapsed = append(p.elapsed, elapsed)
	*p.log = append(*p.log, p.name+".prepare")
}

func (p *recordingParticipant) DonePaint() {
	*p.log = append(*p.log, p.name+".done")
}
