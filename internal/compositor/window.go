package compositor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

// DefaultFrameSyncTimeout bounds how long damage of a window waiting for a
// frame-sync signal is held back.
const DefaultFrameSyncTimeout = 100 * time.Millisecond

// WindowState is the compositing state of one window.
type WindowState struct {
	ID   WindowID
	Info WindowInfo

	Redirected     bool
	BufferBound    bool
	Buffer         BufferHandle
	Damaged        bool
	Overlay        bool
	BindFailedOnce bool
	Mapped         bool

	// AutoUnredirected is set when the window was unredirected because it
	// covers the whole screen.
	AutoUnredirected bool

	refs           int
	pendingRelease bool

	syncWaiting bool
	syncStarted time.Time
	syncDamage  []region.Rect
}

// Extents returns the on-screen rectangle of the window including its
// border and the larger of its input and output extents.
func (w *WindowState) Extents() region.Rect {
	return w.relativeExtents().Translate(w.origin())
}

// SyncWaiting reports whether damage is being held for a frame-sync signal.
func (w *WindowState) SyncWaiting() bool { return w.syncWaiting }

// References returns the number of outstanding buffer references.
func (w *WindowState) References() int { return w.refs }

func (w *WindowState) origin() (int, int) {
	return w.Info.Geometry.X + w.Info.Border, w.Info.Geometry.Y + w.Info.Border
}

// relativeExtents is relative to the content origin.
func (w *WindowState) relativeExtents() region.Rect {
	in, out := w.Info.InputExtents, w.Info.OutputExtents
	left := max(in.Left, out.Left)
	right := max(in.Right, out.Right)
	top := max(in.Top, out.Top)
	bottom := max(in.Bottom, out.Bottom)
	b := w.Info.Border
	g := w.Info.Geometry
	return region.Rect{
		X:      -b - left,
		Y:      -b - top,
		Width:  g.Width + 2*b + left + right,
		Height: g.Height + 2*b + top + bottom,
	}
}

// Windows manages the off-screen buffers of all tracked windows.
type Windows struct {
	arena map[WindowID]*WindowState
	stack []WindowID

	damage *Accumulator
	source WindowSource
	binder BufferBinder
	shaper OutputShaper
	log    *slog.Logger
	now    func() time.Time

	active       bool
	overlays     int
	syncTimeout  time.Duration
	lastOverlays region.Region
}

// WindowsConfig collects the collaborators of a Windows manager.
type WindowsConfig struct {
	Damage           *Accumulator
	Source           WindowSource
	Binder           BufferBinder
	Shaper           OutputShaper
	Logger           *slog.Logger
	Now              func() time.Time
	FrameSyncTimeout time.Duration
}

// NewWindows creates an empty manager. Windows are redirected once
// RedirectAll has been called.
func NewWindows(cfg WindowsConfig) *Windows {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.FrameSyncTimeout
	if timeout <= 0 {
		timeout = DefaultFrameSyncTimeout
	}
	return &Windows{
		arena:       make(map[WindowID]*WindowState),
		damage:      cfg.Damage,
		source:      cfg.Source,
		binder:      cfg.Binder,
		shaper:      cfg.Shaper,
		log:         logger,
		now:         now,
		syncTimeout: timeout,
	}
}

// Get returns the state of id.
func (m *Windows) Get(id WindowID) (*WindowState, bool) {
	w, ok := m.arena[id]
	return w, ok
}

// Len returns the number of tracked windows.
func (m *Windows) Len() int { return len(m.arena) }

// OverlayCount returns the number of unredirected windows.
func (m *Windows) OverlayCount() int { return m.overlays }

// Stack returns the tracked windows bottom to top.
func (m *Windows) Stack() []*WindowState {
	out := make([]*WindowState, 0, len(m.stack))
	for _, id := range m.stack {
		out = append(out, m.arena[id])
	}
	return out
}

func (m *Windows) lookup(id WindowID) (*WindowState, error) {
	w, ok := m.arena[id]
	if !ok {
		return nil, fmt.Errorf("window %#x: %w", uint32(id), ErrUnknownWindow)
	}
	return w, nil
}

// Add starts tracking id. InputOnly windows are rejected with ErrNotEligible.
func (m *Windows) Add(id WindowID) (*WindowState, error) {
	if w, ok := m.arena[id]; ok {
		return w, nil
	}
	info, err := m.source.WindowInfo(id)
	if err != nil {
		return nil, fmt.Errorf("window %#x: %w", uint32(id), err)
	}
	if info.InputOnly {
		return nil, fmt.Errorf("window %#x: %w", uint32(id), ErrNotEligible)
	}
	w := &WindowState{ID: id, Info: info, Mapped: info.Viewable}
	m.arena[id] = w
	m.stack = append(m.stack, id)
	if m.active {
		if err := m.redirect(w); err != nil {
			m.log.Warn("redirect failed", "window", fmt.Sprintf("%#x", uint32(id)), "error", err)
		}
	}
	if w.Mapped {
		m.addDamage(w, true)
	}
	return w, nil
}

// Remove stops tracking id. The vacated area is damaged and the buffer is
// released regardless of outstanding references.
func (m *Windows) Remove(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.addDamage(w, true)
	w.refs = 0
	m.release(w)
	delete(m.arena, id)
	for i, sid := range m.stack {
		if sid == id {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			break
		}
	}
	if w.Overlay {
		m.overlays--
		m.updateShape()
	}
	return nil
}

// RedirectAll redirects every tracked window and every window added later.
func (m *Windows) RedirectAll() error {
	m.active = true
	var errs []error
	for _, id := range m.stack {
		w := m.arena[id]
		if w.Overlay {
			continue
		}
		if err := m.redirect(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnredirectAll releases every buffer and hands all windows back to the display.
func (m *Windows) UnredirectAll() {
	m.active = false
	for _, id := range m.stack {
		w := m.arena[id]
		w.refs = 0
		m.release(w)
		if w.Redirected && m.binder != nil {
			if err := m.binder.Unredirect(id); err != nil {
				m.log.Debug("unredirect failed", "window", fmt.Sprintf("%#x", uint32(id)), "error", err)
			}
		}
		w.Redirected = false
		w.Overlay = false
		w.AutoUnredirected = false
	}
	m.overlays = 0
}

// Redirect composites id again. An overlay window stops being one.
func (m *Windows) Redirect(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	w.AutoUnredirected = false
	return m.redirect(w)
}

func (m *Windows) redirect(w *WindowState) error {
	if w.Redirected {
		return nil
	}
	if m.binder != nil {
		if err := m.binder.Redirect(w.ID); err != nil {
			return fmt.Errorf("redirect %#x: %w", uint32(w.ID), err)
		}
	}
	w.Redirected = true
	w.Damaged = true
	if w.Overlay {
		w.Overlay = false
		m.overlays--
		m.updateShape()
	}
	m.addDamage(w, true)
	return nil
}

// Unredirect lets id bypass composition. Its area becomes overlay area and
// the output shape is recomputed.
func (m *Windows) Unredirect(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.unredirect(w)
}

func (m *Windows) unredirect(w *WindowState) error {
	if !w.Redirected {
		return fmt.Errorf("unredirect %#x: %w", uint32(w.ID), ErrNotRedirected)
	}
	w.refs = 0
	m.release(w)
	if m.binder != nil {
		if err := m.binder.Unredirect(w.ID); err != nil {
			return fmt.Errorf("unredirect %#x: %w", uint32(w.ID), err)
		}
	}
	w.Redirected = false
	w.Overlay = true
	m.overlays++
	m.updateShape()
	return nil
}

// Bind returns the buffer of id, naming it if needed. A bind attempted
// before the window is viewable fails and is not retried until the next map.
func (m *Windows) Bind(id WindowID) (BufferHandle, error) {
	w, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	if !w.Redirected {
		return 0, fmt.Errorf("bind %#x: %w", uint32(id), ErrNotRedirected)
	}
	if w.BufferBound {
		return w.Buffer, nil
	}
	if w.BindFailedOnce {
		return 0, fmt.Errorf("bind %#x: %w", uint32(id), ErrBindFailed)
	}
	if !w.Mapped {
		w.BindFailedOnce = true
		return 0, fmt.Errorf("bind %#x: %w", uint32(id), ErrNotViewable)
	}
	if m.binder == nil {
		return 0, fmt.Errorf("bind %#x: no buffer binder: %w", uint32(id), ErrBindFailed)
	}
	h, err := m.binder.Bind(id)
	if err != nil {
		w.BindFailedOnce = true
		return 0, fmt.Errorf("bind %#x: %w", uint32(id), err)
	}
	w.Buffer = h
	w.BufferBound = true
	return h, nil
}

// Release frees the buffer of id, or defers it while references are held.
func (m *Windows) Release(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.release(w)
	return nil
}

func (m *Windows) release(w *WindowState) {
	if w.refs > 0 {
		w.pendingRelease = true
		return
	}
	w.pendingRelease = false
	if !w.BufferBound {
		return
	}
	if m.binder != nil {
		m.binder.Release(w.ID, w.Buffer)
	}
	w.Buffer = 0
	w.BufferBound = false
}

// HoldReference keeps the buffer of id alive across unmap, resize and reparent.
func (m *Windows) HoldReference(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	w.refs++
	return nil
}

// DropReference drops a reference and performs any deferred release.
func (m *Windows) DropReference(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	if w.refs > 0 {
		w.refs--
	}
	if w.refs == 0 && w.pendingRelease {
		m.release(w)
	}
	return nil
}

// Map records that id became viewable, which re-enables binding.
func (m *Windows) Map(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	if info, err := m.source.WindowInfo(id); err == nil {
		w.Info = info
	}
	w.Mapped = true
	w.BindFailedOnce = false
	w.Damaged = true
	m.addDamage(w, true)
	return nil
}

// Unmap damages the vacated area and releases the buffer.
func (m *Windows) Unmap(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.addDamage(w, true)
	w.Mapped = false
	w.Damaged = true
	m.release(w)
	if w.Overlay {
		m.updateShape()
	}
	return nil
}

// Configure applies a new geometry. A size change invalidates the buffer;
// a move only damages the old and new areas.
func (m *Windows) Configure(id WindowID, geometry region.Rect, border int) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	old := w.Info.Geometry
	if old == geometry && w.Info.Border == border {
		return nil
	}
	m.addDamage(w, true)
	resized := old.Width != geometry.Width || old.Height != geometry.Height || w.Info.Border != border
	w.Info.Geometry = geometry
	w.Info.Border = border
	if resized {
		m.release(w)
		w.Damaged = true
	}
	m.addDamage(w, true)
	if w.Overlay {
		m.updateShape()
	}
	return nil
}

// Reparent invalidates the buffer of id after a reparent.
func (m *Windows) Reparent(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.addDamage(w, true)
	if info, err := m.source.WindowInfo(id); err == nil {
		w.Info = info
	}
	m.release(w)
	w.Damaged = true
	m.addDamage(w, true)
	return nil
}

// Refresh reloads the window info of id, damaging the old and new areas.
// When only the decoration extents changed, only the fringe is damaged.
func (m *Windows) Refresh(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	info, err := m.source.WindowInfo(id)
	if err != nil {
		return fmt.Errorf("window %#x: %w", uint32(id), err)
	}
	switch {
	case info == w.Info:
		return nil
	case fringeOnly(w.Info, info):
		m.damageOutputExtents(w)
		w.Info = info
		m.damageOutputExtents(w)
		return nil
	}
	m.addDamage(w, true)
	w.Info = info
	m.addDamage(w, true)
	return nil
}

// fringeOnly reports whether a and b differ in exactly one of their extents,
// with the input extents inside the output extents on both sides.
func fringeOnly(a, b WindowInfo) bool {
	if (a.InputExtents == b.InputExtents) == (a.OutputExtents == b.OutputExtents) {
		return false
	}
	if !a.InputExtents.within(a.OutputExtents) || !b.InputExtents.within(b.OutputExtents) {
		return false
	}
	a.InputExtents, a.OutputExtents = b.InputExtents, b.OutputExtents
	return a == b
}

// Restack places id directly above sibling, or at the bottom when sibling is 0.
func (m *Windows) Restack(id, sibling WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	idx := -1
	for i, sid := range m.stack {
		if sid == id {
			idx = i
			break
		}
	}
	rest := append(m.stack[:idx:idx], m.stack[idx+1:]...)
	pos := 0
	if sibling != 0 {
		pos = len(rest)
		for i, sid := range rest {
			if sid == sibling {
				pos = i + 1
				break
			}
		}
	}
	next := make([]WindowID, 0, len(m.stack))
	next = append(next, rest[:pos]...)
	next = append(next, id)
	next = append(next, rest[pos:]...)
	m.stack = next
	m.addDamage(w, false)
	return nil
}

// AddDamageRect damages r, given relative to the content origin of id.
func (m *Windows) AddDamageRect(id WindowID, r region.Rect) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.addDamageRect(w, r)
	return nil
}

func (m *Windows) addDamageRect(w *WindowState, r region.Rect) {
	if m.damage.AllDamaged() {
		return
	}
	m.damage.DamageRect(r.Translate(w.origin()))
}

// AddDamage damages the whole on-screen extents of id. Without force it
// only applies to shaped or shaded windows and to mapped windows with content.
func (m *Windows) AddDamage(id WindowID, force bool) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.addDamage(w, force)
	return nil
}

func (m *Windows) addDamage(w *WindowState, force bool) {
	if !force && !w.Info.Shaped && !w.Info.Shaded && !(w.Mapped && w.Damaged) {
		return
	}
	m.addDamageRect(w, w.relativeExtents())
}

// DamageOutputExtents damages the fringe between the input and output
// extents of a mapped window.
func (m *Windows) DamageOutputExtents(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.damageOutputExtents(w)
	return nil
}

func (m *Windows) damageOutputExtents(w *WindowState) {
	if !w.Mapped {
		return
	}
	b := w.Info.Border
	g := w.Info.Geometry
	in, out := w.Info.InputExtents, w.Info.OutputExtents
	outer := region.Rect{X: -b, Y: -b, Width: g.Width + 2*b, Height: g.Height + 2*b}
	fringe := region.FromRect(outer.Grow(out.Left, out.Right, out.Top, out.Bottom)).
		SubtractRect(outer.Grow(in.Left, in.Right, in.Top, in.Bottom))
	for _, r := range fringe.Rects() {
		m.addDamageRect(w, r)
	}
}

// HandleDamageEvent is the entry point for hardware damage on id. While the
// window waits for a frame-sync signal the rectangle is held back.
func (m *Windows) HandleDamageEvent(id WindowID, r region.Rect) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	if w.syncWaiting {
		w.syncDamage = append(w.syncDamage, r)
		return nil
	}
	w.Damaged = true
	m.addDamageRect(w, r)
	return nil
}

// BeginFrameSync starts holding back damage of id until FrameSyncReady.
func (m *Windows) BeginFrameSync(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !w.syncWaiting {
		w.syncWaiting = true
		w.syncStarted = m.now()
	}
	return nil
}

// FrameSyncReady replays the damage held back for id.
func (m *Windows) FrameSyncReady(id WindowID) error {
	w, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.flushSync(w)
	return nil
}

func (m *Windows) flushSync(w *WindowState) {
	held := w.syncDamage
	w.syncWaiting = false
	w.syncDamage = nil
	for _, r := range held {
		w.Damaged = true
		m.addDamageRect(w, r)
	}
}

// ExpireFrameSync flushes windows that have waited longer than the
// frame-sync timeout and returns how many were flushed.
func (m *Windows) ExpireFrameSync() int {
	now := m.now()
	n := 0
	for _, id := range m.stack {
		w := m.arena[id]
		if w.syncWaiting && now.Sub(w.syncStarted) >= m.syncTimeout {
			m.log.Debug("frame sync timed out", "window", fmt.Sprintf("%#x", uint32(id)), "held", len(w.syncDamage))
			m.flushSync(w)
			n++
		}
	}
	return n
}

// OverlayRegion returns the area covered by mapped overlay windows.
func (m *Windows) OverlayRegion() region.Region {
	var rects []region.Rect
	for _, id := range m.stack {
		w := m.arena[id]
		if w.Overlay && w.Mapped {
			rects = append(rects, w.Extents())
		}
	}
	return region.New(rects...)
}

func (m *Windows) updateShape() {
	if m.shaper == nil {
		return
	}
	overlays := m.OverlayRegion()
	if overlays.Equal(m.lastOverlays) {
		return
	}
	if err := m.shaper.UpdateOutputShape(overlays); err != nil {
		m.log.Warn("output shape update failed", "error", err)
		return
	}
	m.lastOverlays = overlays
}

// UpdateFullscreenUnredirect unredirects the topmost mapped window when it
// covers the whole screen opaquely, and redirects windows that were
// unredirected this way but no longer qualify.
func (m *Windows) UpdateFullscreenUnredirect(screen region.Rect, enabled bool) {
	var top *WindowState
	if enabled {
		for i := len(m.stack) - 1; i >= 0; i-- {
			w := m.arena[m.stack[i]]
			if w.Mapped {
				top = w
				break
			}
		}
		if top != nil && !qualifiesFullscreen(top, screen) {
			top = nil
		}
	}
	for _, id := range m.stack {
		w := m.arena[id]
		if w.AutoUnredirected && w != top {
			w.AutoUnredirected = false
			if err := m.redirect(w); err != nil {
				m.log.Warn("fullscreen redirect failed", "window", fmt.Sprintf("%#x", uint32(id)), "error", err)
			}
		}
	}
	if top == nil || !top.Redirected || top.refs > 0 {
		return
	}
	if err := m.unredirect(top); err != nil {
		m.log.Warn("fullscreen unredirect failed", "window", fmt.Sprintf("%#x", uint32(top.ID)), "error", err)
		return
	}
	top.AutoUnredirected = true
}

func qualifiesFullscreen(w *WindowState, screen region.Rect) bool {
	if !w.Info.Opaque || w.Info.Shaped || w.Info.Shaded {
		return false
	}
	return w.Extents() == screen
}
