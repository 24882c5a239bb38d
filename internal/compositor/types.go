package compositor

import (
	"errors"
	"strings"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

// WindowID identifies a top-level window.
type WindowID uint32

// BufferHandle is an opaque reference to a window's off-screen buffer.
type BufferHandle uint32

// DamageMask describes how much of the screen is stale.
type DamageMask uint8

const (
	// MaskAll marks the whole screen as stale. Mutually exclusive with MaskRegion.
	MaskAll DamageMask = 1 << iota
	// MaskRegion marks only the accumulated region as stale.
	MaskRegion
	// MaskPending means a repaint is owed without a known area.
	MaskPending
)

func (m DamageMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&MaskAll != 0 {
		parts = append(parts, "all")
	}
	if m&MaskRegion != 0 {
		parts = append(parts, "region")
	}
	if m&MaskPending != 0 {
		parts = append(parts, "pending")
	}
	return strings.Join(parts, "|")
}

// Output is a physical head in screen coordinates.
type Output struct {
	ID     int
	Name   string
	Bounds region.Rect
}

// FullscreenOutputID identifies the synthetic output covering the whole screen.
const FullscreenOutputID = -1

// Extents are per-side margins around a window.
type Extents struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

func (e Extents) within(o Extents) bool {
	return e.Left <= o.Left && e.Right <= o.Right && e.Top <= o.Top && e.Bottom <= o.Bottom
}

// WindowInfo is what the window-state source knows about a window.
type WindowInfo struct {
	// Geometry holds the outer position and the content size, border excluded.
	Geometry      region.Rect
	Border        int
	InputExtents  Extents
	OutputExtents Extents

	Viewable         bool
	InputOnly        bool
	Shaped           bool
	Shaded           bool
	Opaque           bool
	OverrideRedirect bool
}

// PaintHandler draws the composited screen.
type PaintHandler interface {
	PrepareDrawing()
	PaintOutputs(outputs []Output, mask DamageMask, damage region.Region)
	HasVSync() bool
}

// WindowSource supplies the current OS-level state of a window.
type WindowSource interface {
	WindowInfo(id WindowID) (WindowInfo, error)
}

// OutputSource supplies the screen geometry and refresh rate.
type OutputSource interface {
	ScreenRect() region.Rect
	Outputs() []Output
	// RefreshRate returns the detected refresh rate in Hz, or 0 when unknown.
	RefreshRate() float64
}

// BufferBinder performs redirection and buffer naming for single windows.
type BufferBinder interface {
	Redirect(id WindowID) error
	Unredirect(id WindowID) error
	// Bind returns ErrNotViewable when the window is not viewable yet.
	Bind(id WindowID) (BufferHandle, error)
	Release(id WindowID, h BufferHandle)
}

// OutputShaper reshapes the compositor output so that uncomposited areas show through.
type OutputShaper interface {
	UpdateOutputShape(uncomposited region.Region) error
}

// Activator claims and gives up the compositing role for the display.
type Activator interface {
	// Activate returns an error wrapping ErrCapabilityMissing or ErrCompositorRunning.
	Activate(replace bool) error
	Deactivate()
}

// Timer is the single paint timer owned by the event loop.
type Timer interface {
	Reset(d time.Duration)
	Stop()
}

// DamageObserver sees every damage report in registration order.
type DamageObserver interface {
	ObserveDamage(r region.Region)
}

// PaintParticipant is invoked around each executed paint cycle.
type PaintParticipant interface {
	PreparePaint(elapsed time.Duration)
	DonePaint()
}

var (
	// ErrCapabilityMissing means a required display extension is absent.
	ErrCapabilityMissing = errors.New("required compositing capability missing")
	// ErrCompositorRunning means another compositor owns the compositing role.
	ErrCompositorRunning = errors.New("another compositor is already running")
	// ErrNotViewable means a buffer was requested before the window was viewable.
	ErrNotViewable = errors.New("window is not viewable")
	// ErrBindFailed means an earlier bind failed and no map has happened since.
	ErrBindFailed = errors.New("buffer bind failed since last map")
	// ErrNotRedirected means the window's contents are not redirected.
	ErrNotRedirected = errors.New("window is not redirected")
	// ErrUnknownWindow means the window is not tracked.
	ErrUnknownWindow = errors.New("unknown window")
	// ErrNotEligible means the window cannot be composited (InputOnly).
	ErrNotEligible = errors.New("window is not eligible for compositing")
	// ErrFrameHistoryTooShort means overdraw was requested with fewer than two frames.
	ErrFrameHistoryTooShort = errors.New("frame history holds fewer than two frames")
)
