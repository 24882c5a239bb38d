//go:build linux

package platform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/1broseidon/tilecomp/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// LinuxBackend wraps an existing X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn      *x11.Connection
	selection *x11.Selection
	binder    *x11.Binder
	damage    *x11.DamageTracker
	shaper    *x11.OverlayShaper
	overlay   xproto.Window
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{
		conn:      conn,
		selection: x11.NewSelection(conn),
		binder:    x11.NewBinder(conn),
		damage:    x11.NewDamageTracker(conn),
	}
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay(display string) (*LinuxBackend, error) {
	conn, err := x11.NewConnection(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return NewLinuxBackend(conn), nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// XUtil returns the underlying xgbutil connection for X11-specific operations.
func (b *LinuxBackend) XUtil() *xgbutil.XUtil {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.XUtil
}

// RootWindow returns the X11 root window ID.
func (b *LinuxBackend) RootWindow() xproto.Window {
	if b == nil || b.conn == nil {
		return 0
	}
	return b.conn.Root
}

// Connection returns the X11 connection.
func (b *LinuxBackend) Connection() *x11.Connection { return b.conn }

// Overlay returns the composite overlay window, 0 while inactive.
func (b *LinuxBackend) Overlay() xproto.Window { return b.overlay }

// SetShadowMargin sets the margin added around normal windows.
func (b *LinuxBackend) SetShadowMargin(px int) { b.conn.ShadowMargin = px }

// OnSelectionLost registers fn to run when another compositor replaces us.
func (b *LinuxBackend) OnSelectionLost(fn func()) { b.selection.OnLost = fn }

// OnDamage routes hardware damage of tracked windows to fn.
func (b *LinuxBackend) OnDamage(fn DamageFunc) {
	b.damage.Connect(func(id compositor.WindowID, r region.Rect) { fn(id, r) })
}

// WatchRoot initializes the required extensions and selects the root
// window events the compositor follows.
func (b *LinuxBackend) WatchRoot() error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if err := conn.InitExtensions(); err != nil {
		return err
	}
	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange | xproto.EventMaskExposure)
	if err := xproto.ChangeWindowAttributesChecked(conn.XUtil.Conn(), conn.Root, xproto.CwEventMask, []uint32{mask}).Check(); err != nil {
		return fmt.Errorf("select root events: %w", err)
	}
	return conn.WatchOutputs()
}

// Activate claims the compositing selection and takes over the overlay window.
func (b *LinuxBackend) Activate(replace bool) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if err := b.selection.Activate(replace); err != nil {
		return err
	}
	overlay, err := conn.OverlayWindow()
	if err != nil {
		b.selection.Deactivate()
		return err
	}
	b.overlay = overlay
	b.shaper = x11.NewOverlayShaper(conn, overlay)
	if err := b.shaper.PassInput(); err != nil {
		b.Deactivate()
		return err
	}
	return nil
}

// Deactivate releases the overlay window and the compositing selection.
func (b *LinuxBackend) Deactivate() {
	if b.overlay != 0 {
		b.conn.ReleaseOverlayWindow()
		b.overlay = 0
		b.shaper = nil
	}
	b.selection.Deactivate()
}

// WindowInfo returns the current state of a top-level window.
func (b *LinuxBackend) WindowInfo(id WindowID) (compositor.WindowInfo, error) {
	conn, err := b.connection()
	if err != nil {
		return compositor.WindowInfo{}, err
	}
	return conn.WindowInfo(id)
}

// ScreenRect returns the root window rectangle.
func (b *LinuxBackend) ScreenRect() region.Rect { return b.conn.ScreenRect() }

// Outputs returns the active outputs.
func (b *LinuxBackend) Outputs() []compositor.Output { return b.conn.Outputs() }

// RefreshRate returns the detected refresh rate, 0 if unknown.
func (b *LinuxBackend) RefreshRate() float64 { return b.conn.RefreshRate() }

// Redirect redirects the window and starts following its damage and
// property changes.
func (b *LinuxBackend) Redirect(id WindowID) error {
	if err := b.binder.Redirect(id); err != nil {
		return err
	}
	if err := b.damage.Track(id); err != nil {
		return err
	}
	xproto.ChangeWindowAttributes(b.conn.XUtil.Conn(), xproto.Window(id), xproto.CwEventMask,
		[]uint32{uint32(xproto.EventMaskPropertyChange)})
	return nil
}

// Unredirect stops redirecting the window and following its damage.
func (b *LinuxBackend) Unredirect(id WindowID) error {
	b.damage.Untrack(id)
	return b.binder.Unredirect(id)
}

// Bind names the window's off-screen pixmap.
func (b *LinuxBackend) Bind(id WindowID) (compositor.BufferHandle, error) {
	return b.binder.Bind(id)
}

// Release frees a pixmap returned by Bind.
func (b *LinuxBackend) Release(id WindowID, h compositor.BufferHandle) {
	b.binder.Release(id, h)
}

// UpdateOutputShape lets the uncomposited area show through the overlay.
func (b *LinuxBackend) UpdateOutputShape(uncomposited region.Region) error {
	if b.shaper == nil {
		return nil
	}
	return b.shaper.UpdateOutputShape(uncomposited)
}

// Forget drops the damage object of a destroyed window.
func (b *LinuxBackend) Forget(id WindowID) { b.damage.Untrack(id) }

// SupportsFrameSync reports whether the window uses _NET_WM_SYNC_REQUEST.
func (b *LinuxBackend) SupportsFrameSync(id WindowID) bool {
	return b.conn.SupportsFrameSync(id)
}

// TopLevelWindows returns the root's children in stacking order, bottom first.
func (b *LinuxBackend) TopLevelWindows() ([]WindowID, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return conn.TopLevelWindows()
}

// Displays returns all active displays.
func (b *LinuxBackend) Displays() ([]Display, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}

	monitors, err := conn.GetMonitors()
	if err != nil {
		return nil, err
	}

	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		displays = append(displays, displayFromMonitor(m))
	}

	sort.Slice(displays, func(i, j int) bool {
		return displays[i].ID < displays[j].ID
	})

	return displays, nil
}

// Describe returns title, application and pid of a window when known.
func (b *LinuxBackend) Describe(id WindowID) Window {
	w := Window{ID: id}
	if b == nil || b.conn == nil {
		return w
	}
	win := xproto.Window(id)
	if p, err := ewmh.WmPidGet(b.conn.XUtil, win); err == nil {
		w.PID = int(p)
	}
	w.AppID = b.windowAppID(win)
	w.Title = b.windowTitle(win)
	return w
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}

func displayFromMonitor(m x11.Monitor) Display {
	return Display{
		ID:          m.ID,
		Name:        m.Name,
		Bounds:      m.Bounds(),
		RefreshRate: m.RefreshRate,
	}
}

func (b *LinuxBackend) windowAppID(windowID xproto.Window) string {
	wmClass, err := icccm.WmClassGet(b.conn.XUtil, windowID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wmClass.Class)
}

func (b *LinuxBackend) windowTitle(windowID xproto.Window) string {
	title, err := ewmh.WmNameGet(b.conn.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(b.conn.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	return ""
}
