package x11

import (
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// argbDepth is the visual depth of windows with an alpha channel.
const argbDepth = 32

// windowProps holds the raw server-side properties of a top-level window.
type windowProps struct {
	x, y          int
	width, height int
	border        int
	depth         int
	viewable      bool
	inputOnly     bool
	override      bool
	shaped        bool
	shaded        bool
	frame         compositor.Extents
}

// info converts raw properties into compositor window state. The shadow
// margin widens the output extents beyond the frame on every side.
func (p windowProps) info(shadowMargin int) compositor.WindowInfo {
	out := p.frame
	if shadowMargin > 0 && !p.override {
		out.Left += shadowMargin
		out.Right += shadowMargin
		out.Top += shadowMargin
		out.Bottom += shadowMargin
	}
	return compositor.WindowInfo{
		Geometry:         region.R(p.x, p.y, p.width, p.height),
		Border:           p.border,
		InputExtents:     p.frame,
		OutputExtents:    out,
		Viewable:         p.viewable,
		InputOnly:        p.inputOnly,
		Shaped:           p.shaped,
		Shaded:           p.shaded,
		Opaque:           p.depth != argbDepth,
		OverrideRedirect: p.override,
	}
}

// WindowInfo queries the current state of a top-level window.
func (c *Connection) WindowInfo(id compositor.WindowID) (compositor.WindowInfo, error) {
	win := xproto.Window(id)
	conn := c.XUtil.Conn()

	attrs, err := xproto.GetWindowAttributes(conn, win).Reply()
	if err != nil {
		return compositor.WindowInfo{}, fmt.Errorf("window %#x attributes: %w", uint32(id), err)
	}
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return compositor.WindowInfo{}, fmt.Errorf("window %#x geometry: %w", uint32(id), err)
	}

	p := windowProps{
		x:         int(geom.X),
		y:         int(geom.Y),
		width:     int(geom.Width),
		height:    int(geom.Height),
		border:    int(geom.BorderWidth),
		depth:     int(geom.Depth),
		viewable:  attrs.MapState == xproto.MapStateViewable,
		inputOnly: attrs.Class == xproto.WindowClassInputOnly,
		override:  attrs.OverrideRedirect,
	}
	if p.inputOnly {
		return p.info(0), nil
	}

	if ext, err := shape.QueryExtents(conn, win).Reply(); err == nil {
		p.shaped = ext.BoundingShaped
	}
	if states, err := ewmh.WmStateGet(c.XUtil, win); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_SHADED" {
				p.shaded = true
			}
		}
	}
	if fe, err := ewmh.FrameExtentsGet(c.XUtil, win); err == nil {
		p.frame = compositor.Extents{
			Left:   int(fe.Left),
			Right:  int(fe.Right),
			Top:    int(fe.Top),
			Bottom: int(fe.Bottom),
		}
	}
	margin := c.ShadowMargin
	if !c.IsNormalWindow(id) {
		margin = 0
	}
	return p.info(margin), nil
}

// TopLevelWindows returns the children of the root window, bottom first.
func (c *Connection) TopLevelWindows() ([]compositor.WindowID, error) {
	tree, err := xproto.QueryTree(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("query tree: %w", err)
	}
	ids := make([]compositor.WindowID, 0, len(tree.Children))
	for _, w := range tree.Children {
		ids = append(ids, compositor.WindowID(w))
	}
	return ids, nil
}

// SupportsFrameSync reports whether the window takes part in the
// _NET_WM_SYNC_REQUEST protocol.
func (c *Connection) SupportsFrameSync(id compositor.WindowID) bool {
	protocols, err := icccm.WmProtocolsGet(c.XUtil, xproto.Window(id))
	if err != nil {
		return false
	}
	for _, p := range protocols {
		if p == "_NET_WM_SYNC_REQUEST" {
			return true
		}
	}
	return false
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(id compositor.WindowID) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, xproto.Window(id))
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}

	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" {
			return true
		}
		// Desktop, dock, splash and notifications never receive shadows.
		if t == "_NET_WM_WINDOW_TYPE_DESKTOP" ||
			t == "_NET_WM_WINDOW_TYPE_DOCK" ||
			t == "_NET_WM_WINDOW_TYPE_SPLASH" ||
			t == "_NET_WM_WINDOW_TYPE_NOTIFICATION" {
			return false
		}
	}

	return len(types) == 0
}
