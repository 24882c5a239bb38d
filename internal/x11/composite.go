package x11

import (
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
)

// Binder redirects single windows and names their off-screen pixmaps.
type Binder struct {
	conn *Connection
}

// NewBinder returns a compositor.BufferBinder backed by the Composite extension.
func NewBinder(conn *Connection) *Binder {
	return &Binder{conn: conn}
}

// Redirect sends the window's contents off-screen.
func (b *Binder) Redirect(id compositor.WindowID) error {
	err := composite.RedirectWindowChecked(b.conn.XUtil.Conn(), xproto.Window(id), composite.RedirectManual).Check()
	if err != nil {
		return fmt.Errorf("redirect %#x: %w", uint32(id), err)
	}
	return nil
}

// Unredirect returns the window to direct on-screen drawing.
func (b *Binder) Unredirect(id compositor.WindowID) error {
	err := composite.UnredirectWindowChecked(b.conn.XUtil.Conn(), xproto.Window(id), composite.RedirectManual).Check()
	if err != nil {
		return fmt.Errorf("unredirect %#x: %w", uint32(id), err)
	}
	return nil
}

// Bind names a pixmap for the window's current contents. The server only
// allows this while the window is viewable.
func (b *Binder) Bind(id compositor.WindowID) (compositor.BufferHandle, error) {
	conn := b.conn.XUtil.Conn()
	win := xproto.Window(id)

	attrs, err := xproto.GetWindowAttributes(conn, win).Reply()
	if err != nil {
		return 0, fmt.Errorf("bind %#x: %w", uint32(id), err)
	}
	if attrs.MapState != xproto.MapStateViewable {
		return 0, compositor.ErrNotViewable
	}

	pix, err := xproto.NewPixmapId(conn)
	if err != nil {
		return 0, fmt.Errorf("bind %#x: allocate pixmap id: %w", uint32(id), err)
	}
	if err := composite.NameWindowPixmapChecked(conn, win, pix).Check(); err != nil {
		return 0, fmt.Errorf("bind %#x: name pixmap: %w", uint32(id), err)
	}
	return compositor.BufferHandle(pix), nil
}

// Release frees a pixmap returned by Bind.
func (b *Binder) Release(_ compositor.WindowID, h compositor.BufferHandle) {
	if h == 0 {
		return
	}
	xproto.FreePixmap(b.conn.XUtil.Conn(), xproto.Pixmap(h))
}

// OverlayWindow returns the composite overlay window of the root, creating
// it on first use.
func (c *Connection) OverlayWindow() (xproto.Window, error) {
	reply, err := composite.GetOverlayWindow(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return 0, fmt.Errorf("get overlay window: %w", err)
	}
	return reply.OverlayWin, nil
}

// ReleaseOverlayWindow gives the overlay window back to the server.
func (c *Connection) ReleaseOverlayWindow() {
	composite.ReleaseOverlayWindow(c.XUtil.Conn(), c.Root)
}
