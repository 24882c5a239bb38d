package x11

import (
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
)

// DamageFunc receives hardware damage relative to the window's content origin.
type DamageFunc func(id compositor.WindowID, r region.Rect)

// DamageTracker owns one damage object per tracked window.
type DamageTracker struct {
	conn    *Connection
	objects map[compositor.WindowID]damage.Damage
	windows map[damage.Damage]compositor.WindowID
}

// NewDamageTracker returns an empty tracker.
func NewDamageTracker(conn *Connection) *DamageTracker {
	return &DamageTracker{
		conn:    conn,
		objects: make(map[compositor.WindowID]damage.Damage),
		windows: make(map[damage.Damage]compositor.WindowID),
	}
}

// Track starts raw-rectangle damage reporting for the window.
func (t *DamageTracker) Track(id compositor.WindowID) error {
	if _, ok := t.objects[id]; ok {
		return nil
	}
	conn := t.conn.XUtil.Conn()
	d, err := damage.NewDamageId(conn)
	if err != nil {
		return fmt.Errorf("damage id for %#x: %w", uint32(id), err)
	}
	err = damage.CreateChecked(conn, d, xproto.Drawable(id), damage.ReportLevelRawRectangles).Check()
	if err != nil {
		return fmt.Errorf("create damage for %#x: %w", uint32(id), err)
	}
	t.objects[id] = d
	t.windows[d] = id
	return nil
}

// Untrack destroys the window's damage object. The window may already be
// gone on the server, so errors are ignored.
func (t *DamageTracker) Untrack(id compositor.WindowID) {
	d, ok := t.objects[id]
	if !ok {
		return
	}
	delete(t.objects, id)
	delete(t.windows, d)
	damage.Destroy(t.conn.XUtil.Conn(), d)
}

// Len returns the number of tracked windows.
func (t *DamageTracker) Len() int { return len(t.objects) }

// Window resolves a damage object to its window.
func (t *DamageTracker) Window(d damage.Damage) (compositor.WindowID, bool) {
	id, ok := t.windows[d]
	return id, ok
}

// Dispatch handles one event, calling fn for damage on tracked windows.
// It reports whether the event was a damage notification.
func (t *DamageTracker) Dispatch(ev interface{}, fn DamageFunc) bool {
	var n damage.NotifyEvent
	switch e := ev.(type) {
	case damage.NotifyEvent:
		n = e
	case *damage.NotifyEvent:
		n = *e
	default:
		return false
	}
	id, ok := t.windows[n.Damage]
	if !ok {
		return true
	}
	fn(id, region.R(int(n.Area.X), int(n.Area.Y), int(n.Area.Width), int(n.Area.Height)))
	return true
}

// Connect routes damage notifications from the xevent loop to fn.
func (t *DamageTracker) Connect(fn DamageFunc) {
	xevent.HookFun(func(xu *xgbutil.XUtil, ev interface{}) bool {
		// Damage events have no xevent callback type; consume them here.
		return !t.Dispatch(ev, fn)
	}).Connect(t.conn.XUtil)
}
