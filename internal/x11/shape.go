package x11

import (
	"fmt"

	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// xRectangles converts region rectangles to protocol rectangles.
func xRectangles(rects []region.Rect) []xproto.Rectangle {
	out := make([]xproto.Rectangle, 0, len(rects))
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		out = append(out, xproto.Rectangle{
			X:      int16(r.X),
			Y:      int16(r.Y),
			Width:  uint16(r.Width),
			Height: uint16(r.Height),
		})
	}
	return out
}

// OverlayShaper shapes the overlay window so that unredirected windows
// show through it and input passes to the windows below.
type OverlayShaper struct {
	conn    *Connection
	overlay xproto.Window
}

// NewOverlayShaper returns a shaper for the given overlay window.
func NewOverlayShaper(conn *Connection, overlay xproto.Window) *OverlayShaper {
	return &OverlayShaper{conn: conn, overlay: overlay}
}

func (s *OverlayShaper) setShape(kind shape.Kind, rects []xproto.Rectangle) error {
	conn := s.conn.XUtil.Conn()
	r, err := xfixes.NewRegionId(conn)
	if err != nil {
		return fmt.Errorf("region id: %w", err)
	}
	if err := xfixes.CreateRegionChecked(conn, r, rects).Check(); err != nil {
		return fmt.Errorf("create region: %w", err)
	}
	defer xfixes.DestroyRegion(conn, r)
	return xfixes.SetWindowShapeRegionChecked(conn, s.overlay, kind, 0, 0, r).Check()
}

// UpdateOutputShape sets the bounding shape to the screen minus the
// uncomposited area.
func (s *OverlayShaper) UpdateOutputShape(uncomposited region.Region) error {
	visible := region.FromRect(s.conn.ScreenRect()).Subtract(uncomposited)
	if err := s.setShape(shape.SkBounding, xRectangles(visible.Rects())); err != nil {
		return fmt.Errorf("overlay bounding shape: %w", err)
	}
	return nil
}

// PassInput gives the overlay an empty input shape.
func (s *OverlayShaper) PassInput() error {
	if err := s.setShape(shape.SkInput, nil); err != nil {
		return fmt.Errorf("overlay input shape: %w", err)
	}
	return nil
}
