package x11

import (
	"fmt"
	"log/slog"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// SelectionName returns the compositing manager selection for a screen.
func SelectionName(screen int) string {
	return fmt.Sprintf("_NET_WM_CM_S%d", screen)
}

// Selection claims the compositing manager selection of the screen.
type Selection struct {
	conn  *Connection
	name  string
	owner *xwindow.Window

	// OnLost is called when another compositor takes the selection away.
	OnLost func()
}

// NewSelection returns an unclaimed selection for the connection's screen.
func NewSelection(conn *Connection) *Selection {
	return &Selection{conn: conn, name: SelectionName(conn.Screen)}
}

// Owner returns the window currently owning the selection, or 0.
func (s *Selection) Owner() (xproto.Window, error) {
	atom, err := xprop.Atm(s.conn.XUtil, s.name)
	if err != nil {
		return 0, fmt.Errorf("intern %s: %w", s.name, err)
	}
	reply, err := xproto.GetSelectionOwner(s.conn.XUtil.Conn(), atom).Reply()
	if err != nil {
		return 0, fmt.Errorf("get %s owner: %w", s.name, err)
	}
	return reply.Owner, nil
}

// Activate checks the required extensions and takes the selection. An
// existing owner is only displaced when replace is set.
func (s *Selection) Activate(replace bool) error {
	if err := s.conn.InitExtensions(); err != nil {
		return err
	}
	if s.owner != nil {
		return nil
	}

	prev, err := s.Owner()
	if err != nil {
		return err
	}
	if prev != 0 && !replace {
		return fmt.Errorf("%s owned by %#x: %w", s.name, uint32(prev), compositor.ErrCompositorRunning)
	}

	xu := s.conn.XUtil
	win, err := xwindow.Generate(xu)
	if err != nil {
		return fmt.Errorf("selection window: %w", err)
	}
	if err := win.CreateChecked(s.conn.Root, -1, -1, 1, 1, 0); err != nil {
		return fmt.Errorf("selection window: %w", err)
	}
	if err := ewmh.WmNameSet(xu, win.Id, "tilecomp"); err != nil {
		slog.Debug("name selection window", "window", uint32(win.Id), "error", err)
	}

	atom, err := xprop.Atm(xu, s.name)
	if err != nil {
		win.Destroy()
		return fmt.Errorf("intern %s: %w", s.name, err)
	}
	if err := xproto.SetSelectionOwnerChecked(xu.Conn(), win.Id, atom, xproto.TimeCurrentTime).Check(); err != nil {
		win.Destroy()
		return fmt.Errorf("set %s owner: %w", s.name, err)
	}
	if owner, err := s.Owner(); err != nil || owner != win.Id {
		win.Destroy()
		return fmt.Errorf("%s claim lost: %w", s.name, compositor.ErrCompositorRunning)
	}

	xevent.SelectionClearFun(func(xu *xgbutil.XUtil, ev xevent.SelectionClearEvent) {
		if ev.Selection != atom {
			return
		}
		if s.OnLost != nil {
			s.OnLost()
		}
	}).Connect(xu, win.Id)

	s.owner = win
	return nil
}

// Deactivate gives the selection up.
func (s *Selection) Deactivate() {
	if s.owner == nil {
		return
	}
	// Destroying the owner window releases the selection.
	s.owner.Destroy()
	s.owner = nil
}
