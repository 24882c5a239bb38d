package daemon

import (
	"errors"
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/framelog"
	"github.com/1broseidon/tilecomp/internal/ipc"
)

var _ ipc.Controller = (*Daemon)(nil)

// Status implements ipc.Controller.
func (d *Daemon) Status() (ipc.StatusData, error) {
	var out ipc.StatusData
	err := d.do(func() error {
		out = ipc.StatusData{Session: d.session.Stats(), DryRun: d.dryRun}
		return nil
	})
	return out, err
}

// Outputs implements ipc.Controller.
func (d *Daemon) Outputs() ([]ipc.OutputInfo, error) {
	var out []ipc.OutputInfo
	err := d.do(func() error {
		displays, err := d.backend.Displays()
		if err != nil {
			return err
		}
		for _, disp := range displays {
			out = append(out, ipc.OutputInfo{
				ID:          disp.ID,
				Name:        disp.Name,
				X:           disp.Bounds.X,
				Y:           disp.Bounds.Y,
				Width:       disp.Bounds.Width,
				Height:      disp.Bounds.Height,
				RefreshRate: disp.RefreshRate,
			})
		}
		return nil
	})
	return out, err
}

// Windows implements ipc.Controller.
func (d *Daemon) Windows() ([]ipc.WindowInfo, error) {
	var out []ipc.WindowInfo
	err := d.do(func() error {
		for _, w := range d.session.Windows.Stack() {
			meta := d.backend.Describe(w.ID)
			ext := w.Extents()
			out = append(out, ipc.WindowInfo{
				ID:               uint32(w.ID),
				X:                ext.X,
				Y:                ext.Y,
				Width:            ext.Width,
				Height:           ext.Height,
				Mapped:           w.Mapped,
				Redirected:       w.Redirected,
				BufferBound:      w.BufferBound,
				Overlay:          w.Overlay,
				AutoUnredirected: w.AutoUnredirected,
				SyncWaiting:      w.SyncWaiting(),
				AppID:            meta.AppID,
				Title:            meta.Title,
			})
		}
		return nil
	})
	return out, err
}

// Repaint implements ipc.Controller.
func (d *Daemon) Repaint() error {
	return d.do(func() error {
		d.RepaintScreen()
		return nil
	})
}

// Reload implements ipc.Controller.
func (d *Daemon) Reload() error {
	if d.reload == nil {
		return errors.New("reload is not available")
	}
	cfg, err := d.reload()
	if err != nil {
		return err
	}
	return d.do(func() error {
		d.applyConfig(cfg)
		d.log.Info("config reloaded")
		return nil
	})
}

// Redirect implements ipc.Controller.
func (d *Daemon) Redirect(id uint32) error {
	return d.do(func() error {
		if err := d.session.Windows.Redirect(compositor.WindowID(id)); err != nil {
			return err
		}
		d.frames.Log(framelog.EventRedirect, map[string]interface{}{"window": hexID(compositor.WindowID(id))})
		return nil
	})
}

// Unredirect implements ipc.Controller.
func (d *Daemon) Unredirect(id uint32) error {
	return d.do(func() error {
		if err := d.session.Windows.Unredirect(compositor.WindowID(id)); err != nil {
			return err
		}
		d.frames.Log(framelog.EventUnredirect, map[string]interface{}{"window": hexID(compositor.WindowID(id))})
		return nil
	})
}

// SetLimiter implements ipc.Controller.
func (d *Daemon) SetLimiter(mode string) (string, error) {
	var out string
	err := d.do(func() error {
		if mode == "" {
			out = d.CycleLimiter().String()
			return nil
		}
		m, err := compositor.ParseLimiterMode(mode)
		if err != nil {
			return fmt.Errorf("%w (want adaptive, vsync or disabled)", err)
		}
		d.setLimiter(m)
		out = m.String()
		return nil
	})
	return out, err
}
