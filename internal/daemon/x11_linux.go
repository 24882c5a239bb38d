//go:build linux

package daemon

import (
	"context"
	"log/slog"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/config"
	"github.com/1broseidon/tilecomp/internal/hotkeys"
	"github.com/1broseidon/tilecomp/internal/paint"
	"github.com/1broseidon/tilecomp/internal/platform"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
)

// X11Options configures RunX11.
type X11Options struct {
	Config  *config.Config
	Reload  func() (*config.Config, error)
	Socket  string
	DryRun  bool
	Replace bool
	Logger  *slog.Logger
}

// xEvents adapts the xgbutil main loop to EventSource.
type xEvents struct {
	xu *xgbutil.XUtil
}

func (e xEvents) Pump() (before, after, quit <-chan struct{}) {
	b, a, q := xevent.MainPing(e.xu)
	return b, a, q
}

func (e xEvents) Quit() { xevent.Quit(e.xu) }

// RunX11 composites the X display named in the config until ctx is
// cancelled or another compositor takes over.
func RunX11(ctx context.Context, opts X11Options) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := platform.NewLinuxBackendFromDisplay(cfg.Display)
	if err != nil {
		return err
	}
	defer backend.Disconnect()
	backend.SetShadowMargin(cfg.ShadowMargin)
	if err := backend.WatchRoot(); err != nil {
		return err
	}

	xu := backend.XUtil()
	root := backend.RootWindow()

	var (
		painter Painter
		xr      *paint.XRender
	)
	if opts.DryRun {
		rec := paint.NewRecorder(logger)
		rec.Keep = 64
		painter = rec
	} else {
		screen := xu.Screen()
		xr = paint.NewXRender(paint.XRenderConfig{
			Conn:   xu.Conn(),
			Root:   root,
			Depth:  screen.RootDepth,
			Visual: screen.RootVisual,
			Logger: logger,
		})
		defer xr.Close()
		painter = xr
	}

	d, err := New(Options{
		Config:  cfg,
		Reload:  opts.Reload,
		Backend: backend,
		Painter: painter,
		Root:    compositor.WindowID(root),
		Socket:  opts.Socket,
		DryRun:  opts.DryRun,
		Replace: opts.Replace,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	sync := d.Synchronizer()

	if xr != nil {
		d.afterActivate = func() error {
			overlay := backend.Overlay()
			xevent.ExposeFun(func(xu *xgbutil.XUtil, ev xevent.ExposeEvent) {
				sync.HandleExpose(region.R(int(ev.X), int(ev.Y), int(ev.Width), int(ev.Height)))
			}).Connect(xu, overlay)
			return xr.SetTarget(overlay)
		}
		d.beforeTeardown = func() {
			if err := xr.SetTarget(0); err != nil {
				logger.Warn("detach painter", "error", err)
			}
			xevent.Detach(xu, backend.Overlay())
		}
	}

	connectRootEvents(xu, root, sync)
	xevent.HookFun(func(xu *xgbutil.XUtil, ev interface{}) bool {
		switch ev.(type) {
		case randr.ScreenChangeNotifyEvent, randr.NotifyEvent:
			d.HandleOutputChange()
		}
		return true
	}).Connect(xu)
	backend.OnDamage(sync.HandleDamage)
	backend.OnSelectionLost(d.HandleSelectionLost)

	keys := hotkeys.NewHandler(backend, d, logger)
	if err := keys.Register(cfg.RepaintHotkey, cfg.LimiterHotkey); err != nil {
		logger.Warn("hotkeys unavailable", "error", err)
	}

	logger.Info("compositor starting", "display", cfg.Display, "dry_run", opts.DryRun, "socket", opts.Socket)
	return d.Run(ctx, xEvents{xu: xu})
}

// connectRootEvents routes substructure notifications of the root window
// to the synchronizer. xevent dispatches most of them by the child window,
// so those are taken from a hook instead of per-window callbacks.
func connectRootEvents(xu *xgbutil.XUtil, root xproto.Window, sync *StateSynchronizer) {
	id := func(w xproto.Window) compositor.WindowID { return compositor.WindowID(w) }

	xevent.CreateNotifyFun(func(xu *xgbutil.XUtil, ev xevent.CreateNotifyEvent) {
		sync.HandleCreate(id(ev.Window), id(ev.Parent))
	}).Connect(xu, root)
	xevent.MapNotifyFun(func(xu *xgbutil.XUtil, ev xevent.MapNotifyEvent) {
		if ev.Window != root {
			sync.HandleMap(id(ev.Window))
		}
	}).Connect(xu, root)
	xevent.ExposeFun(func(xu *xgbutil.XUtil, ev xevent.ExposeEvent) {
		sync.HandleExpose(region.R(int(ev.X), int(ev.Y), int(ev.Width), int(ev.Height)))
	}).Connect(xu, root)

	xevent.HookFun(func(xu *xgbutil.XUtil, ev interface{}) bool {
		switch e := ev.(type) {
		case xproto.DestroyNotifyEvent:
			if e.Event == root {
				sync.HandleDestroy(id(e.Window))
			}
		case xproto.UnmapNotifyEvent:
			if e.Event == root {
				sync.HandleUnmap(id(e.Window))
			}
		case xproto.ConfigureNotifyEvent:
			if e.Event == root && e.Window != root {
				geom := region.R(int(e.X), int(e.Y), int(e.Width), int(e.Height))
				sync.HandleConfigure(id(e.Window), geom, int(e.BorderWidth), id(e.AboveSibling))
			}
		case xproto.ReparentNotifyEvent:
			if e.Event == root {
				sync.HandleReparent(id(e.Window), id(e.Parent))
			}
		case xproto.PropertyNotifyEvent:
			if e.Window != root {
				sync.HandleProperty(id(e.Window))
			}
		}
		return true
	}).Connect(xu)
}
