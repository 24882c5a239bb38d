// Package daemon runs a compositing session on a single event loop and
// exposes it over IPC.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/config"
	"github.com/1broseidon/tilecomp/internal/framelog"
	"github.com/1broseidon/tilecomp/internal/ipc"
	"github.com/1broseidon/tilecomp/internal/platform"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned for requests that arrive after the loop exited.
var ErrStopped = errors.New("daemon stopped")

// Painter draws frames for a session.
type Painter interface {
	compositor.PaintHandler
	Attach(s *compositor.Session)
}

// EventSource delivers window-system events. Handlers run between a
// before and an after ping, while the loop waits.
type EventSource interface {
	Pump() (before, after, quit <-chan struct{})
	Quit()
}

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// Reload loads a fresh configuration; nil disables reloading.
	Reload  func() (*config.Config, error)
	Backend platform.Backend
	Painter Painter
	// Root is the parent of the windows the session tracks.
	Root compositor.WindowID
	// Socket is the IPC socket path; empty disables IPC.
	Socket  string
	DryRun  bool
	Replace bool
	Logger  *slog.Logger
	Now     func() time.Time

	// AfterActivate runs once the compositing role is held.
	AfterActivate func() error
	// BeforeTeardown runs before the role is given up.
	BeforeTeardown func()
}

// Daemon owns the session and serializes all access to it.
type Daemon struct {
	cfg     *config.Config
	reload  func() (*config.Config, error)
	log     *slog.Logger
	backend platform.Backend
	painter Painter
	session *compositor.Session
	sync    *StateSynchronizer
	frames  *framelog.Logger
	timer   *loopTimer
	recon   *Reconciler
	ipc     *ipc.Server

	work     chan func()
	quit     chan struct{}
	dryRun   bool
	replace  bool
	stopping bool

	afterActivate  func() error
	beforeTeardown func()
}

// New wires a session to the backend and painter. Nothing touches the
// display until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	if opts.Backend == nil || opts.Painter == nil {
		return nil, errors.New("daemon: backend and painter are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config

	d := &Daemon{
		cfg:            cfg,
		reload:         opts.Reload,
		log:            logger,
		backend:        opts.Backend,
		painter:        opts.Painter,
		timer:          newLoopTimer(),
		work:           make(chan func(), 16),
		quit:           make(chan struct{}),
		dryRun:         opts.DryRun,
		replace:        opts.Replace || cfg.ReplaceExisting,
		afterActivate:  opts.AfterActivate,
		beforeTeardown: opts.BeforeTeardown,
	}

	sessOpts := compositor.Options{
		Painter:                 opts.Painter,
		Source:                  opts.Backend,
		Outputs:                 opts.Backend,
		Timer:                   d.timer,
		Now:                     now,
		Logger:                  logger,
		Limiter:                 cfg.Limiter(),
		RefreshRate:             cfg.RefreshOverride(),
		ForceIndependentOutputs: cfg.ForceIndependentOutputPainting,
		UnredirectFullscreen:    cfg.UnredirectFullscreenWindows,
		RectLimit:               cfg.Damage.RectLimit,
		FrameHistory:            cfg.FrameHistory,
		FrameSyncTimeout:        cfg.FrameSyncTimeout(),
	}
	if !opts.DryRun {
		sessOpts.Binder = opts.Backend
		sessOpts.Shaper = opts.Backend
		sessOpts.Activator = opts.Backend
	}
	session, err := compositor.NewSession(sessOpts)
	if err != nil {
		return nil, err
	}
	d.session = session
	opts.Painter.Attach(session)

	if fl := cfg.GetFrameLogConfig(); cfg.FrameLog.Enabled {
		frames, err := framelog.NewLogger(framelog.LogConfig{
			Enabled:   true,
			Level:     framelog.ParseLogLevel(fl.Level),
			FilePath:  fl.File,
			MaxSizeMB: fl.MaxSizeMB,
			MaxFiles:  fl.MaxFiles,
		})
		if err != nil {
			logger.Warn("frame log disabled", "error", err)
		} else {
			d.frames = frames
			session.AddParticipant(frames)
			session.ObserveDamage(frames)
		}
	}

	forget := []Forgetter{opts.Backend}
	if f, ok := opts.Painter.(Forgetter); ok {
		forget = append(forget, f)
	}
	d.sync = NewStateSynchronizer(session, opts.Root, opts.Backend, logger, forget...)
	d.sync.OnFrameSync = d.armFrameSyncExpiry

	if iv := cfg.ReconcileInterval(); iv > 0 {
		d.recon = NewReconciler(ReconcilerConfig{Interval: iv, Logger: logger}, d.sync, opts.Backend.TopLevelWindows, d.post)
	}
	if opts.Socket != "" {
		d.ipc = ipc.NewServerAt(opts.Socket, d, logger)
	}
	return d, nil
}

// Session returns the compositing session. Only the event loop may use it
// while Run is active.
func (d *Daemon) Session() *compositor.Session { return d.session }

// Synchronizer returns the window-event synchronizer.
func (d *Daemon) Synchronizer() *StateSynchronizer { return d.sync }

// Run activates compositing and processes events until ctx is cancelled,
// the event source quits or the compositing role is lost.
func (d *Daemon) Run(ctx context.Context, events EventSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if d.ipc != nil {
		if err := d.ipc.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			d.ipc.Stop()
			return nil
		})
	}
	if d.recon != nil {
		g.Go(func() error {
			d.recon.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return d.loop(ctx, events)
	})
	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context, events EventSource) error {
	defer close(d.quit)
	before, after, quit := events.Pump()

	if err := d.start(); err != nil {
		events.Quit()
		return err
	}

	for {
		select {
		case <-before:
			<-after
		case fn := <-d.work:
			fn()
		case <-d.timer.C():
			d.timer.fired()
			d.session.RunPaintCycle()
		case <-ctx.Done():
			d.shutdown()
			events.Quit()
			return nil
		case <-quit:
			d.shutdown()
			return errors.New("window-system event loop quit")
		}
		if d.stopping {
			d.shutdown()
			events.Quit()
			return nil
		}
	}
}

func (d *Daemon) start() error {
	if d.recon != nil {
		if err := d.recon.ReconcileNow(); err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
	} else if ids, err := d.backend.TopLevelWindows(); err != nil {
		return fmt.Errorf("list windows: %w", err)
	} else {
		d.sync.Reconcile(ids)
	}

	if err := d.session.Activate(d.replace); err != nil {
		return err
	}
	if d.afterActivate != nil {
		if err := d.afterActivate(); err != nil {
			d.session.Teardown()
			return err
		}
	}
	stats := d.session.Stats()
	d.frames.Log(framelog.EventActivate, map[string]interface{}{
		"screen":     stats.Screen.String(),
		"refresh_hz": stats.RefreshRate,
		"limiter":    stats.Limiter,
		"dry_run":    d.dryRun,
		"windows":    stats.Windows,
	})
	return nil
}

func (d *Daemon) shutdown() {
	if d.session.Active() {
		if d.beforeTeardown != nil {
			d.beforeTeardown()
		}
		d.session.Teardown()
		d.frames.Log(framelog.EventTeardown, nil)
	}
	d.timer.Stop()
	if err := d.frames.Close(); err != nil {
		d.log.Warn("close frame log", "error", err)
	}
}

// post queues fn on the event loop without waiting for it.
func (d *Daemon) post(fn func()) {
	select {
	case d.work <- fn:
	case <-d.quit:
	}
}

// do runs fn on the event loop and waits for its result.
func (d *Daemon) do(fn func() error) error {
	done := make(chan error, 1)
	select {
	case d.work <- func() { done <- fn() }:
	case <-d.quit:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-d.quit:
		return ErrStopped
	}
}

func (d *Daemon) armFrameSyncExpiry() {
	timeout := d.cfg.FrameSyncTimeout()
	if timeout <= 0 {
		timeout = compositor.DefaultFrameSyncTimeout
	}
	time.AfterFunc(timeout, func() {
		d.post(func() { d.session.Windows.ExpireFrameSync() })
	})
}

// HandleSelectionLost tears the session down after another compositor took
// over the display. It runs on the event loop.
func (d *Daemon) HandleSelectionLost() {
	d.log.Warn("compositing selection lost to another compositor")
	d.frames.Log(framelog.EventSelectionLost, nil)
	d.stopping = true
}

// HandleOutputChange reloads the screen layout. It runs on the event loop.
func (d *Daemon) HandleOutputChange() {
	d.sync.HandleOutputChange()
	stats := d.session.Stats()
	d.frames.Log(framelog.EventOutputChange, map[string]interface{}{
		"screen":     stats.Screen.String(),
		"refresh_hz": stats.RefreshRate,
	})
}

// RepaintScreen damages the whole screen. It runs on the event loop.
func (d *Daemon) RepaintScreen() {
	d.session.Damage.DamageScreen()
}

// CycleLimiter switches to the next limiter mode. It runs on the event loop.
func (d *Daemon) CycleLimiter() compositor.LimiterMode {
	next := (d.session.Scheduler.Mode() + 1) % (compositor.LimiterDisabled + 1)
	d.setLimiter(next)
	return next
}

func (d *Daemon) setLimiter(m compositor.LimiterMode) {
	d.session.SetLimiterMode(m)
	d.log.Info("fps limiter changed", "mode", m.String())
	d.frames.Log(framelog.EventLimiter, map[string]interface{}{"mode": m.String()})
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	old := d.cfg
	if cfg.FrameHistory != old.FrameHistory {
		d.log.Warn("frame_history change takes effect after restart", "current", old.FrameHistory, "configured", cfg.FrameHistory)
	}
	if cfg.RepaintHotkey != old.RepaintHotkey || cfg.LimiterHotkey != old.LimiterHotkey {
		d.log.Warn("hotkey changes take effect after restart")
	}
	if sm, ok := d.backend.(interface{ SetShadowMargin(int) }); ok && cfg.ShadowMargin != old.ShadowMargin {
		sm.SetShadowMargin(cfg.ShadowMargin)
		for _, w := range d.session.Windows.Stack() {
			d.sync.HandleProperty(w.ID)
		}
	}
	d.session.Retune(cfg.Tuning())
	d.cfg = cfg
}
