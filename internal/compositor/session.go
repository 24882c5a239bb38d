// Package compositor implements the compositing core: damage accumulation,
// per-window buffer lifecycle, adaptive redraw pacing and frame-age history.
//
// Everything in this package runs on the single event-loop goroutine that
// owns the Session; nothing here locks.
package compositor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

// Options configures a Session.
type Options struct {
	Painter   PaintHandler
	Source    WindowSource
	Outputs   OutputSource
	Binder    BufferBinder
	Shaper    OutputShaper
	Activator Activator
	Timer     Timer
	Now       func() time.Time
	Logger    *slog.Logger

	Limiter LimiterMode
	// RefreshRate overrides detection when positive.
	RefreshRate             float64
	ForceIndependentOutputs bool
	UnredirectFullscreen    bool
	RectLimit               int
	FrameHistory            int
	FrameSyncTimeout        time.Duration
}

// Tuning holds the options that can change on a live session.
type Tuning struct {
	Limiter                 LimiterMode
	RefreshRate             float64
	ForceIndependentOutputs bool
	UnredirectFullscreen    bool
	RectLimit               int
}

// Session is one compositing session. It owns the damage accumulator, the
// window buffers, the redraw scheduler and the frame-age registry.
type Session struct {
	Damage    *Accumulator
	Windows   *Windows
	Scheduler *Scheduler
	Buffers   *AgeingDamageBuffers

	outputs   OutputSource
	activator Activator
	log       *slog.Logger

	refreshOverride      float64
	unredirectFullscreen bool
	frameHistory         int
	active               bool
}

// NewSession wires the core components together. The session does nothing
// until Activate.
func NewSession(opts Options) (*Session, error) {
	switch {
	case opts.Painter == nil:
		return nil, errors.New("compositor: paint handler is required")
	case opts.Source == nil:
		return nil, errors.New("compositor: window source is required")
	case opts.Outputs == nil:
		return nil, errors.New("compositor: output source is required")
	case opts.Timer == nil:
		return nil, errors.New("compositor: timer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := opts.FrameHistory
	if history <= 0 {
		history = DefaultFrameHistory
	}

	damage := NewAccumulator(opts.Outputs.ScreenRect(), opts.RectLimit)
	buffers := &AgeingDamageBuffers{}
	damage.Observe(buffers)

	windows := NewWindows(WindowsConfig{
		Damage:           damage,
		Source:           opts.Source,
		Binder:           opts.Binder,
		Shaper:           opts.Shaper,
		Logger:           logger,
		Now:              opts.Now,
		FrameSyncTimeout: opts.FrameSyncTimeout,
	})

	s := &Session{
		Damage:               damage,
		Windows:              windows,
		Buffers:              buffers,
		outputs:              opts.Outputs,
		activator:            opts.Activator,
		log:                  logger,
		refreshOverride:      opts.RefreshRate,
		unredirectFullscreen: opts.UnredirectFullscreen,
		frameHistory:         history,
	}
	s.Scheduler = NewScheduler(SchedulerConfig{
		Damage:           damage,
		Painter:          opts.Painter,
		Outputs:          opts.Outputs,
		Timer:            opts.Timer,
		Now:              opts.Now,
		Mode:             opts.Limiter,
		RefreshRate:      s.refreshRate(),
		ForceIndependent: opts.ForceIndependentOutputs,
	})
	s.Scheduler.uncomposited = windows.OverlayRegion
	s.Scheduler.obscured = buffers.SubtractObscuredArea
	s.Scheduler.beforeCycle = s.beforeCycle
	s.Scheduler.afterPaint = buffers.IncrementAges
	damage.OnDamage(s.Scheduler.Schedule)
	return s, nil
}

func (s *Session) refreshRate() float64 {
	if s.refreshOverride > 0 {
		return s.refreshOverride
	}
	if hz := s.outputs.RefreshRate(); hz > 0 {
		return hz
	}
	return DefaultRefreshRate
}

// Activate claims the compositing role and redirects all tracked windows.
// With replace set, an existing compositor is asked to give up its role.
func (s *Session) Activate(replace bool) error {
	if s.active {
		return nil
	}
	if s.activator != nil {
		if err := s.activator.Activate(replace); err != nil {
			return fmt.Errorf("activate compositing: %w", err)
		}
	}
	if err := s.Windows.RedirectAll(); err != nil {
		s.log.Warn("some windows could not be redirected", "error", err)
	}
	s.active = true
	s.Damage.DamageScreen()
	s.log.Info("compositing active",
		"screen", s.Damage.Screen().String(),
		"refresh_hz", s.refreshRate(),
		"limiter", s.Scheduler.Mode().String(),
	)
	return nil
}

// Active reports whether the session owns the compositing role.
func (s *Session) Active() bool { return s.active }

// Teardown stops painting, releases every buffer and gives up the role.
func (s *Session) Teardown() {
	if !s.active {
		return
	}
	s.Scheduler.Stop()
	s.Windows.UnredirectAll()
	if s.activator != nil {
		s.activator.Deactivate()
	}
	s.active = false
	s.log.Info("compositing stopped")
}

// HandleOutputChange reloads the screen geometry and refresh rate, which
// resets the pacing state, and repaints everything.
func (s *Session) HandleOutputChange() {
	screen := s.outputs.ScreenRect()
	s.Damage.SetScreen(screen)
	s.Buffers.trackers.each(func(t AgeingDamageBufferObserver) {
		if r, ok := t.(interface{ SetScreen(region.Rect) }); ok {
			r.SetScreen(screen)
		}
	})
	s.Scheduler.SetRefreshRate(s.refreshRate())
	s.Damage.DamageScreen()
	s.log.Info("output configuration changed", "screen", screen.String(), "refresh_hz", s.refreshRate())
}

// Retune applies live-reloadable options.
func (s *Session) Retune(t Tuning) {
	s.Scheduler.SetMode(t.Limiter)
	s.Scheduler.SetForceIndependent(t.ForceIndependentOutputs)
	s.Damage.SetRectLimit(t.RectLimit)
	s.unredirectFullscreen = t.UnredirectFullscreen
	if t.RefreshRate != s.refreshOverride {
		s.refreshOverride = t.RefreshRate
		s.Scheduler.SetRefreshRate(s.refreshRate())
	}
	s.Damage.DamageScreen()
}

// SetLimiterMode switches the limiter mode.
func (s *Session) SetLimiterMode(m LimiterMode) {
	s.Scheduler.SetMode(m)
	s.Damage.DamagePending()
}

// ObserveDamage registers o to see every damage report.
func (s *Session) ObserveDamage(o DamageObserver) { s.Damage.Observe(o) }

// UnobserveDamage removes o.
func (s *Session) UnobserveDamage(o DamageObserver) { s.Damage.Unobserve(o) }

// AddParticipant registers p around every executed paint cycle.
func (s *Session) AddParticipant(p PaintParticipant) { s.Scheduler.AddParticipant(p) }

// RemoveParticipant removes p.
func (s *Session) RemoveParticipant(p PaintParticipant) { s.Scheduler.RemoveParticipant(p) }

// NewFrameRoster returns a roster sized for this session and registers it.
// Callers unobserve it through Buffers when the surface goes away.
func (s *Session) NewFrameRoster(shouldTrack AreaShouldBeMarkedDirty) *FrameRoster {
	r := NewFrameRoster(s.Damage.Screen(), s.frameHistory, shouldTrack)
	s.Buffers.Observe(r)
	return r
}

// MarkPaintedFrameDirty records damage discovered after the frame it
// belongs to was already closed.
func (s *Session) MarkPaintedFrameDirty(r region.Region) error {
	return s.Buffers.MarkAreaDirtyOnLastFrame(r)
}

// RunPaintCycle is the paint timer callback.
func (s *Session) RunPaintCycle() {
	if !s.active {
		s.Scheduler.Stop()
		return
	}
	s.Scheduler.RunPaintCycle()
}

func (s *Session) beforeCycle() {
	s.Windows.ExpireFrameSync()
	s.Windows.UpdateFullscreenUnredirect(s.Damage.Screen(), s.unredirectFullscreen)
}

// Stats is a snapshot of the session for status reporting.
type Stats struct {
	Active            bool          `json:"active"`
	Screen            region.Rect   `json:"screen"`
	Limiter           string        `json:"limiter"`
	RefreshRate       float64       `json:"refresh_rate"`
	OptimalRedrawTime time.Duration `json:"optimal_redraw_time"`
	RedrawTime        time.Duration `json:"redraw_time"`
	TimeMultiplier    int           `json:"time_multiplier"`
	FrameStatus       int           `json:"frame_status"`
	Idle              bool          `json:"idle"`
	FramesPainted     uint64        `json:"frames_painted"`
	IdleCycles        uint64        `json:"idle_cycles"`
	Windows           int           `json:"windows"`
	Redirected        int           `json:"redirected"`
	BuffersBound      int           `json:"buffers_bound"`
	Overlays          int           `json:"overlays"`
	DamageMask        string        `json:"damage_mask"`
	DamageRects       int           `json:"damage_rects"`
	FrameTrackers     int           `json:"frame_trackers"`
}

// Stats returns the current session snapshot.
func (s *Session) Stats() Stats {
	st := s.Scheduler.State()
	painted, idle := s.Scheduler.Frames()
	out := Stats{
		Active:            s.active,
		Screen:            s.Damage.Screen(),
		Limiter:           s.Scheduler.Mode().String(),
		RefreshRate:       s.refreshRate(),
		OptimalRedrawTime: st.OptimalRedrawTime,
		RedrawTime:        st.RedrawTime,
		TimeMultiplier:    st.TimeMultiplier,
		FrameStatus:       st.FrameStatus,
		Idle:              st.Idle,
		FramesPainted:     painted,
		IdleCycles:        idle,
		Windows:           s.Windows.Len(),
		Overlays:          s.Windows.OverlayCount(),
		DamageMask:        s.Damage.Mask().String(),
		DamageRects:       s.Damage.Region().NumRects(),
		FrameTrackers:     s.Buffers.Len(),
	}
	for _, w := range s.Windows.Stack() {
		if w.Redirected {
			out.Redirected++
		}
		if w.BufferBound {
			out.BuffersBound++
		}
	}
	return out
}
