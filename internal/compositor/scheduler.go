package compositor

import (
	"fmt"
	"strings"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

// LimiterMode selects how the scheduler paces paint cycles.
type LimiterMode int

const (
	// LimiterAdaptive converges on the refresh period with hysteresis.
	LimiterAdaptive LimiterMode = iota
	// LimiterVSync assumes the paint backend blocks on vertical retrace.
	LimiterVSync
	// LimiterDisabled paints as soon as possible.
	LimiterDisabled
)

func (m LimiterMode) String() string {
	switch m {
	case LimiterVSync:
		return "vsync"
	case LimiterDisabled:
		return "disabled"
	default:
		return "adaptive"
	}
}

// ParseLimiterMode parses the configuration spelling of a limiter mode.
func ParseLimiterMode(s string) (LimiterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "adaptive":
		return LimiterAdaptive, nil
	case "vsync":
		return LimiterVSync, nil
	case "disabled", "off", "none":
		return LimiterDisabled, nil
	}
	return LimiterAdaptive, fmt.Errorf("unknown fps limiter mode %q", s)
}

const (
	// DefaultRefreshRate is used when no refresh rate is known.
	DefaultRefreshRate = 60.0

	idleDelay       = time.Hour
	drainThreshold  = 100 * time.Millisecond
	maxElapsed      = 100 * time.Millisecond
	vsyncWakeFactor = 0.7

	slowFramesBeforeBackoff = -1
	fastFramesBeforeSpeedup = 4
)

// TimerState is the pacing state carried between paint cycles.
type TimerState struct {
	LastRedraw        time.Time
	RedrawTime        time.Duration
	OptimalRedrawTime time.Duration
	TimeMultiplier    int
	FrameStatus       int
	Idle              bool
}

// Scheduler decides when the next paint cycle runs and executes it.
type Scheduler struct {
	state TimerState
	mode  LimiterMode

	damage  *Accumulator
	painter PaintHandler
	outputs OutputSource
	timer   Timer
	now     func() time.Time

	// uncomposited returns the area currently bypassing composition.
	uncomposited func() region.Region
	// obscured receives the area removed from the consumed damage.
	obscured func(region.Region)
	// beforeCycle runs at the start of every timer expiry, before the idle check.
	beforeCycle func()
	// afterPaint runs once the participants are done with an executed cycle.
	afterPaint func()

	forceIndependent bool
	participants     handlerList[PaintParticipant]

	scheduled bool
	idleArmed bool
	painting  bool

	drained   time.Duration
	lastQuery time.Time

	frames  uint64
	skipped uint64
}

// SchedulerConfig collects the collaborators of a Scheduler.
type SchedulerConfig struct {
	Damage           *Accumulator
	Painter          PaintHandler
	Outputs          OutputSource
	Timer            Timer
	Now              func() time.Time
	Mode             LimiterMode
	RefreshRate      float64
	ForceIndependent bool
}

// NewScheduler creates an idle scheduler. The timer is not armed until the
// first call to Schedule.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		mode:             cfg.Mode,
		damage:           cfg.Damage,
		painter:          cfg.Painter,
		outputs:          cfg.Outputs,
		timer:            cfg.Timer,
		now:              now,
		forceIndependent: cfg.ForceIndependent,
	}
	s.state.Idle = true
	s.state.LastRedraw = now()
	s.lastQuery = s.state.LastRedraw
	s.SetRefreshRate(cfg.RefreshRate)
	return s
}

// SetRefreshRate recomputes the optimal period and resets the pacing state.
func (s *Scheduler) SetRefreshRate(hz float64) {
	if hz <= 0 {
		hz = DefaultRefreshRate
	}
	s.state.OptimalRedrawTime = time.Duration(float64(time.Second) / hz)
	s.state.RedrawTime = s.state.OptimalRedrawTime
	s.state.TimeMultiplier = 1
	s.state.FrameStatus = 0
}

// SetMode switches the limiter mode.
func (s *Scheduler) SetMode(m LimiterMode) {
	s.mode = m
	s.drained = 0
	s.lastQuery = s.now()
}

// Mode returns the active limiter mode.
func (s *Scheduler) Mode() LimiterMode { return s.mode }

// SetForceIndependent toggles per-output painting for overlapping outputs.
func (s *Scheduler) SetForceIndependent(v bool) { s.forceIndependent = v }

// State returns a copy of the pacing state.
func (s *Scheduler) State() TimerState { return s.state }

// Frames returns the number of executed and skipped (idle) cycles.
func (s *Scheduler) Frames() (painted, idle uint64) { return s.frames, s.skipped }

// AddParticipant registers p after all existing participants.
func (s *Scheduler) AddParticipant(p PaintParticipant) { s.participants.add(p) }

// RemoveParticipant removes p by identity.
func (s *Scheduler) RemoveParticipant(p PaintParticipant) { s.participants.remove(p) }

func (s *Scheduler) vsyncLike() bool {
	if s.mode == LimiterVSync {
		return true
	}
	return s.painter != nil && s.painter.HasVSync()
}

// TimeToNextRedraw returns how long to wait before the next paint cycle.
func (s *Scheduler) TimeToNextRedraw() time.Duration {
	now := s.now()
	if s.mode == LimiterDisabled {
		return s.drain(now)
	}
	diff := now.Sub(s.state.LastRedraw)
	if diff < 0 {
		diff = 0
	}
	return s.delayFor(diff)
}

// drain returns 0 until the time accumulated since the previous query
// crosses the drain threshold, then yields for one millisecond.
func (s *Scheduler) drain(now time.Time) time.Duration {
	d := now.Sub(s.lastQuery)
	if d < 0 {
		d = 0
	}
	s.lastQuery = now
	s.drained += d
	if s.drained >= drainThreshold {
		s.drained = 0
		return time.Millisecond
	}
	return 0
}

func (s *Scheduler) delayFor(diff time.Duration) time.Duration {
	st := &s.state
	vsync := s.vsyncLike()

	if st.Idle || vsync {
		if st.TimeMultiplier > 1 {
			st.TimeMultiplier--
			st.RedrawTime = st.OptimalRedrawTime
		}
		st.FrameStatus = -1
	} else if diff > st.RedrawTime {
		if st.FrameStatus > 0 {
			st.FrameStatus = 0
		}
		next := st.OptimalRedrawTime * time.Duration(st.TimeMultiplier+1)
		if diff > next {
			st.FrameStatus--
			if st.FrameStatus < slowFramesBeforeBackoff {
				st.TimeMultiplier++
				st.RedrawTime = next
				diff = next
			}
		}
	} else if diff < st.RedrawTime {
		if st.FrameStatus < 0 {
			st.FrameStatus = 0
		}
		if st.TimeMultiplier > 1 {
			next := st.OptimalRedrawTime * time.Duration(st.TimeMultiplier-1)
			if diff < next {
				st.FrameStatus++
				if st.FrameStatus > fastFramesBeforeSpeedup {
					st.TimeMultiplier--
					st.RedrawTime = next
				}
			}
		}
	}

	if diff >= st.RedrawTime {
		return 0
	}
	wait := st.RedrawTime - diff
	if vsync {
		wait = time.Duration(float64(wait) * vsyncWakeFactor)
	}
	return wait
}

// Schedule arms the paint timer unless a cycle is already armed or running.
// An idle wait is replaced by a regular delay.
func (s *Scheduler) Schedule() {
	if s.painting {
		// The running cycle re-arms on completion and the new damage is
		// already outside the region it consumed.
		return
	}
	if s.scheduled && !s.idleArmed {
		return
	}
	s.scheduled = true
	s.idleArmed = false
	if s.timer != nil {
		s.timer.Reset(s.TimeToNextRedraw())
	}
}

// Scheduled reports whether the timer is armed for a real paint.
func (s *Scheduler) Scheduled() bool { return s.scheduled && !s.idleArmed }

// Stop disarms the timer.
func (s *Scheduler) Stop() {
	s.scheduled = false
	s.idleArmed = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

// RunPaintCycle is the timer callback. It paints the accumulated damage, or
// marks the scheduler idle and waits for damage when there is none.
func (s *Scheduler) RunPaintCycle() {
	s.scheduled = false
	s.idleArmed = false
	if s.beforeCycle != nil {
		// Damage raised here is painted by this cycle, so Schedule must not
		// take a pacing step for it.
		s.scheduled = true
		s.beforeCycle()
		s.scheduled = false
		s.idleArmed = false
	}

	if s.damage.Mask() == 0 {
		s.state.Idle = true
		s.skipped++
		s.scheduled = true
		s.idleArmed = true
		if s.timer != nil {
			s.timer.Reset(idleDelay)
		}
		return
	}

	s.painting = true
	s.painter.PrepareDrawing()

	now := s.now()
	elapsed := now.Sub(s.state.LastRedraw)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > maxElapsed {
		elapsed = s.state.OptimalRedrawTime
	}
	s.participants.each(func(p PaintParticipant) {
		p.PreparePaint(elapsed)
	})

	var uncomposited region.Region
	if s.uncomposited != nil {
		uncomposited = s.uncomposited()
	}
	mask, damage := s.damage.Consume(uncomposited)
	if s.obscured != nil && !uncomposited.IsEmpty() {
		s.obscured(uncomposited)
	}

	s.painter.PaintOutputs(s.selectOutputs(), mask, damage)
	s.participants.each(func(p PaintParticipant) {
		p.DonePaint()
	})
	if s.afterPaint != nil {
		s.afterPaint()
	}
	s.painting = false

	s.frames++
	s.state.Idle = false
	s.state.LastRedraw = now
	s.scheduled = true
	if s.timer != nil {
		s.timer.Reset(s.TimeToNextRedraw())
	}
}

// selectOutputs collapses overlapping outputs into one fullscreen output
// unless independent painting is forced.
func (s *Scheduler) selectOutputs() []Output {
	screen := s.damage.Screen()
	fullscreen := []Output{{ID: FullscreenOutputID, Name: "fullscreen", Bounds: screen}}
	if s.outputs == nil {
		return fullscreen
	}
	outs := s.outputs.Outputs()
	if len(outs) == 0 {
		return fullscreen
	}
	if s.forceIndependent || !outputsOverlap(outs) {
		return outs
	}
	return fullscreen
}

func outputsOverlap(outs []Output) bool {
	for i := range outs {
		for j := i + 1; j < len(outs); j++ {
			if outs[i].Bounds.Overlaps(outs[j].Bounds) {
				return true
			}
		}
	}
	return false
}
