package compositor

import (
	"testing"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

type schedulerFixture struct {
	clock   *manualClock
	timer   *fakeTimer
	painter *recordingPainter
	outputs *fakeOutputs
	damage  *Accumulator
	sched   *Scheduler
}

func newSchedulerFixture(t *testing.T, hz float64) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		clock:   newManualClock(),
		timer:   &fakeTimer{},
		painter: &recordingPainter{},
		outputs: &fakeOutputs{screen: region.R(0, 0, 200, 100)},
	}
	f.damage = NewAccumulator(f.outputs.screen, 0)
	f.sched = NewScheduler(SchedulerConfig{
		Damage:      f.damage,
		Painter:     f.painter,
		Outputs:     f.outputs,
		Timer:       f.timer,
		Now:         f.clock.Now,
		RefreshRate: hz,
	})
	f.damage.OnDamage(f.sched.Schedule)
	return f
}

func TestSetRefreshRate_DerivesOptimalPeriod(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	st := f.sched.State()
	if st.OptimalRedrawTime != 20*time.Millisecond || st.RedrawTime != 20*time.Millisecond {
		t.Fatalf("unexpected periods %v %v", st.OptimalRedrawTime, st.RedrawTime)
	}
	if st.TimeMultiplier != 1 {
		t.Fatalf("expected multiplier 1, got %d", st.TimeMultiplier)
	}

	f.sched.SetRefreshRate(0)
	hz := DefaultRefreshRate
	if got := f.sched.State().OptimalRedrawTime; got != time.Duration(float64(time.Second)/hz) {
		t.Fatalf("expected default period, got %v", got)
	}
}

func TestDelayFor_BacksOffWhenSlow(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.state.Idle = false

	// 50ms is slower than 2x the optimal period.
	f.sched.delayFor(50 * time.Millisecond)
	if st := f.sched.State(); st.TimeMultiplier != 1 || st.FrameStatus != -1 {
		t.Fatalf("first slow frame must only count, got mult=%d status=%d", st.TimeMultiplier, st.FrameStatus)
	}
	f.sched.delayFor(50 * time.Millisecond)
	st := f.sched.State()
	if st.TimeMultiplier != 2 {
		t.Fatalf("expected multiplier 2, got %d", st.TimeMultiplier)
	}
	if st.RedrawTime != 40*time.Millisecond {
		t.Fatalf("expected redraw time 40ms, got %v", st.RedrawTime)
	}
}

func TestDelayFor_ConvergesWithinFiveFastFrames(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.state.Idle = false
	f.sched.delayFor(50 * time.Millisecond)
	f.sched.delayFor(50 * time.Millisecond)
	f.sched.delayFor(70 * time.Millisecond)
	if got := f.sched.State().TimeMultiplier; got != 3 {
		t.Fatalf("setup: expected multiplier 3, got %d", got)
	}

	prev := f.sched.State().TimeMultiplier
	decreasedAt := 0
	for i := 1; i <= 20; i++ {
		f.sched.delayFor(10 * time.Millisecond)
		mult := f.sched.State().TimeMultiplier
		if mult > prev {
			t.Fatalf("multiplier increased on a fast frame: %d -> %d", prev, mult)
		}
		if mult < 1 {
			t.Fatalf("multiplier dropped below 1")
		}
		if mult < prev && decreasedAt == 0 {
			decreasedAt = i
		}
		prev = mult
	}
	if decreasedAt == 0 || decreasedAt > 5 {
		t.Fatalf("expected first decrease within 5 fast frames, got %d", decreasedAt)
	}
	if prev != 1 {
		t.Fatalf("expected multiplier to settle at 1, got %d", prev)
	}
	if got := f.sched.State().RedrawTime; got != 20*time.Millisecond {
		t.Fatalf("expected redraw time back at 20ms, got %v", got)
	}
}

func TestDelayFor_IdleDecaysMultiplier(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.state.Idle = false
	f.sched.delayFor(50 * time.Millisecond)
	f.sched.delayFor(50 * time.Millisecond)

	f.sched.state.Idle = true
	f.sched.delayFor(0)
	st := f.sched.State()
	if st.TimeMultiplier != 1 || st.RedrawTime != 20*time.Millisecond || st.FrameStatus != -1 {
		t.Fatalf("unexpected state after idle frame: %+v", st)
	}
}

func TestDelayFor_ReturnsRemainingTime(t *testing.T) {
	cases := []struct {
		name  string
		vsync bool
		diff  time.Duration
		want  time.Duration
	}{
		{name: "due", diff: 25 * time.Millisecond, want: 0},
		{name: "exact", diff: 20 * time.Millisecond, want: 0},
		{name: "early", diff: 5 * time.Millisecond, want: 15 * time.Millisecond},
		{name: "vsync early", vsync: true, diff: 10 * time.Millisecond, want: time.Duration(float64(10*time.Millisecond) * vsyncWakeFactor)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSchedulerFixture(t, 50)
			f.sched.state.Idle = false
			f.painter.vsync = tc.vsync
			if got := f.sched.delayFor(tc.diff); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTimeToNextRedraw_ClampsClockRollback(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.state.Idle = false
	f.clock.Advance(-time.Second)
	if got := f.sched.TimeToNextRedraw(); got != 20*time.Millisecond {
		t.Fatalf("expected full period after rollback, got %v", got)
	}
}

func TestTimeToNextRedraw_LimiterDisabledDrains(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.SetMode(LimiterDisabled)
	for i := 0; i < 9; i++ {
		f.clock.Advance(10 * time.Millisecond)
		if got := f.sched.TimeToNextRedraw(); got != 0 {
			t.Fatalf("query %d: expected 0, got %v", i, got)
		}
	}
	f.clock.Advance(10 * time.Millisecond)
	if got := f.sched.TimeToNextRedraw(); got != time.Millisecond {
		t.Fatalf("expected a 1ms yield after 100ms, got %v", got)
	}
	f.clock.Advance(10 * time.Millisecond)
	if got := f.sched.TimeToNextRedraw(); got != 0 {
		t.Fatalf("expected drain to restart, got %v", got)
	}
}

func TestRunPaintCycle_IdleWithoutDamage(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.sched.RunPaintCycle()
	if f.painter.prepared != 0 || len(f.painter.calls) != 0 {
		t.Fatalf("painter must not run without damage")
	}
	if !f.sched.State().Idle {
		t.Fatalf("expected idle state")
	}
	if f.timer.delay != idleDelay {
		t.Fatalf("expected idle delay, got %v", f.timer.delay)
	}

	f.clock.Advance(time.Second)
	f.damage.DamageRect(region.R(0, 0, 5, 5))
	if f.timer.delay != 0 {
		t.Fatalf("damage after idle must re-arm immediately, got %v", f.timer.delay)
	}
	if !f.sched.Scheduled() {
		t.Fatalf("expected a scheduled paint")
	}
}

func TestRunPaintCycle_PaintsAndClearsDamage(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	f.damage.DamageRect(region.R(10, 10, 20, 20))
	f.clock.Advance(30 * time.Millisecond)
	f.sched.RunPaintCycle()

	if f.painter.prepared != 1 || len(f.painter.calls) != 1 {
		t.Fatalf("expected one paint, prepared=%d calls=%d", f.painter.prepared, len(f.painter.calls))
	}
	call := f.painter.last()
	if call.mask != MaskRegion || !call.damage.Equal(region.FromRect(region.R(10, 10, 20, 20))) {
		t.Fatalf("unexpected paint call %+v", call)
	}
	if f.damage.Mask() != 0 {
		t.Fatalf("expected damage consumed")
	}
	st := f.sched.State()
	if st.Idle || !st.LastRedraw.Equal(f.clock.Now()) {
		t.Fatalf("unexpected state after paint %+v", st)
	}
	if !f.timer.armed {
		t.Fatalf("expected timer re-armed")
	}
}

func TestRunPaintCycle_DamageDuringPaintGoesToNextCycle(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	late := region.R(50, 50, 5, 5)
	f.painter.during = func() { f.damage.DamageRect(late) }
	f.damage.DamageRect(region.R(0, 0, 5, 5))
	f.sched.RunPaintCycle()

	if f.painter.last().damage.Overlaps(late) {
		t.Fatalf("late damage leaked into the running cycle")
	}
	if !f.damage.Region().Equal(region.FromRect(late)) {
		t.Fatalf("late damage lost, live region=%v", f.damage.Region())
	}

	f.painter.during = nil
	f.clock.Advance(20 * time.Millisecond)
	f.sched.RunPaintCycle()
	if !f.painter.last().damage.Equal(region.FromRect(late)) {
		t.Fatalf("expected late damage in next cycle, got %v", f.painter.last().damage)
	}
}

func TestRunPaintCycle_ParticipantsInOrderWithClampedElapsed(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	var log []string
	a := &recordingParticipant{name: "a", log: &log}
	b := &recordingParticipant{name: "b", log: &log}
	f.sched.AddParticipant(a)
	f.sched.AddParticipant(b)

	f.damage.DamageScreen()
	f.clock.Advance(500 * time.Millisecond)
	f.sched.RunPaintCycle()

	want := []string{"a.prepare", "b.prepare", "a.done", "b.done"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
	if a.elapsed[0] != 20*time.Millisecond {
		t.Fatalf("expected elapsed clamped to the optimal period, got %v", a.elapsed[0])
	}

	f.sched.RemoveParticipant(a)
	log = log[:0]
	f.damage.DamageScreen()
	f.clock.Advance(16 * time.Millisecond)
	f.sched.RunPaintCycle()
	if len(log) != 2 || log[0] != "b.prepare" {
		t.Fatalf("removed participant still called: %v", log)
	}
	if b.elapsed[1] != 16*time.Millisecond {
		t.Fatalf("expected unclamped elapsed, got %v", b.elapsed[1])
	}
}

func TestRunPaintCycle_ExcludesUncomposited(t *testing.T) {
	f := newSchedulerFixture(t, 50)
	overlay := region.FromRect(region.R(0, 0, 100, 100))
	var obscured []region.Region
	f.sched.uncomposited = func() region.Region { return overlay }
	f.sched.obscured = func(r region.Region) { obscured = append(obscured, r) }

	f.damage.DamageScreen()
	f.sched.RunPaintCycle()
	if f.painter.last().damage.Overlaps(region.R(0, 0, 100, 100)) {
		t.Fatalf("overlay area painted: %v", f.painter.last().damage)
	}
	if len(obscured) != 1 || !obscured[0].Equal(overlay) {
		t.Fatalf("expected overlay forwarded as obscured, got %v", obscured)
	}
}

func TestSelectOutputs(t *testing.T) {
	left := Output{ID: 0, Name: "left", Bounds: region.R(0, 0, 100, 100)}
	right := Output{ID: 1, Name: "right", Bounds: region.R(100, 0, 100, 100)}
	mirror := Output{ID: 1, Name: "mirror", Bounds: region.R(0, 0, 100, 100)}

	cases := []struct {
		name    string
		outputs []Output
		force   bool
		wantIDs []int
	}{
		{name: "none", wantIDs: []int{FullscreenOutputID}},
		{name: "side by side", outputs: []Output{left, right}, wantIDs: []int{0, 1}},
		{name: "mirrored", outputs: []Output{left, mirror}, wantIDs: []int{FullscreenOutputID}},
		{name: "mirrored forced", outputs: []Output{left, mirror}, force: true, wantIDs: []int{0, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSchedulerFixture(t, 60)
			f.outputs.outputs = tc.outputs
			f.sched.SetForceIndependent(tc.force)
			got := f.sched.selectOutputs()
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("expected %v, got %+v", tc.wantIDs, got)
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Fatalf("expected %v, got %+v", tc.wantIDs, got)
				}
			}
			if tc.wantIDs[0] == FullscreenOutputID && got[0].Bounds != f.outputs.screen {
				t.Fatalf("fullscreen output must cover the screen, got %v", got[0].Bounds)
			}
		})
	}
}

func TestParseLimiterMode(t *testing.T) {
	cases := map[string]LimiterMode{
		"":         LimiterAdaptive,
		"adaptive": LimiterAdaptive,
		"VSync":    LimiterVSync,
		"disabled": LimiterDisabled,
	}
	for in, want := range cases {
		got, err := ParseLimiterMode(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseLimiterMode("turbo"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestRunPaintCycle_DamageBeforeCycleTakesNoExtraPacingStep(t *testing.T) {
	run := func(t *testing.T, raiseInCycle bool) (*schedulerFixture, TimerState) {
		f := newSchedulerFixture(t, 50)
		f.sched.state.Idle = false
		f.sched.state.TimeMultiplier = 2
		f.sched.state.RedrawTime = 40 * time.Millisecond
		f.sched.state.LastRedraw = f.clock.Now()
		f.clock.Advance(5 * time.Millisecond)

		if raiseInCycle {
			f.sched.Schedule()
			f.sched.beforeCycle = func() { f.damage.DamageRect(region.R(0, 0, 10, 10)) }
		} else {
			f.damage.DamageRect(region.R(0, 0, 10, 10))
		}
		f.sched.RunPaintCycle()
		return f, f.sched.State()
	}

	plain, plainState := run(t, false)
	raised, raisedState := run(t, true)

	if len(raised.painter.calls) != 1 {
		t.Fatalf("expected one paint, got %d", len(raised.painter.calls))
	}
	if raisedState.FrameStatus != plainState.FrameStatus {
		t.Fatalf("frame status %d, want %d", raisedState.FrameStatus, plainState.FrameStatus)
	}
	if raised.timer.resets != plain.timer.resets {
		t.Fatalf("timer resets %d, want %d", raised.timer.resets, plain.timer.resets)
	}
	if !raised.sched.Scheduled() {
		t.Fatalf("expected the cycle to re-arm the timer")
	}
}
