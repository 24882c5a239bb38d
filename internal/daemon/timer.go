package daemon

import "time"

// loopTimer is the paint timer. It fires into the event loop's select
// instead of running a callback on its own goroutine.
type loopTimer struct {
	t     *time.Timer
	armed bool
}

func newLoopTimer() *loopTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &loopTimer{t: t}
}

// Reset rearms the timer; a pending expiry is discarded.
func (l *loopTimer) Reset(d time.Duration) {
	l.Stop()
	if d < 0 {
		d = 0
	}
	l.t.Reset(d)
	l.armed = true
}

func (l *loopTimer) Stop() {
	if !l.t.Stop() {
		select {
		case <-l.t.C:
		default:
		}
	}
	l.armed = false
}

// Armed reports whether the timer has been reset since it last fired or
// was stopped.
func (l *loopTimer) Armed() bool { return l.armed }

// C returns the expiry channel. The receiver must call fired afterwards.
func (l *loopTimer) C() <-chan time.Time { return l.t.C }

func (l *loopTimer) fired() { l.armed = false }
