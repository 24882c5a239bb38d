package paint

import (
	"log/slog"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
)

// Frame is one paint cycle as seen by the Recorder.
type Frame struct {
	Outputs []compositor.Output
	Mask    compositor.DamageMask
	Damage  region.Region
	// Age and Repaint describe the back buffer the frame would have used.
	Age     int
	Repaint region.Region
}

// Recorder is a paint handler that draws nothing. It keeps the last frames
// and simulates back-buffer ages, which makes it useful for dry runs.
type Recorder struct {
	VSync bool
	// Keep bounds the retained frames; 0 keeps everything.
	Keep int

	log    *slog.Logger
	ring   *bufferRing
	roster *compositor.FrameRoster
	screen func() region.Rect

	frames   []Frame
	prepared int
}

// NewRecorder returns a recorder logging each frame at debug level.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: logger, ring: newBufferRing(DefaultBackBuffers)}
}

// Attach gives the recorder a frame roster of the session.
func (r *Recorder) Attach(s *compositor.Session) {
	r.roster = s.NewFrameRoster(nil)
	r.screen = s.Damage.Screen
}

// Invalidate forgets all simulated back-buffer contents.
func (r *Recorder) Invalidate() { r.ring.invalidate() }

// PrepareDrawing counts calls.
func (r *Recorder) PrepareDrawing() { r.prepared++ }

// PaintOutputs records the frame.
func (r *Recorder) PaintOutputs(outputs []compositor.Output, mask compositor.DamageMask, damage region.Region) {
	var screen region.Rect
	if r.screen != nil {
		screen = r.screen()
	} else {
		screen = damage.Bounds()
	}
	age := r.ring.age()
	f := Frame{
		Outputs: append([]compositor.Output(nil), outputs...),
		Mask:    mask,
		Damage:  damage,
		Age:     age,
		Repaint: repaintArea(age, r.roster, mask, damage, screen),
	}
	r.ring.present()

	r.frames = append(r.frames, f)
	if r.Keep > 0 && len(r.frames) > r.Keep {
		r.frames = append(r.frames[:0], r.frames[len(r.frames)-r.Keep:]...)
	}
	r.log.Debug("frame",
		"outputs", len(outputs),
		"mask", mask.String(),
		"damage", damage.String(),
		"age", age,
		"repaint_area", f.Repaint.Area(),
	)
}

// HasVSync reports the configured value.
func (r *Recorder) HasVSync() bool { return r.VSync }

// Frames returns a copy of the retained frames.
func (r *Recorder) Frames() []Frame {
	return append([]Frame(nil), r.frames...)
}

// Prepared returns how many times PrepareDrawing ran.
func (r *Recorder) Prepared() int { return r.prepared }
