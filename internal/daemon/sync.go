package daemon

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
)

// Forgetter drops per-window resources once a window is gone.
type Forgetter interface {
	Forget(id compositor.WindowID)
}

// FrameSyncer reports whether a window paces its repaints with the window
// manager.
type FrameSyncer interface {
	SupportsFrameSync(id compositor.WindowID) bool
}

// StateSynchronizer mirrors window-system notifications into the session's
// window list. All methods run on the event loop.
type StateSynchronizer struct {
	session *compositor.Session
	root    compositor.WindowID
	syncer  FrameSyncer
	forget  []Forgetter
	logger  *slog.Logger

	// OnFrameSync is called when a window starts holding back damage.
	OnFrameSync func()
}

// NewStateSynchronizer creates a synchronizer for windows parented to root.
func NewStateSynchronizer(session *compositor.Session, root compositor.WindowID, syncer FrameSyncer, logger *slog.Logger, forget ...Forgetter) *StateSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateSynchronizer{
		session: session,
		root:    root,
		syncer:  syncer,
		forget:  forget,
		logger:  logger,
	}
}

func hexID(id compositor.WindowID) string { return fmt.Sprintf("%#x", uint32(id)) }

// ignorable reports errors that only mean the window vanished or is not ours.
func ignorable(err error) bool {
	return errors.Is(err, compositor.ErrUnknownWindow) || errors.Is(err, compositor.ErrNotEligible)
}

func (s *StateSynchronizer) warn(op string, id compositor.WindowID, err error) {
	if err == nil || ignorable(err) {
		return
	}
	s.logger.Warn("window update failed", "op", op, "window", hexID(id), "error", err)
}

// HandleCreate starts tracking a new top-level window.
func (s *StateSynchronizer) HandleCreate(id, parent compositor.WindowID) {
	if parent != s.root {
		return
	}
	_, err := s.session.Windows.Add(id)
	s.warn("add", id, err)
}

// HandleDestroy stops tracking a window.
func (s *StateSynchronizer) HandleDestroy(id compositor.WindowID) {
	if _, ok := s.session.Windows.Get(id); !ok {
		return
	}
	s.warn("remove", id, s.session.Windows.Remove(id))
	for _, f := range s.forget {
		f.Forget(id)
	}
	s.logger.Debug("window closed", "window", hexID(id))
}

// HandleMap marks a window viewable, adding it first if it was missed.
func (s *StateSynchronizer) HandleMap(id compositor.WindowID) {
	if _, ok := s.session.Windows.Get(id); !ok {
		_, err := s.session.Windows.Add(id)
		s.warn("add", id, err)
		return
	}
	s.warn("map", id, s.session.Windows.Map(id))
}

// HandleUnmap marks a window hidden.
func (s *StateSynchronizer) HandleUnmap(id compositor.WindowID) {
	s.warn("unmap", id, s.session.Windows.Unmap(id))
}

// HandleConfigure applies a geometry change and restacks the window above
// sibling. A resize of a frame-synced window holds its damage back until
// the client catches up.
func (s *StateSynchronizer) HandleConfigure(id compositor.WindowID, geometry region.Rect, border int, sibling compositor.WindowID) {
	w, ok := s.session.Windows.Get(id)
	if !ok {
		return
	}
	resized := w.Info.Geometry.Width != geometry.Width || w.Info.Geometry.Height != geometry.Height
	if resized && s.syncer != nil && s.syncer.SupportsFrameSync(id) {
		if err := s.session.Windows.BeginFrameSync(id); err != nil {
			s.warn("frame-sync", id, err)
		} else if s.OnFrameSync != nil {
			s.OnFrameSync()
		}
	}
	s.warn("configure", id, s.session.Windows.Configure(id, geometry, border))
	// Siblings we do not track (InputOnly) say nothing about paint order.
	if _, known := s.session.Windows.Get(sibling); sibling == 0 || known {
		s.warn("restack", id, s.session.Windows.Restack(id, sibling))
	}
}

// HandleReparent follows a window in or out of the root's children.
func (s *StateSynchronizer) HandleReparent(id, parent compositor.WindowID) {
	_, tracked := s.session.Windows.Get(id)
	switch {
	case parent == s.root && tracked:
		s.warn("reparent", id, s.session.Windows.Reparent(id))
	case parent == s.root:
		_, err := s.session.Windows.Add(id)
		s.warn("add", id, err)
	case tracked:
		s.HandleDestroy(id)
	}
}

// HandleProperty reloads a tracked window's state after a property change.
func (s *StateSynchronizer) HandleProperty(id compositor.WindowID) {
	if _, ok := s.session.Windows.Get(id); !ok {
		return
	}
	s.warn("refresh", id, s.session.Windows.Refresh(id))
}

// HandleDamage routes hardware damage of a window. The first damage after a
// synced resize means the client drew its new frame, so it ends the wait.
func (s *StateSynchronizer) HandleDamage(id compositor.WindowID, r region.Rect) {
	s.warn("damage", id, s.session.Windows.HandleDamageEvent(id, r))
	if w, ok := s.session.Windows.Get(id); ok && w.SyncWaiting() {
		s.warn("frame-sync", id, s.session.Windows.FrameSyncReady(id))
	}
}

// HandleExpose repaints an exposed area of the root or overlay window.
func (s *StateSynchronizer) HandleExpose(r region.Rect) {
	s.session.Damage.DamageRect(r)
}

// HandleOutputChange reloads the screen layout.
func (s *StateSynchronizer) HandleOutputChange() {
	s.session.HandleOutputChange()
}

// Reconcile brings the tracked windows in line with the actual top-level
// windows, bottom to top. It returns how many windows were added and removed.
func (s *StateSynchronizer) Reconcile(actual []compositor.WindowID) (added, removed int) {
	present := make(map[compositor.WindowID]bool, len(actual))
	for _, id := range actual {
		present[id] = true
	}
	for _, w := range s.session.Windows.Stack() {
		if !present[w.ID] {
			s.HandleDestroy(w.ID)
			removed++
		}
	}
	var order []compositor.WindowID
	for _, id := range actual {
		if _, ok := s.session.Windows.Get(id); !ok {
			if _, err := s.session.Windows.Add(id); err != nil {
				s.warn("add", id, err)
				continue
			}
			added++
		}
		order = append(order, id)
	}
	if !sameOrder(s.session.Windows.Stack(), order) {
		var below compositor.WindowID
		for _, id := range order {
			s.warn("restack", id, s.session.Windows.Restack(id, below))
			below = id
		}
	}
	return added, removed
}

func sameOrder(stack []*compositor.WindowState, order []compositor.WindowID) bool {
	if len(stack) != len(order) {
		return false
	}
	for i, w := range stack {
		if w.ID != order[i] {
			return false
		}
	}
	return true
}
