package daemon

import (
	"testing"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/paint"
	"github.com/1broseidon/tilecomp/internal/region"
)

type recordingForgetter struct {
	ids []compositor.WindowID
}

func (f *recordingForgetter) Forget(id compositor.WindowID) { f.ids = append(f.ids, id) }

func newTestSync(t *testing.T, b *fakeBackend, forget ...Forgetter) *StateSynchronizer {
	t.Helper()
	s, err := compositor.NewSession(compositor.Options{
		Painter: paint.NewRecorder(nil),
		Source:  b,
		Outputs: b,
		Timer:   newLoopTimer(),
	})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	return NewStateSynchronizer(s, testRoot, b, nil, forget...)
}

func stackIDs(s *StateSynchronizer) []compositor.WindowID {
	var ids []compositor.WindowID
	for _, w := range s.session.Windows.Stack() {
		ids = append(ids, w.ID)
	}
	return ids
}

func equalIDs(a, b []compositor.WindowID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandleCreateOnlyTracksRootChildren(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	b.addWindow(2, region.R(0, 0, 100, 100))
	s := newTestSync(t, b)

	s.HandleCreate(1, testRoot)
	s.HandleCreate(2, 0x999)

	if _, ok := s.session.Windows.Get(1); !ok {
		t.Fatalf("expected root child to be tracked")
	}
	if _, ok := s.session.Windows.Get(2); ok {
		t.Fatalf("expected grandchild to be ignored")
	}
}

func TestHandleCreateIgnoresVanishedWindow(t *testing.T) {
	b := newFakeBackend()
	s := newTestSync(t, b)

	s.HandleCreate(7, testRoot)

	if s.session.Windows.Len() != 0 {
		t.Fatalf("expected no windows, got %d", s.session.Windows.Len())
	}
}

func TestHandleDestroyForgetsResources(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	painter := &recordingForgetter{}
	s := newTestSync(t, b, b, painter)

	s.HandleCreate(1, testRoot)
	s.HandleDestroy(1)
	s.HandleDestroy(1)

	if _, ok := s.session.Windows.Get(1); ok {
		t.Fatalf("expected window to be removed")
	}
	if len(painter.ids) != 1 || painter.ids[0] != 1 {
		t.Fatalf("expected one forget call, got %v", painter.ids)
	}
	if len(b.forgotten) != 1 {
		t.Fatalf("expected backend to forget once, got %v", b.forgotten)
	}
}

func TestHandleMapAddsMissedWindow(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(3, region.R(10, 10, 50, 50))
	s := newTestSync(t, b)

	s.HandleMap(3)

	w, ok := s.session.Windows.Get(3)
	if !ok || !w.Mapped {
		t.Fatalf("expected mapped window, got %+v", w)
	}

	s.HandleUnmap(3)
	if w.Mapped {
		t.Fatalf("expected window to be unmapped")
	}
}

func TestHandleConfigureStartsFrameSyncOnResize(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	b.frameSync[1] = true
	s := newTestSync(t, b)
	calls := 0
	s.OnFrameSync = func() { calls++ }
	s.HandleCreate(1, testRoot)

	s.HandleConfigure(1, region.R(50, 50, 100, 100), 0, 0)
	if calls != 0 {
		t.Fatalf("a move must not start frame sync")
	}

	s.HandleConfigure(1, region.R(50, 50, 200, 150), 0, 0)
	w, _ := s.session.Windows.Get(1)
	if calls != 1 || !w.SyncWaiting() {
		t.Fatalf("expected frame sync after resize, calls=%d waiting=%v", calls, w.SyncWaiting())
	}
	if w.Info.Geometry != region.R(50, 50, 200, 150) {
		t.Fatalf("unexpected geometry %v", w.Info.Geometry)
	}
}

func TestHandleDamageEndsFrameSync(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(50, 50, 100, 100))
	b.frameSync[1] = true
	s := newTestSync(t, b)
	s.HandleCreate(1, testRoot)

	s.HandleConfigure(1, region.R(50, 50, 200, 150), 0, 0)
	w, _ := s.session.Windows.Get(1)
	if !w.SyncWaiting() {
		t.Fatalf("expected frame sync after resize")
	}
	s.session.Damage.Consume(region.Region{})

	s.HandleDamage(1, region.R(0, 0, 10, 10))

	if w.SyncWaiting() {
		t.Fatalf("expected damage to end the frame-sync wait")
	}
	if !s.session.Damage.Region().Contains(region.R(50, 50, 10, 10)) {
		t.Fatalf("expected held damage in screen damage, got %v", s.session.Damage.Region())
	}

	s.HandleDamage(1, region.R(20, 0, 10, 10))
	if !s.session.Damage.Region().Contains(region.R(70, 50, 10, 10)) {
		t.Fatalf("expected later damage to pass straight through, got %v", s.session.Damage.Region())
	}
}

func TestHandleConfigureRestack(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	b.addWindow(2, region.R(0, 0, 100, 100))
	s := newTestSync(t, b)
	s.HandleCreate(1, testRoot)
	s.HandleCreate(2, testRoot)

	tests := []struct {
		name    string
		sibling compositor.WindowID
		want    []compositor.WindowID
	}{
		{name: "untracked sibling keeps order", sibling: 0x999, want: []compositor.WindowID{1, 2}},
		{name: "above tracked sibling", sibling: 2, want: []compositor.WindowID{2, 1}},
		{name: "no sibling moves to bottom", sibling: 0, want: []compositor.WindowID{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.HandleConfigure(1, region.R(0, 0, 100, 100), 0, tt.sibling)
			if got := stackIDs(s); !equalIDs(got, tt.want) {
				t.Fatalf("stack = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleReparent(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	b.addWindow(2, region.R(0, 0, 100, 100))
	s := newTestSync(t, b, b)
	s.HandleCreate(1, testRoot)

	s.HandleReparent(1, 0x555)
	if _, ok := s.session.Windows.Get(1); ok {
		t.Fatalf("expected window reparented away to be dropped")
	}

	s.HandleReparent(2, testRoot)
	if _, ok := s.session.Windows.Get(2); !ok {
		t.Fatalf("expected window reparented to root to be tracked")
	}

	s.HandleReparent(2, testRoot)
	if s.session.Windows.Len() != 1 {
		t.Fatalf("expected one window, got %d", s.session.Windows.Len())
	}
}

func TestHandleDamageUnknownWindowIsIgnored(t *testing.T) {
	b := newFakeBackend()
	s := newTestSync(t, b)

	s.HandleDamage(42, region.R(0, 0, 10, 10))

	if s.session.Damage.Mask() != 0 {
		t.Fatalf("expected no damage, got %v", s.session.Damage.Mask())
	}
}

func TestHandleExposeDamagesArea(t *testing.T) {
	b := newFakeBackend()
	s := newTestSync(t, b)

	s.HandleExpose(region.R(10, 20, 30, 40))

	if s.session.Damage.Mask()&compositor.MaskRegion == 0 {
		t.Fatalf("expected region damage, got %v", s.session.Damage.Mask())
	}
}

func TestReconcile(t *testing.T) {
	b := newFakeBackend()
	for _, id := range []compositor.WindowID{1, 2, 3, 4} {
		b.addWindow(id, region.R(0, 0, 100, 100))
	}
	s := newTestSync(t, b, b)
	s.HandleCreate(1, testRoot)
	s.HandleCreate(2, testRoot)
	s.HandleCreate(3, testRoot)

	added, removed := s.Reconcile([]compositor.WindowID{3, 1, 4})
	if added != 1 || removed != 1 {
		t.Fatalf("Reconcile() = (%d, %d), want (1, 1)", added, removed)
	}
	if got, want := stackIDs(s), []compositor.WindowID{3, 1, 4}; !equalIDs(got, want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}

	added, removed = s.Reconcile([]compositor.WindowID{3, 1, 4})
	if added != 0 || removed != 0 {
		t.Fatalf("second Reconcile() = (%d, %d), want (0, 0)", added, removed)
	}
}

func TestReconcileSkipsVanishedWindows(t *testing.T) {
	b := newFakeBackend()
	b.addWindow(1, region.R(0, 0, 100, 100))
	s := newTestSync(t, b)

	added, _ := s.Reconcile([]compositor.WindowID{1, 9})
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if got := stackIDs(s); !equalIDs(got, []compositor.WindowID{1}) {
		t.Fatalf("stack = %v", got)
	}
}
