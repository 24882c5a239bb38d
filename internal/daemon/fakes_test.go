package daemon

import (
	"fmt"
	"sync"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/platform"
	"github.com/1broseidon/tilecomp/internal/region"
)

const testRoot compositor.WindowID = 0x100

type fakeBackend struct {
	mu          sync.Mutex
	screen      region.Rect
	windows     map[compositor.WindowID]compositor.WindowInfo
	order       []compositor.WindowID
	frameSync   map[compositor.WindowID]bool
	forgotten   []compositor.WindowID
	activated   int
	deactivated int
	activateErr error
}

var _ platform.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		screen:    region.R(0, 0, 1920, 1080),
		windows:   make(map[compositor.WindowID]compositor.WindowInfo),
		frameSync: make(map[compositor.WindowID]bool),
	}
}

// addWindow creates a viewable window on top of the stack.
func (b *fakeBackend) addWindow(id compositor.WindowID, geom region.Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[id] = compositor.WindowInfo{Geometry: geom, Viewable: true}
	b.order = append(b.order, id)
}

func (b *fakeBackend) removeWindow(id compositor.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, id)
	for i, w := range b.order {
		if w == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *fakeBackend) WindowInfo(id compositor.WindowID) (compositor.WindowInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.windows[id]
	if !ok {
		return compositor.WindowInfo{}, fmt.Errorf("bad window %#x", uint32(id))
	}
	return info, nil
}

func (b *fakeBackend) ScreenRect() region.Rect { return b.screen }

func (b *fakeBackend) Outputs() []compositor.Output {
	return []compositor.Output{{ID: 0, Name: "DP-1", Bounds: b.screen}}
}

func (b *fakeBackend) RefreshRate() float64 { return 60 }

func (b *fakeBackend) Redirect(id compositor.WindowID) error   { return nil }
func (b *fakeBackend) Unredirect(id compositor.WindowID) error { return nil }

func (b *fakeBackend) Bind(id compositor.WindowID) (compositor.BufferHandle, error) {
	return compositor.BufferHandle(id), nil
}

func (b *fakeBackend) Release(id compositor.WindowID, h compositor.BufferHandle) {}

func (b *fakeBackend) UpdateOutputShape(uncomposited region.Region) error { return nil }

func (b *fakeBackend) Activate(replace bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activateErr != nil {
		return b.activateErr
	}
	b.activated++
	return nil
}

func (b *fakeBackend) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deactivated++
}

func (b *fakeBackend) Displays() ([]platform.Display, error) {
	return []platform.Display{{ID: 0, Name: "DP-1", Bounds: b.screen, RefreshRate: 60}}, nil
}

func (b *fakeBackend) TopLevelWindows() ([]compositor.WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]compositor.WindowID(nil), b.order...), nil
}

func (b *fakeBackend) Describe(id compositor.WindowID) platform.Window {
	return platform.Window{ID: id, AppID: "xterm", Title: fmt.Sprintf("term %d", id)}
}

func (b *fakeBackend) SupportsFrameSync(id compositor.WindowID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameSync[id]
}

func (b *fakeBackend) Forget(id compositor.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgotten = append(b.forgotten, id)
}

func (b *fakeBackend) counts() (activated, deactivated int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activated, b.deactivated
}

// fakeEvents plays the window-system event loop. inject runs fn between
// the before and after pings, the way X handlers run.
type fakeEvents struct {
	before chan struct{}
	after  chan struct{}
	quit   chan struct{}

	once   sync.Once
	quitCh chan struct{}
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		before: make(chan struct{}),
		after:  make(chan struct{}),
		quit:   make(chan struct{}),
		quitCh: make(chan struct{}),
	}
}

func (e *fakeEvents) Pump() (before, after, quit <-chan struct{}) {
	return e.before, e.after, e.quit
}

func (e *fakeEvents) Quit() { e.once.Do(func() { close(e.quitCh) }) }

func (e *fakeEvents) inject(fn func()) {
	e.before <- struct{}{}
	fn()
	e.after <- struct{}{}
}
