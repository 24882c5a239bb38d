//go:build linux

package platform

import (
	"testing"

	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/1broseidon/tilecomp/internal/x11"
)

func TestDisplayFromMonitor(t *testing.T) {
	d := displayFromMonitor(x11.Monitor{ID: 1, Name: "DP-1", X: 1920, Y: 0, Width: 2560, Height: 1440, RefreshRate: 143.9})
	if d.ID != 1 || d.Name != "DP-1" {
		t.Fatalf("unexpected identity %+v", d)
	}
	if d.Bounds != region.R(1920, 0, 2560, 1440) {
		t.Fatalf("unexpected bounds %v", d.Bounds)
	}
	if d.RefreshRate != 143.9 {
		t.Fatalf("expected refresh rate carried over, got %v", d.RefreshRate)
	}
}

func TestNilBackendIsSafe(t *testing.T) {
	var b *LinuxBackend
	if b.XUtil() != nil || b.RootWindow() != 0 {
		t.Fatalf("expected zero values from nil backend")
	}
	if _, err := b.TopLevelWindows(); err == nil {
		t.Fatalf("expected error from nil backend")
	}
	if w := b.Describe(5); w.ID != 5 || w.Title != "" {
		t.Fatalf("unexpected description %+v", w)
	}
}
