package platform

import (
	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
)

// WindowID is a platform-neutral window identifier.
type WindowID = compositor.WindowID

// Rect describes a rectangular region in screen coordinates.
type Rect = region.Rect

// Display describes a physical display.
type Display struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Bounds      Rect    `json:"bounds"`
	RefreshRate float64 `json:"refresh_rate"`
}

// Window contains descriptive metadata for a top-level window.
type Window struct {
	ID    WindowID `json:"id"`
	PID   int      `json:"pid,omitempty"`
	AppID string   `json:"app_id,omitempty"`
	Title string   `json:"title,omitempty"`
}

// DamageFunc receives hardware damage relative to a window's content origin.
type DamageFunc func(id WindowID, r Rect)

// Backend abstracts the window-system operations a compositing session needs.
type Backend interface {
	compositor.WindowSource
	compositor.OutputSource
	compositor.BufferBinder
	compositor.OutputShaper
	compositor.Activator

	Displays() ([]Display, error)
	TopLevelWindows() ([]WindowID, error)
	Describe(id WindowID) Window
	SupportsFrameSync(id WindowID) bool
	// Forget drops per-window server resources of a destroyed window.
	Forget(id WindowID)
}
