package x11

import (
	"fmt"
	"sort"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
	// RefreshRate is the rate of the active mode in Hz, 0 if unknown.
	RefreshRate float64
}

// Bounds returns the monitor rectangle in screen coordinates.
func (m Monitor) Bounds() region.Rect {
	return region.R(m.X, m.Y, m.Width, m.Height)
}

// RandR mode flags affecting the effective vertical rate.
const (
	modeFlagInterlace  = 1 << 4
	modeFlagDoubleScan = 1 << 5
)

// modeRefreshRate derives the vertical refresh rate of a mode from its timings.
func modeRefreshRate(dotClock uint32, hTotal, vTotal uint16, flags uint32) float64 {
	if dotClock == 0 || hTotal == 0 || vTotal == 0 {
		return 0
	}
	v := float64(vTotal)
	if flags&modeFlagDoubleScan != 0 {
		v *= 2
	}
	if flags&modeFlagInterlace != 0 {
		v /= 2
	}
	return float64(dotClock) / (float64(hTotal) * v)
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if !c.hasRandR {
		if err := randr.Init(c.XUtil.Conn()); err != nil {
			return nil, fmt.Errorf("randr init failed: %w", err)
		}
		c.hasRandR = true
	}

	// Get screen resources
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	rates := make(map[uint32]float64, len(resources.Modes))
	for _, mode := range resources.Modes {
		rates[mode.Id] = modeRefreshRate(mode.DotClock, mode.Htotal, mode.Vtotal, mode.ModeFlags)
	}

	var monitors []Monitor

	// Query each CRTC for active monitors
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		// Get output name
		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		monitors = append(monitors, Monitor{
			ID:          i,
			Name:        outputName,
			X:           int(crtcInfo.X),
			Y:           int(crtcInfo.Y),
			Width:       int(crtcInfo.Width),
			Height:      int(crtcInfo.Height),
			RefreshRate: rates[uint32(crtcInfo.Mode)],
		})
	}

	sort.Slice(monitors, func(i, j int) bool { return monitors[i].ID < monitors[j].ID })
	return monitors, nil
}

// ScreenRect returns the root window rectangle.
func (c *Connection) ScreenRect() region.Rect {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.Root)).Reply()
	if err != nil {
		s := c.XUtil.Screen()
		return region.R(0, 0, int(s.WidthInPixels), int(s.HeightInPixels))
	}
	return region.R(0, 0, int(geom.Width), int(geom.Height))
}

// Outputs returns the active monitors as compositor outputs. Without RandR
// the whole screen is a single output.
func (c *Connection) Outputs() []compositor.Output {
	monitors, err := c.GetMonitors()
	if err != nil || len(monitors) == 0 {
		return []compositor.Output{{ID: 0, Name: "screen", Bounds: c.ScreenRect()}}
	}
	outs := make([]compositor.Output, 0, len(monitors))
	for _, m := range monitors {
		outs = append(outs, compositor.Output{ID: m.ID, Name: m.Name, Bounds: m.Bounds()})
	}
	return outs
}

// RefreshRate returns the slowest refresh rate among active monitors, the
// screen configuration rate when mode timings are unavailable, or 0.
func (c *Connection) RefreshRate() float64 {
	var slowest float64
	if monitors, err := c.GetMonitors(); err == nil {
		for _, m := range monitors {
			if m.RefreshRate > 0 && (slowest == 0 || m.RefreshRate < slowest) {
				slowest = m.RefreshRate
			}
		}
	}
	if slowest > 0 {
		return slowest
	}
	if !c.hasRandR {
		return 0
	}
	info, err := randr.GetScreenInfo(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return 0
	}
	return float64(info.Rate)
}

// WatchOutputs asks for screen change notifications on the root window.
func (c *Connection) WatchOutputs() error {
	if !c.hasRandR {
		return nil
	}
	return randr.SelectInputChecked(c.XUtil.Conn(), c.Root, randr.NotifyMaskScreenChange|randr.NotifyMaskCrtcChange).Check()
}
