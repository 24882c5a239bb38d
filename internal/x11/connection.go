package x11

import (
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
)

// Connection manages the X11 connection and core X resources
type Connection struct {
	XUtil  *xgbutil.XUtil
	Root   xproto.Window
	Screen int

	// ShadowMargin widens the output extents of normal windows.
	ShadowMargin int

	extensionsReady bool
	hasRandR        bool
}

// NewConnection establishes a connection to the X11 server. An empty
// display uses $DISPLAY.
func NewConnection(display string) (*Connection, error) {
	var (
		xu  *xgbutil.XUtil
		err error
	)
	if display == "" {
		xu, err = xgbutil.NewConn()
	} else {
		xu, err = xgbutil.NewConnDisplay(display)
	}
	if err != nil {
		return nil, err
	}

	// Initialize keybind module (required for global hotkeys)
	keybind.Initialize(xu)

	return &Connection{
		XUtil:  xu,
		Root:   xu.RootWin(),
		Screen: xu.Conn().DefaultScreen,
	}, nil
}

type extension struct {
	name  string
	init  func() error
	check func() error
}

// InitExtensions initializes the extensions compositing depends on. A
// missing extension is reported as compositor.ErrCapabilityMissing.
func (c *Connection) InitExtensions() error {
	if c.extensionsReady {
		return nil
	}
	conn := c.XUtil.Conn()
	required := []extension{
		{
			name: "Composite",
			init: func() error { return composite.Init(conn) },
			check: func() error {
				v, err := composite.QueryVersion(conn, 0, 4).Reply()
				if err != nil {
					return err
				}
				if v.MajorVersion == 0 && v.MinorVersion < 2 {
					return fmt.Errorf("version %d.%d lacks NameWindowPixmap", v.MajorVersion, v.MinorVersion)
				}
				return nil
			},
		},
		{
			name: "DAMAGE",
			init: func() error { return damage.Init(conn) },
			check: func() error {
				_, err := damage.QueryVersion(conn, 1, 1).Reply()
				return err
			},
		},
		{
			name: "XFIXES",
			init: func() error { return xfixes.Init(conn) },
			check: func() error {
				v, err := xfixes.QueryVersion(conn, 2, 0).Reply()
				if err != nil {
					return err
				}
				if v.MajorVersion < 2 {
					return fmt.Errorf("version %d.%d lacks regions", v.MajorVersion, v.MinorVersion)
				}
				return nil
			},
		},
		{
			name: "RENDER",
			init: func() error { return render.Init(conn) },
			check: func() error {
				_, err := render.QueryVersion(conn, 0, 11).Reply()
				return err
			},
		},
		{
			name:  "SHAPE",
			init:  func() error { return shape.Init(conn) },
			check: func() error { return nil },
		},
	}
	for _, ext := range required {
		if err := ext.init(); err != nil {
			return fmt.Errorf("%s extension: %v: %w", ext.name, err, compositor.ErrCapabilityMissing)
		}
		if err := ext.check(); err != nil {
			return fmt.Errorf("%s extension: %v: %w", ext.name, err, compositor.ErrCapabilityMissing)
		}
	}

	// RandR is optional: without it the screen is treated as one output.
	c.hasRandR = randr.Init(conn) == nil
	c.extensionsReady = true
	return nil
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
