package paint

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/xproto"
)

type backBuffer struct {
	pixmap  xproto.Pixmap
	picture render.Picture
}

type windowPicture struct {
	buffer  compositor.BufferHandle
	picture render.Picture
}

// XRender composites window pixmaps into alternating back buffers and
// copies the repainted area onto the overlay window.
type XRender struct {
	conn   *xgb.Conn
	root   xproto.Window
	depth  byte
	visual xproto.Visualid
	target xproto.Window
	log    *slog.Logger

	windows  *compositor.Windows
	roster   *compositor.FrameRoster
	markLate func(region.Region) error
	detach   func()
	screen   func() region.Rect

	formats   map[xproto.Visualid]render.Pictformat
	targetPic render.Picture
	backs     []backBuffer
	size      region.Rect
	ring      *bufferRing
	pictures  map[compositor.WindowID]windowPicture
	late      region.Region
	held      []compositor.WindowID
}

// XRenderConfig describes the drawing target of an XRender painter.
type XRenderConfig struct {
	Conn   *xgb.Conn
	Root   xproto.Window
	Depth  byte
	Visual xproto.Visualid
	Logger *slog.Logger
}

// NewXRender returns a painter without a target. Call Attach and then
// SetTarget once the overlay window exists.
func NewXRender(cfg XRenderConfig) *XRender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &XRender{
		conn:     cfg.Conn,
		root:     cfg.Root,
		depth:    cfg.Depth,
		visual:   cfg.Visual,
		log:      logger,
		ring:     newBufferRing(DefaultBackBuffers),
		pictures: make(map[compositor.WindowID]windowPicture),
	}
}

// Attach connects the painter to a session's windows and frame history.
func (p *XRender) Attach(s *compositor.Session) {
	p.windows = s.Windows
	p.roster = s.NewFrameRoster(nil)
	p.markLate = s.MarkPaintedFrameDirty
	p.screen = s.Damage.Screen
	roster := p.roster
	p.detach = func() { s.Buffers.Unobserve(roster) }
}

// SetTarget prepares drawing onto the given window. A zero window detaches
// the painter from its target.
func (p *XRender) SetTarget(target xproto.Window) error {
	p.freeTarget()
	p.target = target
	if target == 0 {
		return nil
	}
	if p.formats == nil {
		formats, err := queryFormats(p.conn)
		if err != nil {
			return err
		}
		p.formats = formats
	}
	format, ok := p.formats[p.visual]
	if !ok {
		return fmt.Errorf("no picture format for root visual %#x", uint32(p.visual))
	}
	pic, err := render.NewPictureId(p.conn)
	if err != nil {
		return fmt.Errorf("target picture id: %w", err)
	}
	err = render.CreatePictureChecked(p.conn, pic, xproto.Drawable(target), format,
		render.CpSubwindowMode, []uint32{xproto.SubwindowModeIncludeInferiors}).Check()
	if err != nil {
		return fmt.Errorf("target picture: %w", err)
	}
	p.targetPic = pic
	return nil
}

func queryFormats(conn *xgb.Conn) (map[xproto.Visualid]render.Pictformat, error) {
	reply, err := render.QueryPictFormats(conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("query picture formats: %w", err)
	}
	formats := make(map[xproto.Visualid]render.Pictformat)
	for _, s := range reply.Screens {
		for _, d := range s.Depths {
			for _, v := range d.Visuals {
				formats[v.Visual] = v.Format
			}
		}
	}
	return formats, nil
}

// ensureBackBuffers (re)creates the back buffers at the screen size.
func (p *XRender) ensureBackBuffers(screen region.Rect) error {
	if len(p.backs) > 0 && p.size == screen {
		return nil
	}
	p.freeBackBuffers()
	format, ok := p.formats[p.visual]
	if !ok {
		return fmt.Errorf("no picture format for root visual %#x", uint32(p.visual))
	}
	for i := 0; i < len(p.ring.painted); i++ {
		pix, err := xproto.NewPixmapId(p.conn)
		if err != nil {
			return fmt.Errorf("back buffer pixmap id: %w", err)
		}
		err = xproto.CreatePixmapChecked(p.conn, p.depth, pix, xproto.Drawable(p.root),
			uint16(screen.Width), uint16(screen.Height)).Check()
		if err != nil {
			return fmt.Errorf("back buffer pixmap: %w", err)
		}
		pic, err := render.NewPictureId(p.conn)
		if err != nil {
			xproto.FreePixmap(p.conn, pix)
			return fmt.Errorf("back buffer picture id: %w", err)
		}
		render.CreatePicture(p.conn, pic, xproto.Drawable(pix), format, 0, nil)
		p.backs = append(p.backs, backBuffer{pixmap: pix, picture: pic})
	}
	p.size = screen
	p.ring.invalidate()
	return nil
}

// PrepareDrawing reports damage that the previous frame missed.
func (p *XRender) PrepareDrawing() {
	if p.late.IsEmpty() || p.markLate == nil {
		return
	}
	if err := p.markLate(p.late); err != nil {
		p.log.Debug("late damage not recorded", "error", err)
	}
	p.late = region.Region{}
}

// PaintOutputs repaints the stale part of the next back buffer and presents it.
func (p *XRender) PaintOutputs(outputs []compositor.Output, mask compositor.DamageMask, damage region.Region) {
	if p.targetPic == 0 || p.windows == nil {
		return
	}
	screen := p.screen()
	if err := p.ensureBackBuffers(screen); err != nil {
		p.log.Warn("back buffers unavailable", "error", err)
		return
	}
	back := p.backs[p.ring.next]
	area := repaintArea(p.ring.age(), p.roster, mask, damage, screen)

	for _, out := range outputs {
		clip := area.IntersectRect(out.Bounds)
		if clip.IsEmpty() {
			continue
		}
		p.paintRegion(back, clip)
	}

	rects := toXRects(area.Rects())
	if len(rects) > 0 {
		render.SetPictureClipRectangles(p.conn, p.targetPic, 0, 0, rects)
		render.Composite(p.conn, render.PictOpSrc, back.picture, 0, p.targetPic,
			0, 0, 0, 0, 0, 0, uint16(screen.Width), uint16(screen.Height))
	}
	p.ring.present()

	for _, id := range p.held {
		if err := p.windows.DropReference(id); err != nil && !errors.Is(err, compositor.ErrUnknownWindow) {
			p.log.Debug("drop buffer reference", "window", fmt.Sprintf("%#x", uint32(id)), "error", err)
		}
	}
	p.held = p.held[:0]
}

func (p *XRender) paintRegion(back backBuffer, clip region.Region) {
	rects := toXRects(clip.Rects())
	render.SetPictureClipRectangles(p.conn, back.picture, 0, 0, rects)
	render.FillRectangles(p.conn, render.PictOpSrc, back.picture, render.Color{Alpha: 0xffff}, rects)

	for _, w := range p.windows.Stack() {
		if !w.Mapped || !w.Redirected || w.Overlay {
			continue
		}
		g := w.Info.Geometry
		b := w.Info.Border
		outer := region.R(g.X, g.Y, g.Width+2*b, g.Height+2*b)
		if !clip.Overlaps(outer) {
			continue
		}
		h, err := p.windows.Bind(w.ID)
		if err != nil {
			// A window that already failed stays skipped until its next map.
			if errors.Is(err, compositor.ErrBindFailed) {
				continue
			}
			if !errors.Is(err, compositor.ErrNotViewable) {
				p.log.Debug("window skipped", "window", fmt.Sprintf("%#x", uint32(w.ID)), "error", err)
			}
			p.late = p.late.UnionRect(outer)
			continue
		}
		pic, err := p.windowPicture(w.ID, h)
		if err != nil {
			p.log.Debug("window picture", "window", fmt.Sprintf("%#x", uint32(w.ID)), "error", err)
			p.late = p.late.UnionRect(outer)
			continue
		}
		if err := p.windows.HoldReference(w.ID); err == nil {
			p.held = append(p.held, w.ID)
		}
		op := byte(render.PictOpOver)
		if w.Info.Opaque {
			op = render.PictOpSrc
		}
		render.Composite(p.conn, op, pic, 0, back.picture,
			0, 0, 0, 0, int16(outer.X), int16(outer.Y), uint16(outer.Width), uint16(outer.Height))
	}
}

func (p *XRender) windowPicture(id compositor.WindowID, h compositor.BufferHandle) (render.Picture, error) {
	if cached, ok := p.pictures[id]; ok {
		if cached.buffer == h {
			return cached.picture, nil
		}
		render.FreePicture(p.conn, cached.picture)
		delete(p.pictures, id)
	}
	attrs, err := xproto.GetWindowAttributes(p.conn, xproto.Window(id)).Reply()
	if err != nil {
		return 0, err
	}
	format, ok := p.formats[attrs.Visual]
	if !ok {
		return 0, fmt.Errorf("no picture format for visual %#x", uint32(attrs.Visual))
	}
	pic, err := render.NewPictureId(p.conn)
	if err != nil {
		return 0, err
	}
	err = render.CreatePictureChecked(p.conn, pic, xproto.Drawable(h), format,
		render.CpSubwindowMode, []uint32{xproto.SubwindowModeIncludeInferiors}).Check()
	if err != nil {
		return 0, err
	}
	p.pictures[id] = windowPicture{buffer: h, picture: pic}
	return pic, nil
}

// Forget frees the cached picture of a window.
func (p *XRender) Forget(id compositor.WindowID) {
	if cached, ok := p.pictures[id]; ok {
		render.FreePicture(p.conn, cached.picture)
		delete(p.pictures, id)
	}
}

// HasVSync is false: XRender presentation is not synchronised to retrace.
func (p *XRender) HasVSync() bool { return false }

// Close frees every server resource and leaves the session's registry.
func (p *XRender) Close() {
	for id := range p.pictures {
		p.Forget(id)
	}
	p.freeBackBuffers()
	p.freeTarget()
	if p.detach != nil {
		p.detach()
		p.detach = nil
	}
}

func (p *XRender) freeBackBuffers() {
	for _, b := range p.backs {
		render.FreePicture(p.conn, b.picture)
		xproto.FreePixmap(p.conn, b.pixmap)
	}
	p.backs = nil
	p.size = region.Rect{}
}

func (p *XRender) freeTarget() {
	if p.targetPic != 0 {
		render.FreePicture(p.conn, p.targetPic)
		p.targetPic = 0
	}
	p.target = 0
}

func toXRects(rects []region.Rect) []xproto.Rectangle {
	out := make([]xproto.Rectangle, 0, len(rects))
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		out = append(out, xproto.Rectangle{X: int16(r.X), Y: int16(r.Y), Width: uint16(r.Width), Height: uint16(r.Height)})
	}
	return out
}
