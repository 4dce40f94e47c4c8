package x11

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wscommon/internal/rawbuf"
)

// Number of CreateWindow attribute slots (back-pixmap through cursor).
const attributeSlots = 15

// Builder accumulates a CreateWindow request.
type Builder struct {
	depth  byte
	parent xproto.Window
	x, y   int16
	width  uint16
	height uint16
	border uint16
	class  uint16
	visual xproto.Visualid
	mask   uint32
	values [attributeSlots]uint32
}

// NewBuilder starts a top-level window on screen with the screen's root
// depth and visual, at the origin, 128x128.
func NewBuilder(screen Screen) *Builder {
	return &Builder{
		depth:  screen.RootDepth,
		parent: screen.Root,
		width:  128,
		height: 128,
		class:  xproto.WindowClassInputOutput,
		visual: screen.RootVisual,
	}
}

func (b *Builder) Position(x, y int16) *Builder {
	b.x, b.y = x, y
	return b
}

func (b *Builder) Size(width, height uint16) *Builder {
	b.width, b.height = width, height
	return b
}

func (b *Builder) Visual(depth byte, id xproto.Visualid) *Builder {
	b.depth, b.visual = depth, id
	return b
}

func (b *Builder) BorderWidth(w uint16) *Builder {
	b.border = w
	return b
}

func (b *Builder) Class(class uint16) *Builder {
	b.class = class
	return b
}

func (b *Builder) BackPixel(p uint32) *Builder {
	return b.set(xproto.CwBackPixel, p)
}

func (b *Builder) BorderPixel(p uint32) *Builder {
	return b.set(xproto.CwBorderPixel, p)
}

func (b *Builder) OverrideRedirect(on bool) *Builder {
	v := uint32(0)
	if on {
		v = 1
	}
	return b.set(xproto.CwOverrideRedirect, v)
}

func (b *Builder) EventMask(mask uint32) *Builder {
	return b.set(xproto.CwEventMask, mask)
}

func (b *Builder) Colormap(m Colormap) *Builder {
	return b.set(xproto.CwColormap, uint32(m.ID()))
}

func (b *Builder) set(bit uint32, v uint32) *Builder {
	b.mask |= bit
	b.values[bits.TrailingZeros32(bit)] = v
	return b
}

// serialize appends the attribute values in ascending bit order, the layout
// CreateWindow expects after the value mask.
func (b *Builder) serialize(dst []uint32) []uint32 {
	for i := 0; i < attributeSlots; i++ {
		if b.mask&(1<<uint(i)) != 0 {
			dst = append(dst, b.values[i])
		}
	}
	return dst
}

var valueLists = rawbuf.NewPool(func() *[]uint32 {
	s := make([]uint32, 0, attributeSlots)
	return &s
}, func(s *[]uint32) {
	*s = (*s)[:0]
})

// Create issues CreateWindow on c and returns the owned window.
func (b *Builder) Create(c *Connection) (*OwnedWindow, error) {
	scratch := valueLists.Alloc()
	defer scratch.Release()

	list := scratch.Get()
	*list = b.serialize((*list)[:0])

	id, err := c.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}
	wid := xproto.Window(id)

	var cookie xproto.CreateWindowCookie
	if err := c.send(func() {
		cookie = xproto.CreateWindowChecked(
			c.xc,
			b.depth,
			wid,
			b.parent,
			b.x, b.y,
			b.width, b.height,
			b.border,
			b.class,
			b.visual,
			b.mask,
			*list,
		)
	}); err != nil {
		return nil, fmt.Errorf("CreateWindow failed: %w", err)
	}
	if err := cookie.Check(); err != nil {
		return nil, replyError("CreateWindow", err)
	}

	return &OwnedWindow{id: wid, conn: c, destroyOnce: new(sync.Once)}, nil
}

// Drawable is what owned and borrowed windows share.
type Drawable interface {
	ID() xproto.Window
	Geometry() *GeometryCookie
}

// OwnedWindow is a window this process created and must destroy.
type OwnedWindow struct {
	id          xproto.Window
	conn        *Connection
	destroyOnce *sync.Once
	destroyed   bool
}

// ID returns the window id.
func (w *OwnedWindow) ID() xproto.Window { return w.id }

// Geometry queries the window's position and size.
func (w *OwnedWindow) Geometry() *GeometryCookie {
	return geometry(w.conn, w.id)
}

// ReplaceProperty replaces prop on the window with data.
func (w *OwnedWindow) ReplaceProperty(prop xproto.Atom, data Property) error {
	typ, format, count, raw, err := data.encode(w.conn)
	if err != nil {
		return fmt.Errorf("failed to encode property %d: %w", prop, err)
	}
	return w.conn.send(func() {
		xproto.ChangeProperty(w.conn.xc, xproto.PropModeReplace, w.id, prop, typ, format, count, raw)
	})
}

// Map makes the window visible.
func (w *OwnedWindow) Map() error {
	return w.conn.send(func() {
		xproto.MapWindow(w.conn.xc, w.id)
	})
}

// Destroy destroys the window. Only the first call does anything; once the
// connection is gone the server has already released the window and no
// request is sent.
func (w *OwnedWindow) Destroy() {
	w.destroyOnce.Do(func() {
		_ = w.conn.send(func() {
			xproto.DestroyWindow(w.conn.xc, w.id)
		})
		w.destroyed = true
	})
}

// Destroyed reports whether Destroy has run.
func (w *OwnedWindow) Destroyed() bool {
	return w.destroyed
}

// Borrow returns a read-only view of the window.
func (w *OwnedWindow) Borrow() BorrowedWindow {
	return BorrowedWindow{id: w.id, conn: w.conn}
}

// BorrowedWindow is a window whose lifetime is managed elsewhere. It can be
// queried but not changed or destroyed.
type BorrowedWindow struct {
	id   xproto.Window
	conn *Connection
}

// Borrow wraps a window id owned by someone else.
func Borrow(c *Connection, id xproto.Window) BorrowedWindow {
	return BorrowedWindow{id: id, conn: c}
}

// ID returns the window id.
func (w BorrowedWindow) ID() xproto.Window { return w.id }

// Geometry queries the window's position and size.
func (w BorrowedWindow) Geometry() *GeometryCookie {
	return geometry(w.conn, w.id)
}

func geometry(c *Connection, id xproto.Window) *GeometryCookie {
	g := &GeometryCookie{}
	g.err = c.send(func() {
		g.cookie = xproto.GetGeometry(c.xc, xproto.Drawable(id))
	})
	return g
}
