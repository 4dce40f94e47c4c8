// Package x11 is a thin, ownership-aware layer over the X protocol client:
// one Connection, single-pass cursors over the setup block, window and
// colormap creation, and a decoded event stream.
package x11

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/rawbuf"
)

// Connection error codes, numbered like the platform library's
// connection-has-error values.
const (
	ConnError         = 1
	ConnParseError    = 5
	ConnInvalidScreen = 6
)

// ConnectError reports why a connection could not be opened.
type ConnectError struct {
	Code    int
	Display string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to connect to X server %q (code %d): %v", e.Display, e.Code, e.Err)
	}
	return fmt.Sprintf("failed to connect to X server %q (code %d)", e.Display, e.Code)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrConnectionClosed is returned when a reply can no longer arrive.
var ErrConnectionClosed = errors.New("x11: connection closed")

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Connection is the single owner of one channel to the X server.
// It must be confined to the goroutine that opened it.
type Connection struct {
	_ noCopy

	xc      *xgb.Conn
	link    *link
	display string
	screen  int
	setup   *xproto.SetupInfo

	records *rawbuf.Pool[Record]

	ended     atomic.Bool
	closeOnce sync.Once
}

// Open connects to display (empty means $DISPLAY). A negative screen keeps
// the screen named by the display string.
func Open(display string, screen int) (*Connection, error) {
	addr, err := parseDisplay(display)
	if err != nil {
		return nil, &ConnectError{Code: ConnParseError, Display: display, Err: err}
	}
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if screen < 0 {
		screen = addr.screen
	}

	l, err := dialDisplay(addr)
	if err != nil {
		return nil, &ConnectError{Code: ConnError, Display: display, Err: err}
	}
	return connect(l, display, screen)
}

// OpenNet speaks the X protocol over an already established stream.
func OpenNet(nc net.Conn, screen int) (*Connection, error) {
	return connect(newLink(nc, nil), nc.RemoteAddr().String(), screen)
}

func connect(l *link, display string, screen int) (*Connection, error) {
	xc, err := xgb.NewConnNet(l)
	if err != nil {
		l.Close()
		return nil, &ConnectError{Code: ConnError, Display: display, Err: err}
	}
	return newConnection(xc, l, display, screen)
}

func newConnection(xc *xgb.Conn, l *link, display string, screen int) (*Connection, error) {
	c := &Connection{
		xc:      xc,
		link:    l,
		display: display,
		records: rawbuf.NewPool(func() *Record { return new(Record) }, func(r *Record) { *r = Record{} }),
	}

	setup := xproto.Setup(xc)
	if setup == nil || len(setup.Roots) == 0 {
		c.shutdown()
		return nil, &ConnectError{Code: ConnParseError, Display: display, Err: errors.New("setup block lists no screens")}
	}
	if screen >= 0 {
		if screen >= len(setup.Roots) {
			c.shutdown()
			return nil, &ConnectError{
				Code:    ConnInvalidScreen,
				Display: display,
				Err:     fmt.Errorf("screen %d requested, server has %d", screen, len(setup.Roots)),
			}
		}
		xc.DefaultScreen = screen
	}

	c.screen = xc.DefaultScreen
	c.setup = setup

	logger.WithComponent("x11").Debug().
		Str("display", display).
		Int("screen", c.screen).
		Int("screens", len(setup.Roots)).
		Str("vendor", setup.Vendor).
		Msg("Connected to X server")

	return c, nil
}

// Display returns the display this connection was opened against.
func (c *Connection) Display() string {
	return c.display
}

// DefaultScreen returns the index of the screen selected at open time.
func (c *Connection) DefaultScreen() int {
	return c.screen
}

// Screens enumerates the roots of the connection setup, starting at the
// first one.
func (c *Connection) Screens() *Cursor[Screen] {
	index := 0
	return newCursor(c.setup.Roots, screenView(&index))
}

// Setup exposes the parsed setup block.
func (c *Connection) Setup() *xproto.SetupInfo {
	return c.setup
}

// XConn exposes the underlying protocol connection for collaborators that
// need to issue requests this package does not wrap.
func (c *Connection) XConn() *xgb.Conn {
	return c.xc
}

// NewID allocates a fresh resource identifier.
func (c *Connection) NewID() (uint32, error) {
	id, err := c.xc.NewId()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate resource id: %w", err)
	}
	return id, nil
}

// InternAtom sends an InternAtom request; the reply is read from the cookie.
func (c *Connection) InternAtom(name string, onlyIfExists bool) *AtomCookie {
	a := &AtomCookie{name: name}
	a.err = c.send(func() {
		a.cookie = xproto.InternAtom(c.xc, onlyIfExists, uint16(len(name)), name)
	})
	return a
}

// Alive reports whether requests can still reach the server.
func (c *Connection) Alive() bool {
	return !c.link.stopped()
}

// send runs issue, which queues requests on the protocol client, unless the
// connection is gone. The client closes its request queue by itself when
// the server hangs up, so a send racing that close is reported the same way.
func (c *Connection) send(issue func()) (err error) {
	if !c.Alive() {
		return ErrConnectionClosed
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(runtime.Error); !ok || !strings.Contains(e.Error(), "closed channel") {
				panic(r)
			}
			err = ErrConnectionClosed
		}
	}()
	issue()
	return nil
}

// WaitEvent blocks for the next event. It returns false once the event
// stream has ended because the connection closed.
func (c *Connection) WaitEvent() (Event, bool) {
	if c.ended.Load() {
		return nil, false
	}
	ev, xerr := c.xc.WaitForEvent()
	switch {
	case ev == nil && xerr == nil:
		c.ended.Store(true)
		return nil, false
	case xerr != nil:
		return ErrorEvent{genericErrorOf(xerr)}, true
	}

	rec := c.records.Alloc()
	defer rec.Release()

	copy(rec.Get()[:], ev.Bytes())
	return DecodeEvent(rec.Get()), true
}

// Flush makes sure every request sent so far has been processed by the
// server before returning.
func (c *Connection) Flush() error {
	return c.send(c.xc.Sync)
}

// Close disconnects. It is safe to call more than once and from another
// goroutine than the one blocked in WaitEvent, which then sees the stream
// end.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.shutdown()
		logger.WithComponent("x11").Debug().Str("display", c.display).Msg("Disconnected from X server")
	})
}

// shutdown stops the protocol client and waits for its reader goroutine to
// finish. When the server hung up first the client has already stopped
// itself and only the drain is left.
func (c *Connection) shutdown() {
	if c.link.stop() {
		c.xc.Close()
		c.link.kick()
	}
	if c.ended.Load() {
		return
	}
	for {
		ev, xerr := c.xc.WaitForEvent()
		if ev == nil && xerr == nil {
			c.ended.Store(true)
			return
		}
	}
}
