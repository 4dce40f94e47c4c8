// Package server owns the process-wide connection to the windowing system:
// the chosen screen, the 32-bit TrueColor visual and its colormap, and the
// atoms needed to detect a close request.
package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/x11"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of a WindowServer.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	ShuttingDown
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrNo32BitDepth = errors.New("Could not find 32bpp in supported depth")
	ErrNoTrueColor  = errors.New("could not find a TrueColor visual at 32bpp")
	ErrNotReady     = errors.New("window server is not ready")
)

// CloseReason tells why ProcessEvents returned.
type CloseReason int

const (
	// CloseRequested means the window manager asked a window to close.
	CloseRequested CloseReason = iota + 1
	// CloseStreamEnded means the connection went away.
	CloseStreamEnded
)

func (r CloseReason) String() string {
	switch r {
	case CloseRequested:
		return "close-requested"
	case CloseStreamEnded:
		return "stream-ended"
	default:
		return "unknown"
	}
}

// Atoms resolved at startup. They do not change afterwards.
type Atoms struct {
	Protocols    xproto.Atom
	DeleteWindow xproto.Atom
	NetWMName    xproto.Atom
}

// Options control how Open connects.
type Options struct {
	// Display is the X display name; empty means $DISPLAY.
	Display string
	// Screen selects a screen by index; negative means the first screen of
	// the setup.
	Screen int
	// Dial replaces x11.Open, e.g. to connect over an existing stream.
	Dial func(display string, screen int) (*x11.Connection, error)
}

// WindowServer is the connection plus everything derived from it that every
// window shares.
type WindowServer struct {
	conn     *x11.Connection
	screen   x11.Screen
	visual   x11.VisualType
	colormap x11.Colormap
	atoms    Atoms

	state        atomic.Int32
	shutdownOnce sync.Once

	mu        sync.RWMutex
	listeners []chan Notice
	windows   []*NativeWindow

	log *zerolog.Logger
}

// Open connects and prepares a WindowServer. Nothing is left open when it
// fails.
func Open(opts Options) (*WindowServer, error) {
	s := &WindowServer{log: logger.WithComponent("server")}
	s.state.Store(int32(Initializing))

	dial := opts.Dial
	if dial == nil {
		dial = x11.Open
	}
	conn, err := dial(opts.Display, opts.Screen)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to display: %w", err)
	}

	if err := s.init(conn, opts.Screen); err != nil {
		conn.Close()
		return nil, err
	}
	s.state.Store(int32(Ready))

	s.log.Info().
		Str("display", conn.Display()).
		Int("screen", s.screen.Index).
		Uint32("visual", uint32(s.visual.ID)).
		Uint32("colormap", uint32(s.colormap.ID())).
		Msg("Window server ready")
	return s, nil
}

func (s *WindowServer) init(conn *x11.Connection, index int) error {
	s.conn = conn

	var (
		screen x11.Screen
		ok     bool
	)
	if index < 0 {
		screen, ok = conn.Screens().Next()
	} else {
		screen, ok = conn.Screens().Find(func(sc x11.Screen) bool { return sc.Index == index })
	}
	if !ok {
		return fmt.Errorf("screen %d not found in setup", index)
	}
	s.screen = screen

	depth, ok := screen.Depths().Find(func(d x11.Depth) bool { return d.Depth == 32 })
	if !ok {
		return ErrNo32BitDepth
	}
	visual, ok := depth.Visuals().Find(x11.VisualType.IsTrueColor)
	if !ok {
		return ErrNoTrueColor
	}
	s.visual = visual

	colormap, err := x11.NewColormap(conn, visual.ID, screen.Root, xproto.ColormapAllocNone)
	if err != nil {
		return fmt.Errorf("failed to create colormap: %w", err)
	}
	s.colormap = colormap

	// Send every request before blocking on any reply.
	protocols := conn.InternAtom("WM_PROTOCOLS", false)
	deleteWindow := conn.InternAtom("WM_DELETE_WINDOW", false)
	netWMName := conn.InternAtom("_NET_WM_NAME", false)

	for _, a := range []struct {
		dst    *xproto.Atom
		cookie *x11.AtomCookie
	}{
		{&s.atoms.Protocols, protocols},
		{&s.atoms.DeleteWindow, deleteWindow},
		{&s.atoms.NetWMName, netWMName},
	} {
		atom, err := a.cookie.Reply()
		if err != nil {
			return fmt.Errorf("failed to intern %s: %w", a.cookie.Name(), err)
		}
		*a.dst = atom
	}

	s.log.Debug().
		Uint32("wm_protocols", uint32(s.atoms.Protocols)).
		Uint32("wm_delete_window", uint32(s.atoms.DeleteWindow)).
		Msg("Interned atoms")
	return nil
}

// State returns the current lifecycle state.
func (s *WindowServer) State() State {
	return State(s.state.Load())
}

// Atoms returns the atoms resolved at startup.
func (s *WindowServer) Atoms() Atoms {
	return s.atoms
}

// Screen returns the screen windows are created on.
func (s *WindowServer) Screen() x11.Screen {
	return s.screen
}

// Visual returns the 32-bit TrueColor visual windows use.
func (s *WindowServer) Visual() x11.VisualType {
	return s.visual
}

// Colormap returns the colormap shared by every window.
func (s *WindowServer) Colormap() x11.Colormap {
	return s.colormap
}

// Conn exposes the connection to collaborators such as surface bridges.
func (s *WindowServer) Conn() *x11.Connection {
	return s.conn
}

// ProcessEvents blocks until a window is asked to close or the connection
// ends. It may be called again after it returns.
func (s *WindowServer) ProcessEvents() CloseReason {
	for {
		ev, ok := s.conn.WaitEvent()
		if !ok {
			s.log.Debug().Msg("Event stream ended")
			s.notify(Notice{Kind: NoticeStreamEnded})
			return CloseStreamEnded
		}

		switch e := ev.(type) {
		case x11.ClientMessageEvent:
			if s.isCloseRequest(e) {
				s.log.Info().Uint32("window", uint32(e.Window)).Msg("Close requested")
				s.notify(Notice{Kind: NoticeCloseRequested, Window: uint32(e.Window)})
				return CloseRequested
			}
			s.log.Debug().
				Uint32("window", uint32(e.Window)).
				Uint32("type", uint32(e.Type)).
				Msg("Ignoring client message")
		case x11.ErrorEvent:
			s.log.Warn().
				Uint8("code", e.ErrorCode).
				Str("error", e.Name).
				Uint8("major_opcode", e.MajorOpcode).
				Uint16("minor_opcode", e.MinorOpcode).
				Uint16("sequence", e.Sequence).
				Uint32("bad_value", e.BadValue).
				Msg("Asynchronous X error")
		default:
			s.log.Debug().Uint8("code", ev.Code()).Msg("Ignoring event")
		}
	}
}

func (s *WindowServer) isCloseRequest(e x11.ClientMessageEvent) bool {
	return e.Type == s.atoms.Protocols && xproto.Atom(e.Data32()[0]) == s.atoms.DeleteWindow
}

// Shutdown disconnects. Only the first call does anything; later calls and
// calls on a server that never became ready return immediately.
func (s *WindowServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		if !s.state.CompareAndSwap(int32(Ready), int32(ShuttingDown)) {
			return
		}
		s.log.Info().Msg("Shutting down window server")

		s.mu.Lock()
		windows := s.windows
		s.windows = nil
		s.mu.Unlock()
		for _, w := range windows {
			w.window.Destroy()
		}

		s.conn.Close()
		s.state.Store(int32(Destroyed))
		s.closeListeners()
	})
}

// Snapshot is a read-only view of the server for inspection.
type Snapshot struct {
	State    string       `json:"state"`
	Display  string       `json:"display"`
	Screen   int          `json:"screen"`
	Width    uint16       `json:"width"`
	Height   uint16       `json:"height"`
	Depth    byte         `json:"depth"`
	Visual   uint32       `json:"visual"`
	Colormap uint32       `json:"colormap"`
	Atoms    AtomSnapshot `json:"atoms"`
	Windows  []WindowInfo `json:"windows"`
}

// AtomSnapshot lists the interned atoms by name.
type AtomSnapshot struct {
	WMProtocols    uint32 `json:"WM_PROTOCOLS"`
	WMDeleteWindow uint32 `json:"WM_DELETE_WINDOW"`
	NetWMName      uint32 `json:"_NET_WM_NAME"`
}

// Snapshot captures the current state.
func (s *WindowServer) Snapshot() Snapshot {
	snap := Snapshot{
		State:    s.State().String(),
		Display:  s.conn.Display(),
		Screen:   s.screen.Index,
		Width:    s.screen.Width,
		Height:   s.screen.Height,
		Depth:    32,
		Visual:   uint32(s.visual.ID),
		Colormap: uint32(s.colormap.ID()),
		Atoms: AtomSnapshot{
			WMProtocols:    uint32(s.atoms.Protocols),
			WMDeleteWindow: uint32(s.atoms.DeleteWindow),
			NetWMName:      uint32(s.atoms.NetWMName),
		},
	}
	snap.Windows = s.Windows()
	return snap
}
