package server

import (
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wscommon/internal/x11"
)

// Size is a window's client area in pixels.
type Size struct {
	Width  uint16
	Height uint16
}

type windowConfig struct {
	x, y             int16
	background       uint32
	border           uint32
	overrideRedirect bool
}

// WindowOption adjusts how NewNativeWindow builds a window.
type WindowOption func(*windowConfig)

// WithPosition places the window at x, y relative to the root.
func WithPosition(x, y int16) WindowOption {
	return func(c *windowConfig) { c.x, c.y = x, y }
}

// WithBackground sets the background pixel, ARGB premultiplied.
func WithBackground(pixel uint32) WindowOption {
	return func(c *windowConfig) { c.background = pixel }
}

// WithBorder sets the border pixel.
func WithBorder(pixel uint32) WindowOption {
	return func(c *windowConfig) { c.border = pixel }
}

// WithOverrideRedirect keeps the window manager from reparenting or moving
// the window.
func WithOverrideRedirect() WindowOption {
	return func(c *windowConfig) { c.overrideRedirect = true }
}

// NativeWindow is a top-level window created by the WindowServer.
type NativeWindow struct {
	server  *WindowServer
	window  *x11.OwnedWindow
	caption string
	size    Size
	shown   atomic.Bool
}

// WindowInfo describes a window for inspection.
type WindowInfo struct {
	ID      uint32 `json:"id"`
	Caption string `json:"caption"`
	Width   uint16 `json:"width"`
	Height  uint16 `json:"height"`
	Shown   bool   `json:"shown"`
}

// NewNativeWindow creates a window with the server's 32-bit visual, names it
// caption and opts it into the delete-window protocol. The window is not
// shown until Show is called.
func (s *WindowServer) NewNativeWindow(size Size, caption string, opts ...WindowOption) (*NativeWindow, error) {
	if s.State() != Ready {
		return nil, ErrNotReady
	}

	var cfg windowConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b := x11.NewBuilder(s.screen).
		Visual(32, s.visual.ID).
		Position(cfg.x, cfg.y).
		Size(size.Width, size.Height).
		BackPixel(cfg.background).
		BorderPixel(cfg.border).
		EventMask(xproto.EventMaskStructureNotify).
		Colormap(s.colormap)
	if cfg.overrideRedirect {
		b.OverrideRedirect(true)
	}

	w, err := b.Create(s.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	props := []struct {
		name string
		atom xproto.Atom
		data x11.Property
	}{
		{"WM_NAME", xproto.AtomWmName, x11.String(caption)},
		{"_NET_WM_NAME", s.atoms.NetWMName, x11.UTF8String(caption)},
		{"WM_PROTOCOLS", s.atoms.Protocols, x11.AtomList{s.atoms.DeleteWindow}},
	}
	for _, p := range props {
		if err := w.ReplaceProperty(p.atom, p.data); err != nil {
			w.Destroy()
			return nil, fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}
	if err := s.conn.Flush(); err != nil {
		w.Destroy()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	nw := &NativeWindow{server: s, window: w, caption: caption, size: size}

	s.mu.Lock()
	s.windows = append(s.windows, nw)
	s.mu.Unlock()

	s.log.Info().
		Uint32("window", uint32(w.ID())).
		Uint16("width", size.Width).
		Uint16("height", size.Height).
		Str("caption", caption).
		Msg("Created window")
	s.notify(Notice{Kind: NoticeWindowCreated, Window: uint32(w.ID())})
	return nw, nil
}

// ID returns the platform window id.
func (w *NativeWindow) ID() xproto.Window {
	return w.window.ID()
}

// Caption returns the title the window was created with.
func (w *NativeWindow) Caption() string {
	return w.caption
}

// Show maps the window and waits for the server to process it.
func (w *NativeWindow) Show() error {
	if w.server.State() != Ready {
		return ErrNotReady
	}
	if err := w.window.Map(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	if err := w.server.conn.Flush(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	w.shown.Store(true)

	w.server.log.Debug().Uint32("window", uint32(w.window.ID())).Msg("Window shown")
	w.server.notify(Notice{Kind: NoticeWindowShown, Window: uint32(w.window.ID())})
	return nil
}

// ClientSize queries the window's current size.
func (w *NativeWindow) ClientSize() (width, height int, err error) {
	if w.server.State() != Ready {
		return 0, 0, ErrNotReady
	}
	g, err := w.window.Geometry().Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get window geometry: %w", err)
	}
	return int(g.Width), int(g.Height), nil
}

// Borrow returns a read-only view of the underlying window.
func (w *NativeWindow) Borrow() x11.BorrowedWindow {
	return w.window.Borrow()
}

func (w *NativeWindow) info() WindowInfo {
	return WindowInfo{
		ID:      uint32(w.window.ID()),
		Caption: w.caption,
		Width:   w.size.Width,
		Height:  w.size.Height,
		Shown:   w.shown.Load(),
	}
}

// Windows lists the windows created so far.
func (s *WindowServer) Windows() []WindowInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WindowInfo, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w.info())
	}
	return out
}
