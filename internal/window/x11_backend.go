package window

import (
	"fmt"

	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/server"
)

// X11Backend implements the Backend interface on top of the window server
type X11Backend struct {
	srv  *server.WindowServer
	opts Options
}

// NewX11Backend creates a new X11 backend. Without Options.Server it uses
// the process-wide window server, whose initialisation failures are fatal.
func NewX11Backend(opts Options) (*X11Backend, error) {
	srv := opts.Server
	if srv == nil {
		server.Configure(server.Options{Display: opts.Display, Screen: opts.Screen})
		srv = server.Instance()
	}
	if srv == nil || srv.State() != server.Ready {
		return nil, fmt.Errorf("x11: %w", server.ErrNotReady)
	}
	return &X11Backend{srv: srv, opts: opts}, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Server returns the window server backing this backend.
func (b *X11Backend) Server() *server.WindowServer {
	return b.srv
}

// NewWindow creates a window with the server's 32-bit visual
func (b *X11Backend) NewWindow(width, height int, caption string) (Window, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}

	opts := []server.WindowOption{
		server.WithBackground(b.opts.Background),
		server.WithBorder(b.opts.Border),
	}
	if b.opts.OverrideRedirect {
		opts = append(opts, server.WithOverrideRedirect())
	}

	w, err := b.srv.NewNativeWindow(server.Size{Width: uint16(width), Height: uint16(height)}, caption, opts...)
	if err != nil {
		return nil, err
	}
	return &x11Window{w: w, srv: b.srv}, nil
}

// ProcessEvents blocks until a close request or the end of the stream
func (b *X11Backend) ProcessEvents() server.CloseReason {
	return b.srv.ProcessEvents()
}

// PresentationSupport forwards the connection and visual to dev
func (b *X11Backend) PresentationSupport(dev PhysicalDevice, queueFamily uint32) bool {
	return presentationSupport(dev, queueFamily, Handles{
		Platform: "x11",
		Display:  b.srv.Conn().Display(),
		Visual:   uint32(b.srv.Visual().ID),
	})
}

// NewRenderSurface asks inst for a surface bound to w
func (b *X11Backend) NewRenderSurface(w Window, inst Instance) (Surface, error) {
	s, err := newRenderSurface(w, inst)
	if err != nil {
		return nil, fmt.Errorf("x11: failed to create render surface: %w", err)
	}
	return s, nil
}

// Close shuts the window server down
func (b *X11Backend) Close() error {
	logger.WithComponent("x11").Debug().Msg("Closing X11 backend")
	b.srv.Shutdown()
	return nil
}

type x11Window struct {
	w   *server.NativeWindow
	srv *server.WindowServer
}

func (w *x11Window) Show() error {
	return w.w.Show()
}

func (w *x11Window) ClientSize() (int, int, error) {
	return w.w.ClientSize()
}

func (w *x11Window) Handles() Handles {
	return Handles{
		Platform: "x11",
		Display:  w.srv.Conn().Display(),
		Window:   uint32(w.w.ID()),
		Visual:   uint32(w.srv.Visual().ID),
	}
}
