// Package window picks a native windowing backend and exposes the handles a
// graphics layer needs to present into its windows.
package window

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/bryanchriswhite/wscommon/internal/server"
)

// ErrUnsupported is returned for a backend that does not exist in this
// build.
var ErrUnsupported = errors.New("backend not supported on this platform")

// Options configure a backend and the windows it creates.
type Options struct {
	// Display and Screen select the X11 display; ignored by win32.
	Display string
	Screen  int

	// Background and Border are ARGB pixels for new windows.
	Background uint32
	Border     uint32

	// OverrideRedirect bypasses the X11 window manager.
	OverrideRedirect bool

	// NoContent creates win32 windows without a redirection bitmap, for
	// swapchain-only presentation.
	NoContent bool

	// Server replaces the process-wide window server for the x11 backend.
	Server *server.WindowServer
}

// Window is a native top-level window.
type Window interface {
	// Show makes the window visible.
	Show() error
	// ClientSize returns the drawable area in pixels.
	ClientSize() (width, height int, err error)
	// Handles returns the raw platform handles of the window.
	Handles() Handles
}

// Backend defines the interface for native windowing backends (X11, Win32)
type Backend interface {
	// Name returns the backend name (e.g., "x11", "win32")
	Name() string

	// NewWindow creates a hidden top-level window
	NewWindow(width, height int, caption string) (Window, error)

	// ProcessEvents pumps platform events until a window is asked to close
	// or the event source goes away
	ProcessEvents() server.CloseReason

	// PresentationSupport asks dev whether queueFamily can present to
	// this windowing system
	PresentationSupport(dev PhysicalDevice, queueFamily uint32) bool

	// NewRenderSurface binds a presentable surface to w
	NewRenderSurface(w Window, inst Instance) (Surface, error)

	// Close releases the platform connection
	Close() error
}

// Names lists the backends New accepts.
var Names = []string{"auto", "x11", "win32"}

// New returns the backend called name. "auto" or empty picks the native
// backend for the running platform.
func New(name string, opts Options) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		if runtime.GOOS == "windows" {
			return newWin32Backend(opts)
		}
		return NewX11Backend(opts)
	case "x11":
		return NewX11Backend(opts)
	case "win32", "windows":
		return newWin32Backend(opts)
	default:
		return nil, fmt.Errorf("unknown backend %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return fmt.Errorf("invalid window size %dx%d", width, height)
	}
	return nil
}
