//go:build windows && (amd64 || arm64)

package window

import (
	"runtime"
	"testing"

	"github.com/bryanchriswhite/wscommon/internal/server"
)

const gwlExStyle = -20 // GWL_EXSTYLE

var (
	procDestroyWindow     = user32.NewProc("DestroyWindow")
	procGetWindowLongPtrW = user32.NewProc("GetWindowLongPtrW")
)

func exStyle(t *testing.T, w Window) uint32 {
	t.Helper()
	idx := int32(gwlExStyle)
	r, _, _ := procGetWindowLongPtrW.Call(w.Handles().HWND, uintptr(idx))
	return uint32(r)
}

// newPumpBackend pins the test to one OS thread, which owns both the window
// and its message queue.
func newPumpBackend(t *testing.T, opts Options) *win32Backend {
	t.Helper()
	runtime.LockOSThread()
	t.Cleanup(runtime.UnlockOSThread)

	b, err := newWin32Backend(opts)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	return b.(*win32Backend)
}

func TestWin32DestroyWindowEndsPump(t *testing.T) {
	b := newPumpBackend(t, Options{})
	w, err := b.NewWindow(200, 100, "pump")
	if err != nil {
		t.Fatalf("new window: %v", err)
	}

	// WM_DESTROY posts WM_QUIT, which ends the pump.
	if ok, _, err := procDestroyWindow.Call(w.Handles().HWND); ok == 0 {
		t.Fatalf("DestroyWindow: %v", err)
	}
	if r := b.ProcessEvents(); r != server.CloseRequested {
		t.Fatalf("expected CloseRequested, got %s", r)
	}
}

func TestWin32CloseEndsPump(t *testing.T) {
	b := newPumpBackend(t, Options{})
	if _, err := b.NewWindow(200, 100, "close"); err != nil {
		t.Fatalf("new window: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if r := b.ProcessEvents(); r != server.CloseRequested {
		t.Fatalf("expected CloseRequested, got %s", r)
	}
}

func TestWin32NoContentSetsExStyle(t *testing.T) {
	b := newPumpBackend(t, Options{NoContent: true})
	w, err := b.NewWindow(200, 100, "no content")
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	if style := exStyle(t, w); style&wsExNoRedirectionBitmap == 0 {
		t.Fatalf("expected WS_EX_NOREDIRECTIONBITMAP in %#x", style)
	}

	plain := newPumpBackend(t, Options{})
	pw, err := plain.NewWindow(200, 100, "plain")
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	if style := exStyle(t, pw); style&wsExNoRedirectionBitmap != 0 {
		t.Fatalf("expected no WS_EX_NOREDIRECTIONBITMAP in %#x", style)
	}

	for _, win := range []Window{w, pw} {
		if ok, _, err := procDestroyWindow.Call(win.Handles().HWND); ok == 0 {
			t.Fatalf("DestroyWindow: %v", err)
		}
	}
	if r := b.ProcessEvents(); r != server.CloseRequested {
		t.Fatalf("expected CloseRequested, got %s", r)
	}
}
