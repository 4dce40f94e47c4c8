//go:build windows

package window

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/server"
	"golang.org/x/sys/windows"
)

const windowClassName = "ws_common::CommonWindow"

const (
	csOwnDC = 0x0020

	wmDestroy = 0x0002
	wmClose   = 0x0010

	wsOverlappedWindow = 0x00000000 | 0x00C00000 | 0x00080000 | 0x00040000 | 0x00020000 | 0x00010000

	wsExNoRedirectionBitmap = 0x00200000

	cwUseDefault = 0x80000000

	swShowDefault = 10

	idcArrow = 32512
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procRegisterClassExW = user32.NewProc("RegisterClassExW")
	procCreateWindowExW  = user32.NewProc("CreateWindowExW")
	procDefWindowProcW   = user32.NewProc("DefWindowProcW")
	procGetMessageW      = user32.NewProc("GetMessageW")
	procTranslateMessage = user32.NewProc("TranslateMessage")
	procDispatchMessageW = user32.NewProc("DispatchMessageW")
	procPostQuitMessage  = user32.NewProc("PostQuitMessage")
	procShowWindow       = user32.NewProc("ShowWindow")
	procGetClientRect    = user32.NewProc("GetClientRect")
	procLoadCursorW      = user32.NewProc("LoadCursorW")
	procPostMessageW     = user32.NewProc("PostMessageW")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

var (
	classOnce sync.Once
	classErr  error
	hInstance windows.Handle
)

// registerClass registers the shared window class once per process.
func registerClass() error {
	classOnce.Do(func() {
		if classErr = windows.GetModuleHandleEx(0, nil, &hInstance); classErr != nil {
			classErr = fmt.Errorf("failed to get module handle: %w", classErr)
			return
		}
		name, err := windows.UTF16PtrFromString(windowClassName)
		if err != nil {
			classErr = err
			return
		}
		cursor, _, _ := procLoadCursorW.Call(0, idcArrow)

		wc := wndClassEx{
			Style:     csOwnDC,
			WndProc:   windows.NewCallback(wndProc),
			Instance:  hInstance,
			Cursor:    windows.Handle(cursor),
			ClassName: name,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
			classErr = fmt.Errorf("failed to register window class: %w", err)
		}
	})
	return classErr
}

func wndProc(hwnd windows.HWND, message uint32, wParam, lParam uintptr) uintptr {
	if message == wmDestroy {
		procPostQuitMessage.Call(0)
		return 0
	}
	ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(message), wParam, lParam)
	return ret
}

// win32Backend creates windows with the Win32 API. All calls must come from
// the goroutine that created it, locked to its OS thread.
type win32Backend struct {
	opts    Options
	windows []*win32Window
}

func newWin32Backend(opts Options) (Backend, error) {
	if err := registerClass(); err != nil {
		return nil, err
	}
	return &win32Backend{opts: opts}, nil
}

func (b *win32Backend) Name() string {
	return "win32"
}

func (b *win32Backend) NewWindow(width, height int, caption string) (Window, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	className, err := windows.UTF16PtrFromString(windowClassName)
	if err != nil {
		return nil, err
	}
	title, err := windows.UTF16PtrFromString(caption)
	if err != nil {
		return nil, err
	}

	var exStyle uint32
	if b.opts.NoContent {
		exStyle |= wsExNoRedirectionBitmap
	}

	hwnd, _, callErr := procCreateWindowExW.Call(
		uintptr(exStyle),
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(title)),
		wsOverlappedWindow,
		uintptr(cwUseDefault), uintptr(cwUseDefault),
		uintptr(width), uintptr(height),
		0, 0,
		uintptr(hInstance),
		0,
	)
	if hwnd == 0 {
		return nil, fmt.Errorf("failed to create window: %w", callErr)
	}

	w := &win32Window{hwnd: windows.HWND(hwnd)}
	b.windows = append(b.windows, w)

	logger.WithComponent("win32").Info().
		Uint64("hwnd", uint64(hwnd)).
		Int("width", width).
		Int("height", height).
		Str("caption", caption).
		Msg("Created window")
	return w, nil
}

// ProcessEvents runs the message pump until WM_QUIT.
func (b *win32Backend) ProcessEvents() server.CloseReason {
	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0:
			return server.CloseRequested
		case -1:
			return server.CloseStreamEnded
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (b *win32Backend) PresentationSupport(dev PhysicalDevice, queueFamily uint32) bool {
	return presentationSupport(dev, queueFamily, Handles{Platform: "win32", HInstance: uintptr(hInstance)})
}

func (b *win32Backend) NewRenderSurface(w Window, inst Instance) (Surface, error) {
	s, err := newRenderSurface(w, inst)
	if err != nil {
		return nil, fmt.Errorf("win32: failed to create render surface: %w", err)
	}
	return s, nil
}

// Close asks every window to close. WM_CLOSE is posted rather than calling
// DestroyWindow so that it works from any thread.
func (b *win32Backend) Close() error {
	for _, w := range b.windows {
		procPostMessageW.Call(uintptr(w.hwnd), wmClose, 0, 0)
	}
	b.windows = nil
	return nil
}

type win32Window struct {
	hwnd windows.HWND
}

func (w *win32Window) Show() error {
	procShowWindow.Call(uintptr(w.hwnd), swShowDefault)
	return nil
}

func (w *win32Window) ClientSize() (int, int, error) {
	var r windows.Rect
	if ok, _, err := procGetClientRect.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&r))); ok == 0 {
		return 0, 0, fmt.Errorf("failed to get client rect: %w", err)
	}
	return int(r.Right - r.Left), int(r.Bottom - r.Top), nil
}

func (w *win32Window) Handles() Handles {
	return Handles{Platform: "win32", HInstance: uintptr(hInstance), HWND: uintptr(w.hwnd)}
}
