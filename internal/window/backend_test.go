package window

import (
	"errors"
	"runtime"
	"testing"

	"github.com/bryanchriswhite/wscommon/internal/server"
	"github.com/bryanchriswhite/wscommon/internal/x11"
	"github.com/bryanchriswhite/wscommon/internal/x11/x11test"
	"github.com/google/go-cmp/cmp"
)

type fakeDevice struct {
	queueFamily uint32
	handles     Handles
}

func (d *fakeDevice) PresentationSupport(queueFamily uint32, h Handles) bool {
	d.queueFamily, d.handles = queueFamily, h
	return queueFamily == 0
}

type fakeSurface struct{ handles Handles }

func (*fakeSurface) Close() error { return nil }

type fakeInstance struct{ err error }

func (i fakeInstance) NewSurface(h Handles) (Surface, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &fakeSurface{handles: h}, nil
}

func newFakeBackend(t *testing.T) (*X11Backend, *x11test.Server) {
	t.Helper()
	srv := x11test.New(x11test.Config{})
	nc := srv.Dial(t)
	ws, err := server.Open(server.Options{Screen: -1, Dial: func(string, int) (*x11.Connection, error) {
		return x11.OpenNet(nc, -1)
	}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := NewX11Backend(Options{Server: ws, Background: 0xff000000})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, srv
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New("wayland", Options{}); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}

func TestWin32UnsupportedElsewhere(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("win32 is the native backend here")
	}
	if _, err := New("win32", Options{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestX11BackendRejectsClosedServer(t *testing.T) {
	b, _ := newFakeBackend(t)
	b.Server().Shutdown()

	if _, err := NewX11Backend(Options{Server: b.Server()}); !errors.Is(err, server.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestX11BackendWindowLifecycle(t *testing.T) {
	b, srv := newFakeBackend(t)
	if b.Name() != "x11" {
		t.Fatalf("expected x11, got %q", b.Name())
	}

	w, err := b.NewWindow(640, 480, "Test")
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	if err := w.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	width, height, err := w.ClientSize()
	if err != nil {
		t.Fatalf("client size: %v", err)
	}
	if width != 640 || height != 480 {
		t.Fatalf("expected 640x480, got %dx%d", width, height)
	}

	h := w.Handles()
	st, ok := srv.Window(h.Window)
	if !ok || !st.Mapped {
		t.Fatalf("expected handle %#x to name a mapped window", h.Window)
	}
	if st.Values[0] != 0xff000000 {
		t.Fatalf("expected background pixel 0xff000000, got %#x", st.Values[0])
	}

	a := b.Server().Atoms()
	if err := srv.SendClientMessage(h.Window, uint32(a.Protocols), [5]uint32{uint32(a.DeleteWindow)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if r := b.ProcessEvents(); r != server.CloseRequested {
		t.Fatalf("expected CloseRequested, got %s", r)
	}
}

func TestX11BackendRejectsBadSize(t *testing.T) {
	b, _ := newFakeBackend(t)
	for _, size := range [][2]int{{0, 10}, {10, -1}, {70000, 10}} {
		if _, err := b.NewWindow(size[0], size[1], "bad"); err == nil {
			t.Fatalf("expected an error for %dx%d", size[0], size[1])
		}
	}
}

func TestBridgePassesHandlesThrough(t *testing.T) {
	b, _ := newFakeBackend(t)
	w, err := b.NewWindow(32, 32, "surface")
	if err != nil {
		t.Fatalf("new window: %v", err)
	}

	dev := &fakeDevice{}
	if !b.PresentationSupport(dev, 0) {
		t.Fatalf("expected queue family 0 to present")
	}
	if b.PresentationSupport(dev, 3) {
		t.Fatalf("expected queue family 3 not to present")
	}
	if dev.handles.Platform != "x11" || dev.handles.Visual != uint32(b.Server().Visual().ID) {
		t.Fatalf("unexpected presentation handles %+v", dev.handles)
	}
	if b.PresentationSupport(nil, 0) {
		t.Fatalf("expected no support without a device")
	}

	s, err := b.NewRenderSurface(w, fakeInstance{})
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	if diff := cmp.Diff(w.Handles(), s.(*fakeSurface).handles); diff != "" {
		t.Fatalf("surface handles mismatch (-want +got):\n%s", diff)
	}

	boom := errors.New("no surface for you")
	if _, err := b.NewRenderSurface(w, fakeInstance{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected the instance error to be wrapped, got %v", err)
	}
	if _, err := b.NewRenderSurface(w, nil); err == nil {
		t.Fatalf("expected an error without an instance")
	}
}
