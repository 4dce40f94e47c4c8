package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/wscommon/internal/config"
	"github.com/bryanchriswhite/wscommon/internal/server"
	"github.com/bryanchriswhite/wscommon/internal/x11"
	"github.com/bryanchriswhite/wscommon/internal/x11/x11test"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*server.WindowServer, *x11test.Server, *httptest.Server) {
	t.Helper()
	fake := x11test.New(x11test.Config{})
	nc := fake.Dial(t)
	ws, err := server.Open(server.Options{
		Screen: -1,
		Dial: func(string, int) (*x11.Connection, error) {
			return x11.OpenNet(nc, -1)
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(ws.Shutdown)

	cfg, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	hs := httptest.NewServer(NewServer(ws, cfg).Handler())
	t.Cleanup(hs.Close)
	return ws, fake, hs
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, _, hs := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, hs.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "healthy" || body["state"] != "ready" {
		t.Fatalf("body = %v", body)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header = %q", got)
	}
}

func TestPreflight(t *testing.T) {
	_, _, hs := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, hs.URL+"/api/server", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "GET") {
		t.Fatalf("methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}

func TestServerAndWindows(t *testing.T) {
	ws, _, hs := newTestServer(t)

	nw, err := ws.NewNativeWindow(server.Size{Width: 640, Height: 480}, "Test")
	if err != nil {
		t.Fatalf("NewNativeWindow: %v", err)
	}

	var snap server.Snapshot
	getJSON(t, hs.URL+"/api/server", &snap)
	if snap.State != "ready" || snap.Depth != 32 || snap.Visual != uint32(ws.Visual().ID) {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Atoms.WMDeleteWindow != uint32(ws.Atoms().DeleteWindow) {
		t.Fatalf("atoms = %+v", snap.Atoms)
	}

	var windows []server.WindowInfo
	getJSON(t, hs.URL+"/api/windows", &windows)
	if len(windows) != 1 || windows[0].Caption != "Test" || windows[0].Width != 640 || windows[0].Shown {
		t.Fatalf("windows = %+v", windows)
	}

	if err := nw.Show(); err != nil {
		t.Fatal(err)
	}
	var one server.WindowInfo
	resp := getJSON(t, hs.URL+"/api/windows/"+strconv.FormatUint(uint64(nw.ID()), 10), &one)
	if resp.StatusCode != http.StatusOK || !one.Shown {
		t.Fatalf("window %d: status %d, %+v", nw.ID(), resp.StatusCode, one)
	}

	resp = getJSON(t, hs.URL+"/api/windows/1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown window status = %d", resp.StatusCode)
	}
}

func TestConfig(t *testing.T) {
	_, _, hs := newTestServer(t)

	var cfg config.Config
	getJSON(t, hs.URL+"/api/config", &cfg)
	if cfg.Window.Title != "Test" || cfg.Backend != "auto" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestEventsStream(t *testing.T) {
	ws, fake, hs := newTestServer(t)

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Server == nil || first.Server.State != "ready" {
		t.Fatalf("first message = %+v", first)
	}

	nw, err := ws.NewNativeWindow(server.Size{Width: 320, Height: 240}, "Stream")
	if err != nil {
		t.Fatal(err)
	}
	if err := nw.Show(); err != nil {
		t.Fatal(err)
	}

	done := make(chan server.CloseReason, 1)
	go func() { done <- ws.ProcessEvents() }()

	atoms := ws.Atoms()
	if err := fake.SendClientMessage(uint32(nw.ID()), uint32(atoms.Protocols), [5]uint32{uint32(atoms.DeleteWindow)}); err != nil {
		t.Fatal(err)
	}

	want := []server.NoticeKind{server.NoticeWindowCreated, server.NoticeWindowShown, server.NoticeCloseRequested}
	for _, kind := range want {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read %s: %v", kind, err)
		}
		if m.Type != "notice" || m.Notice == nil || m.Notice.Kind != kind {
			t.Fatalf("got %+v, want notice %s", m, kind)
		}
		if m.Notice.Window != uint32(nw.ID()) {
			t.Fatalf("notice window = %d, want %d", m.Notice.Window, nw.ID())
		}
	}

	select {
	case r := <-done:
		if r != server.CloseRequested {
			t.Fatalf("reason = %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessEvents did not return")
	}

	ws.Shutdown()
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after shutdown, got %v", err)
	}
}
