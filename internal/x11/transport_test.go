package x11

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/google/go-cmp/cmp"
)

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		display string
		want    address
	}{
		{":0", address{network: "unix", addr: "/tmp/.X11-unix/X0", number: "0"}},
		{":1.2", address{network: "unix", addr: "/tmp/.X11-unix/X1", number: "1", screen: 2}},
		{"unix:3", address{network: "unix", addr: "/tmp/.X11-unix/X3", number: "3"}},
		{"remote:10.1", address{network: "tcp", addr: "remote:6010", host: "remote", number: "10", screen: 1}},
		{"tcp/10.0.0.5:2", address{network: "tcp", addr: "10.0.0.5:6002", host: "10.0.0.5", number: "2"}},
		{"/run/xsock:0", address{network: "unix", addr: "/run/xsock:0", number: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got, err := parseDisplay(tt.display)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(address{})); diff != "" {
				t.Fatalf("address mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDisplayRejectsMalformed(t *testing.T) {
	for _, display := range []string{"nocolon", ":x", ":0.y", ":-1"} {
		if _, err := parseDisplay(display); err == nil {
			t.Errorf("expected %q to be rejected", display)
		}
	}
}

func TestParseDisplayFallsBackToEnvironment(t *testing.T) {
	t.Setenv("DISPLAY", ":7")
	got, err := parseDisplay("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.number != "7" {
		t.Fatalf("expected display 7 from $DISPLAY, got %q", got.number)
	}

	t.Setenv("DISPLAY", "")
	if _, err := parseDisplay(""); err == nil {
		t.Fatalf("expected an empty display to be rejected")
	}
}

func writeXauthority(t *testing.T, entries ...authEntry) {
	t.Helper()
	var buf bytes.Buffer
	str := func(s []byte) {
		binary.Write(&buf, binary.BigEndian, uint16(len(s)))
		buf.Write(s)
	}
	for _, e := range entries {
		binary.Write(&buf, binary.BigEndian, e.family)
		str([]byte(e.address))
		str([]byte(e.display))
		str([]byte(e.name))
		str(e.data)
	}
	path := filepath.Join(t.TempDir(), "Xauthority")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("XAUTHORITY", path)
}

func TestXauthorityLookup(t *testing.T) {
	host, _ := os.Hostname()
	cookie := bytes.Repeat([]byte{0xab}, 16)
	writeXauthority(t,
		authEntry{family: familyLocal, address: "elsewhere", display: "0", name: cookieAuth, data: []byte("wrong-host")},
		authEntry{family: familyLocal, address: host, display: "1", name: cookieAuth, data: []byte("wrong-display")},
		authEntry{family: familyLocal, address: host, display: "0", name: "XDM-AUTHORIZATION-1", data: []byte("wrong-name")},
		authEntry{family: familyLocal, address: host, display: "0", name: cookieAuth, data: cookie},
		authEntry{family: 0, address: "remote", display: "3", name: cookieAuth, data: []byte("remote")},
	)

	entries, err := readXauthority()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	e, ok := findAuth(entries, "", "0")
	if !ok || !bytes.Equal(e.data, cookie) {
		t.Fatalf("expected the local cookie for display 0, got %+v (%v)", e, ok)
	}
	e, ok = findAuth(entries, "remote", "3")
	if !ok || string(e.data) != "remote" {
		t.Fatalf("expected the remote cookie, got %+v (%v)", e, ok)
	}
	if _, ok := findAuth(entries, "", "9"); ok {
		t.Fatalf("expected no cookie for display 9")
	}
}

func TestXauthorityTruncatedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Xauthority")
	if err := os.WriteFile(path, []byte{0x01, 0x00, 0x00, 0x05, 'a'}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("XAUTHORITY", path)

	if _, err := readXauthority(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestSetupPrefixCarriesCookie(t *testing.T) {
	cookie := bytes.Repeat([]byte{0x11}, 16)
	buf := setupPrefix(authEntry{name: cookieAuth, data: cookie})

	if len(buf) != 12+20+16 {
		t.Fatalf("unexpected prefix length %d", len(buf))
	}
	if buf[0] != 'l' || xgb.Get16(buf[2:]) != 11 || xgb.Get16(buf[4:]) != 0 {
		t.Fatalf("unexpected byte order or version in %v", buf[:6])
	}
	if xgb.Get16(buf[6:]) != uint16(len(cookieAuth)) || xgb.Get16(buf[8:]) != 16 {
		t.Fatalf("unexpected auth lengths in %v", buf[6:10])
	}
	if string(buf[12:12+len(cookieAuth)]) != cookieAuth || !bytes.Equal(buf[32:], cookie) {
		t.Fatalf("unexpected auth payload %v", buf[12:])
	}
}

func TestLinkReplacesFirstWrite(t *testing.T) {
	cli, srv := net.Pipe()
	defer srv.Close()
	l := newLink(cli, []byte("prefix"))
	defer l.Close()

	got := make(chan []byte, 2)
	go func() {
		for i := 0; i < 2; i++ {
			buf := make([]byte, 16)
			n, err := srv.Read(buf)
			if err != nil {
				return
			}
			got <- buf[:n]
		}
	}()

	if n, err := l.Write([]byte("ignored setup")); err != nil || n != len("ignored setup") {
		t.Fatalf("first write = %d, %v", n, err)
	}
	if _, err := l.Write([]byte("request")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if first := <-got; string(first) != "prefix" {
		t.Fatalf("expected the prefix on the wire, got %q", first)
	}
	if second := <-got; string(second) != "request" {
		t.Fatalf("expected later writes to pass through, got %q", second)
	}
}

func TestLinkReportsPeerHangupOnce(t *testing.T) {
	cli, srv := net.Pipe()
	l := newLink(cli, nil)
	defer l.Close()
	srv.Close()

	buf := make([]byte, 32)
	if _, err := l.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF from the first read, got %v", err)
	}
	if !l.stopped() {
		t.Fatalf("expected the link to stop after the peer hung up")
	}
	if l.stop() {
		t.Fatalf("expected the peer hangup to have claimed the stop")
	}

	read := make(chan error, 1)
	go func() {
		_, err := l.Read(buf)
		read <- err
	}()
	select {
	case err := <-read:
		t.Fatalf("expected the second read to wait, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := l.Write([]byte{1}); !errors.Is(err, errLinkStopped) {
		t.Fatalf("expected writes to fail once stopped, got %v", err)
	}
	select {
	case err := <-read:
		if err != nil {
			t.Fatalf("expected a wake frame, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("failed write did not wake the reader")
	}
	if buf[0] != wakeEvent || !bytes.Equal(buf[1:], make([]byte, 31)) {
		t.Fatalf("unexpected wake frame %v", buf)
	}
}

func TestLinkKickInterruptsRead(t *testing.T) {
	cli, srv := net.Pipe()
	defer srv.Close()
	l := newLink(cli, nil)
	defer l.Close()

	read := make(chan error, 1)
	go func() {
		_, err := l.Read(make([]byte, 32))
		read <- err
	}()

	if !l.stop() {
		t.Fatalf("expected the first stop to win")
	}
	l.kick()

	select {
	case err := <-read:
		if err != nil {
			t.Fatalf("expected a wake frame instead of an error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("kick did not interrupt the read")
	}
}
