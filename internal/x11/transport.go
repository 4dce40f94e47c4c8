package x11

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
)

// wakeEvent is an event code no protocol module registers. The protocol
// client drops such events and goes back to checking whether it should stop.
const wakeEvent = 127

var errLinkStopped = errors.New("x11: link stopped")

// link is the stream handed to the protocol client. It keeps the client's
// reader goroutine from seeing more than one read error, and lets Close stop
// the reader without waiting on a server round trip.
//
// Once stopped, writes fail and leave a wake token; reads wait for a token
// and return a single event frame the client ignores.
type link struct {
	net.Conn

	prefix  []byte // replaces the first write when set
	written atomic.Bool

	halted atomic.Bool
	wakes  chan struct{}
}

func newLink(nc net.Conn, prefix []byte) *link {
	return &link{Conn: nc, prefix: prefix, wakes: make(chan struct{}, 1)}
}

// stop reports whether this call was the one that stopped the link.
func (l *link) stop() bool {
	return l.halted.CompareAndSwap(false, true)
}

func (l *link) stopped() bool {
	return l.halted.Load()
}

// kick interrupts a read blocked on the underlying stream.
func (l *link) kick() {
	_ = l.Conn.SetReadDeadline(time.Now())
	l.wake()
}

func (l *link) wake() {
	select {
	case l.wakes <- struct{}{}:
	default:
	}
}

func (l *link) Write(p []byte) (int, error) {
	if l.stopped() {
		l.wake()
		return 0, errLinkStopped
	}
	if l.prefix != nil && l.written.CompareAndSwap(false, true) {
		if _, err := l.Conn.Write(l.prefix); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	l.written.Store(true)
	return l.Conn.Write(p)
}

func (l *link) Read(p []byte) (int, error) {
	if !l.stopped() {
		n, err := l.Conn.Read(p)
		if err == nil || n > 0 {
			return n, nil
		}
		// The peer went away: report it once so the client closes itself.
		if l.stop() {
			return 0, err
		}
	}
	<-l.wakes
	clear(p)
	if len(p) > 0 {
		p[0] = wakeEvent
	}
	return len(p), nil
}

// Close releases the stream and any reader still parked on the link.
func (l *link) Close() error {
	l.halted.Store(true)
	l.wake()
	return l.Conn.Close()
}

// address is a parsed display name: [protocol/][host]:display[.screen].
type address struct {
	network string
	addr    string
	host    string
	number  string
	screen  int
}

func parseDisplay(display string) (address, error) {
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return address{}, errors.New("empty display string")
	}

	colon := strings.LastIndex(display, ":")
	if colon < 0 {
		return address{}, fmt.Errorf("bad display string %q", display)
	}

	var a address
	host, rest := display[:colon], display[colon+1:]
	protocol := ""
	if slash := strings.LastIndex(host, "/"); slash >= 0 && !strings.HasPrefix(display, "/") {
		protocol, host = host[:slash], host[slash+1:]
	}

	a.number = rest
	if dot := strings.LastIndex(rest, "."); dot >= 0 {
		a.number = rest[:dot]
		screen, err := strconv.Atoi(rest[dot+1:])
		if err != nil {
			return address{}, fmt.Errorf("bad screen in display string %q", display)
		}
		a.screen = screen
	}
	number, err := strconv.Atoi(a.number)
	if err != nil || number < 0 {
		return address{}, fmt.Errorf("bad display number in display string %q", display)
	}

	switch {
	case strings.HasPrefix(display, "/"):
		a.network, a.addr = "unix", host+":"+a.number
	case host != "" && host != "unix":
		if protocol == "" {
			protocol = "tcp"
		}
		a.network, a.addr, a.host = protocol, net.JoinHostPort(host, strconv.Itoa(6000+number)), host
	default:
		a.network, a.addr = "unix", "/tmp/.X11-unix/X"+a.number
	}
	return a, nil
}

// Xauthority families.
const (
	familyLocalHost = 252
	familyLocal     = 256
	familyWild      = 65535
)

const cookieAuth = "MIT-MAGIC-COOKIE-1"

type authEntry struct {
	family  uint16
	address string
	display string
	name    string
	data    []byte
}

func readXauthority() ([]authEntry, error) {
	path := os.Getenv("XAUTHORITY")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".Xauthority")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []authEntry
	for {
		e, err := readAuthEntry(f)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		entries = append(entries, e)
	}
}

func readAuthEntry(r io.Reader) (authEntry, error) {
	var e authEntry
	if err := binary.Read(r, binary.BigEndian, &e.family); err != nil {
		return e, err
	}
	fields := [4][]byte{}
	for i := range fields {
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return e, io.ErrUnexpectedEOF
		}
		fields[i] = make([]byte, n)
		if _, err := io.ReadFull(r, fields[i]); err != nil {
			return e, io.ErrUnexpectedEOF
		}
	}
	e.address, e.display, e.name, e.data = string(fields[0]), string(fields[1]), string(fields[2]), fields[3]
	return e, nil
}

// findAuth picks the first cookie entry for display number on host; an empty
// host means the local machine.
func findAuth(entries []authEntry, host, number string) (authEntry, bool) {
	local := host == "" || host == "localhost"
	if local {
		host, _ = os.Hostname()
	}
	for _, e := range entries {
		if e.display != number && e.display != "" {
			continue
		}
		if e.name != cookieAuth {
			continue
		}
		switch {
		case e.family == familyWild:
		case e.family == familyLocal && local && (e.address == host || e.address == ""):
		case e.family == familyLocalHost && local:
		case e.address == host:
		default:
			continue
		}
		return e, true
	}
	return authEntry{}, false
}

// setupPrefix builds the connection setup request the client opens with.
func setupPrefix(e authEntry) []byte {
	name, data := []byte(e.name), e.data
	buf := make([]byte, 12+xgb.Pad(len(name))+xgb.Pad(len(data)))
	buf[0] = 'l'
	xgb.Put16(buf[2:], 11)
	xgb.Put16(buf[6:], uint16(len(name)))
	xgb.Put16(buf[8:], uint16(len(data)))
	copy(buf[12:], name)
	copy(buf[12+xgb.Pad(len(name)):], data)
	return buf
}

// dialDisplay connects to a parsed display, carrying its Xauthority cookie
// when one is found.
func dialDisplay(a address) (*link, error) {
	nc, err := net.Dial(a.network, a.addr)
	if err != nil {
		return nil, err
	}
	var prefix []byte
	if entries, err := readXauthority(); err == nil {
		if e, ok := findAuth(entries, a.host, a.number); ok {
			prefix = setupPrefix(e)
		}
	}
	return newLink(nc, prefix), nil
}

