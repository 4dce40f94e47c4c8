// Package x11test runs an in-process X server that speaks enough of the core
// protocol for window creation, atoms, properties, geometry and client
// messages. Connect to it with x11.OpenNet.
package x11test

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// Core protocol constants used on the wire.
const (
	opCreateWindow    = 1
	opDestroyWindow   = 4
	opMapWindow       = 8
	opGetGeometry     = 14
	opInternAtom      = 16
	opChangeProperty  = 18
	opGetInputFocus   = 43
	opCreateColormap  = 78
	opQueryExtension  = 98

	eventClientMessage = 33

	errWindow   = 3
	errMatch    = 8
	errDrawable = 9
	errAlloc    = 11
	errColormap = 12

	cwBorderPixmap = 1 << 2
	cwBorderPixel  = 1 << 3
	cwColormap     = 1 << 13

	firstDynamicAtom = 69

	hangupGrace = 2 * time.Second
)

var le = binary.LittleEndian

var predefinedAtoms = map[string]uint32{
	"PRIMARY":  1,
	"ATOM":     4,
	"CARDINAL": 6,
	"STRING":   31,
	"WINDOW":   33,
	"WM_NAME":  39,
	"WM_CLASS": 67,
}

// VisualSpec describes one visual the server advertises.
type VisualSpec struct {
	ID      uint32
	Class   byte
	Bits    byte
	Entries uint16
	Red     uint32
	Green   uint32
	Blue    uint32
}

// DepthSpec is one allowed depth of a screen.
type DepthSpec struct {
	Depth   byte
	Visuals []VisualSpec
}

// ScreenSpec is one root the setup block lists.
type ScreenSpec struct {
	Root       uint32
	Colormap   uint32
	White      uint32
	Black      uint32
	Width      uint16
	Height     uint16
	RootDepth  byte
	RootVisual uint32
	Depths     []DepthSpec
}

// DefaultScreen is a 1920x1080 screen with a 24-bit root, a 32-bit ARGB
// TrueColor depth and the usual empty depth 1.
func DefaultScreen() ScreenSpec {
	return ScreenSpec{
		Root:       0x0000029a,
		Colormap:   0x00000020,
		White:      0x00ffffff,
		Black:      0,
		Width:      1920,
		Height:     1080,
		RootDepth:  24,
		RootVisual: 0x21,
		Depths: []DepthSpec{
			{Depth: 24, Visuals: []VisualSpec{
				{ID: 0x21, Class: 4, Bits: 8, Entries: 256, Red: 0xff0000, Green: 0xff00, Blue: 0xff},
				{ID: 0x22, Class: 5, Bits: 8, Entries: 256, Red: 0xff0000, Green: 0xff00, Blue: 0xff},
			}},
			{Depth: 1},
			{Depth: 32, Visuals: []VisualSpec{
				{ID: 0x5e, Class: 5, Bits: 8, Entries: 256, Red: 0xff0000, Green: 0xff00, Blue: 0xff},
				{ID: 0x5f, Class: 4, Bits: 8, Entries: 256, Red: 0xff0000, Green: 0xff00, Blue: 0xff},
			}},
		},
	}
}

// OpaqueScreen is DefaultScreen without the 32-bit depth.
func OpaqueScreen() ScreenSpec {
	s := DefaultScreen()
	s.Depths = s.Depths[:2]
	return s
}

// Config selects what the server advertises and which requests fail.
type Config struct {
	Screens []ScreenSpec
	Vendor  string

	// FailAtoms lists atom names whose InternAtom gets a BadAlloc error.
	FailAtoms []string
}

// Property is a stored window property.
type Property struct {
	Type   uint32
	Format byte
	Data   []byte
}

// Window is the server-side state of one window.
type Window struct {
	ID         uint32
	Parent     uint32
	X, Y       int16
	Width      uint16
	Height     uint16
	Border     uint16
	Class      uint16
	Depth      byte
	Visual     uint32
	Mask       uint32
	Values     []uint32
	Mapped     bool
	Destroyed  bool
	Properties map[uint32]Property
}

// Server is a fake X server. It is safe for concurrent use.
type Server struct {
	cfg Config

	mu        sync.Mutex
	atoms     map[string]uint32
	nextAtom  uint32
	windows   map[uint32]*Window
	colormaps map[uint32]uint32
	visuals   map[uint32]byte
	requests  []byte
	clients   []*client
	wg        sync.WaitGroup
}

type client struct {
	nc  net.Conn
	wmu sync.Mutex
	seq uint16
}

// New builds a server. Zero Screens means one DefaultScreen.
func New(cfg Config) *Server {
	if len(cfg.Screens) == 0 {
		cfg.Screens = []ScreenSpec{DefaultScreen()}
	}
	if cfg.Vendor == "" {
		cfg.Vendor = "wscommon test server"
	}
	s := &Server{
		cfg:       cfg,
		atoms:     make(map[string]uint32, len(predefinedAtoms)),
		nextAtom:  firstDynamicAtom,
		windows:   make(map[uint32]*Window),
		colormaps: make(map[uint32]uint32),
		visuals:   make(map[uint32]byte),
	}
	for name, id := range predefinedAtoms {
		s.atoms[name] = id
	}
	for _, scr := range cfg.Screens {
		s.windows[scr.Root] = &Window{
			ID:         scr.Root,
			Width:      scr.Width,
			Height:     scr.Height,
			Class:      1,
			Depth:      scr.RootDepth,
			Visual:     scr.RootVisual,
			Mapped:     true,
			Properties: make(map[uint32]Property),
		}
		s.colormaps[scr.Colormap] = scr.RootVisual
		for _, d := range scr.Depths {
			for _, v := range d.Visuals {
				s.visuals[v.ID] = d.Depth
			}
		}
	}
	return s
}

// Dial returns the client end of a new connection. The server is closed
// when the test ends.
func (s *Server) Dial(t testing.TB) net.Conn {
	t.Helper()
	// Keep the protocol client from picking up a real authority file.
	t.Setenv("XAUTHORITY", filepath.Join(t.TempDir(), "no-xauthority"))

	cli, srv := net.Pipe()
	c := &client{nc: srv}

	s.mu.Lock()
	s.clients = append(s.clients, c)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.serve(c); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			t.Logf("x11test: connection ended: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return cli
}

// Close waits for clients to hang up, then drops whatever is still
// connected.
func (s *Server) Close() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(hangupGrace):
	}

	s.mu.Lock()
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()

	for _, c := range clients {
		c.nc.Close()
	}
	<-done
}

// Hangup drops every client connection at once, as a server that exits or
// crashes would.
func (s *Server) Hangup() {
	s.mu.Lock()
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()

	for _, c := range clients {
		c.nc.Close()
	}
}

// Atom returns the id the server assigned to name.
func (s *Server) Atom(name string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.atoms[name]
	return id, ok
}

// Window returns a copy of the state of window id.
func (s *Server) Window(id uint32) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return Window{}, false
	}
	cp := *w
	cp.Values = append([]uint32(nil), w.Values...)
	cp.Properties = make(map[uint32]Property, len(w.Properties))
	for k, v := range w.Properties {
		cp.Properties[k] = v
	}
	return cp, true
}

// CreatedWindows returns the ids of client-created windows in creation order.
func (s *Server) CreatedWindows() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint32
	for id, w := range s.windows {
		if w.Parent != 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Colormap reports the visual a colormap was created for.
func (s *Server) Colormap(id uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.colormaps[id]
	return v, ok
}

// Requests returns the opcodes received so far, in order.
func (s *Server) Requests() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.requests...)
}

// SendClientMessage delivers a 32-bit format ClientMessage event to every
// connected client.
func (s *Server) SendClientMessage(window, typ uint32, data [5]uint32) error {
	s.mu.Lock()
	clients := append([]*client(nil), s.clients...)
	s.mu.Unlock()

	if len(clients) == 0 {
		return errors.New("x11test: no connected clients")
	}
	for _, c := range clients {
		var ev [32]byte
		ev[0] = eventClientMessage
		ev[1] = 32
		le.PutUint32(ev[4:], window)
		le.PutUint32(ev[8:], typ)
		for i, d := range data {
			le.PutUint32(ev[12+4*i:], d)
		}
		if err := c.write(func(seq uint16) []byte {
			le.PutUint16(ev[2:], seq)
			return ev[:]
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) write(build func(seq uint16) []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.nc.Write(build(c.seq))
	return err
}

func (s *Server) serve(c *client) error {
	if err := s.handshake(c.nc); err != nil {
		return err
	}

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(c.nc, header); err != nil {
			return err
		}
		words := int(le.Uint16(header[2:]))
		if words < 1 {
			return errors.New("x11test: big requests are not supported")
		}
		req := make([]byte, words*4)
		copy(req, header)
		if _, err := io.ReadFull(c.nc, req[4:]); err != nil {
			return err
		}

		c.wmu.Lock()
		c.seq++
		seq := c.seq
		c.wmu.Unlock()

		if resp := s.handle(req, seq); resp != nil {
			if err := c.write(func(uint16) []byte { return resp }); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handshake(nc net.Conn) error {
	prefix := make([]byte, 12)
	if _, err := io.ReadFull(nc, prefix); err != nil {
		return err
	}
	if prefix[0] != 'l' {
		return errors.New("x11test: only little-endian clients are supported")
	}
	authLen := pad4(int(le.Uint16(prefix[6:]))) + pad4(int(le.Uint16(prefix[8:])))
	if authLen > 0 {
		if _, err := io.CopyN(io.Discard, nc, int64(authLen)); err != nil {
			return err
		}
	}
	_, err := nc.Write(s.setupBlock())
	return err
}

func (s *Server) setupBlock() []byte {
	var extra []byte
	u8 := func(v byte) { extra = append(extra, v) }
	u16 := func(v uint16) { extra = le.AppendUint16(extra, v) }
	u32 := func(v uint32) { extra = le.AppendUint32(extra, v) }
	pad := func() {
		for len(extra)%4 != 0 {
			extra = append(extra, 0)
		}
	}

	formats := [][3]byte{{1, 1, 32}, {24, 32, 32}, {32, 32, 32}}

	u32(12101004)   // release
	u32(0x00400000) // resource id base
	u32(0x001fffff) // resource id mask
	u32(256)        // motion buffer
	u16(uint16(len(s.cfg.Vendor)))
	u16(0xffff) // maximum request length
	u8(byte(len(s.cfg.Screens)))
	u8(byte(len(formats)))
	u8(0)  // image byte order: LSB first
	u8(0)  // bitmap bit order
	u8(32) // scanline unit
	u8(32) // scanline pad
	u8(8)  // min keycode
	u8(255)
	u32(0)
	extra = append(extra, s.cfg.Vendor...)
	pad()
	for _, f := range formats {
		u8(f[0])
		u8(f[1])
		u8(f[2])
		extra = append(extra, 0, 0, 0, 0, 0)
	}
	for _, scr := range s.cfg.Screens {
		u32(scr.Root)
		u32(scr.Colormap)
		u32(scr.White)
		u32(scr.Black)
		u32(0) // current input masks
		u16(scr.Width)
		u16(scr.Height)
		u16(scr.Width / 4)
		u16(scr.Height / 4)
		u16(1)
		u16(1)
		u32(scr.RootVisual)
		u8(0) // backing stores
		u8(0) // save unders
		u8(scr.RootDepth)
		u8(byte(len(scr.Depths)))
		for _, d := range scr.Depths {
			u8(d.Depth)
			u8(0)
			u16(uint16(len(d.Visuals)))
			u32(0)
			for _, v := range d.Visuals {
				u32(v.ID)
				u8(v.Class)
				u8(v.Bits)
				u16(v.Entries)
				u32(v.Red)
				u32(v.Green)
				u32(v.Blue)
				u32(0)
			}
		}
	}

	block := make([]byte, 8, 8+len(extra))
	block[0] = 1
	le.PutUint16(block[2:], 11)
	le.PutUint16(block[4:], 0)
	le.PutUint16(block[6:], uint16(len(extra)/4))
	return append(block, extra...)
}

func (s *Server) handle(req []byte, seq uint16) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := req[0]
	s.requests = append(s.requests, op)

	switch op {
	case opCreateWindow:
		return s.createWindow(req, seq)
	case opDestroyWindow:
		w, ok := s.windows[le.Uint32(req[4:])]
		if !ok || w.Destroyed {
			return errorRecord(errWindow, seq, le.Uint32(req[4:]), op)
		}
		w.Destroyed = true
		w.Mapped = false
	case opMapWindow:
		w, ok := s.windows[le.Uint32(req[4:])]
		if !ok || w.Destroyed {
			return errorRecord(errWindow, seq, le.Uint32(req[4:]), op)
		}
		w.Mapped = true
	case opGetGeometry:
		id := le.Uint32(req[4:])
		w, ok := s.windows[id]
		if !ok || w.Destroyed {
			return errorRecord(errDrawable, seq, id, op)
		}
		r := reply(seq)
		r[1] = w.Depth
		le.PutUint32(r[8:], s.rootOf(w))
		le.PutUint16(r[12:], uint16(w.X))
		le.PutUint16(r[14:], uint16(w.Y))
		le.PutUint16(r[16:], w.Width)
		le.PutUint16(r[18:], w.Height)
		le.PutUint16(r[20:], w.Border)
		return r
	case opInternAtom:
		return s.internAtom(req, seq)
	case opChangeProperty:
		id := le.Uint32(req[4:])
		w, ok := s.windows[id]
		if !ok || w.Destroyed {
			return errorRecord(errWindow, seq, id, op)
		}
		format := req[16]
		n := int(le.Uint32(req[20:])) * int(format) / 8
		w.Properties[le.Uint32(req[8:])] = Property{
			Type:   le.Uint32(req[12:]),
			Format: format,
			Data:   append([]byte(nil), req[24:24+n]...),
		}
	case opGetInputFocus:
		r := reply(seq)
		r[1] = 1 // revert to pointer root
		le.PutUint32(r[8:], 1)
		return r
	case opCreateColormap:
		win, visual := le.Uint32(req[8:]), le.Uint32(req[12:])
		if _, ok := s.windows[win]; !ok {
			return errorRecord(errWindow, seq, win, op)
		}
		if _, ok := s.visuals[visual]; !ok {
			return errorRecord(errMatch, seq, visual, op)
		}
		s.colormaps[le.Uint32(req[4:])] = visual
	case opQueryExtension:
		return reply(seq)
	}
	return nil
}

func (s *Server) createWindow(req []byte, seq uint16) []byte {
	depth := req[1]
	wid, parentID := le.Uint32(req[4:]), le.Uint32(req[8:])
	parent, ok := s.windows[parentID]
	if !ok || parent.Destroyed {
		return errorRecord(errWindow, seq, parentID, opCreateWindow)
	}
	visual := le.Uint32(req[24:])
	if visual == 0 {
		visual = parent.Visual
	}
	if depth == 0 {
		depth = parent.Depth
	}
	mask := le.Uint32(req[28:])
	values := make([]uint32, 0, len(req[32:])/4)
	for off := 32; off+4 <= len(req); off += 4 {
		values = append(values, le.Uint32(req[off:]))
	}

	if vd, ok := s.visuals[visual]; !ok || vd != depth {
		return errorRecord(errMatch, seq, visual, opCreateWindow)
	}
	// A window whose depth differs from its parent cannot inherit the
	// parent's colormap or border.
	if depth != parent.Depth {
		if mask&cwColormap == 0 || mask&(cwBorderPixel|cwBorderPixmap) == 0 {
			return errorRecord(errMatch, seq, wid, opCreateWindow)
		}
	}
	if mask&cwColormap != 0 {
		cmap := values[valueIndex(mask, cwColormap)]
		if _, ok := s.colormaps[cmap]; !ok {
			return errorRecord(errColormap, seq, cmap, opCreateWindow)
		}
	}

	s.windows[wid] = &Window{
		ID:         wid,
		Parent:     parentID,
		X:          int16(le.Uint16(req[12:])),
		Y:          int16(le.Uint16(req[14:])),
		Width:      le.Uint16(req[16:]),
		Height:     le.Uint16(req[18:]),
		Border:     le.Uint16(req[20:]),
		Class:      le.Uint16(req[22:]),
		Depth:      depth,
		Visual:     visual,
		Mask:       mask,
		Values:     values,
		Properties: make(map[uint32]Property),
	}
	return nil
}

func (s *Server) internAtom(req []byte, seq uint16) []byte {
	onlyIfExists := req[1] != 0
	n := int(le.Uint16(req[4:]))
	name := string(req[8 : 8+n])

	for _, f := range s.cfg.FailAtoms {
		if f == name {
			return errorRecord(errAlloc, seq, 0, opInternAtom)
		}
	}

	id, ok := s.atoms[name]
	if !ok && !onlyIfExists {
		id = s.nextAtom
		s.nextAtom++
		s.atoms[name] = id
	}
	r := reply(seq)
	le.PutUint32(r[8:], id)
	return r
}

func (s *Server) rootOf(w *Window) uint32 {
	for w.Parent != 0 {
		p, ok := s.windows[w.Parent]
		if !ok {
			break
		}
		w = p
	}
	return w.ID
}

// valueIndex is the position of bit in a CreateWindow value list.
func valueIndex(mask, bit uint32) int {
	i := 0
	for b := uint32(1); b < bit; b <<= 1 {
		if mask&b != 0 {
			i++
		}
	}
	return i
}

func reply(seq uint16) []byte {
	r := make([]byte, 32)
	r[0] = 1
	le.PutUint16(r[2:], seq)
	return r
}

func errorRecord(code byte, seq uint16, bad uint32, major byte) []byte {
	r := make([]byte, 32)
	r[1] = code
	le.PutUint16(r[2:], seq)
	le.PutUint32(r[4:], bad)
	r[10] = major
	return r
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
