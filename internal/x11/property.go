package x11

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// Property is a typed value that can be stored on a window.
type Property interface {
	encode(c *Connection) (typ xproto.Atom, format byte, count uint32, data []byte, err error)
}

// String is a Latin-1 STRING property such as WM_NAME.
type String string

func (s String) encode(*Connection) (xproto.Atom, byte, uint32, []byte, error) {
	return xproto.AtomString, 8, uint32(len(s)), []byte(s), nil
}

// UTF8String is a UTF8_STRING property such as _NET_WM_NAME.
type UTF8String string

func (s UTF8String) encode(c *Connection) (xproto.Atom, byte, uint32, []byte, error) {
	typ, err := c.InternAtom("UTF8_STRING", false).Reply()
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return typ, 8, uint32(len(s)), []byte(s), nil
}

// AtomList is an ATOM[] property such as WM_PROTOCOLS.
type AtomList []xproto.Atom

func (l AtomList) encode(*Connection) (xproto.Atom, byte, uint32, []byte, error) {
	buf := make([]byte, 4*len(l))
	for i, a := range l {
		xgb.Put32(buf[4*i:], uint32(a))
	}
	return xproto.AtomAtom, 32, uint32(len(l)), buf, nil
}
