package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// Size of every core event and error on the wire.
const recordSize = 32

// Record is one raw 32-byte event or error as it came off the wire.
type Record [recordSize]byte

// Event is a decoded platform event. The concrete type is the tag; there is
// no other way to reach the fields of a different event kind.
type Event interface {
	// Code is the response type with the "sent by SendEvent" bit cleared.
	Code() byte
	isEvent()
}

// ClientMessageEvent carries a client-to-client message, including the
// WM_PROTOCOLS messages window managers send.
type ClientMessageEvent struct {
	Sent     bool
	Format   byte
	Sequence uint16
	Window   xproto.Window
	Type     xproto.Atom
	Data     [20]byte
}

func (ClientMessageEvent) Code() byte { return xproto.ClientMessage }
func (ClientMessageEvent) isEvent()   {}

// Data32 returns the payload as five 32-bit words.
func (e ClientMessageEvent) Data32() [5]uint32 {
	var out [5]uint32
	for i := range out {
		out[i] = xgb.Get32(e.Data[4*i:])
	}
	return out
}

// Data64 returns the first eight payload bytes as one 64-bit word.
func (e ClientMessageEvent) Data64() uint64 {
	return xgb.Get64(e.Data[:8])
}

// ErrorEvent is an asynchronous error delivered through the event stream.
type ErrorEvent struct {
	GenericError
}

func (ErrorEvent) Code() byte { return 0 }
func (ErrorEvent) isEvent()   {}

// UnknownEvent is any event kind this package does not decode.
type UnknownEvent struct {
	Type     byte
	Sent     bool
	Sequence uint16
}

func (e UnknownEvent) Code() byte { return e.Type }
func (UnknownEvent) isEvent()     {}

// GenericError holds the diagnostic fields of an X error.
type GenericError struct {
	ErrorCode   byte
	Sequence    uint16
	BadValue    uint32
	MinorOpcode uint16
	MajorOpcode byte
	Name        string
}

func (e GenericError) Error() string {
	return fmt.Sprintf("X error %s (code %d, major opcode %d, minor opcode %d, bad value %d, sequence %d)",
		e.Name, e.ErrorCode, e.MajorOpcode, e.MinorOpcode, e.BadValue, e.Sequence)
}

// DecodeEvent turns one wire record into its event variant.
func DecodeEvent(r *Record) Event {
	code := r[0] &^ 0x80
	sent := r[0]&0x80 != 0
	seq := xgb.Get16(r[2:])

	switch code {
	case 0:
		return ErrorEvent{GenericError{
			ErrorCode:   r[1],
			Sequence:    seq,
			BadValue:    xgb.Get32(r[4:]),
			MinorOpcode: xgb.Get16(r[8:]),
			MajorOpcode: r[10],
			Name:        errorName(r[1]),
		}}
	case xproto.ClientMessage:
		e := ClientMessageEvent{
			Sent:     sent,
			Format:   r[1],
			Sequence: seq,
			Window:   xproto.Window(xgb.Get32(r[4:])),
			Type:     xproto.Atom(xgb.Get32(r[8:])),
		}
		copy(e.Data[:], r[12:32])
		return e
	default:
		return UnknownEvent{Type: code, Sent: sent, Sequence: seq}
	}
}

// Core protocol error codes.
const (
	errRequest        = 1
	errValue          = 2
	errWindow         = 3
	errAtom           = 5
	errMatch          = 8
	errDrawable       = 9
	errAlloc          = 11
	errColormap       = 12
	errLength         = 16
	errImplementation = 17
)

var errorNames = map[byte]string{
	errRequest:        "Request",
	errValue:          "Value",
	errWindow:         "Window",
	4:                 "Pixmap",
	errAtom:           "Atom",
	6:                 "Cursor",
	7:                 "Font",
	errMatch:          "Match",
	errDrawable:       "Drawable",
	10:                "Access",
	errAlloc:          "Alloc",
	errColormap:       "Colormap",
	13:                "GContext",
	14:                "IDChoice",
	15:                "Name",
	errLength:         "Length",
	errImplementation: "Implementation",
}

func errorName(code byte) string {
	if n, ok := errorNames[code]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", code)
}

func fromValueError(code byte, e xproto.ValueError) GenericError {
	return GenericError{
		ErrorCode:   code,
		Sequence:    e.Sequence,
		BadValue:    e.BadValue,
		MinorOpcode: e.MinorOpcode,
		MajorOpcode: e.MajorOpcode,
		Name:        errorName(code),
	}
}

func fromRequestError(code byte, e xproto.RequestError) GenericError {
	return GenericError{
		ErrorCode:   code,
		Sequence:    e.Sequence,
		BadValue:    e.BadValue,
		MinorOpcode: e.MinorOpcode,
		MajorOpcode: e.MajorOpcode,
		Name:        errorName(code),
	}
}

// genericErrorOf extracts the diagnostic fields from an error xgb decoded.
func genericErrorOf(err xgb.Error) GenericError {
	switch e := err.(type) {
	case xproto.RequestError:
		return fromRequestError(errRequest, e)
	case xproto.ValueError:
		return fromValueError(errValue, e)
	case xproto.WindowError:
		return fromValueError(errWindow, xproto.ValueError(e))
	case xproto.AtomError:
		return fromValueError(errAtom, xproto.ValueError(e))
	case xproto.MatchError:
		return fromRequestError(errMatch, xproto.RequestError(e))
	case xproto.DrawableError:
		return fromValueError(errDrawable, xproto.ValueError(e))
	case xproto.AllocError:
		return fromRequestError(errAlloc, xproto.RequestError(e))
	case xproto.ColormapError:
		return fromValueError(errColormap, xproto.ValueError(e))
	case xproto.LengthError:
		return fromRequestError(errLength, xproto.RequestError(e))
	case xproto.ImplementationError:
		return fromRequestError(errImplementation, xproto.RequestError(e))
	default:
		return GenericError{
			Sequence: err.SequenceId(),
			BadValue: err.BadId(),
			Name:     err.Error(),
		}
	}
}
