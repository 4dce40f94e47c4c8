package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// ErrCookieConsumed is returned by a second Reply on the same cookie.
var ErrCookieConsumed = errors.New("x11: cookie reply already consumed")

// ReplyError is an error record the server sent instead of a reply.
type ReplyError struct {
	Request string
	GenericError
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Request, e.GenericError.Error())
}

func replyError(request string, err error) error {
	var xerr xgb.Error
	if errors.As(err, &xerr) {
		return &ReplyError{Request: request, GenericError: genericErrorOf(xerr)}
	}
	return fmt.Errorf("%s failed: %w", request, err)
}

// AtomCookie is an in-flight InternAtom request.
type AtomCookie struct {
	name     string
	cookie   xproto.InternAtomCookie
	err      error // set when the request never left
	consumed bool
}

// Name is the atom name the request asked for.
func (c *AtomCookie) Name() string {
	return c.name
}

// Reply blocks until the server answers.
func (c *AtomCookie) Reply() (xproto.Atom, error) {
	if c.consumed {
		return 0, ErrCookieConsumed
	}
	c.consumed = true
	if c.err != nil {
		return 0, fmt.Errorf("InternAtom %s: %w", c.name, c.err)
	}

	r, err := c.cookie.Reply()
	if err != nil {
		return 0, replyError("InternAtom "+c.name, err)
	}
	if r == nil {
		return 0, fmt.Errorf("InternAtom %s: %w", c.name, ErrConnectionClosed)
	}
	return r.Atom, nil
}

// Geometry is a drawable's position and size.
type Geometry struct {
	X           int16
	Y           int16
	Width       uint16
	Height      uint16
	BorderWidth uint16
	Depth       byte
}

// GeometryCookie is an in-flight GetGeometry request.
type GeometryCookie struct {
	cookie   xproto.GetGeometryCookie
	err      error
	consumed bool
}

// Reply blocks until the server answers.
func (c *GeometryCookie) Reply() (Geometry, error) {
	if c.consumed {
		return Geometry{}, ErrCookieConsumed
	}
	c.consumed = true
	if c.err != nil {
		return Geometry{}, fmt.Errorf("GetGeometry: %w", c.err)
	}

	r, err := c.cookie.Reply()
	if err != nil {
		return Geometry{}, replyError("GetGeometry", err)
	}
	if r == nil {
		return Geometry{}, fmt.Errorf("GetGeometry: %w", ErrConnectionClosed)
	}
	return Geometry{
		X:           r.X,
		Y:           r.Y,
		Width:       r.Width,
		Height:      r.Height,
		BorderWidth: r.BorderWidth,
		Depth:       r.Depth,
	}, nil
}
