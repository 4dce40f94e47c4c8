package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// Colormap is a colormap this process created for a window's visual.
type Colormap struct {
	id xproto.Colormap
}

// ID returns the colormap id.
func (m Colormap) ID() xproto.Colormap { return m.id }

// NewColormap creates a colormap for visual on the screen holding window.
// alloc is xproto.ColormapAllocNone or xproto.ColormapAllocAll.
func NewColormap(c *Connection, visual xproto.Visualid, window xproto.Window, alloc byte) (Colormap, error) {
	id, err := c.NewID()
	if err != nil {
		return Colormap{}, err
	}
	mid := xproto.Colormap(id)
	var cookie xproto.CreateColormapCookie
	if err := c.send(func() {
		cookie = xproto.CreateColormapChecked(c.xc, alloc, mid, window, visual)
	}); err != nil {
		return Colormap{}, fmt.Errorf("CreateColormap failed: %w", err)
	}
	if err := cookie.Check(); err != nil {
		return Colormap{}, replyError("CreateColormap", err)
	}
	return Colormap{id: mid}, nil
}
