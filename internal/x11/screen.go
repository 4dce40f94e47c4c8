package x11

import (
	"github.com/BurntSushi/xgb/xproto"
)

// Screen holds the fields of one setup root that window creation needs.
type Screen struct {
	Index           int
	Root            xproto.Window
	RootVisual      xproto.Visualid
	RootDepth       byte
	DefaultColormap xproto.Colormap
	WhitePixel      uint32
	BlackPixel      uint32
	Width           uint16
	Height          uint16

	depths []xproto.DepthInfo
}

// Depths enumerates the depths this screen allows.
func (s Screen) Depths() *Cursor[Depth] {
	return newCursor(s.depths, func(d *xproto.DepthInfo) Depth {
		return Depth{Depth: d.Depth, visuals: d.Visuals}
	})
}

// Depth is one allowed depth of a screen.
type Depth struct {
	Depth byte

	visuals []xproto.VisualInfo
}

// Visuals enumerates the visual types available at this depth.
func (d Depth) Visuals() *Cursor[VisualType] {
	return newCursor(d.visuals, func(v *xproto.VisualInfo) VisualType {
		return VisualType{
			ID:              v.VisualId,
			Class:           v.Class,
			BitsPerRGBValue: v.BitsPerRgbValue,
			ColormapEntries: v.ColormapEntries,
			RedMask:         v.RedMask,
			GreenMask:       v.GreenMask,
			BlueMask:        v.BlueMask,
		}
	})
}

// VisualType describes one visual.
type VisualType struct {
	ID              xproto.Visualid
	Class           byte
	BitsPerRGBValue byte
	ColormapEntries uint16
	RedMask         uint32
	GreenMask       uint32
	BlueMask        uint32
}

// IsTrueColor reports whether the visual has the TrueColor class.
func (v VisualType) IsTrueColor() bool {
	return v.Class == xproto.VisualClassTrueColor
}

func screenView(index *int) func(*xproto.ScreenInfo) Screen {
	return func(s *xproto.ScreenInfo) Screen {
		v := Screen{
			Index:           *index,
			Root:            s.Root,
			RootVisual:      s.RootVisual,
			RootDepth:       s.RootDepth,
			DefaultColormap: s.DefaultColormap,
			WhitePixel:      s.WhitePixel,
			BlackPixel:      s.BlackPixel,
			Width:           s.WidthInPixels,
			Height:          s.HeightInPixels,
			depths:          s.AllowedDepths,
		}
		*index++
		return v
	}
}
