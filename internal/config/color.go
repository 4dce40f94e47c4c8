package config

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor turns a colour setting into a 32-bit ARGB pixel with
// premultiplied alpha. It accepts SVG colour names, "transparent",
// "#rrggbb" and "#aarrggbb".
func ParseColor(s string) (uint32, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "transparent" {
		return 0, nil
	}
	if c, ok := colornames.Map[s]; ok {
		return pixel(c.A, c.R, c.G, c.B), nil
	}

	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, fmt.Errorf("unknown colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad hex colour %q", s)
	}
	switch len(hex) {
	case 6:
		return 0xff000000 | uint32(v), nil
	case 8:
		a, r, g, b := uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v)
		return pixel(a, premultiply(r, a), premultiply(g, a), premultiply(b, a)), nil
	default:
		return 0, fmt.Errorf("bad hex colour %q", s)
	}
}

func premultiply(c, a uint8) uint8 {
	return uint8((uint16(c)*uint16(a) + 127) / 255)
}

func pixel(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}
