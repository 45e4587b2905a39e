// Package pdflayout is a small PDF page-layout engine: a top-down text cursor,
// AFM-metric word wrap, filled rectangles and rules, and a deterministic
// serializer for the two standard Helvetica faces.
package pdflayout

import (
	"strconv"
	"strings"
)

// A4 portrait geometry in PDF user units.
const (
	PageWidth    = 595.0
	PageHeight   = 842.0
	Margin       = 50.0
	Top          = PageHeight - Margin
	Bottom       = Margin
	ContentWidth = PageWidth - 2*Margin
)

// LineHeight is the default advance after a line of text at size.
func LineHeight(size float64) float64 {
	return size + 4
}

// Color is an RGB fill or stroke color with components in [0,1].
type Color struct {
	R, G, B float64
}

var (
	Black     = Color{}
	White     = Color{1, 1, 1}
	DarkGray  = Color{0.25, 0.25, 0.25}
	MidGray   = Color{0.45, 0.45, 0.45}
	LightGray = Color{0.92, 0.92, 0.92}
	Stripe    = Color{0.97, 0.97, 0.97}
)

// Gray returns a neutral color at level l.
func Gray(l float64) Color {
	return Color{l, l, l}
}

// HexColor parses "#rrggbb", "rrggbb" or "#rgb".
func HexColor(raw string) (Color, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return Color{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, false
	}
	return Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, true
}

func (c Color) operands() string {
	return num(c.R) + " " + num(c.G) + " " + num(c.B)
}

// num renders a coordinate with at most three decimals so output is stable.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
