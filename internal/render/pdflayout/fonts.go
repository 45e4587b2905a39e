package pdflayout

import (
	"golang.org/x/text/encoding/charmap"
)

// Font selects one of the two standard Type1 faces the engine embeds by name.
type Font int

const (
	Helvetica Font = iota
	HelveticaBold
)

func (f Font) baseFont() string {
	if f == HelveticaBold {
		return "Helvetica-Bold"
	}
	return "Helvetica"
}

func (f Font) resource() string {
	if f == HelveticaBold {
		return "F2"
	}
	return "F1"
}

const defaultWidth = 556

// AFM advance widths for codes 32..126 in 1/1000 em.
var helveticaASCII = [95]uint16{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space../
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0..?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @..O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P.._
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // `..o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p..~
}

var helveticaBoldASCII = [95]uint16{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

// WinAnsi codes above 127 whose glyph differs from a plain letter.
// Values are {Helvetica, Helvetica-Bold}.
var winAnsiSymbols = map[byte][2]uint16{
	0x80: {556, 556},   // Euro
	0x85: {1000, 1000}, // ellipsis
	0x91: {222, 278},   // quoteleft
	0x92: {222, 278},   // quoteright
	0x93: {333, 500},   // quotedblleft
	0x94: {333, 500},   // quotedblright
	0x95: {350, 350},   // bullet
	0x96: {556, 556},   // endash
	0x97: {1000, 1000}, // emdash
	0x99: {1000, 1000}, // trademark
	0xA0: {278, 278},   // nbsp
	0xA3: {556, 556},   // sterling
	0xA5: {556, 556},   // yen
	0xA7: {556, 556},   // section
	0xA9: {737, 737},   // copyright
	0xAB: {556, 556},   // guillemotleft
	0xAE: {737, 737},   // registered
	0xB0: {400, 400},   // degree
	0xB7: {278, 278},   // periodcentered
	0xBB: {556, 556},   // guillemotright
	0xC6: {1000, 1000}, // AE
	0xD7: {584, 584},   // multiply
	0xDF: {611, 611},   // germandbls
	0xE6: {889, 889},   // ae
	0xF7: {584, 584},   // divide
}

// Accented Latin-1 letters measure as their base letter.
var latinBase = map[byte]byte{
	0x8A: 'S', 0x8E: 'Z', 0x9A: 's', 0x9E: 'z', 0x9F: 'Y',
	0xC7: 'C', 0xD0: 'D', 0xD1: 'N', 0xD8: 'O', 0xDD: 'Y', 0xDE: 'P',
	0xE7: 'c', 0xF0: 'o', 0xF1: 'n', 0xF8: 'o', 0xFD: 'y', 0xFE: 'p', 0xFF: 'y',
}

func init() {
	for b := 0xC0; b <= 0xC5; b++ {
		latinBase[byte(b)] = 'A'
		latinBase[byte(b+0x20)] = 'a'
	}
	for b := 0xC8; b <= 0xCB; b++ {
		latinBase[byte(b)] = 'E'
		latinBase[byte(b+0x20)] = 'e'
	}
	for b := 0xCC; b <= 0xCF; b++ {
		latinBase[byte(b)] = 'I'
		latinBase[byte(b+0x20)] = 'i'
	}
	for b := 0xD2; b <= 0xD6; b++ {
		latinBase[byte(b)] = 'O'
		latinBase[byte(b+0x20)] = 'o'
	}
	for b := 0xD9; b <= 0xDC; b++ {
		latinBase[byte(b)] = 'U'
		latinBase[byte(b+0x20)] = 'u'
	}
	widthTables[Helvetica] = buildWidths(&helveticaASCII, 0)
	widthTables[HelveticaBold] = buildWidths(&helveticaBoldASCII, 1)
}

var widthTables [2]*[256]uint16

func buildWidths(ascii *[95]uint16, face int) *[256]uint16 {
	var t [256]uint16
	for i := range t {
		t[i] = defaultWidth
	}
	for i, w := range ascii {
		t[32+i] = w
	}
	for code := 128; code < 256; code++ {
		b := byte(code)
		if sym, ok := winAnsiSymbols[b]; ok {
			t[code] = sym[face]
			continue
		}
		if base, ok := latinBase[b]; ok {
			t[code] = ascii[base-32]
		}
	}
	return &t
}

func (f Font) widths() *[256]uint16 {
	if f == HelveticaBold {
		return widthTables[HelveticaBold]
	}
	return widthTables[Helvetica]
}

// Encode maps text to WinAnsi (Windows-1252) bytes. Runes outside the code
// page become '?'.
func Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		switch r {
		case '\n', '\r', '\t':
			out = append(out, ' ')
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// Measure returns the advance width of text in points.
func Measure(text string, font Font, size float64) float64 {
	return measureEncoded(Encode(text), font, size)
}

func measureEncoded(encoded []byte, font Font, size float64) float64 {
	w := font.widths()
	var units int
	for _, b := range encoded {
		units += int(w[b])
	}
	return float64(units) * size / 1000
}
