package pdflayout

import (
	"bytes"
	"strconv"
)

// Page accumulates the content stream of one page. Drawing calls never fail.
type Page struct {
	buf bytes.Buffer
}

// Text draws text with its baseline at (x, y) and returns the y of the next
// line below it.
func (p *Page) Text(text string, x, y float64, font Font, size float64, c Color) float64 {
	p.show(Encode(text), x, y, font, size, c)
	return y - LineHeight(size)
}

// TextRight draws text so that it ends at rightX.
func (p *Page) TextRight(text string, rightX, y float64, font Font, size float64, c Color) float64 {
	enc := Encode(text)
	p.show(enc, rightX-measureEncoded(enc, font, size), y, font, size, c)
	return y - LineHeight(size)
}

// TextCentered draws text centered on centerX.
func (p *Page) TextCentered(text string, centerX, y float64, font Font, size float64, c Color) float64 {
	enc := Encode(text)
	p.show(enc, centerX-measureEncoded(enc, font, size)/2, y, font, size, c)
	return y - LineHeight(size)
}

// Lines draws pre-wrapped lines top-down starting at y.
func (p *Page) Lines(lines []string, x, y float64, font Font, size float64, c Color) float64 {
	for _, line := range lines {
		y = p.Text(line, x, y, font, size, c)
	}
	return y
}

// Rect fills a rectangle whose lower-left corner is (x, y).
func (p *Page) Rect(x, y, w, h float64, fill Color) {
	p.buf.WriteString(fill.operands() + " rg\n")
	p.buf.WriteString(num(x) + " " + num(y) + " " + num(w) + " " + num(h) + " re f\n")
}

// Line strokes a straight rule.
func (p *Page) Line(x1, y1, x2, y2, width float64, c Color) {
	p.buf.WriteString(c.operands() + " RG\n")
	p.buf.WriteString(num(width) + " w\n")
	p.buf.WriteString(num(x1) + " " + num(y1) + " m " + num(x2) + " " + num(y2) + " l S\n")
}

func (p *Page) show(enc []byte, x, y float64, font Font, size float64, c Color) {
	if len(enc) == 0 {
		return
	}
	p.buf.WriteString("BT\n")
	p.buf.WriteString("/" + font.resource() + " " + num(size) + " Tf\n")
	p.buf.WriteString(c.operands() + " rg\n")
	p.buf.WriteString(num(x) + " " + num(y) + " Td\n")
	p.buf.WriteString("(")
	writeEscaped(&p.buf, enc)
	p.buf.WriteString(") Tj\nET\n")
}

// writeEscaped emits a PDF literal string body. Bytes outside printable ASCII
// are written as octal escapes to keep content streams 7-bit.
func writeEscaped(buf *bytes.Buffer, enc []byte) {
	for _, b := range enc {
		switch {
		case b == '\\' || b == '(' || b == ')':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case b < 32 || b > 126:
			buf.WriteByte('\\')
			oct := strconv.FormatUint(uint64(b), 8)
			for i := len(oct); i < 3; i++ {
				buf.WriteByte('0')
			}
			buf.WriteString(oct)
		default:
			buf.WriteByte(b)
		}
	}
}

// Content returns a copy of the raw content stream.
func (p *Page) Content() []byte {
	return append([]byte(nil), p.buf.Bytes()...)
}
