package pdflayout

// Align is horizontal alignment inside a table cell.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Column is a fixed-width table column.
type Column struct {
	Header string
	Width  float64
	Align  Align
}

// Table draws fixed-column grids with a shaded header and zebra body rows.
type Table struct {
	X          float64
	Columns    []Column
	RowHeight  float64
	FontSize   float64
	HeaderFill Color
	StripeFill Color
	TextColor  Color
	Padding    float64
}

// Width is the sum of column widths.
func (t Table) Width() float64 {
	var w float64
	for _, c := range t.Columns {
		w += c.Width
	}
	return w
}

// Header draws the header row whose top edge is at y and returns the y below it.
func (t Table) Header(p *Page, y float64) float64 {
	p.Rect(t.X, y-t.RowHeight, t.Width(), t.RowHeight, t.HeaderFill)
	cells := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cells[i] = c.Header
	}
	t.cells(p, y, cells, HelveticaBold)
	return y - t.RowHeight
}

// Row draws body row index (zero-based) whose top edge is at y. Odd rows are
// striped. Cell text is truncated to fit its column.
func (t Table) Row(p *Page, y float64, index int, cells []string) float64 {
	if index%2 == 1 {
		p.Rect(t.X, y-t.RowHeight, t.Width(), t.RowHeight, t.StripeFill)
	}
	t.cells(p, y, cells, Helvetica)
	return y - t.RowHeight
}

func (t Table) cells(p *Page, top float64, cells []string, font Font) {
	baseline := top - t.RowHeight/2 - t.FontSize*0.35
	x := t.X
	for i, col := range t.Columns {
		if i >= len(cells) {
			break
		}
		text := Truncate(cells[i], font, t.FontSize, col.Width-2*t.Padding)
		switch col.Align {
		case AlignRight:
			p.TextRight(text, x+col.Width-t.Padding, baseline, font, t.FontSize, t.TextColor)
		default:
			p.Text(text, x+t.Padding, baseline, font, t.FontSize, t.TextColor)
		}
		x += col.Width
	}
}
