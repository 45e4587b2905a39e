// Package billing lays out invoices, quotes and receipts as PDF pages.
package billing

import (
	"fmt"
	"strings"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/render/pdflayout"
	"invoicing-backend/internal/tenants"
)

// DefaultFooter is printed on every page when the renderer has none configured.
const DefaultFooter = "Thank you for your business. Please quote the document reference below with any payment or correspondence."

const (
	colGap        = 20.0
	columnWidth   = (pdflayout.ContentWidth - colGap) / 2
	rightEdge     = pdflayout.PageWidth - pdflayout.Margin
	bodySize      = 10.0
	smallSize     = 8.0
	rowHeight     = 18.0
	footerLeading = 11.0
	totalsLabelX  = rightEdge - 110
	totalsBlockH  = 70.0
)

// maxAddressLines bounds each header column so the header always fits on the
// first page above the item table.
const maxAddressLines = 8

var defaultAccent = pdflayout.Color{R: 0.11, G: 0.31, B: 0.85}

// Renderer builds billing PDFs directly with the layout engine.
type Renderer struct {
	Footer string
}

// New returns a Renderer with the default footer text.
func New() *Renderer {
	return &Renderer{Footer: DefaultFooter}
}

// Render lays out doc for tenant and returns the serialized PDF.
func (r *Renderer) Render(tenant tenants.Tenant, doc documents.Document) (render.InlineResult, error) {
	if err := doc.Validate(); err != nil {
		return render.InlineResult{}, &render.Error{Step: render.StepLayout, Document: doc.Number, Err: err}
	}

	l := newLayout(tenant, doc, r.footerText())
	l.header()
	l.table()
	l.totals()
	l.notes()
	l.footers()

	out, err := l.pdf.Bytes()
	if err != nil {
		return render.InlineResult{}, &render.Error{Step: render.StepLayout, Document: doc.Number, Err: err}
	}
	return render.InlineResult{Bytes: out, Name: doc.Filename()}, nil
}

func (r *Renderer) footerText() string {
	if r == nil || strings.TrimSpace(r.Footer) == "" {
		return DefaultFooter
	}
	return r.Footer
}

type layout struct {
	tenant   tenants.Tenant
	doc      documents.Document
	currency string
	accent   pdflayout.Color

	pdf  *pdflayout.Document
	page *pdflayout.Page
	y    float64

	footerLines []string
	floor       float64
	tbl         pdflayout.Table
}

func newLayout(tenant tenants.Tenant, doc documents.Document, footer string) *layout {
	accent, ok := pdflayout.HexColor(tenant.Branding.AccentColor)
	if !ok {
		accent = defaultAccent
	}
	currency := doc.Currency
	if currency == "" {
		currency = tenant.Currency
	}

	footerLines := pdflayout.Wrap(footer, pdflayout.Helvetica, smallSize, pdflayout.ContentWidth)
	l := &layout{
		tenant:      tenant,
		doc:         doc,
		currency:    currency,
		accent:      accent,
		pdf:         pdflayout.New(),
		footerLines: footerLines,
		// Body content stays above the footer block plus a gap.
		floor: pdflayout.Bottom + footerLeading*float64(len(footerLines)+1) + 24,
		tbl: pdflayout.Table{
			X: pdflayout.Margin,
			Columns: []pdflayout.Column{
				{Header: "Description", Width: 255},
				{Header: "Qty", Width: 60, Align: pdflayout.AlignRight},
				{Header: "Unit Price", Width: 90, Align: pdflayout.AlignRight},
				{Header: "Amount", Width: 90, Align: pdflayout.AlignRight},
			},
			RowHeight:  rowHeight,
			FontSize:   bodySize,
			HeaderFill: pdflayout.LightGray,
			StripeFill: pdflayout.Stripe,
			TextColor:  pdflayout.Black,
			Padding:    6,
		},
	}
	l.newPage()
	return l
}

func (l *layout) newPage() {
	l.page = l.pdf.AddPage()
	l.y = pdflayout.Top
}

// ensure starts a new page when h points would cross the footer floor.
func (l *layout) ensure(h float64) bool {
	if l.y-h >= l.floor {
		return false
	}
	l.newPage()
	return true
}

func (l *layout) header() {
	p := l.page

	// Issuer column.
	left := pdflayout.Top
	left = p.Text(fit(l.tenant.Name, pdflayout.HelveticaBold, 16), pdflayout.Margin, left, pdflayout.HelveticaBold, 16, l.accent)
	left = p.Lines(addressLines(l.tenant.Address), pdflayout.Margin, left, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	if l.tenant.Email != "" {
		left = p.Text(fit(l.tenant.Email, pdflayout.Helvetica, bodySize), pdflayout.Margin, left, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	}

	// Counterparty column, right-aligned.
	right := pdflayout.Top
	right = p.TextRight(strings.ToUpper(l.doc.Type.Title()), rightEdge, right, pdflayout.HelveticaBold, 20, l.accent)
	right = p.TextRight(fit("#"+l.doc.Number, pdflayout.Helvetica, bodySize), rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.Black)
	if d := documents.FormatDate(l.doc.IssueDate); d != "" {
		right = p.TextRight("Issue date: "+d, rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	}
	if d := documents.FormatDate(l.doc.DueDate); d != "" {
		right = p.TextRight("Due date: "+d, rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	}
	right -= 8
	right = p.TextRight(billToLabel(l.doc.Type), rightEdge, right, pdflayout.HelveticaBold, bodySize, pdflayout.Black)
	if l.doc.Client.Name != "" {
		right = p.TextRight(fit(l.doc.Client.Name, pdflayout.Helvetica, bodySize), rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.Black)
	}
	for _, line := range addressLines(l.doc.Client.Address) {
		right = p.TextRight(line, rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	}
	if l.doc.Client.Email != "" {
		right = p.TextRight(fit(l.doc.Client.Email, pdflayout.Helvetica, bodySize), rightEdge, right, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	}

	l.y = min(left, right) - 20
}

// fit keeps a single header line inside its column.
func fit(text string, font pdflayout.Font, size float64) string {
	return pdflayout.Truncate(text, font, size, columnWidth)
}

// addressLines wraps an address to the column width and keeps at most
// maxAddressLines lines, marking the cut with an ellipsis.
func addressLines(address string) []string {
	lines := pdflayout.WrapParagraphs(address, pdflayout.Helvetica, bodySize, columnWidth)
	if len(lines) <= maxAddressLines {
		return lines
	}
	lines = lines[:maxAddressLines]
	last := lines[maxAddressLines-1] + " …"
	lines[maxAddressLines-1] = pdflayout.Truncate(last, pdflayout.Helvetica, bodySize, columnWidth)
	return lines
}

func billToLabel(t documents.Type) string {
	switch t {
	case documents.TypeQuote:
		return "Prepared for"
	case documents.TypeReceipt:
		return "Received from"
	}
	return "Bill to"
}

func (l *layout) table() {
	l.ensure(2 * rowHeight)
	l.y = l.tbl.Header(l.page, l.y)
	for i, item := range l.doc.Items {
		if l.ensure(rowHeight) {
			l.y = l.tbl.Header(l.page, l.y)
		}
		l.y = l.tbl.Row(l.page, l.y, i, []string{
			item.Description,
			documents.FormatQuantity(item.Quantity),
			documents.FormatMoney(item.UnitPrice, ""),
			documents.FormatMoney(item.Total(), ""),
		})
	}
	l.y -= 16
}

func (l *layout) totals() {
	l.ensure(totalsBlockH)
	p := l.page
	y := l.y - bodySize

	p.TextRight("Subtotal", totalsLabelX, y, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	y = p.TextRight(documents.FormatMoney(l.doc.Subtotal, l.currency), rightEdge, y, pdflayout.Helvetica, bodySize, pdflayout.Black)
	p.TextRight("Tax", totalsLabelX, y, pdflayout.Helvetica, bodySize, pdflayout.DarkGray)
	y = p.TextRight(documents.FormatMoney(l.doc.Tax, l.currency), rightEdge, y, pdflayout.Helvetica, bodySize, pdflayout.Black)

	y -= 2
	p.Line(totalsLabelX-90, y, rightEdge, y, 0.75, pdflayout.MidGray)
	y -= 18

	p.TextRight("Total", totalsLabelX, y, pdflayout.HelveticaBold, 14, l.accent)
	y = p.TextRight(documents.FormatMoney(l.doc.Total, l.currency), rightEdge, y, pdflayout.HelveticaBold, 14, l.accent)
	l.y = y - 12
}

func (l *layout) notes() {
	lines := pdflayout.WrapParagraphs(l.doc.Notes, pdflayout.Helvetica, 9, pdflayout.ContentWidth)
	if len(lines) == 0 {
		return
	}
	l.ensure(2 * pdflayout.LineHeight(bodySize))
	l.y = l.page.Text("Notes", pdflayout.Margin, l.y, pdflayout.HelveticaBold, bodySize, pdflayout.Black)
	for _, line := range lines {
		l.ensure(pdflayout.LineHeight(9))
		l.y = l.page.Text(line, pdflayout.Margin, l.y, pdflayout.Helvetica, 9, pdflayout.DarkGray)
	}
}

// footers stamps every page once the page count is known.
func (l *layout) footers() {
	pages := l.pdf.Pages()
	ref := fmt.Sprintf("%s Reference: #%s", l.doc.Type.Title(), l.doc.Number)
	center := pdflayout.PageWidth / 2
	for i, p := range pages {
		y := pdflayout.Bottom + footerLeading*float64(len(l.footerLines))
		for _, line := range l.footerLines {
			p.TextCentered(line, center, y, pdflayout.Helvetica, smallSize, pdflayout.MidGray)
			y -= footerLeading
		}
		p.TextCentered(ref, center, pdflayout.Bottom, pdflayout.Helvetica, smallSize, pdflayout.MidGray)
		if len(pages) > 1 {
			p.TextRight(fmt.Sprintf("Page %d of %d", i+1, len(pages)), rightEdge, pdflayout.Bottom, pdflayout.Helvetica, smallSize, pdflayout.MidGray)
		}
	}
}
