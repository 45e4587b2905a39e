package pdflayout

import (
	"bytes"
	"fmt"
	"strconv"
)

// Document is an ordered set of A4 pages.
type Document struct {
	pages []*Page
}

// New returns an empty document.
func New() *Document {
	return &Document{}
}

// AddPage appends a blank page and returns it.
func (d *Document) AddPage() *Page {
	p := &Page{}
	d.pages = append(d.pages, p)
	return p
}

// Pages returns the pages in order.
func (d *Document) Pages() []*Page {
	return d.pages
}

// Fixed object numbers; page objects follow from firstPageObj.
const (
	catalogObj    = 1
	pagesObj      = 2
	fontRegular   = 3
	fontBold      = 4
	widthsRegular = 5
	widthsBold    = 6
	firstPageObj  = 7
)

// Bytes serializes the document in a single pass. Output has no timestamps or
// IDs, so equal input yields equal bytes.
func (d *Document) Bytes() ([]byte, error) {
	if len(d.pages) == 0 {
		return nil, fmt.Errorf("pdflayout: document has no pages")
	}

	w := &objWriter{}
	w.buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	w.object(catalogObj, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	kids := new(bytes.Buffer)
	for i := range d.pages {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(kids, "%d 0 R", pageObj(i))
	}
	w.object(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(d.pages)))

	w.object(fontRegular, fontDict(Helvetica, widthsRegular))
	w.object(fontBold, fontDict(HelveticaBold, widthsBold))
	w.object(widthsRegular, widthsArray(Helvetica))
	w.object(widthsBold, widthsArray(HelveticaBold))

	for i, p := range d.pages {
		w.object(pageObj(i), fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %s %s] /Resources << /Font << /F1 %d 0 R /F2 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, num(PageWidth), num(PageHeight), fontRegular, fontBold, contentObj(i)))
		w.stream(contentObj(i), p.buf.Bytes())
	}

	return w.finish(catalogObj), nil
}

func pageObj(i int) int    { return firstPageObj + 2*i }
func contentObj(i int) int { return firstPageObj + 2*i + 1 }

func fontDict(f Font, widthsRef int) string {
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 255 /Widths %d 0 R >>",
		f.baseFont(), widthsRef)
}

func widthsArray(f Font) string {
	var b bytes.Buffer
	b.WriteByte('[')
	w := f.widths()
	for code := 32; code < 256; code++ {
		if code > 32 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(int(w[code])))
	}
	b.WriteByte(']')
	return b.String()
}

type objWriter struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *objWriter) begin(n int) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[n] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n", n)
}

func (w *objWriter) object(n int, body string) {
	w.begin(n)
	w.buf.WriteString(body)
	w.buf.WriteString("\nendobj\n")
}

func (w *objWriter) stream(n int, data []byte) {
	w.begin(n)
	fmt.Fprintf(&w.buf, "<< /Length %d >>\nstream\n", len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *objWriter) finish(root int) []byte {
	size := len(w.offsets) + 1
	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", size)
	w.buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[n])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, root, xref)
	return w.buf.Bytes()
}
