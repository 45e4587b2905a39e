package pdflayout

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/require"
)

func TestMeasureUsesGlyphMetrics(t *testing.T) {
	// H e l l o = 722 + 556 + 222 + 222 + 556
	require.InDelta(t, 22.78, Measure("Hello", Helvetica, 10), 1e-9)
	require.Greater(t, Measure("Hello", HelveticaBold, 10), Measure("Hello", Helvetica, 10))
	require.Greater(t, Measure("WWWW", Helvetica, 10), Measure("iiii", Helvetica, 10))
	require.InDelta(t, Measure("e", Helvetica, 12), Measure("é", Helvetica, 12), 1e-9)
	require.InDelta(t, 5.56, Measure("€", Helvetica, 10), 1e-9)
}

func TestEncodeWinAnsi(t *testing.T) {
	require.Equal(t, []byte{0x80, ' ', 0xE9, 0x97}, Encode("€ é—"))
	require.Equal(t, []byte("?"), Encode("世"))
	require.Equal(t, []byte("a b"), Encode("a\nb"))
}

func TestWrapRespectsWidthAndPreservesWords(t *testing.T) {
	vocab := []string{"invoice", "a", "consulting", "hours", "Wide", "WWW", "mil", "delivery", "on-site", "Zürich", "éclair", "1234.50", "EUR"}
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(60)
		words := make([]string, n)
		for i := range words {
			words[i] = vocab[rng.Intn(len(vocab))]
		}
		text := strings.Join(words, " ")
		font := Font(rng.Intn(2))
		size := float64(8 + rng.Intn(8))
		maxWidth := 80 + float64(rng.Intn(300))

		lines := Wrap(text, font, size, maxWidth)
		for _, line := range lines {
			require.LessOrEqualf(t, Measure(line, font, size), maxWidth, "line %q exceeds %v", line, maxWidth)
		}
		require.Equal(t, text, strings.Join(lines, " "))
	}
}

func TestWrapGreedyFill(t *testing.T) {
	// Each line must be unable to take the first word of the next line.
	text := "the quick brown fox jumps over the lazy dog again and again"
	lines := Wrap(text, Helvetica, 10, 60)
	for i := 0; i+1 < len(lines); i++ {
		next := strings.Fields(lines[i+1])[0]
		require.Greater(t, Measure(lines[i]+" "+next, Helvetica, 10), 60.0)
	}
}

func TestWrapHardBreaksOverlongWord(t *testing.T) {
	word := "Supercalifragilisticexpialidocious"
	lines := Wrap("a "+word+" b", Helvetica, 10, 40)
	require.Greater(t, len(lines), 3)
	require.Equal(t, "a", lines[0])
	for _, line := range lines {
		require.LessOrEqualf(t, Measure(line, Helvetica, 10), 40.0, "line %q exceeds width", line)
	}
	require.Equal(t, word+"b", strings.ReplaceAll(strings.Join(lines[1:], ""), " ", ""))
	require.Nil(t, Wrap("   ", Helvetica, 10, 40))
}

func TestWrapBreaksWordWithoutSpaces(t *testing.T) {
	iban := "PT50000201231234567890154PT50000201231234567890154"
	lines := Wrap(iban, Helvetica, 10, 120)
	require.Greater(t, len(lines), 1)
	require.Equal(t, iban, strings.Join(lines, ""))
	for _, line := range lines {
		require.LessOrEqual(t, Measure(line, Helvetica, 10), 120.0)
	}
}

func TestWrapParagraphs(t *testing.T) {
	lines := WrapParagraphs("first line\n\nsecond\n", Helvetica, 10, 500)
	require.Equal(t, []string{"first line", "", "second"}, lines)
}

func TestTruncate(t *testing.T) {
	long := "Professional services rendered during the month of March"
	got := Truncate(long, Helvetica, 10, 100)
	require.True(t, strings.HasSuffix(got, "…"))
	require.LessOrEqual(t, Measure(got, Helvetica, 10), 100.0)
	require.Equal(t, "short", Truncate("short", Helvetica, 10, 100))
}

func TestTextReturnsNextBaseline(t *testing.T) {
	p := &Page{}
	y := p.Text("Hello", Margin, Top, Helvetica, 10, Black)
	require.Equal(t, Top-14, y)
	y = p.TextRight("Total", PageWidth-Margin, y, HelveticaBold, 14, Black)
	require.Equal(t, Top-14-18, y)
	require.Contains(t, string(p.Content()), "(Hello) Tj")
	require.Contains(t, string(p.Content()), "/F2 14 Tf")
}

func TestEscaping(t *testing.T) {
	p := &Page{}
	p.Text(`a(b)c\d é`, 0, 0, Helvetica, 10, Black)
	require.Contains(t, string(p.Content()), `(a\(b\)c\\d \351) Tj`)
}

func TestHexColor(t *testing.T) {
	c, ok := HexColor("#ff8000")
	require.True(t, ok)
	require.InDelta(t, 1.0, c.R, 1e-9)
	require.InDelta(t, 128.0/255, c.G, 1e-9)
	require.InDelta(t, 0.0, c.B, 1e-9)

	short, ok := HexColor("0f0")
	require.True(t, ok)
	require.Equal(t, Color{0, 1, 0}, short)

	_, ok = HexColor("blue")
	require.False(t, ok)
}

func TestNumFormatting(t *testing.T) {
	require.Equal(t, "792", num(792))
	require.Equal(t, "12.5", num(12.5))
	require.Equal(t, "0.333", num(1.0/3))
	require.Equal(t, "0", num(-0.0001))
	require.Equal(t, "0", num(math.Copysign(0, -1)))
}

func buildSample(t *testing.T, pages int) []byte {
	t.Helper()
	doc := New()
	for i := 0; i < pages; i++ {
		p := doc.AddPage()
		y := p.Text(fmt.Sprintf("Page %d", i+1), Margin, Top, HelveticaBold, 18, Black)
		p.Rect(Margin, y-20, ContentWidth, 20, LightGray)
		p.Line(Margin, y-30, PageWidth-Margin, y-30, 0.5, MidGray)
		p.TextCentered("Zürich — 100.00 €", PageWidth/2, Bottom, Helvetica, 8, MidGray)
	}
	out, err := doc.Bytes()
	require.NoError(t, err)
	return out
}

func TestDocumentBytesAreDeterministic(t *testing.T) {
	require.True(t, bytes.Equal(buildSample(t, 2), buildSample(t, 2)))
}

func TestDocumentXrefOffsetsPointAtObjects(t *testing.T) {
	out := buildSample(t, 3)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-1.4\n")))
	require.True(t, bytes.HasSuffix(out, []byte("%%EOF\n")))

	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindSubmatch(out)
	require.NotNil(t, m)
	xrefAt, err := strconv.Atoi(string(m[1]))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out[xrefAt:], []byte("xref\n")))

	entries := regexp.MustCompile(`(\d{10}) 00000 n \n`).FindAllSubmatch(out[xrefAt:], -1)
	require.Len(t, entries, 6+2*3)
	for i, e := range entries {
		off, err := strconv.Atoi(string(e[1]))
		require.NoError(t, err)
		want := fmt.Sprintf("%d 0 obj\n", i+1)
		require.Truef(t, bytes.HasPrefix(out[off:], []byte(want)), "object %d offset %d", i+1, off)
	}
}

func TestDocumentParsesWithPDFReader(t *testing.T) {
	out := buildSample(t, 2)
	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	require.Equal(t, 2, r.NumPage())
}

func TestEmptyDocumentFails(t *testing.T) {
	_, err := New().Bytes()
	require.Error(t, err)
}

func TestTableStripesOddRows(t *testing.T) {
	tbl := Table{
		X:          Margin,
		Columns:    []Column{{Header: "Description", Width: 300}, {Header: "Amount", Width: 195, Align: AlignRight}},
		RowHeight:  18,
		FontSize:   10,
		HeaderFill: LightGray,
		StripeFill: Stripe,
		Padding:    4,
	}
	require.Equal(t, 495.0, tbl.Width())

	p := &Page{}
	y := tbl.Header(p, Top)
	require.Equal(t, Top-18, y)
	before := strings.Count(string(p.Content()), " re f")
	y = tbl.Row(p, y, 0, []string{"Even", "1.00"})
	require.Equal(t, before, strings.Count(string(p.Content()), " re f"))
	tbl.Row(p, y, 1, []string{"Odd", "2.00"})
	require.Equal(t, before+1, strings.Count(string(p.Content()), " re f"))
}
