package render

import (
	"errors"
	"testing"

	"invoicing-backend/internal/render/pdflayout"
)

func TestValidatePDF(t *testing.T) {
	doc := pdflayout.New()
	doc.AddPage().Text("ok", pdflayout.Margin, pdflayout.Top, pdflayout.Helvetica, 10, pdflayout.Black)
	b, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if err := ValidatePDF(b); err != nil {
		t.Fatalf("expected valid pdf, got %v", err)
	}

	for name, input := range map[string][]byte{
		"empty":     nil,
		"html":      []byte("<html>expired session</html>"),
		"truncated": b[:len(b)/2],
	} {
		if err := ValidatePDF(input); !errors.Is(err, ErrNotPDF) {
			t.Fatalf("%s: expected ErrNotPDF, got %v", name, err)
		}
	}
}

func TestResultVariants(t *testing.T) {
	var results []Result = []Result{
		LinkResult{URL: "https://docs.example/export", Name: "invoice-1.pdf"},
		InlineResult{Bytes: []byte("%PDF"), Name: "invoice-1.pdf"},
	}
	for _, r := range results {
		if r.Filename() != "invoice-1.pdf" {
			t.Fatalf("unexpected filename %q", r.Filename())
		}
	}
	err := &Error{Step: StepExport, Document: "INV-1", Err: errors.New("boom")}
	if err.Error() != "render INV-1 export: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
