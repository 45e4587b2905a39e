package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/render/billing"
	"invoicing-backend/internal/tenants"
)

func main() {
	outPath := flag.String("out", "./out/sample_invoice.pdf", "output path for the generated PDF")
	docType := flag.String("type", "invoice", "document type: invoice, quote or receipt")
	items := flag.Int("items", 6, "number of line items; large values exercise pagination")
	flag.Parse()

	t, err := documents.ParseType(*docType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid type: %v\n", err)
		os.Exit(2)
	}
	doc := sampleDocument(t, *items)
	if err := doc.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid sample: %v\n", err)
		os.Exit(1)
	}

	out, err := billing.New().Render(sampleTenant(), doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		os.Exit(1)
	}
	if err := render.ValidatePDF(out.Bytes); err != nil {
		fmt.Fprintf(os.Stderr, "render validation failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, out.Bytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: wrote %s (%d bytes, suggested name %s)\n", *outPath, len(out.Bytes), out.Filename())
}

func sampleTenant() tenants.Tenant {
	return tenants.Tenant{
		ID:       "tenant-demo",
		Slug:     "demo",
		Name:     "Northwind Studio",
		Email:    "billing@northwind.example",
		Address:  "12 Harbour Street, Lisbon",
		Currency: "EUR",
		Branding: tenants.Branding{AccentColor: "#1F6FEB"},
	}
}

func sampleDocument(t documents.Type, n int) documents.Document {
	if n < 1 {
		n = 1
	}
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	doc := documents.Document{
		ID:        "doc-demo",
		TenantID:  "tenant-demo",
		Type:      t,
		Number:    "INV-2024-007",
		Currency:  "EUR",
		IssueDate: issued,
		DueDate:   issued.AddDate(0, 0, 30),
		Client: documents.Party{
			Name:    "Contoso Ltd",
			Email:   "accounts@contoso.example",
			Address: "400 Market Street, Porto",
		},
		Notes: "Payment by bank transfer within 30 days. Thank you for your business.",
	}
	for i := 1; i <= n; i++ {
		item := documents.LineItem{
			Description: fmt.Sprintf("Design sprint %d: research, wireframes and a clickable prototype for review", i),
			Quantity:    float64(i%3 + 1),
			UnitPrice:   120,
		}
		doc.Items = append(doc.Items, item)
		doc.Subtotal += item.Total()
	}
	doc.Tax = doc.Subtotal * 0.23
	doc.Total = doc.Subtotal + doc.Tax
	return doc
}
