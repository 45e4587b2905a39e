package billing

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/require"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/tenants"
)

func acmeTenant() tenants.Tenant {
	return tenants.Tenant{
		ID:       "t-acme",
		Slug:     "acme",
		Name:     "Acme Ltd",
		Email:    "billing@acme.test",
		Address:  "1 Long Road\nLisbon",
		Currency: "EUR",
		Branding: tenants.Branding{AccentColor: "#0055aa"},
	}
}

func acmeInvoice() documents.Document {
	return documents.Document{
		Type:      documents.TypeInvoice,
		Number:    "INV-2024-007",
		Currency:  "EUR",
		IssueDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Client:    documents.Party{Name: "Globex", Address: "42 Side Street"},
		Items: []documents.LineItem{
			{Description: "Consulting", Quantity: 2, UnitPrice: 40},
			{Description: "Support", Quantity: 1, UnitPrice: 20},
		},
		Subtotal: 100,
		Tax:      23,
		Total:    123,
		Notes:    "Payment by bank transfer.",
	}
}

func TestRenderAcmeInvoice(t *testing.T) {
	res, err := New().Render(acmeTenant(), acmeInvoice())
	require.NoError(t, err)
	require.Equal(t, "invoice-INV-2024-007.pdf", res.Filename())
	require.NoError(t, render.ValidatePDF(res.Bytes))

	body := string(res.Bytes)
	require.Contains(t, body, "(Invoice Reference: #INV-2024-007) Tj")
	require.Contains(t, body, "(123.00 EUR) Tj")
	require.Contains(t, body, "(100.00 EUR) Tj")
	require.Contains(t, body, "(23.00 EUR) Tj")
	require.Contains(t, body, "(INVOICE) Tj")
	require.Contains(t, body, "(Consulting) Tj")
	require.Contains(t, body, "(Due date: 2024-07-31) Tj")
	require.Contains(t, body, "/F2 14 Tf")
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := New().Render(acmeTenant(), acmeInvoice())
	require.NoError(t, err)
	b, err := New().Render(acmeTenant(), acmeInvoice())
	require.NoError(t, err)
	require.True(t, bytes.Equal(a.Bytes, b.Bytes))
}

func TestRenderFallsBackToTenantCurrency(t *testing.T) {
	doc := acmeInvoice()
	doc.Currency = ""
	res, err := New().Render(acmeTenant(), doc)
	require.NoError(t, err)
	require.Contains(t, string(res.Bytes), "(123.00 EUR) Tj")
}

func TestQuoteFooterReference(t *testing.T) {
	doc := acmeInvoice()
	doc.Type = documents.TypeQuote
	doc.Number = "Q-9"
	res, err := New().Render(acmeTenant(), doc)
	require.NoError(t, err)
	require.Contains(t, string(res.Bytes), "(Quote Reference: #Q-9) Tj")
	require.Contains(t, string(res.Bytes), "(Prepared for) Tj")
	require.Equal(t, "quote-Q-9.pdf", res.Filename())
}

func TestLongItemListPaginates(t *testing.T) {
	doc := acmeInvoice()
	doc.Items = nil
	for i := 0; i < 120; i++ {
		doc.Items = append(doc.Items, documents.LineItem{Description: fmt.Sprintf("Item %03d", i), Quantity: 1, UnitPrice: 1})
	}
	res, err := New().Render(acmeTenant(), doc)
	require.NoError(t, err)

	r, err := pdf.NewReader(bytes.NewReader(res.Bytes), int64(len(res.Bytes)))
	require.NoError(t, err)
	pages := r.NumPage()
	require.Greater(t, pages, 1)

	body := string(res.Bytes)
	require.Equal(t, pages, strings.Count(body, "(Invoice Reference: #INV-2024-007) Tj"))
	require.Contains(t, body, fmt.Sprintf("(Page 1 of %d) Tj", pages))
	require.Equal(t, pages, strings.Count(body, "(Description) Tj"))
	for i := 0; i < 120; i++ {
		require.Contains(t, body, fmt.Sprintf("(Item %03d) Tj", i))
	}
	require.Less(t, strings.Index(body, "(Item 000) Tj"), strings.Index(body, "(Item 119) Tj"))
}

var rectRe = regexp.MustCompile(`[\d.]+ ([\d.]+) [\d.]+ [\d.]+ re f`)

func firstRectY(t *testing.T, b []byte) float64 {
	t.Helper()
	m := rectRe.FindSubmatch(b)
	require.NotNil(t, m)
	y, err := strconv.ParseFloat(string(m[1]), 64)
	require.NoError(t, err)
	return y
}

func TestTableStartsBelowTallerHeaderColumn(t *testing.T) {
	short, err := New().Render(acmeTenant(), acmeInvoice())
	require.NoError(t, err)

	doc := acmeInvoice()
	doc.Client.Address = "Building 7\nFloor 3\nIndustrial Park\nSome City\nSome Region\nCountry"
	tall, err := New().Render(acmeTenant(), doc)
	require.NoError(t, err)

	require.Less(t, firstRectY(t, tall.Bytes), firstRectY(t, short.Bytes))
}

var addressLineRe = regexp.MustCompile(`(-?[\d.]+) (-?[\d.]+) Td\n\((Line \d+[^)]*)\) Tj`)

func TestLongAddressStaysAboveFooter(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 70; i++ {
		fmt.Fprintf(&b, "Line %02d\n", i)
	}
	tenant := acmeTenant()
	tenant.Address = b.String()
	doc := acmeInvoice()
	doc.Client.Address = b.String()

	res, err := New().Render(tenant, doc)
	require.NoError(t, err)
	require.NoError(t, render.ValidatePDF(res.Bytes))

	floor := newLayout(tenant, doc, DefaultFooter).floor
	matches := addressLineRe.FindAllSubmatch(res.Bytes, -1)
	require.Len(t, matches, 2*maxAddressLines)
	for _, m := range matches {
		y, err := strconv.ParseFloat(string(m[2]), 64)
		require.NoError(t, err)
		require.GreaterOrEqualf(t, y, floor, "%s drawn at y=%v", m[3], y)
	}

	body := string(res.Bytes)
	require.Contains(t, body, "(Line 07) Tj")
	require.NotContains(t, body, "(Line 09) Tj")
	require.Greater(t, firstRectY(t, res.Bytes), floor)

	r, err := pdf.NewReader(bytes.NewReader(res.Bytes), int64(len(res.Bytes)))
	require.NoError(t, err)
	require.Equal(t, 1, r.NumPage())
}

func TestInvalidDocumentIsRenderError(t *testing.T) {
	doc := acmeInvoice()
	doc.Number = ""
	_, err := New().Render(acmeTenant(), doc)
	var rerr *render.Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, render.StepLayout, rerr.Step)
	require.ErrorIs(t, err, documents.ErrInvalidInput)
}
