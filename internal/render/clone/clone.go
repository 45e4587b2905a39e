// Package clone renders documents by copying a remote template and replacing
// {{TOKEN}} placeholders.
package clone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"invoicing-backend/internal/docsapi"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/tenants"
)

// Placeholder tokens, without braces.
const (
	TokenBusinessName   = "BUSINESS_NAME"
	TokenDocumentNumber = "DOCUMENT_NUMBER"
	TokenIssueDate      = "ISSUE_DATE"
	TokenDueDate        = "DUE_DATE"
	TokenClientName     = "CLIENT_NAME"
	TokenClientAddress  = "CLIENT_ADDRESS"
	TokenCurrency       = "CURRENCY"
	TokenSubtotal       = "SUBTOTAL"
	TokenTax            = "TAX"
	TokenTotal          = "TOTAL"
	TokenNotes          = "NOTES"
	TokenLineItems      = "LINE_ITEMS"
)

// Tokens is the closed vocabulary of supported placeholders.
var Tokens = []string{
	TokenBusinessName, TokenDocumentNumber, TokenIssueDate, TokenDueDate,
	TokenClientName, TokenClientAddress, TokenCurrency, TokenSubtotal,
	TokenTax, TokenTotal, TokenNotes, TokenLineItems,
}

// DocsAPI is the subset of the document API the renderer drives.
type DocsAPI interface {
	CopyFile(ctx context.Context, fileID, name, parentID string) (docsapi.File, error)
	ReplaceAllText(ctx context.Context, documentID string, repls []docsapi.Replacement) error
	GetFile(ctx context.Context, fileID string) (docsapi.File, error)
	Export(ctx context.Context, fileID, mimeType string) ([]byte, error)
}

// TemplateNotFoundError reports a missing or unreachable template.
type TemplateNotFoundError struct {
	Tenant     string
	Type       documents.Type
	TemplateID string
	Err        error
}

func (e *TemplateNotFoundError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("tenant %s has no %s template configured", e.Tenant, e.Type)
	}
	return fmt.Sprintf("template %s for tenant %s not found", e.TemplateID, e.Tenant)
}

func (e *TemplateNotFoundError) Unwrap() error { return e.Err }

// Renderer drives CopyTemplate, SubstitutePlaceholders, ExportOrFetchLink.
type Renderer struct{}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render copies the tenant's template for doc.Type, substitutes every token and
// returns either the export link or the exported bytes.
func (r *Renderer) Render(ctx context.Context, api DocsAPI, tenant tenants.Tenant, doc documents.Document) (render.Result, error) {
	templateID := tenant.TemplateFor(string(doc.Type))
	if strings.TrimSpace(templateID) == "" {
		return nil, &TemplateNotFoundError{Tenant: tenant.Slug, Type: doc.Type}
	}

	copyName := fmt.Sprintf("%s-%s", doc.Type, doc.Number)
	copied, err := api.CopyFile(ctx, templateID, copyName, tenant.OutputFolderID)
	if err != nil {
		if errors.Is(err, docsapi.ErrNotFound) {
			return nil, &TemplateNotFoundError{Tenant: tenant.Slug, Type: doc.Type, TemplateID: templateID, Err: err}
		}
		return nil, &render.Error{Step: render.StepCopy, Document: doc.Number, Err: err}
	}

	values := Values(tenant, doc)
	repls := make([]docsapi.Replacement, 0, len(Tokens))
	for _, token := range Tokens {
		repls = append(repls, docsapi.Replacement{Find: placeholder(token), Replace: values[token]})
	}
	if err := api.ReplaceAllText(ctx, copied.ID, repls); err != nil {
		return nil, &render.Error{Step: render.StepSubstitute, Document: doc.Number, Err: err}
	}

	meta, err := api.GetFile(ctx, copied.ID)
	if err != nil {
		return nil, &render.Error{Step: render.StepExport, Document: doc.Number, Err: err}
	}
	if link := meta.ExportLinks[docsapi.PDFMime]; link != "" {
		return render.LinkResult{URL: link, FileID: copied.ID, Name: doc.Filename()}, nil
	}

	b, err := api.Export(ctx, copied.ID, docsapi.PDFMime)
	if err != nil {
		return nil, &render.Error{Step: render.StepExport, Document: doc.Number, Err: err}
	}
	if len(b) == 0 {
		return nil, &render.Error{Step: render.StepExport, Document: doc.Number, Err: errors.New("empty export")}
	}
	return render.InlineResult{Bytes: b, Name: doc.Filename()}, nil
}

func placeholder(token string) string {
	return "{{" + token + "}}"
}

// Values maps every token to its substitution text. Missing data maps to "".
func Values(tenant tenants.Tenant, doc documents.Document) map[string]string {
	currency := doc.Currency
	if currency == "" {
		currency = tenant.Currency
	}
	return map[string]string{
		TokenBusinessName:   tenant.Name,
		TokenDocumentNumber: doc.Number,
		TokenIssueDate:      documents.FormatDate(doc.IssueDate),
		TokenDueDate:        documents.FormatDate(doc.DueDate),
		TokenClientName:     doc.Client.Name,
		TokenClientAddress:  doc.Client.Address,
		TokenCurrency:       strings.ToUpper(currency),
		TokenSubtotal:       documents.FormatMoney(doc.Subtotal, currency),
		TokenTax:            documents.FormatMoney(doc.Tax, currency),
		TokenTotal:          documents.FormatMoney(doc.Total, currency),
		TokenNotes:          doc.Notes,
		TokenLineItems:      LineItems(doc.Items),
	}
}

// LineItems flattens items to "<description> — <qty> × <unit> = <lineTotal>" lines.
func LineItems(items []documents.LineItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s — %s × %s = %s",
			item.Description,
			documents.FormatQuantity(item.Quantity),
			documents.FormatMoney(item.UnitPrice, ""),
			documents.FormatMoney(item.Total(), ""),
		))
	}
	return strings.Join(lines, "\n")
}

var tokenPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(Tokens))
	for _, token := range Tokens {
		out[token] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(placeholder(token)))
	}
	return out
}()

// Substitute applies values to text with case-insensitive literal matching of
// {{TOKEN}} markers. Tokens absent from values become "".
func Substitute(text string, values map[string]string) string {
	for _, token := range Tokens {
		text = tokenPatterns[token].ReplaceAllLiteralString(text, values[token])
	}
	return text
}
