package pipeline

import (
	"fmt"
	"strings"
	"time"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/tenants"
)

const dateLayout = "2006-01-02"

// GenerateRequest asks for one document to be rendered for a tenant.
type GenerateRequest struct {
	TenantSlug         string           `json:"-"`
	DocumentType       string           `json:"documentType"`
	DocumentNumberOrID string           `json:"documentNumberOrId"`
	Payload            *DocumentPayload `json:"payload,omitempty"`
}

// DocumentPayload carries the billing data inline instead of loading it from
// the document store. An omitted subtotal or total is computed; an explicit
// value, zero included, is kept.
type DocumentPayload struct {
	Currency  string               `json:"currency"`
	IssueDate string               `json:"issueDate"`
	DueDate   string               `json:"dueDate"`
	Client    documents.Party      `json:"client"`
	Items     []documents.LineItem `json:"lineItems"`
	Subtotal  *float64             `json:"subtotal,omitempty"`
	Tax       float64              `json:"tax"`
	Total     *float64             `json:"total,omitempty"`
	Notes     string               `json:"notes"`
}

// Validate checks the request shape before any lookup.
func (r GenerateRequest) Validate() error {
	if tenants.NormalizeSlug(r.TenantSlug) == "" {
		return fmt.Errorf("%w: tenant is required", documents.ErrInvalidInput)
	}
	if _, err := documents.ParseType(r.DocumentType); err != nil {
		return err
	}
	if strings.TrimSpace(r.DocumentNumberOrID) == "" {
		return fmt.Errorf("%w: documentNumberOrId is required", documents.ErrInvalidInput)
	}
	return nil
}

// document builds the render input from an inline payload.
func (p DocumentPayload) document(tenant tenants.Tenant, docType documents.Type, number string) (documents.Document, error) {
	issue, err := parseDate("issueDate", p.IssueDate)
	if err != nil {
		return documents.Document{}, err
	}
	due, err := parseDate("dueDate", p.DueDate)
	if err != nil {
		return documents.Document{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = tenant.Currency
	}
	var subtotal float64
	if p.Subtotal != nil {
		subtotal = *p.Subtotal
	} else {
		for _, item := range p.Items {
			subtotal += item.Total()
		}
	}
	total := subtotal + p.Tax
	if p.Total != nil {
		total = *p.Total
	}

	return documents.Document{
		TenantID:  tenant.ID,
		Type:      docType,
		Number:    strings.TrimSpace(number),
		Currency:  currency,
		IssueDate: issue,
		DueDate:   due,
		Client:    p.Client,
		Items:     p.Items,
		Subtotal:  subtotal,
		Tax:       p.Tax,
		Total:     total,
		Notes:     p.Notes,
	}, nil
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", documents.ErrInvalidInput, field)
	}
	return t, nil
}

// Generated is a rendered document.
type Generated struct {
	Result   render.Result
	Renderer string
	Tenant   tenants.Tenant
	Document documents.Document
}

// SendRequest asks for a document's artifact link to be emailed.
type SendRequest struct {
	TenantSlug         string `json:"-"`
	DocumentNumberOrID string `json:"-"`
	Recipient          string `json:"recipient"`
}

// Validate checks the request shape before any lookup.
func (r SendRequest) Validate() error {
	if tenants.NormalizeSlug(r.TenantSlug) == "" {
		return fmt.Errorf("%w: tenant is required", documents.ErrInvalidInput)
	}
	if strings.TrimSpace(r.DocumentNumberOrID) == "" {
		return fmt.Errorf("%w: document number is required", documents.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", documents.ErrInvalidInput)
	}
	return nil
}

// Sent is the outcome of a successful dispatch.
type Sent struct {
	Recipient         string
	Subject           string
	Link              string
	ProviderMessageID string
}

// Linked is a resolved artifact link.
type Linked struct {
	Link     delivery.Link
	Tenant   tenants.Tenant
	Document documents.Document
}
