package documents

import (
	"fmt"
	"strings"
	"time"
)

// Type tags a billing document.
type Type string

const (
	TypeInvoice Type = "invoice"
	TypeQuote   Type = "quote"
	TypeReceipt Type = "receipt"
)

// ParseType accepts a document type tag in any case.
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeInvoice:
		return TypeInvoice, nil
	case TypeQuote:
		return TypeQuote, nil
	case TypeReceipt:
		return TypeReceipt, nil
	}
	return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, raw)
}

// Title is the display form of the type, e.g. "Invoice".
func (t Type) Title() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Party identifies the counterparty of a document.
type Party struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItem is one billed row.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Total is quantity times unit price.
func (li LineItem) Total() float64 {
	return li.Quantity * li.UnitPrice
}

// Document is the payload needed to render an invoice, quote or receipt.
type Document struct {
	ID        string
	TenantID  string
	Type      Type
	Number    string
	Currency  string
	IssueDate time.Time
	DueDate   time.Time
	Client    Party
	Items     []LineItem
	Subtotal  float64
	Tax       float64
	Total     float64
	Notes     string
	CreatedAt time.Time
}

// Filename is the suggested download name "<type>-<number>.pdf".
func (d Document) Filename() string {
	return fmt.Sprintf("%s-%s.pdf", d.Type, d.Number)
}

// Validate checks the document before it enters a renderer.
func (d Document) Validate() error {
	if _, err := ParseType(string(d.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(d.Number) == "" {
		return fmt.Errorf("%w: document number is required", ErrInvalidInput)
	}
	if strings.ContainsAny(d.Number, "/\\") {
		return fmt.Errorf("%w: document number must not contain path separators", ErrInvalidInput)
	}
	if cur := strings.TrimSpace(d.Currency); cur != "" && len(cur) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Description) == "" {
			return fmt.Errorf("%w: line item %d has no description", ErrInvalidInput, i+1)
		}
	}
	return nil
}

// FormatDate renders a calendar date or "" when unset.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
