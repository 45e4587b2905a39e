package tenants

import (
	"errors"
	"strings"
)

// ErrNotFound indicates no tenant exists for the slug.
var ErrNotFound = errors.New("tenant not found")

// Branding is the visual identity applied to documents and emails.
type Branding struct {
	LogoURL     string
	AccentColor string
}

// Templates holds remote template document ids per document type.
type Templates struct {
	Invoice string
	Quote   string
	Receipt string
}

// Tenant is one customer organization.
type Tenant struct {
	ID             string
	Slug           string
	Name           string
	Email          string
	Address        string
	Currency       string
	Timezone       string
	Branding       Branding
	Templates      Templates
	OutputFolderID string

	// DelegatedCredential is a sealed vault envelope, never plaintext.
	DelegatedCredential string
}

// HasDelegatedCredential reports whether document API calls must run as the tenant.
func (t Tenant) HasDelegatedCredential() bool {
	return strings.TrimSpace(t.DelegatedCredential) != ""
}

// TemplateFor returns the template id for a document type tag, or "".
func (t Tenant) TemplateFor(docType string) string {
	switch strings.ToLower(docType) {
	case "invoice":
		return t.Templates.Invoice
	case "quote":
		return t.Templates.Quote
	case "receipt":
		return t.Templates.Receipt
	}
	return ""
}

// NormalizeSlug lowercases and trims a routing slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
