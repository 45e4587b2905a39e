// Package dispatch emails artifact links to recipients and records every
// attempt in the delivery log.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/shared/util"
	"invoicing-backend/internal/tenants"
)

const (
	fallbackMessage = "send failed"
	defaultAccent   = "#1d4ed8"
	logWriteTimeout = 5 * time.Second
)

// ErrInvalidRecipient is returned for a recipient that is not an email address.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// DispatchError reports a rejected send. Message is the provider's most
// specific explanation, or "send failed".
type DispatchError struct {
	Tenant    string
	Document  string
	Recipient string
	Message   string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for tenant %s to %s: %s", e.Document, e.Tenant, e.Recipient, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher composes and sends document emails.
type Dispatcher struct {
	mailer   Mailer
	log      LogRepo
	from     string
	provider string
	now      func() time.Time
}

// New builds a Dispatcher. from is the default sender; a tenant's business
// name is used as its display name.
func New(mailer Mailer, log LogRepo, from string) *Dispatcher {
	provider := "custom"
	if named, ok := mailer.(interface{ Name() string }); ok {
		provider = named.Name()
	}
	return &Dispatcher{
		mailer:   mailer,
		log:      log,
		from:     from,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send emails link to recipient and appends exactly one log entry before
// returning, whatever the outcome.
func (d *Dispatcher) Send(ctx context.Context, tenant tenants.Tenant, doc documents.Document, recipient, link string) (LogEntry, error) {
	entry := LogEntry{
		ID:             uuid.NewString(),
		TenantID:       tenant.ID,
		DocumentID:     doc.ID,
		DocumentNumber: doc.Number,
		Recipient:      strings.TrimSpace(recipient),
		Subject:        Subject(tenant, doc),
		Provider:       d.provider,
		Link:           link,
		CreatedAt:      d.now(),
	}

	sendErr := d.deliver(ctx, tenant, doc, &entry)
	if sendErr != nil {
		entry.Status = StatusError
		entry.Error = failureMessage(sendErr)
	} else {
		entry.Status = StatusSent
	}
	metrics.IncDelivery(entry.Status)

	// The entry is written even when the caller's context is already done.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	logErr := d.log.Append(logCtx, entry)
	if logErr != nil {
		telemetry.Error("dispatch.log_append_failed", map[string]any{
			"tenant": tenant.Slug, "document": doc.Number, "status": entry.Status, "error": logErr,
		})
	}

	if sendErr != nil {
		telemetry.Warn("dispatch.failed", map[string]any{
			"tenant": tenant.Slug, "document": doc.Number, "recipient_hash": util.HashKey(entry.Recipient), "error": entry.Error,
		})
		return entry, &DispatchError{
			Tenant:    tenant.Slug,
			Document:  doc.Number,
			Recipient: entry.Recipient,
			Message:   entry.Error,
			Err:       sendErr,
		}
	}
	if logErr != nil {
		return entry, fmt.Errorf("append delivery log: %w", logErr)
	}
	telemetry.Info("dispatch.sent", map[string]any{
		"tenant": tenant.Slug, "document": doc.Number, "recipient_hash": util.HashKey(entry.Recipient),
		"provider_message_id": entry.ProviderMessageID,
	})
	return entry, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tenant tenants.Tenant, doc documents.Document, entry *LogEntry) error {
	addr, err := mail.ParseAddress(entry.Recipient)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, entry.Recipient)
	}
	entry.Recipient = addr.Address
	if strings.TrimSpace(entry.Link) == "" {
		return errors.New("no artifact link to send")
	}

	html, err := Body(tenant, doc, entry.Link)
	if err != nil {
		return fmt.Errorf("compose body: %w", err)
	}
	id, err := d.mailer.Send(ctx, Email{
		From:    d.sender(tenant),
		To:      entry.Recipient,
		Subject: entry.Subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}
	entry.ProviderMessageID = id
	return nil
}

func (d *Dispatcher) sender(tenant tenants.Tenant) string {
	from := strings.TrimSpace(d.from)
	if from == "" {
		from = strings.TrimSpace(tenant.Email)
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	if addr.Name == "" && tenant.Name != "" {
		addr.Name = tenant.Name
	}
	return addr.String()
}

func failureMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if m := strings.TrimSpace(pe.Message); m != "" {
			return m
		}
		return fallbackMessage
	}
	if m := strings.TrimSpace(err.Error()); m != "" {
		return m
	}
	return fallbackMessage
}

// Subject is "<Type> <number> from <business>".
func Subject(tenant tenants.Tenant, doc documents.Document) string {
	business := strings.TrimSpace(tenant.Name)
	if business == "" {
		business = tenant.Slug
	}
	return fmt.Sprintf("%s %s from %s", doc.Type.Title(), doc.Number, business)
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type bodyData struct {
	Business  string
	LogoURL   string
	Accent    template.CSS
	Greeting  string
	Title     string
	Number    string
	IssueDate string
	DueDate   string
	Total     string
	Link      string
}

var bodyTemplate = template.Must(template.New("email").Parse(`<!doctype html>
<html><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2937;margin:0;padding:24px;">
<div style="max-width:560px;margin:0 auto;">
{{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.Business}}" style="max-height:48px;margin-bottom:16px;">{{end}}
<div style="border-top:4px solid {{.Accent}};padding-top:16px;">
<p>{{.Greeting}}</p>
<p>Please find your {{.Title}} <strong>{{.Number}}</strong> from {{.Business}}.</p>
<table style="border-collapse:collapse;margin:16px 0;">
{{if .IssueDate}}<tr><td style="padding:2px 12px 2px 0;color:#6b7280;">Issued</td><td>{{.IssueDate}}</td></tr>{{end}}
{{if .DueDate}}<tr><td style="padding:2px 12px 2px 0;color:#6b7280;">Due</td><td>{{.DueDate}}</td></tr>{{end}}
{{if .Total}}<tr><td style="padding:2px 12px 2px 0;color:#6b7280;">Total</td><td><strong>{{.Total}}</strong></td></tr>{{end}}
</table>
<p><a href="{{.Link}}" style="display:inline-block;background:{{.Accent}};color:#ffffff;padding:10px 18px;border-radius:4px;text-decoration:none;">View {{.Title}}</a></p>
<p style="color:#6b7280;font-size:12px;">This link expires. Reply to this email if you need a new one.</p>
</div></div></body></html>`))

// Body renders the HTML email for doc.
func Body(tenant tenants.Tenant, doc documents.Document, link string) (string, error) {
	accent := strings.TrimSpace(tenant.Branding.AccentColor)
	if !hexColor.MatchString(accent) {
		accent = defaultAccent
	}
	greeting := "Hello,"
	if name := strings.TrimSpace(doc.Client.Name); name != "" {
		greeting = "Hello " + name + ","
	}
	currency := doc.Currency
	if currency == "" {
		currency = tenant.Currency
	}
	business := strings.TrimSpace(tenant.Name)
	if business == "" {
		business = tenant.Slug
	}

	data := bodyData{
		Business:  business,
		LogoURL:   strings.TrimSpace(tenant.Branding.LogoURL),
		Accent:    template.CSS(accent),
		Greeting:  greeting,
		Title:     strings.ToLower(doc.Type.Title()),
		Number:    doc.Number,
		IssueDate: documents.FormatDate(doc.IssueDate),
		DueDate:   documents.FormatDate(doc.DueDate),
		Total:     documents.FormatMoney(doc.Total, currency),
		Link:      link,
	}
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
