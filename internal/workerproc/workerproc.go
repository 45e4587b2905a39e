package workerproc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/dispatch"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/pipeline"
	"invoicing-backend/internal/queue"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/render/clone"
	"invoicing-backend/internal/shared/util"
	"invoicing-backend/internal/tenants"
	"invoicing-backend/internal/vault"
)

// Sender runs one send job.
type Sender interface {
	Send(ctx context.Context, req pipeline.SendRequest) (pipeline.Sent, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.HashKey(body)}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingField indicates a message without a required field.
type ErrMissingField struct {
	Meta      MessageMeta
	Field     string
	RequestID string
}

func (e ErrMissingField) Error() string { return "missing " + e.Field }

// ErrProcess indicates the send failed after successful parsing.
type ErrProcess struct {
	Tenant    string
	Document  string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process send"
	}
	return "process send: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if field := missingField(msg); field != "" {
		return msg, meta, ErrMissingField{Meta: meta, Field: field, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

func missingField(msg queue.Message) string {
	switch {
	case strings.TrimSpace(msg.TenantSlug) == "":
		return "tenantSlug"
	case strings.TrimSpace(msg.DocumentNumber) == "":
		return "documentNumber"
	case strings.TrimSpace(msg.Recipient) == "":
		return "recipient"
	}
	return ""
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and runs a send job.
func HandleMessage(ctx context.Context, sender Sender, body string) error {
	if sender == nil {
		return errors.New("send pipeline not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if field := missingField(msg); field != "" {
		return ErrMissingField{Meta: ComputeMeta(body), Field: field, RequestID: msg.RequestID}
	}

	_, err := sender.Send(ctx, pipeline.SendRequest{
		TenantSlug:         msg.TenantSlug,
		DocumentNumberOrID: msg.DocumentNumber,
		Recipient:          msg.Recipient,
	})
	if err != nil {
		return ErrProcess{Tenant: msg.TenantSlug, Document: msg.DocumentNumber, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// Unrecoverable reports failures a retry cannot fix, so the message should be
// deleted rather than redelivered. Deadline and cancellation errors stay
// retryable, as do transport failures and provider 5xx or 429 responses.
func Unrecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		missing     *clone.TemplateNotFoundError
		resolution  *identity.ResolutionError
		decrypt     *vault.DecryptionError
		renderErr   *render.Error
		unavailable *delivery.ArtifactUnavailableError
		dispatchErr *dispatch.DispatchError
	)
	switch {
	case errors.Is(err, tenants.ErrNotFound),
		errors.Is(err, documents.ErrNotFound),
		errors.Is(err, documents.ErrInvalidInput),
		errors.Is(err, dispatch.ErrInvalidRecipient),
		errors.As(err, &missing),
		errors.As(err, &resolution),
		errors.As(err, &decrypt),
		errors.As(err, &renderErr),
		errors.As(err, &unavailable):
		return true
	case errors.As(err, &dispatchErr):
		return providerRejected(dispatchErr)
	}
	return false
}

// providerRejected reports a send the provider refused or already accepted;
// redelivering either would log a duplicate attempt or email twice.
func providerRejected(err *dispatch.DispatchError) bool {
	if errors.Is(err, dispatch.ErrNoMessageID) {
		return true
	}
	var pe *dispatch.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch {
	case pe.Status == http.StatusTooManyRequests, pe.Status >= 500:
		return false
	}
	return true
}
