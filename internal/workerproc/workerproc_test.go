package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/dispatch"
	"invoicing-backend/internal/docsapi"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/pipeline"
	"invoicing-backend/internal/queue"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/tenants"
	"invoicing-backend/internal/vault"
)

type fakeSender struct {
	got []pipeline.SendRequest
	err error
}

func (f *fakeSender) Send(ctx context.Context, req pipeline.SendRequest) (pipeline.Sent, error) {
	f.got = append(f.got, req)
	return pipeline.Sent{}, f.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	b, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(b)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{"empty", "  ", func(err error) bool { _, ok := err.(ErrEmptyBody); return ok }},
		{"bad json", "{bad", func(err error) bool { _, ok := err.(ErrDecode); return ok }},
		{"missing tenant", `{"documentNumber":"INV-1","recipient":"a@b.example"}`, func(err error) bool {
			e, ok := err.(ErrMissingField)
			return ok && e.Field == "tenantSlug"
		}},
		{"missing recipient", `{"tenantSlug":"acme","documentNumber":"INV-1","requestId":"r-1"}`, func(err error) bool {
			e, ok := err.(ErrMissingField)
			return ok && e.Field == "recipient" && e.RequestID == "r-1"
		}},
		{"valid", `{"tenantSlug":"acme","documentNumber":"INV-1","recipient":"a@b.example"}`, func(err error) bool { return err == nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseMessage(tt.body)
			if !tt.check(err) {
				t.Fatalf("unexpected error %v (%T)", err, err)
			}
		})
	}
}

func TestComputeMeta(t *testing.T) {
	if meta := ComputeMeta(""); meta.BodyLen != 0 || meta.BodySHA != "" {
		t.Fatalf("empty meta = %+v", meta)
	}
	meta := ComputeMeta("abc")
	if meta.BodyLen != 3 || meta.BodySHA != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestHandleMessageSends(t *testing.T) {
	sender := &fakeSender{}
	body := encode(t, queue.Message{TenantSlug: "acme", DocumentNumber: "INV-1", Recipient: "a@b.example", RequestID: "r-1"})

	if err := HandleMessage(context.Background(), sender, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := pipeline.SendRequest{TenantSlug: "acme", DocumentNumberOrID: "INV-1", Recipient: "a@b.example"}
	if len(sender.got) != 1 || sender.got[0] != want {
		t.Fatalf("sent %+v, want %+v", sender.got, want)
	}
}

func TestHandleMessageUsesParsedContext(t *testing.T) {
	sender := &fakeSender{}
	msg := queue.Message{TenantSlug: "acme", DocumentNumber: "INV-2", Recipient: "a@b.example"}
	ctx := WithParsedMessage(context.Background(), msg)

	if err := HandleMessage(ctx, sender, "ignored"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.got[0].DocumentNumberOrID != "INV-2" {
		t.Fatalf("unexpected request %+v", sender.got[0])
	}
}

func TestHandleMessageWrapsFailure(t *testing.T) {
	cause := &identity.ResolutionError{Tenant: "beta", Step: identity.StepTokenExchange, Err: errors.New("invalid_grant")}
	sender := &fakeSender{err: cause}
	body := encode(t, queue.Message{TenantSlug: "beta", DocumentNumber: "INV-B-1", Recipient: "a@b.example", RequestID: "r-9"})

	err := HandleMessage(context.Background(), sender, body)
	var proc ErrProcess
	if !errors.As(err, &proc) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if proc.Tenant != "beta" || proc.RequestID != "r-9" {
		t.Fatalf("unexpected %+v", proc)
	}
	var resolution *identity.ResolutionError
	if !errors.As(err, &resolution) {
		t.Fatal("cause must unwrap")
	}
	if !Unrecoverable(err) {
		t.Fatal("a revoked credential must not be redelivered")
	}
}

func TestHandleMessageWithoutSender(t *testing.T) {
	if err := HandleMessage(context.Background(), nil, "{}"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnrecoverable(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"tenant missing":     {fmt.Errorf("resolve: %w", tenants.ErrNotFound), true},
		"document missing":   {documents.ErrNotFound, true},
		"invalid input":      {fmt.Errorf("%w: bad", documents.ErrInvalidInput), true},
		"invalid recipient":  {&dispatch.DispatchError{Err: dispatch.ErrInvalidRecipient}, true},
		"identity exchange":  {&identity.ResolutionError{Tenant: "beta", Step: identity.StepTokenExchange, Err: errors.New("invalid_grant")}, true},
		"credential decrypt": {&vault.DecryptionError{Reason: "authentication failed"}, true},
		"render export":      {&render.Error{Step: render.StepExport, Err: &docsapi.APIError{Status: 500, Message: "backend"}}, true},
		"artifact missing":   {&delivery.ArtifactUnavailableError{Key: "acme/INV-1.pdf", Err: errors.New("put")}, true},
		"provider rejected":  {&dispatch.DispatchError{Err: &dispatch.ProviderError{Status: 422, Message: "bad address"}}, true},
		"provider no id":     {&dispatch.DispatchError{Err: dispatch.ErrNoMessageID}, true},
		"provider throttled": {&dispatch.DispatchError{Err: &dispatch.ProviderError{Status: 429}}, false},
		"provider 5xx":       {&dispatch.DispatchError{Err: &dispatch.ProviderError{Status: 503}}, false},
		"provider transport": {&dispatch.DispatchError{Message: "rate limited", Err: errors.New("connection reset")}, false},
		"render deadline":    {&render.Error{Step: render.StepExport, Err: context.DeadlineExceeded}, false},
		"identity canceled":  {&identity.ResolutionError{Step: identity.StepTokenExchange, Err: context.Canceled}, false},
		"transient":          {errors.New("timeout"), false},
		"nil":                {nil, false},
	}
	for name, tt := range tests {
		if got := Unrecoverable(tt.err); got != tt.want {
			t.Fatalf("%s: Unrecoverable = %v, want %v", name, got, tt.want)
		}
	}
}
