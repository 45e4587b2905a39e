package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/tenants"
)

func acme() tenants.Tenant {
	return tenants.Tenant{
		ID:       "t-acme",
		Slug:     "acme",
		Name:     "Acme Ltd",
		Email:    "billing@acme.example",
		Currency: "EUR",
		Branding: tenants.Branding{LogoURL: "https://cdn.acme.example/logo.png", AccentColor: "#ff6600"},
	}
}

func invoice() documents.Document {
	return documents.Document{
		ID:        "d-1",
		Type:      documents.TypeInvoice,
		Number:    "INV-2024-007",
		Currency:  "EUR",
		IssueDate: time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		Client:    documents.Party{Name: "Jane Client"},
		Total:     123,
	}
}

type providerCall struct {
	auth string
	body sendRequest
}

func providerServer(t *testing.T, status int, response string) (*httptest.Server, *[]providerCall) {
	t.Helper()
	var calls []providerCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body sendRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, providerCall{auth: r.Header.Get("Authorization"), body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

const link = "https://files.example/acme/INV-2024-007.pdf?sig=abc&expires=1"

func TestSendSuccessWritesOneSentEntry(t *testing.T) {
	srv, calls := providerServer(t, http.StatusOK, `{"id":"msg_123"}`)
	logs := NewMemoryLogRepo()
	d := New(NewHTTPMailer(srv.URL, "re_key", time.Second), logs, "noreply@invoicing.example")

	entry, err := d.Send(context.Background(), acme(), invoice(), "jane@client.example", link)
	require.NoError(t, err)
	require.Equal(t, StatusSent, entry.Status)
	require.Equal(t, "msg_123", entry.ProviderMessageID)
	require.Equal(t, "Invoice INV-2024-007 from Acme Ltd", entry.Subject)
	require.NotEmpty(t, entry.ID)

	entries := logs.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, entry, entries[0])

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "Bearer re_key", call.auth)
	require.Equal(t, []string{"jane@client.example"}, call.body.To)
	require.Equal(t, `"Acme Ltd" <noreply@invoicing.example>`, call.body.From)
	for _, want := range []string{"Hello Jane Client,", "123.00 EUR", "2024-05-02", "2024-06-01", "#ff6600", "logo.png", "sig=abc&amp;expires=1"} {
		require.Contains(t, call.body.HTML, want)
	}
}

func TestSendProviderRejectionUsesProviderMessage(t *testing.T) {
	srv, _ := providerServer(t, http.StatusUnprocessableEntity, `{"statusCode":422,"name":"validation_error","message":"The to field is invalid."}`)
	logs := NewMemoryLogRepo()
	d := New(NewHTTPMailer(srv.URL, "re_key", time.Second), logs, "noreply@invoicing.example")

	entry, err := d.Send(context.Background(), acme(), invoice(), "jane@client.example", link)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, "The to field is invalid.", dispatchErr.Message)
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusUnprocessableEntity, providerErr.Status)

	require.Equal(t, StatusError, entry.Status)
	entries := logs.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, StatusError, entries[0].Status)
	require.Equal(t, "The to field is invalid.", entries[0].Error)
}

func TestSendFallsBackToGenericMessage(t *testing.T) {
	srv, _ := providerServer(t, http.StatusInternalServerError, `oops`)
	logs := NewMemoryLogRepo()
	d := New(NewHTTPMailer(srv.URL, "re_key", time.Second), logs, "noreply@invoicing.example")

	_, err := d.Send(context.Background(), acme(), invoice(), "jane@client.example", link)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, "send failed", dispatchErr.Message)
	require.Len(t, logs.Entries(), 1)
}

func TestSendWithoutMessageIDIsFailure(t *testing.T) {
	srv, _ := providerServer(t, http.StatusOK, `{}`)
	logs := NewMemoryLogRepo()
	d := New(NewHTTPMailer(srv.URL, "re_key", time.Second), logs, "")

	_, err := d.Send(context.Background(), acme(), invoice(), "jane@client.example", link)
	require.ErrorIs(t, err, ErrNoMessageID)
	entries := logs.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, StatusError, entries[0].Status)
}

func TestInvalidRecipientStillLogsOnce(t *testing.T) {
	srv, calls := providerServer(t, http.StatusOK, `{"id":"x"}`)
	logs := NewMemoryLogRepo()
	d := New(NewHTTPMailer(srv.URL, "re_key", time.Second), logs, "")

	_, err := d.Send(context.Background(), acme(), invoice(), "not an email", link)
	require.ErrorIs(t, err, ErrInvalidRecipient)
	require.Empty(t, *calls)
	require.Len(t, logs.Entries(), 1)
}

func TestLogWrittenAfterCallerCancels(t *testing.T) {
	logs := NewMemoryLogRepo()
	d := New(mailerFunc(func(ctx context.Context, _ Email) (string, error) {
		return "", ctx.Err()
	}), logs, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Send(ctx, acme(), invoice(), "jane@client.example", link)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, logs.Entries(), 1)
}

type mailerFunc func(ctx context.Context, msg Email) (string, error)

func (f mailerFunc) Send(ctx context.Context, msg Email) (string, error) { return f(ctx, msg) }

type failingLog struct{}

func (failingLog) Append(context.Context, LogEntry) error { return errors.New("db down") }

func TestLogFailureSurfacesAfterSuccessfulSend(t *testing.T) {
	d := New(mailerFunc(func(context.Context, Email) (string, error) { return "id-1", nil }), failingLog{}, "")
	entry, err := d.Send(context.Background(), acme(), invoice(), "jane@client.example", link)
	require.Error(t, err)
	require.Equal(t, StatusSent, entry.Status)
}

func TestBodyRejectsUnsafeAccent(t *testing.T) {
	tenant := acme()
	tenant.Branding.AccentColor = "red;background:url(javascript:alert(1))"
	html, err := Body(tenant, invoice(), link)
	require.NoError(t, err)
	require.NotContains(t, html, "javascript")
	require.Contains(t, html, defaultAccent)
}

func TestProviderMessageShapes(t *testing.T) {
	tests := map[string]string{
		`{"message":"top"}`:                   "top",
		`{"error":"flat"}`:                    "flat",
		`{"error":{"message":"nested"}}`:      "nested",
		`{"name":"rate_limit_exceeded"}`:      "rate_limit_exceeded",
		`not json`:                            "",
		`{"message":"  ","error":"fallback"}`: "fallback",
	}
	for raw, want := range tests {
		require.Equal(t, want, providerMessage([]byte(raw)), raw)
	}
}

func TestPGLogRepoAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	created := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO delivery_log").
		WithArgs("log-1", "t-acme", "d-1", "INV-2024-007", "jane@client.example", "Invoice INV-2024-007 from Acme Ltd",
			StatusSent, "http", "msg_123", nil, link, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGLogRepo{DB: db}
	err = repo.Append(context.Background(), LogEntry{
		ID:                "log-1",
		TenantID:          "t-acme",
		DocumentID:        "d-1",
		DocumentNumber:    "INV-2024-007",
		Recipient:         "jane@client.example",
		Subject:           "Invoice INV-2024-007 from Acme Ltd",
		Status:            StatusSent,
		Provider:          "http",
		ProviderMessageID: "msg_123",
		Link:              link,
		CreatedAt:         created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectFallsBackToSlug(t *testing.T) {
	tenant := acme()
	tenant.Name = ""
	doc := invoice()
	doc.Type = documents.TypeQuote
	require.True(t, strings.HasPrefix(Subject(tenant, doc), "Quote INV-2024-007 from acme"))
}
