package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/pipeline"
	"invoicing-backend/internal/queue"
)

type fakeSender struct {
	errs map[string]error
}

func (f fakeSender) Send(ctx context.Context, req pipeline.SendRequest) (pipeline.Sent, error) {
	return pipeline.Sent{Recipient: req.Recipient}, f.errs[req.DocumentNumberOrID]
}

func record(t *testing.T, id, number string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{TenantSlug: "acme", DocumentNumber: number, Recipient: "billing@client.example"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessBatchReportsOnlyRetryableFailures(t *testing.T) {
	sender := fakeSender{errs: map[string]error{
		"INV-RETRY":   errors.New("provider timeout"),
		"INV-MISSING": documents.ErrNotFound,
		"INV-B-1":     &identity.ResolutionError{Tenant: "beta", Step: identity.StepTokenExchange, Err: errors.New("invalid_grant")},
	}}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "ok", "INV-1"),
		record(t, "retry", "INV-RETRY"),
		record(t, "missing", "INV-MISSING"),
		record(t, "revoked", "INV-B-1"),
		{MessageId: "garbage", Body: "{bad"},
	}}

	resp := processBatch(context.Background(), sender, event)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("failures = %+v", resp.BatchItemFailures)
	}
}
