package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"invoicing-backend/internal/bootstrap"
	"invoicing-backend/internal/shared/config"
	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel)
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, app.Pipeline, event), nil
}

// processBatch reports only retryable failures; malformed or unrecoverable
// records are acknowledged so they leave the queue.
func processBatch(ctx context.Context, sender workerproc.Sender, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncDispatchJobsReceived()
		err := workerproc.HandleMessage(ctx, sender, record.Body)
		fields := map[string]any{"sqs_message_id": record.MessageId}
		switch {
		case err == nil:
			metrics.IncDispatchJobsCompleted()
			telemetry.Info("lambda_worker.send.completed", fields)
		case isParseError(err) || workerproc.Unrecoverable(err):
			fields["error"] = err.Error()
			telemetry.Error("lambda_worker.send.dropped", fields)
			metrics.IncDispatchJobsDeletedUnrecoverable()
		default:
			fields["error"] = err.Error()
			telemetry.Error("lambda_worker.send.failed", fields)
			metrics.IncDispatchJobsFailed()
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func isParseError(err error) bool {
	switch err.(type) {
	case workerproc.ErrEmptyBody, workerproc.ErrDecode, workerproc.ErrMissingField:
		return true
	}
	return false
}

func main() {
	lambda.Start(handler)
}
