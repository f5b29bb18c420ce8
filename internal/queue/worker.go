package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/vantage/internal/service"
)

func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublish, q.HandlePublishTask)
	mux.HandleFunc(TaskTypeDeliverWebhook, q.HandleDeliverWebhookTask)
}

func (q *Queue) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload service.PublicationTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding publish payload: %v: %w", err, asynq.SkipRetry)
	}

	err := q.ps.ExecutePublication(ctx, payload, finalAttempt(ctx))
	if err != nil && service.IsTerminal(err) {
		slog.Info("publish task will not be retried", "reference_id", payload.ReferenceID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (q *Queue) HandleDeliverWebhookTask(ctx context.Context, task *asynq.Task) error {
	var payload DeliverWebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding delivery payload: %v: %w", err, asynq.SkipRetry)
	}

	// Delivery failures are recorded on the delivery itself. Only storage
	// problems come back as errors here.
	_, err := q.ds.Attempt(ctx, payload.DeliveryID)
	if err != nil && service.IsTerminal(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// finalAttempt reports whether asynq will give up on the task if this run
// fails. Outside a worker there is no retry metadata and the answer is no.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}
