package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/vantage/internal/service"
)

const (
	publishMaxRetry  = 5
	deliveryMaxRetry = 3
	publishTimeout   = 10 * time.Minute
	deliveryTimeout  = 2 * time.Minute
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher schedules service work on asynq.
type Dispatcher struct {
	client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

var _ service.TaskScheduler = (*Dispatcher)(nil)

// SchedulePublication enqueues the publish right away. A requested
// schedule is handed to the platform driver, which either schedules
// natively or publishes immediately.
func (d *Dispatcher) SchedulePublication(ctx context.Context, task service.PublicationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, asynq.NewTask(TaskTypePublish, payload),
		asynq.TaskID(fmt.Sprintf("publish:%d", task.ReferenceID)),
		asynq.MaxRetry(publishMaxRetry),
		asynq.Timeout(publishTimeout),
	)
}

// ScheduleDelivery runs a delivery attempt at the given time. Every
// attempt gets its own task id because the attempt that schedules the
// next one is still active in the queue.
func (d *Dispatcher) ScheduleDelivery(ctx context.Context, deliveryID string, at time.Time) error {
	payload, err := json.Marshal(DeliverWebhookPayload{DeliveryID: deliveryID})
	if err != nil {
		return err
	}
	return d.enqueue(ctx, asynq.NewTask(TaskTypeDeliverWebhook, payload),
		asynq.TaskID(fmt.Sprintf("deliver:%s:%d", deliveryID, at.Unix())),
		asynq.ProcessAt(at),
		asynq.MaxRetry(deliveryMaxRetry),
		asynq.Timeout(deliveryTimeout),
	)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("task already queued", "type", task.Type())
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", task.Type(), err)
	}
	slog.Info("task scheduled", "type", task.Type(), "id", info.ID, "process_at", info.NextProcessAt)
	return nil
}
