package service

import (
	"context"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
)

// PublicationTask is the body of a queued publish. Media and per-request
// settings travel with the task because they are not stored on the
// reference.
type PublicationTask struct {
	ReferenceID int64              `json:"reference_id"`
	Media       []models.MediaItem `json:"media,omitempty"`
	Settings    map[string]string  `json:"settings,omitempty"`
	ScheduleAt  *time.Time         `json:"schedule_at,omitempty"`
}

// TaskScheduler runs work now or at a later time with at-least-once
// semantics. The queue package implements it on top of asynq.
type TaskScheduler interface {
	SchedulePublication(ctx context.Context, task PublicationTask) error
	ScheduleDelivery(ctx context.Context, deliveryID string, at time.Time) error
}
