package models

import (
	"time"
)

const (
	EventPostPublished     = "post.published"
	EventPostScheduled     = "post.scheduled"
	EventPostFailed        = "post.failed"
	EventPostDeleted       = "post.deleted"
	EventPostStatusChanged = "post.status_changed"
	EventMetricsUpdated    = "metrics.updated"
	EventWebhookTest       = "webhook.test"
)

var KnownEvents = []string{
	EventPostPublished,
	EventPostScheduled,
	EventPostFailed,
	EventPostDeleted,
	EventPostStatusChanged,
	EventMetricsUpdated,
	EventWebhookTest,
}

func IsKnownEvent(event string) bool {
	for _, e := range KnownEvents {
		if e == event {
			return true
		}
	}
	return false
}

type Webhook struct {
	ID              string     `db:"id" json:"id"`
	OrganizationID  int64      `db:"organization_id" json:"organization_id"`
	TargetURL       string     `db:"target_url" json:"target_url"`
	Name            string     `db:"name" json:"name"`
	Events          []string   `db:"events" json:"events"`
	Secret          string     `db:"secret" json:"-"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	TimeoutSeconds  int        `db:"timeout_seconds" json:"timeout_seconds"`
	Headers         StringMap  `db:"headers" json:"headers"`
	LastTriggeredAt *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

type WebhookDelivery struct {
	ID              string         `db:"id" json:"id"`
	WebhookID       string         `db:"webhook_id" json:"webhook_id"`
	OrganizationID  int64          `db:"organization_id" json:"organization_id"`
	EventType       string         `db:"event_type" json:"event_type"`
	Payload         []byte         `db:"payload" json:"payload"`
	Status          DeliveryStatus `db:"status" json:"status"`
	AttemptCount    int            `db:"attempt_count" json:"attempt_count"`
	ResponseStatus  *int           `db:"response_status" json:"response_status,omitempty"`
	ResponseBody    string         `db:"response_body" json:"response_body,omitempty"`
	ResponseHeaders StringMap      `db:"response_headers" json:"response_headers,omitempty"`
	ErrorMessage    string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt       time.Time      `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	NextRetryAt     *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
}

// EventPayload is the body posted to organization endpoints.
type EventPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
