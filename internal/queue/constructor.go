package queue

import (
	"github.com/maheshrc27/vantage/internal/service"
)

type Queue struct {
	ps service.PublishingService
	ds service.DeliveryService
}

func NewQueue(ps service.PublishingService, ds service.DeliveryService) *Queue {
	return &Queue{
		ps: ps,
		ds: ds,
	}
}

const (
	TaskTypePublish        = "publish:execute"
	TaskTypeDeliverWebhook = "webhook:deliver"
)

type DeliverWebhookPayload struct {
	DeliveryID string `json:"delivery_id"`
}
