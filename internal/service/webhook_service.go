package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/internal/transfer"
	"github.com/maheshrc27/vantage/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	maxWebhookRetries = 10
	maxWebhookTimeout = 60
	deliveryPageSize  = 50
)

// WebhookService manages organization webhook subscriptions and fans
// domain events out to them.
type WebhookService interface {
	Create(ctx context.Context, orgID int64, req *transfer.WebhookRequest) (*transfer.WebhookWithSecret, error)
	List(ctx context.Context, orgID int64) ([]*models.Webhook, error)
	Get(ctx context.Context, orgID int64, id string) (*models.Webhook, error)
	Update(ctx context.Context, orgID int64, id string, req *transfer.WebhookUpdate) (*models.Webhook, error)
	RegenerateSecret(ctx context.Context, orgID int64, id string) (*transfer.WebhookWithSecret, error)
	Remove(ctx context.Context, orgID int64, id string) error
	ListDeliveries(ctx context.Context, orgID int64, id string) ([]*models.WebhookDelivery, error)
	SendTest(ctx context.Context, orgID int64, id string) (*models.WebhookDelivery, error)
	Emitter
}

// Emitter publishes domain events. Emit never fails because a delivery
// failed; problems are logged and show up in delivery history.
type Emitter interface {
	Emit(ctx context.Context, orgID int64, event string, data any)
}

type WebhookDefaults struct {
	RetryCount     int
	TimeoutSeconds int
}

type webhookService struct {
	wr        repository.WebhookRepository
	dr        repository.WebhookDeliveryRepository
	delivery  DeliveryService
	scheduler TaskScheduler
	defaults  WebhookDefaults
	now       func() time.Time
}

func NewWebhookService(
	wr repository.WebhookRepository,
	dr repository.WebhookDeliveryRepository,
	delivery DeliveryService,
	scheduler TaskScheduler,
	defaults WebhookDefaults) WebhookService {
	return &webhookService{
		wr:        wr,
		dr:        dr,
		delivery:  delivery,
		scheduler: scheduler,
		defaults:  defaults,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return badRequest("at least one event is required")
	}
	for _, e := range events {
		if !models.IsKnownEvent(e) {
			return badRequest(fmt.Sprintf("unknown event %q", e))
		}
	}
	return nil
}

func validateRange(name string, v, min, max int) error {
	if v < min || v > max {
		return badRequest(fmt.Sprintf("%s must be between %d and %d", name, min, max))
	}
	return nil
}

func (s *webhookService) Create(ctx context.Context, orgID int64, req *transfer.WebhookRequest) (*transfer.WebhookWithSecret, error) {
	if req == nil || !validTargetURL(req.TargetURL) {
		return nil, badRequest("target_url must be an absolute http(s) URL")
	}
	if err := validateEvents(req.Events); err != nil {
		return nil, err
	}

	w := &models.Webhook{
		OrganizationID: orgID,
		TargetURL:      req.TargetURL,
		Name:           strings.TrimSpace(req.Name),
		Events:         req.Events,
		IsActive:       true,
		RetryCount:     s.defaults.RetryCount,
		TimeoutSeconds: s.defaults.TimeoutSeconds,
		Headers:        req.Headers,
	}
	if req.RetryCount != nil {
		w.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		w.TimeoutSeconds = *req.TimeoutSeconds
	}
	if err := validateRange("retry_count", w.RetryCount, 1, maxWebhookRetries); err != nil {
		return nil, err
	}
	if err := validateRange("timeout_seconds", w.TimeoutSeconds, 1, maxWebhookTimeout); err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	w.ID = "wh_" + id
	if w.Secret, err = utils.GenerateWebhookSecret(); err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	if err := s.wr.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("storing webhook: %w", err)
	}
	slog.Info("webhook created", "organization_id", orgID, "webhook_id", w.ID, "events", w.Events)
	return &transfer.WebhookWithSecret{Webhook: w, Secret: w.Secret}, nil
}

func (s *webhookService) List(ctx context.Context, orgID int64) ([]*models.Webhook, error) {
	return s.wr.ListByOrganization(ctx, orgID)
}

func (s *webhookService) Get(ctx context.Context, orgID int64, id string) (*models.Webhook, error) {
	w, err := s.wr.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	return w, nil
}

func (s *webhookService) Update(ctx context.Context, orgID int64, id string, req *transfer.WebhookUpdate) (*models.Webhook, error) {
	w, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return w, nil
	}

	if req.TargetURL != nil {
		if !validTargetURL(*req.TargetURL) {
			return nil, badRequest("target_url must be an absolute http(s) URL")
		}
		w.TargetURL = *req.TargetURL
	}
	if req.Name != nil {
		w.Name = strings.TrimSpace(*req.Name)
	}
	if req.Events != nil {
		if err := validateEvents(req.Events); err != nil {
			return nil, err
		}
		w.Events = req.Events
	}
	if req.IsActive != nil {
		w.IsActive = *req.IsActive
	}
	if req.RetryCount != nil {
		if err := validateRange("retry_count", *req.RetryCount, 1, maxWebhookRetries); err != nil {
			return nil, err
		}
		w.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		if err := validateRange("timeout_seconds", *req.TimeoutSeconds, 1, maxWebhookTimeout); err != nil {
			return nil, err
		}
		w.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Headers != nil {
		w.Headers = req.Headers
	}

	if err := s.wr.Update(ctx, w); err != nil {
		return nil, fmt.Errorf("updating webhook: %w", err)
	}
	return w, nil
}

func (s *webhookService) RegenerateSecret(ctx context.Context, orgID int64, id string) (*transfer.WebhookWithSecret, error) {
	w, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	secret, err := utils.GenerateWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	if err := s.wr.UpdateSecret(ctx, orgID, id, secret); err != nil {
		return nil, fmt.Errorf("storing secret: %w", err)
	}
	w.Secret = secret
	slog.Info("webhook secret regenerated", "organization_id", orgID, "webhook_id", id)
	return &transfer.WebhookWithSecret{Webhook: w, Secret: secret}, nil
}

func (s *webhookService) Remove(ctx context.Context, orgID int64, id string) error {
	removed, err := s.wr.Remove(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *webhookService) ListDeliveries(ctx context.Context, orgID int64, id string) ([]*models.WebhookDelivery, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	return s.dr.ListByWebhook(ctx, id, deliveryPageSize)
}

func (s *webhookService) Emit(ctx context.Context, orgID int64, event string, data any) {
	hooks, err := s.wr.ListActiveByEvent(ctx, orgID, event)
	if err != nil {
		slog.Error("failed to load webhooks for event", "organization_id", orgID, "event", event, "error", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload, err := s.payload(event, data)
	if err != nil {
		slog.Error("failed to encode event payload", "event", event, "error", err)
		return
	}
	for _, w := range hooks {
		if _, err := s.enqueue(ctx, w, event, payload); err != nil {
			slog.Error("failed to queue webhook delivery", "webhook_id", w.ID, "event", event, "error", err)
		}
	}
}

// SendTest delivers a webhook.test event to one webhook right away and
// returns the outcome of the first attempt.
func (s *webhookService) SendTest(ctx context.Context, orgID int64, id string) (*models.WebhookDelivery, error) {
	w, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	payload, err := s.payload(models.EventWebhookTest, map[string]any{
		"webhook_id": w.ID,
		"message":    "This is a test event",
	})
	if err != nil {
		return nil, err
	}

	d, err := s.newDelivery(ctx, w, models.EventWebhookTest, payload)
	if err != nil {
		return nil, err
	}
	return s.delivery.Attempt(ctx, d.ID)
}

func (s *webhookService) payload(event string, data any) ([]byte, error) {
	return json.Marshal(models.EventPayload{
		Event:     event,
		Timestamp: s.now(),
		Data:      data,
	})
}

func (s *webhookService) newDelivery(ctx context.Context, w *models.Webhook, event string, payload []byte) (*models.WebhookDelivery, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	d := &models.WebhookDelivery{
		ID:             "dl_" + id,
		WebhookID:      w.ID,
		OrganizationID: w.OrganizationID,
		EventType:      event,
		Payload:        payload,
		Status:         models.DeliveryStatusPending,
		StartedAt:      s.now(),
	}
	if err := s.dr.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("storing delivery: %w", err)
	}
	return d, nil
}

func (s *webhookService) enqueue(ctx context.Context, w *models.Webhook, event string, payload []byte) (*models.WebhookDelivery, error) {
	d, err := s.newDelivery(ctx, w, event, payload)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.ScheduleDelivery(ctx, d.ID, d.StartedAt); err != nil {
		// Hand the delivery to the sweep instead of losing it.
		slog.Warn("failed to queue delivery, leaving it for the sweep", "delivery_id", d.ID, "error", err)
		d.Status = models.DeliveryStatusRetrying
		d.NextRetryAt = &d.StartedAt
		if uerr := s.dr.Update(ctx, d); uerr != nil {
			return nil, uerr
		}
	}
	return d, nil
}
