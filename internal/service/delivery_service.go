package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/pkg/utils"
)

const (
	HeaderEvent     = "X-Vantage-Event"
	HeaderDelivery  = "X-Vantage-Delivery"
	HeaderSignature = "X-Vantage-Signature"

	maxStoredResponseBody = 4096
	sweepBatchSize        = 100
	sweepConcurrency      = 10
	claimGrace            = 30 * time.Second

	// Queued retries may fire a little before nextRetryAt; the scheduled set
	// has one second resolution.
	retrySlack = time.Second
)

// DeliveryService performs signed webhook deliveries and owns their retry
// schedule.
type DeliveryService interface {
	Attempt(ctx context.Context, deliveryID string) (*models.WebhookDelivery, error)
	SweepDue(ctx context.Context, now time.Time) (int, error)
}

type deliveryService struct {
	wr         repository.WebhookRepository
	dr         repository.WebhookDeliveryRepository
	scheduler  TaskScheduler
	httpClient *http.Client
	now        func() time.Time
}

func NewDeliveryService(wr repository.WebhookRepository, dr repository.WebhookDeliveryRepository, scheduler TaskScheduler, httpClient *http.Client) DeliveryService {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &deliveryService{
		wr:         wr,
		dr:         dr,
		scheduler:  scheduler,
		httpClient: httpClient,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NextRetryAt is now + 2^attempt minutes.
func NextRetryAt(attempt int, now time.Time) time.Time {
	return now.Add(time.Duration(math.Pow(2, float64(attempt))) * time.Minute)
}

func (s *deliveryService) Attempt(ctx context.Context, deliveryID string) (*models.WebhookDelivery, error) {
	d, err := s.dr.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("loading delivery %s: %w", deliveryID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %s: %w", deliveryID, ErrNotFound)
	}

	now := s.now()
	if d.Status.Terminal() {
		return d, nil
	}
	if d.Status == models.DeliveryStatusRetrying && d.NextRetryAt != nil && now.Add(retrySlack).Before(*d.NextRetryAt) {
		return d, nil
	}

	webhook, err := s.wr.GetByID(ctx, d.OrganizationID, d.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("loading webhook %s: %w", d.WebhookID, err)
	}
	if webhook == nil || !webhook.IsActive {
		d.Status = models.DeliveryStatusFailed
		d.ErrorMessage = "webhook was removed or disabled"
		d.CompletedAt = &now
		d.NextRetryAt = nil
		return d, s.dr.Update(ctx, d)
	}

	claimed, err := s.dr.Claim(ctx, d.ID, d.AttemptCount, now, now.Add(leaseFor(webhook)))
	if err != nil {
		return nil, fmt.Errorf("claiming delivery %s: %w", d.ID, err)
	}
	if claimed == nil {
		slog.Info("delivery already claimed by another worker", "delivery_id", d.ID)
		return d, nil
	}
	d = claimed

	status, body, headers, sendErr := s.send(ctx, webhook, d)
	d.ResponseBody = body
	d.ResponseHeaders = headers
	d.ResponseStatus = nil
	if status > 0 {
		d.ResponseStatus = &status
	}

	done := s.now()
	if sendErr == nil {
		d.Status = models.DeliveryStatusDelivered
		d.ErrorMessage = ""
		d.CompletedAt = &done
		d.NextRetryAt = nil
		if err := s.dr.Update(ctx, d); err != nil {
			return nil, err
		}
		if err := s.wr.TouchLastTriggered(ctx, webhook.ID, done); err != nil {
			slog.Warn("failed to record webhook trigger time", "webhook_id", webhook.ID, "error", err)
		}
		slog.Info("webhook delivered", "delivery_id", d.ID, "webhook_id", webhook.ID, "attempt", d.AttemptCount)
		return d, nil
	}

	d.ErrorMessage = sendErr.Error()
	if d.AttemptCount < webhook.RetryCount {
		next := NextRetryAt(d.AttemptCount, done)
		d.Status = models.DeliveryStatusRetrying
		d.NextRetryAt = &next
		if err := s.dr.Update(ctx, d); err != nil {
			return nil, err
		}
		// The sweep picks the delivery up if this enqueue is lost.
		if err := s.scheduler.ScheduleDelivery(ctx, d.ID, next); err != nil {
			slog.Warn("failed to schedule delivery retry", "delivery_id", d.ID, "error", err)
		}
		slog.Info("webhook delivery failed, retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_retry_at", next, "error", sendErr)
		return d, nil
	}

	d.Status = models.DeliveryStatusFailed
	d.CompletedAt = &done
	d.NextRetryAt = nil
	if err := s.dr.Update(ctx, d); err != nil {
		return nil, err
	}
	slog.Warn("webhook delivery failed permanently", "delivery_id", d.ID, "attempts", d.AttemptCount, "error", sendErr)
	return d, nil
}

func sendTimeout(webhook *models.Webhook) time.Duration {
	if webhook.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(webhook.TimeoutSeconds) * time.Second
}

// leaseFor covers one send plus the bookkeeping after it. A worker that dies
// mid-attempt frees the delivery once the lease runs out.
func leaseFor(webhook *models.Webhook) time.Duration {
	return sendTimeout(webhook) + claimGrace
}

// storableText drops bytes a Postgres TEXT or JSONB column refuses: invalid
// UTF-8, including a rune cut by the read limit, and NUL.
func storableText(b []byte) string {
	return strings.ReplaceAll(strings.ToValidUTF8(string(b), ""), "\x00", "")
}

func (s *deliveryService) send(ctx context.Context, webhook *models.Webhook, d *models.WebhookDelivery) (int, string, models.StringMap, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout(webhook))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.TargetURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, "", nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vantage-Webhooks/1.0")
	req.Header.Set(HeaderEvent, d.EventType)
	req.Header.Set(HeaderDelivery, d.ID)
	req.Header.Set(HeaderSignature, utils.SignPayload(d.Payload, webhook.Secret))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredResponseBody))
	body := storableText(raw)
	headers := make(models.StringMap, len(resp.Header))
	for k := range resp.Header {
		headers[k] = storableText([]byte(resp.Header.Get(k)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, headers, fmt.Errorf("target responded with HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, body, headers, nil
}

// SweepDue re-attempts retrying deliveries whose time has come. It is the
// safety net behind the queued retries.
func (s *deliveryService) SweepDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.dr.ListDueRetries(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing due deliveries: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []string
	semaphore := make(chan struct{}, sweepConcurrency)

	for _, d := range due {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			if _, err := s.Attempt(ctx, id); err != nil {
				mu.Lock()
				failures = append(failures, id)
				mu.Unlock()
				slog.Error("delivery sweep attempt failed", "delivery_id", id, "error", err)
			}
		}(d.ID)
	}
	wg.Wait()

	if len(failures) > 0 {
		return len(due) - len(failures), fmt.Errorf("sweep could not attempt %s", strings.Join(failures, ", "))
	}
	return len(due), nil
}
