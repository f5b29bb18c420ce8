package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
)

type WebhookDeliveryRepository interface {
	Create(ctx context.Context, d *models.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	Claim(ctx context.Context, id string, attemptCount int, now, leaseUntil time.Time) (*models.WebhookDelivery, error)
	Update(ctx context.Context, d *models.WebhookDelivery) error
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*models.WebhookDelivery, error)
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error)
}

type webhookDeliveryRepository struct {
	db *sql.DB
}

func NewWebhookDeliveryRepository(db *sql.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

const deliveryColumns = `id, webhook_id, organization_id, event_type, payload, status, attempt_count,
	response_status, response_body, response_headers, error_message, started_at, completed_at, next_retry_at`

func scanDelivery(row interface{ Scan(...any) error }) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var status sql.NullInt64
	err := row.Scan(&d.ID, &d.WebhookID, &d.OrganizationID, &d.EventType, &d.Payload, &d.Status,
		&d.AttemptCount, &status, &d.ResponseBody, &d.ResponseHeaders, &d.ErrorMessage,
		&d.StartedAt, &d.CompletedAt, &d.NextRetryAt)
	if err != nil {
		return nil, err
	}
	if status.Valid {
		code := int(status.Int64)
		d.ResponseStatus = &code
	}
	return &d, nil
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, organization_id, event_type, payload, status, attempt_count, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.WebhookID, d.OrganizationID, d.EventType,
		d.Payload, d.Status, d.AttemptCount, d.StartedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookDeliveryRepository) GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return d, nil
}

// Claim counts a new attempt and leases the row until leaseUntil. It only
// succeeds while the row still has attemptCount attempts, is pending or
// retrying, and holds no live lease; otherwise it returns nil.
func (r *webhookDeliveryRepository) Claim(ctx context.Context, id string, attemptCount int, now, leaseUntil time.Time) (*models.WebhookDelivery, error) {
	query := `
		UPDATE webhook_deliveries
		SET attempt_count = attempt_count + 1, claimed_until = $3
		WHERE id = $1
			AND attempt_count = $2
			AND status IN ('pending', 'retrying')
			AND (claimed_until IS NULL OR claimed_until <= $4)
		RETURNING ` + deliveryColumns
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id, attemptCount, leaseUntil, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return d, nil
}

func (r *webhookDeliveryRepository) Update(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET
			status = $2,
			attempt_count = $3,
			response_status = $4,
			response_body = $5,
			response_headers = $6,
			error_message = $7,
			completed_at = $8,
			next_retry_at = $9,
			claimed_until = NULL
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Status, d.AttemptCount, d.ResponseStatus,
		d.ResponseBody, d.ResponseHeaders, d.ErrorMessage, d.CompletedAt, d.NextRetryAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookDeliveryRepository) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = $1 ORDER BY started_at DESC LIMIT $2`
	return r.list(ctx, query, webhookID, limit)
}

// ListDueRetries returns deliveries waiting in retrying state whose retry
// time has passed, oldest first.
func (r *webhookDeliveryRepository) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE status = 'retrying' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *webhookDeliveryRepository) list(ctx context.Context, query string, args ...any) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return deliveries, nil
}
