package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/vantage/internal/models"
)

type WebhookRepository interface {
	Create(ctx context.Context, w *models.Webhook) error
	GetByID(ctx context.Context, orgID int64, id string) (*models.Webhook, error)
	ListByOrganization(ctx context.Context, orgID int64) ([]*models.Webhook, error)
	ListActiveByEvent(ctx context.Context, orgID int64, event string) ([]*models.Webhook, error)
	Update(ctx context.Context, w *models.Webhook) error
	UpdateSecret(ctx context.Context, orgID int64, id, secret string) error
	TouchLastTriggered(ctx context.Context, id string, at time.Time) error
	Remove(ctx context.Context, orgID int64, id string) (bool, error)
}

type webhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

const webhookColumns = `id, organization_id, target_url, name, events, secret, is_active, retry_count,
	timeout_seconds, headers, last_triggered_at, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*models.Webhook, error) {
	var w models.Webhook
	err := row.Scan(&w.ID, &w.OrganizationID, &w.TargetURL, &w.Name, pq.Array(&w.Events), &w.Secret,
		&w.IsActive, &w.RetryCount, &w.TimeoutSeconds, &w.Headers, &w.LastTriggeredAt,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *webhookRepository) Create(ctx context.Context, w *models.Webhook) error {
	query := `
		INSERT INTO webhooks (
			id, organization_id, target_url, name, events, secret, is_active,
			retry_count, timeout_seconds, headers
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, w.ID, w.OrganizationID, w.TargetURL, w.Name,
		pq.Array(w.Events), w.Secret, w.IsActive, w.RetryCount, w.TimeoutSeconds, w.Headers,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookRepository) GetByID(ctx context.Context, orgID int64, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1 AND organization_id = $2`
	w, err := scanWebhook(r.db.QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return w, nil
}

func (r *webhookRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE organization_id = $1 ORDER BY created_at`
	return r.list(ctx, query, orgID)
}

func (r *webhookRepository) ListActiveByEvent(ctx context.Context, orgID int64, event string) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE organization_id = $1 AND is_active = TRUE AND $2 = ANY(events)`
	return r.list(ctx, query, orgID, event)
}

func (r *webhookRepository) list(ctx context.Context, query string, args ...any) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		hooks = append(hooks, w)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return hooks, nil
}

func (r *webhookRepository) Update(ctx context.Context, w *models.Webhook) error {
	query := `
		UPDATE webhooks
		SET
			target_url = $3,
			name = $4,
			events = $5,
			is_active = $6,
			retry_count = $7,
			timeout_seconds = $8,
			headers = $9,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND organization_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, w.ID, w.OrganizationID, w.TargetURL, w.Name,
		pq.Array(w.Events), w.IsActive, w.RetryCount, w.TimeoutSeconds, w.Headers)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookRepository) UpdateSecret(ctx context.Context, orgID int64, id, secret string) error {
	query := `UPDATE webhooks SET secret = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND organization_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, orgID, secret)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookRepository) TouchLastTriggered(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE webhooks SET last_triggered_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookRepository) Remove(ctx context.Context, orgID int64, id string) (bool, error) {
	query := `DELETE FROM webhooks WHERE id = $1 AND organization_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected > 0, nil
}
