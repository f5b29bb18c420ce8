package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
)

// ExternalReferenceRepository persists publication outcomes. Update never
// writes over a reference that is already failed or cancelled.
type ExternalReferenceRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ref *models.ExternalReference) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ExternalReference, error)
	GetByOrganization(ctx context.Context, orgID, id int64) (*models.ExternalReference, error)
	ListByExternalID(ctx context.Context, platform, externalID string) ([]*models.ExternalReference, error)
	ListByStatus(ctx context.Context, status models.ReferenceStatus, limit int) ([]*models.ExternalReference, error)
	Update(ctx context.Context, ref *models.ExternalReference) (bool, error)
}

type externalReferenceRepository struct {
	db *sql.DB
}

func NewExternalReferenceRepository(db *sql.DB) ExternalReferenceRepository {
	return &externalReferenceRepository{db: db}
}

const referenceColumns = `id, organization_id, social_account_id, platform, external_id, url, status,
	error_message, platform_data, content, scheduled_at, published_at, created_at, updated_at`

func scanReference(row interface{ Scan(...any) error }) (*models.ExternalReference, error) {
	var ref models.ExternalReference
	err := row.Scan(&ref.ID, &ref.OrganizationID, &ref.SocialAccountID, &ref.Platform, &ref.ExternalID,
		&ref.URL, &ref.Status, &ref.ErrorMessage, &ref.PlatformData, &ref.Content,
		&ref.ScheduledAt, &ref.PublishedAt, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *externalReferenceRepository) Create(ctx context.Context, tx *sql.Tx, ref *models.ExternalReference) (int64, error) {
	query := `
		INSERT INTO external_references (
			organization_id, social_account_id, platform, external_id, url, status,
			error_message, platform_data, content, scheduled_at, published_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	args := []any{
		ref.OrganizationID, ref.SocialAccountID, ref.Platform, ref.ExternalID, ref.URL, ref.Status,
		ref.ErrorMessage, ref.PlatformData, ref.Content, ref.ScheduledAt, ref.PublishedAt,
	}

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, args...)
	} else {
		row = r.db.QueryRowContext(ctx, query, args...)
	}
	if err := row.Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return ref.ID, nil
}

func (r *externalReferenceRepository) GetByID(ctx context.Context, id int64) (*models.ExternalReference, error) {
	query := `SELECT ` + referenceColumns + ` FROM external_references WHERE id = $1`
	ref, err := scanReference(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ref, nil
}

func (r *externalReferenceRepository) GetByOrganization(ctx context.Context, orgID, id int64) (*models.ExternalReference, error) {
	query := `SELECT ` + referenceColumns + ` FROM external_references WHERE id = $1 AND organization_id = $2`
	ref, err := scanReference(r.db.QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ref, nil
}

func (r *externalReferenceRepository) ListByExternalID(ctx context.Context, platform, externalID string) ([]*models.ExternalReference, error) {
	query := `SELECT ` + referenceColumns + ` FROM external_references WHERE platform = $1 AND external_id = $2`
	return r.list(ctx, query, platform, externalID)
}

func (r *externalReferenceRepository) ListByStatus(ctx context.Context, status models.ReferenceStatus, limit int) ([]*models.ExternalReference, error) {
	query := `SELECT ` + referenceColumns + ` FROM external_references WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`
	return r.list(ctx, query, status, limit)
}

func (r *externalReferenceRepository) list(ctx context.Context, query string, args ...any) ([]*models.ExternalReference, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var refs []*models.ExternalReference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return refs, nil
}

// Update stores ref unless the row has reached a terminal status in the
// meantime. It reports whether the row was written.
func (r *externalReferenceRepository) Update(ctx context.Context, ref *models.ExternalReference) (bool, error) {
	query := `
		UPDATE external_references
		SET
			external_id = $2,
			url = $3,
			status = $4,
			error_message = $5,
			platform_data = $6,
			published_at = $7,
			updated_at = $8
		WHERE id = $1 AND status NOT IN ('failed', 'cancelled')
	`
	ref.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query, ref.ID, ref.ExternalID, ref.URL, ref.Status,
		ref.ErrorMessage, ref.PlatformData, ref.PublishedAt, ref.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
