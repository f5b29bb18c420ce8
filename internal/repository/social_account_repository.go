package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/vantage/internal/models"
)

type SocialAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListByOrganization(ctx context.Context, orgID int64) ([]*models.SocialAccount, error)
	CheckByOrganization(ctx context.Context, accountID, orgID int64) (bool, error)
	Remove(ctx context.Context, orgID, id int64) (bool, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, organization_id, platform, account_id, account_name, access_token, refresh_token,
	token_expires_at, settings, account_status, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.OrganizationID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt, &sa.Settings, &sa.AccountStatus,
		&sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO social_accounts (
			organization_id, platform, account_id, account_name,
			access_token, refresh_token, token_expires_at, settings
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	row := r.queryRow(ctx, tx, query, sa.OrganizationID, sa.Platform, sa.AccountID, sa.AccountName,
		sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt, sa.Settings)

	var id int64
	if err := row.Scan(&id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *socialAccountRepository) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return r.db.QueryRowContext(ctx, query, args...)
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	sa, err := scanAccount(r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM social_accounts WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

// ListByOrganization blanks the encrypted tokens before returning.
func (r *socialAccountRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM social_accounts WHERE organization_id = $1 ORDER BY id", orgID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		sa.AccessToken, sa.RefreshToken = "", ""
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) CheckByOrganization(ctx context.Context, accountID, orgID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM social_accounts WHERE id = $1 AND organization_id = $2)",
		accountID, orgID).Scan(&exists)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return exists, nil
}

func (r *socialAccountRepository) Remove(ctx context.Context, orgID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM social_accounts WHERE id = $1 AND organization_id = $2", id, orgID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
