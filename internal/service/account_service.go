package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/internal/transfer"
	"github.com/maheshrc27/vantage/pkg/utils"
)

// AccountService stores connected platform accounts and turns them into
// the options a publisher call needs.
type AccountService interface {
	Connect(ctx context.Context, orgID int64, req *transfer.AccountRequest) (*models.SocialAccount, error)
	List(ctx context.Context, orgID int64) ([]*models.SocialAccount, error)
	Remove(ctx context.Context, orgID, id int64) error
	Options(ctx context.Context, orgID, accountID int64, overrides map[string]string) (*models.SocialAccount, models.PlatformOptions, error)
}

type accountService struct {
	ac       repository.SocialAccountRepository
	registry *publisher.Registry
	key      []byte
}

func NewAccountService(ac repository.SocialAccountRepository, registry *publisher.Registry, secretKey string) AccountService {
	return &accountService{ac: ac, registry: registry, key: utils.DeriveKey(secretKey)}
}

func (s *accountService) Connect(ctx context.Context, orgID int64, req *transfer.AccountRequest) (*models.SocialAccount, error) {
	if req == nil || req.Platform == "" || req.AccessToken == "" {
		return nil, badRequest("platform and access_token are required")
	}
	if !s.registry.IsSupported(req.Platform) {
		return nil, badRequest(fmt.Sprintf("unsupported platform %q", req.Platform))
	}

	accessToken, err := utils.Encrypt([]byte(req.AccessToken), s.key)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}
	var refreshToken string
	if req.RefreshToken != "" {
		if refreshToken, err = utils.Encrypt([]byte(req.RefreshToken), s.key); err != nil {
			return nil, fmt.Errorf("encrypting refresh token: %w", err)
		}
	}

	expiresAt := time.Now().AddDate(100, 0, 0)
	if req.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	sa := &models.SocialAccount{
		OrganizationID: orgID,
		Platform:       req.Platform,
		AccountID:      req.AccountID,
		AccountName:    req.AccountName,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: expiresAt,
		Settings:       req.Settings,
		AccountStatus:  "active",
	}
	id, err := s.ac.Create(ctx, nil, sa)
	if err != nil {
		return nil, fmt.Errorf("storing account: %w", err)
	}
	sa.ID = id
	slog.Info("social account connected", "organization_id", orgID, "platform", sa.Platform, "account_id", id)
	return sa, nil
}

func (s *accountService) List(ctx context.Context, orgID int64) ([]*models.SocialAccount, error) {
	return s.ac.ListByOrganization(ctx, orgID)
}

func (s *accountService) Remove(ctx context.Context, orgID, id int64) error {
	removed, err := s.ac.Remove(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// Options resolves the account and decrypts its token. Account settings
// are the base; overrides from the request win.
func (s *accountService) Options(ctx context.Context, orgID, accountID int64, overrides map[string]string) (*models.SocialAccount, models.PlatformOptions, error) {
	sa, err := s.ac.GetByID(ctx, accountID)
	if err != nil {
		return nil, models.PlatformOptions{}, err
	}
	if sa == nil || sa.OrganizationID != orgID {
		return nil, models.PlatformOptions{}, fmt.Errorf("social account %d: %w", accountID, ErrNotFound)
	}

	opts := models.PlatformOptions{
		Platform:  sa.Platform,
		AccountID: sa.AccountID,
		Settings:  make(map[string]string, len(sa.Settings)+len(overrides)),
	}
	for k, v := range sa.Settings {
		opts.Settings[k] = v
	}
	for k, v := range overrides {
		opts.Settings[k] = v
	}

	if sa.AccountStatus != "" && sa.AccountStatus != "active" {
		return sa, opts, &publisher.AuthenticationError{Platform: sa.Platform, Message: "account is " + sa.AccountStatus}
	}
	if !sa.TokenExpiresAt.IsZero() && time.Now().After(sa.TokenExpiresAt) {
		return sa, opts, &publisher.AuthenticationError{Platform: sa.Platform, Message: "access token expired"}
	}
	token, err := utils.Decrypt(sa.AccessToken, s.key)
	if err != nil {
		return sa, opts, &publisher.AuthenticationError{Platform: sa.Platform, Message: "stored token cannot be decrypted", Err: err}
	}
	opts.AccessToken = token
	return sa, opts, nil
}
