package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type fakeSocialAccountRepo struct {
	accounts map[int64]models.SocialAccount
	nextID   int64
}

func (r *fakeSocialAccountRepo) Create(_ context.Context, _ *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.nextID++
	r.accounts[r.nextID] = *sa
	return r.nextID, nil
}

func (r *fakeSocialAccountRepo) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	sa, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	sa.ID = id
	return &sa, nil
}

func (r *fakeSocialAccountRepo) ListByOrganization(_ context.Context, orgID int64) ([]*models.SocialAccount, error) {
	var out []*models.SocialAccount
	for id, sa := range r.accounts {
		if sa.OrganizationID == orgID {
			sa := sa
			sa.ID = id
			out = append(out, &sa)
		}
	}
	return out, nil
}

func (r *fakeSocialAccountRepo) CheckByOrganization(_ context.Context, accountID, orgID int64) (bool, error) {
	sa, ok := r.accounts[accountID]
	return ok && sa.OrganizationID == orgID, nil
}

func (r *fakeSocialAccountRepo) Remove(_ context.Context, orgID, id int64) (bool, error) {
	if sa, ok := r.accounts[id]; ok && sa.OrganizationID == orgID {
		delete(r.accounts, id)
		return true, nil
	}
	return false, nil
}

func newAccountFixture() (AccountService, *fakeSocialAccountRepo) {
	repo := &fakeSocialAccountRepo{accounts: map[int64]models.SocialAccount{}}
	registry := publisher.NewDefaultRegistry(client.NewFactory(client.FactoryConfig{}))
	return NewAccountService(repo, registry, "test-secret"), repo
}

func TestConnectEncryptsTokens(t *testing.T) {
	svc, repo := newAccountFixture()
	sa, err := svc.Connect(context.Background(), 7, &transfer.AccountRequest{
		Platform:     publisher.PlatformFacebook,
		AccountID:    "page-1",
		AccessToken:  "plain-token",
		RefreshToken: "plain-refresh",
		Settings:     map[string]string{"page_id": "page-1"},
	})
	require.NoError(t, err)

	stored := repo.accounts[sa.ID]
	assert.NotEqual(t, "plain-token", stored.AccessToken)
	assert.NotEqual(t, "plain-refresh", stored.RefreshToken)
	assert.Equal(t, "active", stored.AccountStatus)

	_, opts, err := svc.Options(context.Background(), 7, sa.ID, map[string]string{"link": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "plain-token", opts.AccessToken)
	assert.Equal(t, "page-1", opts.Setting("page_id"))
	assert.Equal(t, "https://example.com", opts.Setting("link"))
}

func TestConnectValidation(t *testing.T) {
	svc, _ := newAccountFixture()
	_, err := svc.Connect(context.Background(), 7, &transfer.AccountRequest{Platform: "myspace", AccessToken: "x"})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.Connect(context.Background(), 7, &transfer.AccountRequest{Platform: publisher.PlatformFacebook})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestOptionsRequestOverridesWin(t *testing.T) {
	svc, _ := newAccountFixture()
	sa, err := svc.Connect(context.Background(), 7, &transfer.AccountRequest{
		Platform:    publisher.PlatformFacebook,
		AccessToken: "tok",
		Settings:    map[string]string{"page_id": "page-1"},
	})
	require.NoError(t, err)

	_, opts, err := svc.Options(context.Background(), 7, sa.ID, map[string]string{"page_id": "page-2"})
	require.NoError(t, err)
	assert.Equal(t, "page-2", opts.Setting("page_id"))
}

func TestOptionsRejectsUnusableAccounts(t *testing.T) {
	svc, repo := newAccountFixture()
	sa, err := svc.Connect(context.Background(), 7, &transfer.AccountRequest{Platform: publisher.PlatformLinkedIn, AccessToken: "tok"})
	require.NoError(t, err)

	_, _, err = svc.Options(context.Background(), 8, sa.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	stored := repo.accounts[sa.ID]
	stored.TokenExpiresAt = time.Now().Add(-time.Hour)
	repo.accounts[sa.ID] = stored
	_, _, err = svc.Options(context.Background(), 7, sa.ID, nil)
	var ae *publisher.AuthenticationError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Message, "expired")

	stored.TokenExpiresAt = time.Time{}
	stored.AccessToken = "not-ciphertext"
	repo.accounts[sa.ID] = stored
	_, _, err = svc.Options(context.Background(), 7, sa.ID, nil)
	assert.True(t, errors.As(err, &ae))

	stored.AccountStatus = "disconnected"
	repo.accounts[sa.ID] = stored
	_, _, err = svc.Options(context.Background(), 7, sa.ID, nil)
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Message, "disconnected")
}

func TestRemoveAccount(t *testing.T) {
	svc, _ := newAccountFixture()
	sa, err := svc.Connect(context.Background(), 7, &transfer.AccountRequest{Platform: publisher.PlatformWhatsApp, AccessToken: "tok"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Remove(context.Background(), 8, sa.ID), ErrNotFound)
	require.NoError(t, svc.Remove(context.Background(), 7, sa.ID))
	accounts, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
