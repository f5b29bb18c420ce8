package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/service"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type fakePublishing struct {
	service.PublishingService
	err    error
	orgID  int64
	create *transfer.PublicationRequest
}

func (f *fakePublishing) Platforms() []string { return []string{"facebook", "linkedin"} }

func (f *fakePublishing) Preview(_ context.Context, orgID int64, req *transfer.PreviewRequest) (*models.PreviewResult, error) {
	f.orgID = orgID
	if f.err != nil {
		return nil, f.err
	}
	return &models.PreviewResult{IsValid: true, SanitizedContent: req.Content, CharacterCount: len(req.Content)}, nil
}

func (f *fakePublishing) CreatePublication(_ context.Context, orgID int64, req *transfer.PublicationRequest) (*models.ExternalReference, error) {
	f.orgID, f.create = orgID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExternalReference{ID: 5, OrganizationID: orgID, Status: models.ReferenceStatusPending}, nil
}

func (f *fakePublishing) Get(_ context.Context, orgID, id int64) (*models.ExternalReference, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExternalReference{ID: id, OrganizationID: orgID, Status: models.ReferenceStatusPublished}, nil
}

func (f *fakePublishing) DeletePublication(_ context.Context, _, id int64) (*transfer.DeleteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.DeleteResult{Deleted: false, Message: "instagram does not support deleting published content",
		Reference: &models.ExternalReference{ID: id}}, nil
}

// newTestApp mounts routes with organization 7 already authenticated.
func newTestApp(register func(app *fiber.App)) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(OrganizationIDKey, int64(7))
		return c.Next()
	})
	register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func publicationApp(ps *fakePublishing) *fiber.App {
	h := NewPublicationHandler(ps)
	return newTestApp(func(app *fiber.App) {
		app.Get("/api/platforms", h.ListPlatforms)
		app.Post("/api/preview", h.Preview)
		app.Post("/api/publications", h.CreatePublication)
		app.Get("/api/publications/:id", h.GetPublication)
		app.Delete("/api/publications/:id", h.DeletePublication)
	})
}

func TestListPlatforms(t *testing.T) {
	resp, body := doJSON(t, publicationApp(&fakePublishing{}), http.MethodGet, "/api/platforms", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"facebook", "linkedin"}, body["platforms"])
}

func TestPreviewUsesOrganization(t *testing.T) {
	ps := &fakePublishing{}
	resp, body := doJSON(t, publicationApp(ps), http.MethodPost, "/api/preview", map[string]any{
		"platform": "facebook", "content": "hello",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_valid"])
	assert.Equal(t, int64(7), ps.orgID)
}

func TestPreviewUnsupportedPlatform(t *testing.T) {
	ps := &fakePublishing{err: fmt.Errorf("%w: myspace", publisher.ErrUnsupportedPlatform)}
	resp, _ := doJSON(t, publicationApp(ps), http.MethodPost, "/api/preview", map[string]any{"platform": "myspace"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePublication(t *testing.T) {
	ps := &fakePublishing{}
	at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	resp, body := doJSON(t, publicationApp(ps), http.MethodPost, "/api/publications", map[string]any{
		"account_id":  3,
		"content":     "Launch day",
		"schedule_at": at,
		"settings":    map[string]string{"link": "https://example.com"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	require.NotNil(t, ps.create)
	assert.Equal(t, int64(3), ps.create.AccountID)
	require.NotNil(t, ps.create.ScheduleAt)
	assert.True(t, at.Equal(*ps.create.ScheduleAt))
}

func TestCreatePublicationErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &publisher.ValidationError{Platform: "facebook", Errors: []string{"content exceeds 2200"}}, http.StatusUnprocessableEntity},
		{"bad request", &service.RequestError{Message: "account_id is required"}, http.StatusBadRequest},
		{"foreign account", fmt.Errorf("social account 3: %w", service.ErrNotFound), http.StatusNotFound},
		{"expired token", &publisher.AuthenticationError{Platform: "linkedin", Message: "access token expired"}, http.StatusFailedDependency},
		{"rate limited", &client.RateLimitError{Platform: "meta", RetryAfter: time.Minute}, http.StatusServiceUnavailable},
		{"platform down", &client.HTTPError{Platform: "meta", StatusCode: 500}, http.StatusBadGateway},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, publicationApp(&fakePublishing{err: tc.err}), http.MethodPost, "/api/publications",
				map[string]any{"account_id": 3, "content": "x"})
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCreatePublicationValidationListsErrors(t *testing.T) {
	ps := &fakePublishing{err: &publisher.ValidationError{Platform: "facebook", Errors: []string{"content exceeds 2200"}}}
	_, body := doJSON(t, publicationApp(ps), http.MethodPost, "/api/publications", map[string]any{"account_id": 3})
	assert.Equal(t, []any{"content exceeds 2200"}, body["errors"])
}

func TestCreatePublicationMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/publications", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := publicationApp(&fakePublishing{}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPublication(t *testing.T) {
	resp, body := doJSON(t, publicationApp(&fakePublishing{}), http.MethodGet, "/api/publications/12", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(12), body["id"])

	resp, _ = doJSON(t, publicationApp(&fakePublishing{}), http.MethodGet, "/api/publications/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, publicationApp(&fakePublishing{err: service.ErrNotFound}), http.MethodGet, "/api/publications/12", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePublication(t *testing.T) {
	resp, body := doJSON(t, publicationApp(&fakePublishing{}), http.MethodDelete, "/api/publications/12", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["deleted"])
	assert.Contains(t, body["message"], "does not support")

	resp, _ = doJSON(t, publicationApp(&fakePublishing{err: models.ErrTerminalReference}), http.MethodDelete, "/api/publications/12", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

type fakeWebhooks struct {
	service.WebhookService
	created *transfer.WebhookRequest
}

func (f *fakeWebhooks) Create(_ context.Context, orgID int64, req *transfer.WebhookRequest) (*transfer.WebhookWithSecret, error) {
	f.created = req
	w := &models.Webhook{ID: "wh_1", OrganizationID: orgID, TargetURL: req.TargetURL, Events: req.Events, Secret: "whsec_abc"}
	return &transfer.WebhookWithSecret{Webhook: w, Secret: w.Secret}, nil
}

func (f *fakeWebhooks) List(_ context.Context, orgID int64) ([]*models.Webhook, error) {
	return []*models.Webhook{{ID: "wh_1", OrganizationID: orgID, Secret: "whsec_abc"}}, nil
}

func (f *fakeWebhooks) Remove(_ context.Context, _ int64, id string) error {
	if id != "wh_1" {
		return service.ErrNotFound
	}
	return nil
}

func webhookApp(ws *fakeWebhooks) *fiber.App {
	h := NewWebhookHandler(ws)
	return newTestApp(func(app *fiber.App) {
		app.Post("/api/webhooks", h.CreateWebhook)
		app.Get("/api/webhooks", h.ListWebhooks)
		app.Delete("/api/webhooks/:id", h.RemoveWebhook)
	})
}

func TestCreateWebhookReturnsSecret(t *testing.T) {
	ws := &fakeWebhooks{}
	resp, body := doJSON(t, webhookApp(ws), http.MethodPost, "/api/webhooks", map[string]any{
		"target_url": "https://example.com/hook",
		"events":     []string{"post.published"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "whsec_abc", body["secret"])
	assert.Equal(t, "wh_1", body["id"])
	assert.Equal(t, []string{"post.published"}, ws.created.Events)
}

func TestListWebhooksHidesSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks", nil)
	resp, err := webhookApp(&fakeWebhooks{}).Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "whsec_abc")
}

func TestRemoveWebhook(t *testing.T) {
	resp, _ := doJSON(t, webhookApp(&fakeWebhooks{}), http.MethodDelete, "/api/webhooks/wh_1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, webhookApp(&fakeWebhooks{}), http.MethodDelete, "/api/webhooks/wh_2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type fakeInbound struct {
	body     []byte
	headers  http.Header
	platform string
	err      error
}

func (f *fakeInbound) Verify(string, []byte, http.Header) bool { return f.err == nil }

func (f *fakeInbound) Handle(_ context.Context, platform string, body []byte, headers http.Header) (int, error) {
	f.platform, f.body, f.headers = platform, body, headers
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakeInbound) VerifyChallenge(mode, token, challenge string) (string, bool) {
	return challenge, mode == "subscribe" && token == "verify-me"
}

func inboundApp(in *fakeInbound) *fiber.App {
	h := NewInboundHandler(in)
	app := fiber.New()
	app.Get("/webhooks/inbound/:platform", h.Challenge)
	app.Post("/webhooks/inbound/:platform", h.Receive)
	return app
}

func TestInboundReceivePassesRawBodyAndHeaders(t *testing.T) {
	in := &fakeInbound{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound/facebook", strings.NewReader(`{"entry":[]}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")
	resp, err := inboundApp(in).Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "facebook", in.platform)
	assert.Equal(t, `{"entry":[]}`, string(in.body))
	assert.Equal(t, "sha256=abc", in.headers.Get("X-Hub-Signature-256"))
}

func TestInboundReceiveRejectsBadSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound/facebook", strings.NewReader(`{}`))
	resp, err := inboundApp(&fakeInbound{err: service.ErrInvalidSignature}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInboundChallenge(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhooks/inbound/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=987", nil)
	resp, err := inboundApp(&fakeInbound{}).Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "987", string(raw))

	req = httptest.NewRequest(http.MethodGet, "/webhooks/inbound/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=987", nil)
	resp, err = inboundApp(&fakeInbound{}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type fakeMedia struct {
	filename string
	size     int
	err      error
}

func (f *fakeMedia) Stage(_ context.Context, _ int64, filename string, data []byte) (*models.MediaItem, error) {
	f.filename, f.size = filename, len(data)
	if f.err != nil {
		return nil, f.err
	}
	return &models.MediaItem{URL: "https://media.example.com/media/7/x.png", Type: models.MediaTypeImage}, nil
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadMedia(t *testing.T) {
	media := &fakeMedia{}
	h := NewMediaHandler(media)
	app := newTestApp(func(app *fiber.App) { app.Post("/api/media", h.Upload) })

	resp, err := app.Test(uploadRequest(t, "file", "cat.png", []byte("pngdata")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cat.png", media.filename)
	assert.Equal(t, 7, media.size)

	resp, err = app.Test(uploadRequest(t, "other", "cat.png", []byte("pngdata")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	media.err = service.ErrStorageDisabled
	resp, err = app.Test(uploadRequest(t, "file", "cat.png", []byte("pngdata")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type fakeAccounts struct {
	service.AccountService
	removed int64
}

func (f *fakeAccounts) Connect(_ context.Context, orgID int64, req *transfer.AccountRequest) (*models.SocialAccount, error) {
	return &models.SocialAccount{ID: 1, OrganizationID: orgID, Platform: req.Platform, AccessToken: "encrypted"}, nil
}

func (f *fakeAccounts) Remove(_ context.Context, _, id int64) error {
	f.removed = id
	return nil
}

func TestAccountRoutes(t *testing.T) {
	accounts := &fakeAccounts{}
	h := NewAccountHandler(accounts)
	app := newTestApp(func(app *fiber.App) {
		app.Post("/api/accounts", h.ConnectAccount)
		app.Delete("/api/accounts/:id", h.RemoveAccount)
	})

	resp, body := doJSON(t, app, http.MethodPost, "/api/accounts", map[string]any{"platform": "facebook", "access_token": "tok"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "facebook", body["platform"])
	assert.NotContains(t, body, "access_token")

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/accounts/4", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(4), accounts.removed)
}
