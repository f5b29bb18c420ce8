package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/vantage/configs"
	"github.com/maheshrc27/vantage/internal/api/handlers"
	"github.com/maheshrc27/vantage/pkg/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newApp() *fiber.App {
	app := fiber.New()
	m := NewAuthMiddleware(config.Config{SecretKey: testSecret, CookieName: "vantage_session"})
	app.Get("/whoami", m.AuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"organization_id": handlers.GetOrganizationID(c)})
	})
	return app
}

func TestBearerTokenSetsOrganization(t *testing.T) {
	token, err := utils.GenerateToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := newApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"organization_id":42}`, string(body))
}

func TestCookieTokenSetsOrganization(t *testing.T) {
	token, err := utils.GenerateToken(testSecret, 7, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "vantage_session", Value: token})
	resp, err := newApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRejectsMissingAndInvalidTokens(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := utils.GenerateToken("another-secret", 42, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	resp, err = newApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := utils.GenerateToken(testSecret, 42, -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err = newApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
}
