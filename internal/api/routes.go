package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/api/handlers"
)

type Handlers struct {
	Publications *handlers.PublicationHandler
	Media        *handlers.MediaHandler
	Webhooks     *handlers.WebhookHandler
	Inbound      *handlers.InboundHandler
	Accounts     *handlers.AccountHandler
}

// SetupRoutes mounts the organization API behind auth and the platform
// callbacks outside it. Inbound callbacks authenticate by signature.
func SetupRoutes(app *fiber.App, h Handlers, auth fiber.Handler) {
	inbound := app.Group("/webhooks/inbound")
	inbound.Get("/:platform", h.Inbound.Challenge)
	inbound.Post("/:platform", h.Inbound.Receive)

	api := app.Group("/api")
	api.Use(auth)

	api.Get("/platforms", h.Publications.ListPlatforms)
	api.Post("/preview", h.Publications.Preview)
	api.Post("/publications", h.Publications.CreatePublication)
	api.Get("/publications/:id", h.Publications.GetPublication)
	api.Post("/publications/:id/refresh", h.Publications.RefreshPublication)
	api.Delete("/publications/:id", h.Publications.DeletePublication)

	api.Post("/media", h.Media.Upload)

	api.Post("/webhooks", h.Webhooks.CreateWebhook)
	api.Get("/webhooks", h.Webhooks.ListWebhooks)
	api.Put("/webhooks/:id", h.Webhooks.UpdateWebhook)
	api.Delete("/webhooks/:id", h.Webhooks.RemoveWebhook)
	api.Post("/webhooks/:id/secret", h.Webhooks.RegenerateSecret)
	api.Post("/webhooks/:id/test", h.Webhooks.SendTest)
	api.Get("/webhooks/:id/deliveries", h.Webhooks.ListDeliveries)

	api.Post("/accounts", h.Accounts.ConnectAccount)
	api.Get("/accounts", h.Accounts.ListAccounts)
	api.Delete("/accounts/:id", h.Accounts.RemoveAccount)
}
