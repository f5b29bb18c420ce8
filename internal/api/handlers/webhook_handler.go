package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/service"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type WebhookHandler struct {
	s service.WebhookService
}

func NewWebhookHandler(service service.WebhookService) *WebhookHandler {
	return &WebhookHandler{s: service}
}

func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
	var req transfer.WebhookRequest
	if err := parseBody(c, &req); err != nil {
		return sendError(c, err)
	}
	created, err := h.s.Create(c.Context(), GetOrganizationID(c), &req)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	hooks, err := h.s.List(c.Context(), GetOrganizationID(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(hooks)
}

func (h *WebhookHandler) UpdateWebhook(c *fiber.Ctx) error {
	var req transfer.WebhookUpdate
	if err := parseBody(c, &req); err != nil {
		return sendError(c, err)
	}
	w, err := h.s.Update(c.Context(), GetOrganizationID(c), c.Params("id"), &req)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(w)
}

func (h *WebhookHandler) RemoveWebhook(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), GetOrganizationID(c), c.Params("id")); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) RegenerateSecret(c *fiber.Ctx) error {
	out, err := h.s.RegenerateSecret(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *WebhookHandler) SendTest(c *fiber.Ctx) error {
	d, err := h.s.SendTest(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(d)
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	deliveries, err := h.s.ListDeliveries(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(deliveries)
}
