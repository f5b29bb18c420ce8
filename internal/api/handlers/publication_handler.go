package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/service"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type PublicationHandler struct {
	s service.PublishingService
}

func NewPublicationHandler(service service.PublishingService) *PublicationHandler {
	return &PublicationHandler{s: service}
}

func (h *PublicationHandler) ListPlatforms(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(transfer.PlatformInfo{Platforms: h.s.Platforms()})
}

func (h *PublicationHandler) Preview(c *fiber.Ctx) error {
	var req transfer.PreviewRequest
	if err := parseBody(c, &req); err != nil {
		return sendError(c, err)
	}
	result, err := h.s.Preview(c.Context(), GetOrganizationID(c), &req)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PublicationHandler) CreatePublication(c *fiber.Ctx) error {
	var req transfer.PublicationRequest
	if err := parseBody(c, &req); err != nil {
		return sendError(c, err)
	}
	ref, err := h.s.CreatePublication(c.Context(), GetOrganizationID(c), &req)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ref)
}

func (h *PublicationHandler) GetPublication(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return sendError(c, err)
	}
	ref, err := h.s.Get(c.Context(), GetOrganizationID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ref)
}

func (h *PublicationHandler) RefreshPublication(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return sendError(c, err)
	}
	ref, err := h.s.RefreshStatus(c.Context(), GetOrganizationID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ref)
}

func (h *PublicationHandler) DeletePublication(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return sendError(c, err)
	}
	result, err := h.s.DeletePublication(c.Context(), GetOrganizationID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
