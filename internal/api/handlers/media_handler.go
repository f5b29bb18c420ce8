package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file selected",
		})
	}
	if fh.Size > service.MaxMediaSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "File is too large",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return sendError(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, service.MaxMediaSize+1))
	if err != nil {
		return sendError(c, err)
	}

	item, err := h.s.Stage(c.Context(), GetOrganizationID(c), fh.Filename, data)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}
