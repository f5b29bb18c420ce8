package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/service"
)

type InboundHandler struct {
	s service.InboundService
}

func NewInboundHandler(service service.InboundService) *InboundHandler {
	return &InboundHandler{s: service}
}

// Challenge answers the GET handshake Meta and WhatsApp send when a
// subscription is created.
func (h *InboundHandler) Challenge(c *fiber.Ctx) error {
	challenge, ok := h.s.VerifyChallenge(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if !ok {
		return c.SendStatus(fiber.StatusForbidden)
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

func (h *InboundHandler) Receive(c *fiber.Ctx) error {
	headers := http.Header{}
	for k, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	body := append([]byte(nil), c.Body()...)

	n, err := h.s.Handle(c.Context(), c.Params("platform"), body, headers)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"processed": n})
}
