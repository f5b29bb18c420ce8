package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/service"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ConnectAccount(c *fiber.Ctx) error {
	var req transfer.AccountRequest
	if err := parseBody(c, &req); err != nil {
		return sendError(c, err)
	}
	sa, err := h.s.Connect(c.Context(), GetOrganizationID(c), &req)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sa)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context(), GetOrganizationID(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.Remove(c.Context(), GetOrganizationID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
