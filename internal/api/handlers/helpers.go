package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/service"
)

const OrganizationIDKey = "organization_id"

func GetOrganizationID(c *fiber.Ctx) int64 {
	orgID, _ := c.Locals(OrganizationIDKey).(int64)
	return orgID
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// sendError maps service and platform errors onto status codes. Anything
// unrecognised is logged and reported as a 500 without details.
func sendError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	var ve *publisher.ValidationError
	var ae *publisher.AuthenticationError
	var re *service.RequestError
	var rl *client.RateLimitError
	var he *client.HTTPError
	var api *client.APIError

	switch {
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "content is not valid for " + ve.Platform,
			"errors": ve.Errors,
		})
	case errors.As(err, &re):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": re.Message})
	case errors.Is(err, publisher.ErrUnsupportedPlatform):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	case errors.Is(err, models.ErrTerminalReference):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &ae):
		return c.Status(fiber.StatusFailedDependency).JSON(fiber.Map{
			"error":    "platform account needs to be reconnected",
			"platform": ae.Platform,
			"detail":   ae.Message,
		})
	case errors.As(err, &rl):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.RetryAfter.Seconds())))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "platform rate limit reached"})
	case errors.As(err, &he), errors.As(err, &api):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrStorageDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	slog.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		slog.Info(err.Error())
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}
