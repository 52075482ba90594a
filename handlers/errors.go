package handlers

import (
	"errors"

	"github.com/anjiri1684/property_manager/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.ErrValidation, services.ErrMalformedCallback:
		return fiber.StatusBadRequest
	case services.ErrNotFound, services.ErrUnmatchedCallback:
		return fiber.StatusNotFound
	case services.ErrConflict:
		return fiber.StatusConflict
	case services.ErrGateway:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}

	var engineErr *services.Error
	if errors.As(err, &engineErr) && engineErr.Reason != nil {
		body["reason"] = engineErr.Reason.Error()
	}
	if status == fiber.StatusInternalServerError {
		body["error"] = "Internal server error"
	}
	return c.Status(status).JSON(body)
}

// actorID is the user id from the JWT, or "anonymous" on unauthenticated routes.
func actorID(c *fiber.Ctx) string {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return "anonymous"
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "anonymous"
	}
	if id, ok := claims["user_id"].(string); ok {
		return id
	}
	return "anonymous"
}
