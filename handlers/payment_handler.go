package handlers

import (
	"errors"
	"log"

	"github.com/anjiri1684/property_manager/services"
	"github.com/gofiber/fiber/v2"
)

// Body the gateway expects back from the callback URL.
var callbackAccepted = fiber.Map{"ResultCode": 0, "ResultDesc": "Accepted"}

type Handler struct {
	Engine *services.Engine
}

func New(engine *services.Engine) *Handler {
	return &Handler{Engine: engine}
}

func (h *Handler) InitiatePayment(c *fiber.Ctx) error {
	var req services.InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	result, err := h.Engine.InitiatePayment(c.UserContext(), req)
	if err != nil {
		return errorResponse(c, err)
	}

	log.Printf("Payment %s initiated by %s", result.PaymentID, actorID(c))
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandlePaymentCallback acknowledges malformed and unmatched callbacks so the gateway
// stops re-delivering them. Store failures get a 500 so the gateway tries again.
func (h *Handler) HandlePaymentCallback(c *fiber.Ctx) error {
	result, err := h.Engine.HandleCallback(c.UserContext(), c.Body())
	if err != nil {
		if errors.Is(err, services.ErrMalformedCallback) || errors.Is(err, services.ErrUnmatchedCallback) {
			log.Printf("⚠️ Acknowledged callback without applying it: %v", err)
			return c.Status(fiber.StatusOK).JSON(callbackAccepted)
		}
		log.Printf("🔥 CRITICAL: Error processing callback: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ResultCode": 1, "ResultDesc": "Failed to process callback"})
	}

	if !result.Transitioned {
		log.Printf("Duplicate callback for payment %s acknowledged", result.PaymentID)
	}
	return c.Status(fiber.StatusOK).JSON(callbackAccepted)
}

func (h *Handler) GetPaymentStatus(c *fiber.Ctx) error {
	payment, err := h.Engine.GetPaymentStatus(c.UserContext(), c.Params("checkoutRequestId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(payment)
}
