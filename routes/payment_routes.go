package routes

import (
	"github.com/anjiri1684/property_manager/handlers"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	api := app.Group("/api/v1")

	api.Post("/payments/callback", h.HandlePaymentCallback)

	payments := api.Group("/payments", protected)
	payments.Post("/initiate", h.InitiatePayment)
	payments.Get("/:checkoutRequestId/status", h.GetPaymentStatus)
}
