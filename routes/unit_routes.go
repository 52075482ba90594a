package routes

import (
	"github.com/anjiri1684/property_manager/handlers"
	"github.com/gofiber/fiber/v2"
)

func UnitRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	api := app.Group("/api/v1")

	units := api.Group("/units", protected)
	units.Post("/:unitId/tenant", h.AssignTenant)
	units.Delete("/:unitId/tenant", h.RemoveTenant)
}
