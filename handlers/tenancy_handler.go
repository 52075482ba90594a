package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

type AssignTenantRequest struct {
	Tenant string  `json:"tenant"`
	Phone  *string `json:"phone,omitempty"`
}

func (h *Handler) AssignTenant(c *fiber.Ctx) error {
	var req AssignTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	result, err := h.Engine.AssignTenant(c.UserContext(), c.Params("unitId"), req.Tenant, req.Phone)
	if err != nil {
		return errorResponse(c, err)
	}

	log.Printf("Unit %s assigned to %s by %s", result.UnitID, result.TenantID, actorID(c))
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *Handler) RemoveTenant(c *fiber.Ctx) error {
	result, err := h.Engine.RemoveTenant(c.UserContext(), c.Params("unitId"))
	if err != nil {
		return errorResponse(c, err)
	}

	log.Printf("Unit %s vacated by %s", result.UnitID, actorID(c))
	return c.JSON(result)
}
