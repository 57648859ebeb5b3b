package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/transport-portal/internal/auth"
	"github.com/spec-kit/transport-portal/internal/service"
)

// DashboardHandler serves the cross-kind admin overview.
type DashboardHandler struct {
	apps *service.ApplicationService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(apps *service.ApplicationService) *DashboardHandler {
	return &DashboardHandler{apps: apps}
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	overview, err := h.apps.Overview(c.UserContext(), auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   overview,
	})
}
