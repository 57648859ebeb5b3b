package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/transport-portal/internal/api/http/handlers"
	"github.com/spec-kit/transport-portal/internal/auth"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Dashboard      *handlers.DashboardHandler
	Vehicles       *handlers.ApplicationsHandler
	Licenses       *handlers.ApplicationsHandler
	Routes         *handlers.ApplicationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	requireUser := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAuthenticated()}
	adminOnly := auth.RequireRole(domain.RoleAdmin)

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", append(requireUser, cfg.Auth.Me)...)

	api.Get("/dashboard/stats", append(requireUser, adminOnly, cfg.Dashboard.Stats)...)

	registerApplicationRoutes(api.Group("/vehicles", requireUser...), cfg.Vehicles, adminOnly)
	registerApplicationRoutes(api.Group("/licenses", requireUser...), cfg.Licenses, adminOnly)
	registerApplicationRoutes(api.Group("/transport/routes", requireUser...), cfg.Routes, adminOnly)
}

// registerApplicationRoutes mounts one kind's endpoints. /my and /stats are
// registered before /:id so they are not captured as an id.
func registerApplicationRoutes(group fiber.Router, h *handlers.ApplicationsHandler, adminOnly fiber.Handler) {
	group.Post("/", h.Create)
	group.Get("/", h.List)
	group.Get("/my", h.ListMine)
	group.Get("/stats", adminOnly, h.Stats)
	group.Get("/:id", h.Get)
	group.Put("/:id", h.Update)
	group.Delete("/:id", h.Delete)
	group.Post("/:id/notes", adminOnly, h.AddNote)
}
