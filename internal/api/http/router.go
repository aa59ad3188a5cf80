package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/complaint-portal/internal/api/http/handlers"
	"github.com/civic-desk/complaint-portal/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Managers       *handlers.ManagersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Post("/create-manager",
		cfg.AuthMiddleware.Handle,
		auth.RequireCapability(auth.CapManageAccounts, "Not authorized"),
		cfg.Managers.Create)

	managers := api.Group("/managers",
		cfg.AuthMiddleware.Handle,
		auth.RequireCapability(auth.CapManageAccounts, ""))
	managers.Get("/", cfg.Managers.List)
	managers.Get("/online", cfg.Managers.Online)
	managers.Post("/create-manager", cfg.Managers.Create)
	managers.Put("/toggle/:id", cfg.Managers.Toggle)
	managers.Get("/:id/login-history", cfg.Managers.LoginHistory)
	managers.Delete("/:id", cfg.Managers.Delete)
}
