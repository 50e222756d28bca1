package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskline/helpdesk-service/internal/api/http/handlers"
	"github.com/deskline/helpdesk-service/internal/auth"
	"github.com/deskline/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Technicians    *handlers.TechniciansHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/register", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Auth.Register)

	staffOnly := auth.RequireRole(domain.RoleTechnician, domain.RoleAdmin)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/accept", staffOnly, cfg.Tickets.ClaimTicket)
	tickets.Post("/:id/claim", staffOnly, cfg.Tickets.ClaimTicket)
	tickets.Patch("/:id/status", staffOnly, cfg.Tickets.UpdateStatus)

	technicians := api.Group("/technicians", cfg.AuthMiddleware.Handle)
	technicians.Get("/leaderboard", cfg.Technicians.Leaderboard)
	technicians.Get("/online", staffOnly, cfg.Technicians.Online)
	technicians.Get("/:id/score", cfg.Technicians.Score)

	app.Get("/ws", cfg.Realtime.RequireUpgrade, cfg.AuthMiddleware.HandleQueryToken, cfg.Realtime.Serve())
}
