package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/squad-service/internal/api/http/handlers"
	"github.com/spec-kit/squad-service/internal/auth"
	"github.com/spec-kit/squad-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Assignments    *handlers.AssignmentsHandler
	Squads         *handlers.SquadsHandler
	Members        *handlers.MembersHandler
	Policies       *handlers.PoliciesHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Collaborator routes accept SERVICE or
// ADMIN tokens; squad administration requires ADMIN.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)
	collaborator := auth.RequireRole(auth.RoleService, auth.RoleAdmin)
	admin := auth.RequireRole(auth.RoleAdmin)

	v1.Post("/assignments", collaborator, cfg.Assignments.Trigger)
	v1.Get("/assignments/jobs", collaborator, cfg.Assignments.JobCounts)
	v1.Get("/assignments/jobs/:id", collaborator, cfg.Assignments.JobStatus)

	v1.Put("/members/:id", collaborator, cfg.Members.Sync)
	v1.Get("/members/:id", collaborator, cfg.Members.Get)
	v1.Delete("/members/:id/assignment", admin, cfg.Members.RemoveAssignment)

	v1.Get("/squads", collaborator, cfg.Squads.List)
	v1.Get("/squads/:id", collaborator, cfg.Squads.Get)
	v1.Delete("/squads/:id", admin, cfg.Squads.Delete)
	v1.Post("/squads/:id/close", admin, cfg.Squads.Close)

	v1.Get("/policies", collaborator, cfg.Policies.List)
	v1.Get("/policies/:ageGroup", collaborator, cfg.Policies.Get)
}
