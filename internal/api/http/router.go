package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/api/http/handlers"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Operators      *handlers.OperatorsHandler
	Assessments    *handlers.AssessmentsHandler
	Applications   *handlers.ApplicationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Operators.Login)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireOperatorRole(), cfg.Operators.ChangePassword)

	assessments := app.Group("/assessments", cfg.AuthMiddleware.Handle)
	assessments.Post("/execute",
		auth.RequireOperatorRole(domain.OperatorRoleAssessor, domain.OperatorRoleAdmin), cfg.Assessments.Execute)
	assessments.Get("", auth.RequireOperatorRole(), cfg.Assessments.List)
	assessments.Get("/:id", auth.RequireOperatorRole(), cfg.Assessments.Get)
	assessments.Post("/:id/confirm",
		auth.RequireOperatorRole(domain.OperatorRoleAssessor, domain.OperatorRoleAdmin), cfg.Assessments.Confirm)
	assessments.Post("/:id/demote",
		auth.RequireOperatorRole(domain.OperatorRoleAdmin), cfg.Assessments.Demote)

	app.Get("/ranges", cfg.AuthMiddleware.Handle, auth.RequireOperatorRole(), cfg.Assessments.ListRanges)

	members := app.Group("/members", cfg.AuthMiddleware.Handle, auth.RequireOperatorRole())
	members.Get("/:id/rank-history", cfg.Assessments.RankHistory)
	members.Get("/:id/applications", cfg.Applications.ListByMember)

	applications := app.Group("/applications", cfg.AuthMiddleware.Handle)
	applications.Post("", auth.RequireOperatorRole(), cfg.Applications.Create)
	applications.Get("/:id", auth.RequireOperatorRole(), cfg.Applications.Get)
	applications.Get("/:id/eligibility", auth.RequireOperatorRole(), cfg.Applications.Eligibility)
	applications.Post("/:id/approve",
		auth.RequireOperatorRole(domain.OperatorRoleAssessor, domain.OperatorRoleAdmin), cfg.Applications.Approve)
	applications.Post("/:id/reject",
		auth.RequireOperatorRole(domain.OperatorRoleAssessor, domain.OperatorRoleAdmin), cfg.Applications.Reject)
	applications.Post("/:id/complete",
		auth.RequireOperatorRole(domain.OperatorRoleAdmin), cfg.Applications.Complete)
}
