package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/http/handlers"
	"github.com/spec-kit/repair-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Cases       *handlers.CasesHandler
	Technicians *handlers.TechniciansHandler
	Assignments *handlers.AssignmentsHandler
	Workflow    *handlers.WorkflowHandler
	SLA         *handlers.SLAHandler
	Auth        *auth.ServiceAuth
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/v1")

	cases := v1.Group("/cases", cfg.Auth.RequireToken(auth.ScopeCases))
	cases.Post("", cfg.Cases.CreateCase)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Post("/:id/status", cfg.Cases.ChangeStatus)
	cases.Post("/:id/complete", cfg.Cases.CompleteCase)
	cases.Get("/:id/compliance", cfg.Cases.Compliance)
	cases.Get("/:id/escalations", cfg.Cases.Escalations)

	workflow := v1.Group("/cases/:id", cfg.Auth.RequireToken(auth.ScopeWorkflow))
	workflow.Post("/workflow", cfg.Workflow.StartWorkflow)
	workflow.Post("/steps/complete", cfg.Workflow.CompleteStep)

	technicians := v1.Group("/technicians", cfg.Auth.RequireToken(auth.ScopeAssign))
	technicians.Post("", cfg.Technicians.CreateTechnician)
	technicians.Put("/:id", cfg.Technicians.UpdateTechnician)
	technicians.Get("", cfg.Technicians.ListTechnicians)

	assignments := v1.Group("/assignments", cfg.Auth.RequireToken(auth.ScopeAssign))
	assignments.Post("/auto", cfg.Assignments.AutoAssign)
	assignments.Get("/candidates", cfg.Assignments.Candidates)
	assignments.Get("/suggestions", cfg.Assignments.Suggestions)

	v1.Post("/sla/sweep", cfg.Auth.RequireToken(auth.ScopeSweep), cfg.SLA.RunSweep)

	// orchestrator callbacks authenticate with the shared key, not a token
	v1.Post("/workflow/events", cfg.Auth.RequireWebhookKey(), cfg.Workflow.HandleEvent)
}
