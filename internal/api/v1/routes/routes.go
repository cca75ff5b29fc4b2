package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/userpipe/userpipe/internal/api/v1/handlers"
)

// DefaultBaseURL is the base URL clients use when none is configured
const DefaultBaseURL = "http://localhost:8080"

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, jobs *handlers.JobHandler, users *handlers.UserHandler) {
	jobGroup := router.Group("/jobs")
	jobGroup.Post("/", jobs.TriggerJob)
	jobGroup.Get("/", jobs.ListJobs)
	jobGroup.Get("/:id", jobs.GetJobStatus)

	userGroup := router.Group("/users")
	userGroup.Get("/", users.ListUsers)
	userGroup.Get("/count", users.CountUsers)
}

// RegisterRoutes registers the health check and the v1 API group
func RegisterRoutes(app *fiber.App, health *handlers.HealthHandler, jobs *handlers.JobHandler, users *handlers.UserHandler) {
	app.Get("/health", health.Check)

	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, jobs, users)
}
