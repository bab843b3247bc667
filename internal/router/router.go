package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler       *handler.AssignmentHandler
	SubmissionHandler       *handler.SubmissionHandler
	GradingHandler          *handler.GradingHandler
	QuizHandler             *handler.QuizHandler
	PlacementHandler        *handler.PlacementHandler
	StreakHandler           *handler.StreakHandler
	NotificationHandler     *handler.NotificationHandler
	StudentDashboardHandler *handler.StudentDashboardHandler
	ActivityHandler         *handler.ActivityHandler
	AnalyticsHandler        *handler.AnalyticsHandler
	HealthProbes            []handler.HealthProbe
	JWTMiddleware           fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(v2.Group("/assignments"))
	}

	// Grading routes share the submissions prefix.
	submissions := v2.Group("/submissions")
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(submissions)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.QuizHandler != nil {
		deps.QuizHandler.Register(v2.Group("/modules"))
	}

	if deps.PlacementHandler != nil {
		deps.PlacementHandler.Register(v2.Group("/placement"))
	}

	if deps.StreakHandler != nil {
		deps.StreakHandler.Register(v2.Group("/streaks"))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications"))
	}

	if deps.StudentDashboardHandler != nil {
		deps.StudentDashboardHandler.Register(v2.Group("/student"))
	}

	admin := v2.Group("/admin", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleTeacher))
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(admin.Group("/activity"))
	}
	if deps.AnalyticsHandler != nil {
		deps.AnalyticsHandler.Register(admin.Group("/analytics"))
	}
}
