package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-lms-api/internal/config"
	"github.com/noah-isme/gema-lms-api/internal/handler"
	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	ProgressHandler   *handler.ProgressHandler
	ActivityHandler   *handler.ActivityHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	coursework := app.Group("/api/v2/coursework", jwtMiddleware)
	submissions := coursework.Group("/submissions")
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(submissions)
	}
	if deps.ProgressHandler != nil {
		deps.ProgressHandler.Register(coursework)
	}

	if deps.ActivityHandler != nil {
		admin := app.Group("/api/v2/admin", jwtMiddleware, middleware.RequireRole("admin", "teacher"))
		deps.ActivityHandler.Register(admin.Group("/activities"))
	}
}
