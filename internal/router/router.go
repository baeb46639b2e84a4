package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stde-labs/stde-api/internal/config"
	"github.com/stde-labs/stde-api/internal/handler"
	"github.com/stde-labs/stde-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.EvaluationHandler != nil {
		evaluations := app.Group("/api/evaluations", jwtMiddleware, func(c *fiber.Ctx) error {
			c.Set("X-Application", cfg.AppName)
			return c.Next()
		})
		deps.EvaluationHandler.Register(evaluations)
	}

	if deps.ActivityHandler != nil {
		activity := app.Group("/api/activity", jwtMiddleware)
		deps.ActivityHandler.Register(activity)
	}
}
