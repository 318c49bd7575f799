// Package main provides the caseflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/persistence"
	"github.com/okrun/caseflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewAPI(logger *slog.Logger, orchestrator *engine.Engine, persistence persistence.Persistence) *API {
	return &API{
		logger:      logger,
		engine:      orchestrator,
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Caseflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListDefinitions)
	w.Post("/", handlers.RegisterDefinition)
	w.Get("/:id", handlers.GetDefinition)
	w.Post("/:id/instances", handlers.StartInstance)

	i := app.Group("/instances")
	i.Get("/", handlers.ListInstances)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/steps/:stepId/complete", handlers.CompleteStep)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/comments", handlers.AddComment)

	app.Get("/metrics", handlers.GetMetrics)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
