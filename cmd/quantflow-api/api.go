// Package main provides the QuantFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/monitor"
	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/registry"
	"github.com/quantflow/quantflow/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	monitor      *monitor.Monitor
	registry     *registry.Registry
	checkpoints  checkpoint.Store
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	orch *orchestrator.Orchestrator,
	mon *monitor.Monitor,
	registry *registry.Registry,
	checkpoints checkpoint.Store,
) *API {
	return &API{
		logger:       logger,
		orchestrator: orch,
		monitor:      mon,
		registry:     registry,
		checkpoints:  checkpoints,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.monitor, a.validate, a.registry, a.checkpoints)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("QuantFlow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
