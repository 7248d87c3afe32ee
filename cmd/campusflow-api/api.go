// Package main provides the CampusFlow API server implementation.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/campusflow/campusflow/pkg/actions"
	"github.com/campusflow/campusflow/pkg/actions/defaults"
	"github.com/campusflow/campusflow/pkg/dispatcher"
	"github.com/campusflow/campusflow/pkg/engine"
	"github.com/campusflow/campusflow/pkg/eventbus"
	"github.com/campusflow/campusflow/pkg/ingress/queue"
	"github.com/campusflow/campusflow/pkg/persistence"
	"github.com/campusflow/campusflow/pkg/persistence/postgres"
	"github.com/campusflow/campusflow/pkg/services"
	"github.com/campusflow/campusflow/pkg/validation"
	"github.com/campusflow/campusflow/pkg/web"
)

// Options tunes the assembled server.
type Options struct {
	WorkerCount int
	QueueAddr   string
}

type API struct {
	logger   *slog.Logger
	persist  persistence.Persistence
	eventBus eventbus.EventBus
	options  Options
}

func NewAPI(logger *slog.Logger, persist persistence.Persistence, eventBus eventbus.EventBus, options Options) *API {
	return &API{
		logger:   logger,
		persist:  persist,
		eventBus: eventBus,
		options:  options,
	}
}

// Start assembles the registry, engine, dispatcher and HTTP surface, then
// serves until the listener stops.
func (a *API) Start(ctx context.Context, port int) error {
	registry := actions.NewRegistry(a.logger)

	var db *sql.DB
	if pg, ok := a.persist.(*postgres.Persistence); ok {
		db = pg.DB()
	}

	defaults.Register(registry, a.logger, defaults.Backends{DB: db})

	eng := engine.New(a.logger, a.persist, registry, a.eventBus, engine.Config{
		WorkerCount: a.options.WorkerCount,
	})

	disp := dispatcher.New(a.logger, a.persist, eng, a.eventBus)
	if err := disp.Start(ctx); err != nil {
		return err
	}
	defer disp.Stop()

	if a.options.QueueAddr != "" {
		consumer, err := queue.NewConsumer(queue.Config{Addr: a.options.QueueAddr}, disp, a.logger)
		if err != nil {
			return err
		}

		if err := consumer.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := consumer.Stop(ctx); err != nil {
				a.logger.ErrorContext(ctx, "Failed to stop queue consumer", "error", err)
			}
		}()
	}

	validator := validation.New(registry)
	workflowService := services.NewWorkflowService(a.logger, a.persist, validator, disp)
	executionService := services.NewExecutionService(a.logger, a.persist, eng)

	handlers := web.NewAPIHandlers(workflowService, executionService, disp, registry, a.persist)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("CampusFlow API")
	})

	handlers.Register(app)

	return app.Listen(":" + strconv.Itoa(port))
}
