// Package main provides the sqlcron API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence"
	"github.com/sqlcron/sqlcron/pkg/services"
	"github.com/sqlcron/sqlcron/pkg/sysconfig"
	"github.com/sqlcron/sqlcron/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engines     engine.Resolver
	groups      services.GroupResolver
	config      *sysconfig.Service
	dispatcher  notify.Dispatcher
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	engines engine.Resolver,
	groups services.GroupResolver,
	config *sysconfig.Service,
	dispatcher notify.Dispatcher,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		engines:     engines,
		groups:      groups,
		config:      config,
		dispatcher:  dispatcher,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	submissionService := services.NewSubmission(a.logger, a.persistence, a.engines, a.groups, a.config, a.dispatcher, a.eventBus)
	controlService := services.NewControl(a.logger, a.persistence, a.groups, a.dispatcher)
	ordersService := services.NewOrders(a.logger, a.persistence)
	auditService := services.NewAuditTrail(a.logger, a.persistence)

	handlers := web.NewAPIHandlers(submissionService, controlService, ordersService, auditService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("sqlcron API")
	})

	o := app.Group("/orders")
	o.Get("/", handlers.GetOrders)
	o.Post("/changes", handlers.CreateChangeOrder)
	o.Post("/queries", handlers.CreateQueryOrder)
	o.Get("/:id", handlers.GetOrder)
	o.Get("/:id/audit", handlers.GetOrderAudit)
	o.Post("/:id/approve", handlers.ApproveOrder)
	o.Post("/:id/pause", handlers.PauseOrder)
	o.Post("/:id/resume", handlers.ResumeOrder)
	o.Post("/:id/stop", handlers.StopOrder)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
