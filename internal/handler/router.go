package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/arturoeanton/repolens/internal/metrics"
	"github.com/arturoeanton/repolens/internal/middleware"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/arturoeanton/repolens/internal/service"
)

// AppConfig holds the HTTP settings of the API.
type AppConfig struct {
	Name        string
	Version     string
	Prefix      string
	CORSOrigins []string
	AccessLog   bool
}

// Dependencies are the services the handlers are built from.
type Dependencies struct {
	Repos   *service.RepoService
	Runner  *service.Runner
	Jobs    port.JobStore
	Events  *service.Broadcaster
	Reports *port.ReportEngine
	DB      Pinger
	Metrics *metrics.Metrics
}

// NewApp builds the Fiber application with every route mounted under
// cfg.Prefix.
func NewApp(cfg AppConfig, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.Name,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		ErrorHandler: errorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}
	if len(cfg.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		}))
	}
	if deps.Metrics != nil {
		app.Use(middleware.Metrics(deps.Metrics))
	}

	var api fiber.Router = app
	if cfg.Prefix != "" {
		api = app.Group(cfg.Prefix)
	}

	NewHealthHandler(deps.DB, deps.Metrics, cfg.Version).Register(api)
	NewBrowseHandler(deps.Repos).Register(api)
	NewRepoHandler(deps.Repos).Register(api)
	NewAnalysisHandler(deps.Runner).Register(api)
	NewJobsHandler(deps.Jobs, deps.Events, deps.Reports).Register(api)

	return app
}

// errorHandler renders errors that escaped a handler, including unknown
// routes, in the same shape as handled errors.
func errorHandler(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := CodeInternal
		switch fe.Code {
		case fiber.StatusNotFound:
			code = CodeNotFound
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			code = CodeValidation
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "code": code})
	}
	return writeError(c, err)
}
