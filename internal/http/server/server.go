package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/http/handlers"
	"brochure-pdf/internal/http/middleware"
	"brochure-pdf/internal/infra/cache"
	"brochure-pdf/internal/infra/logging"
	"brochure-pdf/internal/render"
)

// Deps holds what the HTTP surface needs. Cache may be nil.
type Deps struct {
	Config   config.Config
	Renderer render.Renderer
	Cache    *cache.PDFCache
}

// New creates and configures a new Fiber app instance.
func New(deps Deps) *fiber.App {
	cfg := deps.Config
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitBytes,
		ErrorHandler:          errorHandler,
	})

	readiness := func(c *fiber.Ctx) bool {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		return deps.Cache.Ping(ctx) == nil
	}
	middleware.Register(app, cfg, readiness)
	RegisterRoutes(app, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// errorHandler renders every failure as {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		msg = e.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "error_message", msg)

	return c.Status(code).JSON(fiber.Map{"error": msg})
}

// RegisterRoutes mounts all route handlers to the app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	svc := handlers.NewPDFService(deps.Config, deps.Renderer, deps.Cache)

	app.Post("/generate-pdf", svc.HandleGeneratePDF)
	app.Post("/api/brochure/populate", handlers.HandleBrochurePopulate)

	ops := app.Group("/ops")
	ops.Get("/renderer/stats", svc.HandleRendererStats)
	ops.Get("/monitor", monitor.New())
}
