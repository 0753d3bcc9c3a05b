// Package httpapi is the fiber-based streamable HTTP transport: it
// exposes the tool surface as HTTP routes and bridges interactive shells
// over a websocket, guarded by an optional single-operator bearer token.
// Like internal/transport/stdio, it holds no session/command/shell
// semantics of its own.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ahmetk3436/sshmcp/internal/mcp"
)

// New builds the fiber app wired to svc: CORS, panic recovery, security
// headers, a structured request logger, then routes.
func New(svc *mcp.Service, cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "sshmcp",
		ServerHeader: "sshmcp",
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": message})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(recover.New(recover.Config{EnableStackTrace: false}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("httpapi: request",
			"method", c.Method(), "path", c.Path(),
			"status", c.Response().StatusCode(), "duration_ms", time.Since(start).Milliseconds())
		return err
	})

	registerRoutes(app, svc, cfg)
	return app
}

func registerRoutes(app *fiber.App, svc *mcp.Service, cfg Config) {
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tools := newToolsHandler(svc)
	bridge := newShellBridgeHandler(svc)

	api := app.Group("/api")
	wsGroup := app.Group("/ws")
	if cfg.AuthEnabled() {
		auth := newAuthHandler(cfg)
		api.Post("/auth/login", auth.login)
		api = api.Group("", jwtProtected(cfg.TokenSecret))
		wsGroup = wsGroup.Group("", jwtProtected(cfg.TokenSecret))
	}

	api.Get("/tools", tools.listTools)
	api.Post("/tools/:name", tools.invoke)

	wsGroup.Use("/shells/:id", bridge.upgradeCheck)
	wsGroup.Get("/shells/:id", bridge.handle())
}
