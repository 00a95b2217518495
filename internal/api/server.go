// Package api is the HTTP surface over the engine: catalog queries,
// conversion kickoff, quality maps and progress streaming. A consumer of
// the engine, never a dependency of it.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/seisvol/seisvol/internal/batch"
	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/internal/metrics"
	"github.com/seisvol/seisvol/internal/middleware/ratelimit"
	"github.com/seisvol/seisvol/pkg/config"
)

// New assembles the fiber app. The returned hub is wired as the batch
// runner's notifier by the caller.
func New(cfg *config.Config, cat *catalog.Client, runner *batch.Runner, hub *Hub) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	h := NewHandlers(cat, runner, cfg)
	limiter := ratelimit.New(cfg.Server.ConvertPerMinute)

	v1 := app.Group("/api/v1")
	v1.Get("/cubes", h.ListCubes)
	v1.Get("/cubes/:id", h.GetCube)
	v1.Get("/cubes/:id/quality", h.CubeQuality)
	v1.Get("/quality", h.Quality)
	v1.Post("/convert", limiter.Middleware(), h.Convert)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/progress", websocket.New(hub.HandleConnection))

	return app
}
