package api

import (
	"context"
	"math"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/batch"
	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/config"
	"github.com/seisvol/seisvol/pkg/logger"
)

type Handlers struct {
	cat    *catalog.Client
	runner *batch.Runner
	cfg    *config.Config
}

func NewHandlers(cat *catalog.Client, runner *batch.Runner, cfg *config.Config) *Handlers {
	return &Handlers{cat: cat, runner: runner, cfg: cfg}
}

func (h *Handlers) ListCubes(c *fiber.Ctx) error {
	cubes, err := h.cat.ListCubes()
	if err != nil {
		logger.Error("Failed to list cubes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list cubes",
		})
	}
	return c.JSON(fiber.Map{"cubes": cubes})
}

func (h *Handlers) GetCube(c *fiber.Ctx) error {
	cube, err := h.cat.GetCube(c.Params("id"))
	if err != nil {
		logger.Error("Failed to get cube", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get cube",
		})
	}
	if cube == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Cube not found",
		})
	}
	return c.JSON(cube)
}

// Convert accepts a batch of cube paths and runs it in the background;
// progress streams over the websocket hub.
func (h *Handlers) Convert(c *fiber.Ctx) error {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Paths) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one cube path is required",
		})
	}

	go func() {
		if _, err := h.runner.Run(context.Background(), req.Paths); err != nil {
			logger.Error("Batch conversion aborted", zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Conversion started",
		"cubes":   len(req.Paths),
	})
}

// Quality builds the geometry index for a container and returns its
// coverage map. Dead cells serialize as nulls since JSON has no NaN.
func (h *Handlers) Quality(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query parameter path is required",
		})
	}
	return h.qualityForPath(c, path)
}

// CubeQuality resolves a catalog cube id to its source container and
// returns the same coverage map as Quality.
func (h *Handlers) CubeQuality(c *fiber.Ctx) error {
	cube, err := h.cat.GetCube(c.Params("id"))
	if err != nil {
		logger.Error("Failed to get cube", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get cube",
		})
	}
	if cube == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Cube not found",
		})
	}
	return h.qualityForPath(c, cube.SourcePath)
}

func (h *Handlers) qualityForPath(c *fiber.Ctx, path string) error {
	schema := segy.Schema{
		InlineByte:    h.cfg.Schema.InlineByte,
		CrosslineByte: h.cfg.Schema.CrosslineByte,
	}
	reader, err := segy.Open(path, schema, segy.LengthPolicy(h.cfg.Convert.LengthPolicy))
	if err != nil {
		logger.Error("Failed to open container", zap.String("path", path), zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer reader.Close()

	idx, err := geometry.Build(reader)
	if err != nil {
		logger.Error("Failed to build geometry", zap.String("path", path), zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	q := idx.Quality()
	values := make([]*float64, len(q.Values))
	for i, v := range q.Values {
		if !math.IsNaN(v) {
			v := v
			values[i] = &v
		}
	}
	return c.JSON(fiber.Map{
		"inlines":    q.InlineCount,
		"crosslines": q.CrosslineCount,
		"values":     values,
	})
}
