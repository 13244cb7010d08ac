package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/engine"
	"github.com/sicko7947/etlkit/example/sales_archive"
)

var orchestrator *sales_archive.Orchestrator

func initializeApp() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	dir := os.Getenv("ETLKIT_DATA_DIR")
	if dir == "" {
		dir = os.TempDir() + "/etlkit-sales"
	}

	orchestrator = sales_archive.NewOrchestrator(dir, log.Logger, engine.EngineConfig{
		DefaultTimeout:     5 * time.Minute,
		DefaultStepTimeout: time.Minute,
	})

	log.Info().Str("dir", dir).Msg("Sales archive orchestrator initialized")
}

// errorStatus maps etlkit error codes onto HTTP statuses
func errorStatus(err error) int {
	switch etlkit.Code(err) {
	case etlkit.ErrCodeNotFound:
		return fiber.StatusNotFound
	case etlkit.ErrCodeConflict:
		return fiber.StatusConflict
	case etlkit.ErrCodeConfig, etlkit.ErrCodeStypeViolation:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func registerRoutes(app *fiber.App) {
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "etlkit-sales-archive",
		})
	})

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "etlkit Sales Archive",
			"endpoints": fiber.Map{
				"health":   "GET /health",
				"startRun": "POST /api/v1/runs",
				"getRun":   "GET /api/v1/runs/:runId",
				"preview":  "GET /api/v1/runs/:runId/preview?rows=10",
				"cancel":   "POST /api/v1/runs/:runId/cancel",
			},
		})
	})

	runs := app.Group("/api/v1/runs")
	runs.Post("/", handleStartRun)
	runs.Get("/:runId", handleGetRun)
	runs.Get("/:runId/preview", handlePreview)
	runs.Post("/:runId/cancel", handleCancelRun)
}

func handleStartRun(c fiber.Ctx) error {
	input := sales_archive.RunInput{Orders: 100, MinAmount: 10}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	runID, err := orchestrator.StartRun(input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start run")
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"runId":  runID,
		"status": engine.RunStatusRunning,
	})
}

func handleGetRun(c fiber.Ctx) error {
	status, err := orchestrator.GetRunStatus(c.Params("runId"))
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(status)
}

func handlePreview(c fiber.Ctx) error {
	runID := c.Params("runId")
	rows := cast.ToInt(c.Query("rows", "10"))

	data, err := orchestrator.Preview(c.Context(), runID, rows)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to preview archive")
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	records := make([]map[string]any, data.NumRows())
	for i := range records {
		records[i] = data.RowMap(i)
	}
	return c.JSON(fiber.Map{
		"runId":   runID,
		"columns": data.Columns(),
		"rows":    records,
	})
}

func handleCancelRun(c fiber.Ctx) error {
	runID := c.Params("runId")
	if err := orchestrator.CancelRun(runID); err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"runId":  runID,
		"status": engine.RunStatusCancelled,
	})
}

func main() {
	initializeApp()

	app := fiber.New()
	registerRoutes(app)

	go func() {
		addr := ":3000"
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
