package main

import (
	"fmt"
	"os"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/shipsure/shipsure/config"
	"github.com/shipsure/shipsure/internal/api/v1/handlers"
	"github.com/shipsure/shipsure/internal/api/v1/middleware"
	"github.com/shipsure/shipsure/internal/api/v1/services"
	"github.com/shipsure/shipsure/internal/jobs"
	"github.com/shipsure/shipsure/internal/logger"
	"github.com/shipsure/shipsure/pkg/api/v1/routes"
)

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	logger.InitializeAndConfigure()

	registry := jobs.NewRegistry()
	store, err := jobs.NewResultStore(config.ResultsDir())
	if err != nil {
		logger.Fatalf("failed to initialize result store: %v", err)
	}

	service := services.NewAnalysisService(registry, store)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())

	routes.RegisterRoutes(app,
		handlers.NewAnalysisHandler(service),
		handlers.NewReposHandler(service),
	)

	addr := fmt.Sprintf(":%s", config.Port())
	logger.Infof("analysis server listening on %s (results in %s)", addr, store)
	if err := app.Listen(addr); err != nil {
		logger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
