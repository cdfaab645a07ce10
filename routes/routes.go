package routes

import (
	"log"
	"os"

	"mailfinder/config"
	controller "mailfinder/controllers"
	"mailfinder/middleware"
	"mailfinder/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, runner *utils.FinderRunner) {
	finderLogger := log.New(os.Stdout, "FINDER: ", log.Ldate|log.Ltime|log.Lshortfile)
	finderController := controller.NewFinderController(db, runner, config.AppConfig.MaxBatchContacts, finderLogger)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	finder := api.Group("/finder", middleware.FinderRateLimiter(config.AppConfig.RateLimitPerMinute, config.Redis))

	// WebSocket route for run progress; registered before /runs/:id
	finder.Get("/runs/progress", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(finderController.HandleRunProgressWS))

	finder.Post("/find", finderController.FindEmail)
	finder.Post("/runs", finderController.CreateRun)
	finder.Get("/runs", finderController.ListRuns)
	finder.Get("/runs/:id", finderController.GetRun)
	finder.Get("/domains/:domain", finderController.GetDomain)

	finderLogger.Println("Finder routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, runner *utils.FinderRunner) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAPIRoutes(app, db, runner)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
