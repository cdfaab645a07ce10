package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"mailfinder/config"
	"mailfinder/discovery"
	"mailfinder/middleware"
	"mailfinder/routes"
	"mailfinder/store"
	"mailfinder/utils"
	"mailfinder/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "FINDER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	utils.ConfigureLogging(config.AppConfig.Environment)

	// mailfinder token <client-id> prints an API token and exits
	if len(os.Args) == 3 && os.Args[1] == "token" {
		token, err := utils.GenerateJWTToken(os.Args[2], 365*24*time.Hour)
		if err != nil {
			logger.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry disabled: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.ConnectRedis(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	rules, err := config.LoadRules(config.AppConfig.Finder.RulesFile)
	if err != nil {
		logger.Fatalf("Failed to load finder rules: %v", err)
	}

	var stateStore discovery.StateStore
	if config.Redis != nil {
		stateStore = store.NewRedisStateStore(config.Redis, config.AppConfig.Finder.StateTTL)
	}

	finderCfg := config.AppConfig.Finder
	runner := utils.NewFinderRunner(config.DB, finderCfg, rules, stateStore, logger)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS(config.AppConfig.CORSOrigins))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	finderWorker := worker.NewFinderWorker(config.DB, runner, finderCfg.BatchSize, finderCfg.PollInterval,
		log.New(os.Stdout, "WORKER: ", log.LstdFlags))
	go finderWorker.Start(ctx)

	routes.SetupRoutes(app, config.DB, runner)

	go func() {
		<-ctx.Done()
		logger.Println("Shutting down server...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
