package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/lukasbrandt/advisory-backend/internal/calendly"
	"github.com/lukasbrandt/advisory-backend/internal/closeapi"
	"github.com/lukasbrandt/advisory-backend/internal/config"
	"github.com/lukasbrandt/advisory-backend/internal/database"
	"github.com/lukasbrandt/advisory-backend/internal/handlers"
	"github.com/lukasbrandt/advisory-backend/internal/logging"
	"github.com/lukasbrandt/advisory-backend/internal/middleware"
	"github.com/lukasbrandt/advisory-backend/internal/reconcile"
	"github.com/lukasbrandt/advisory-backend/internal/routes"
	"github.com/lukasbrandt/advisory-backend/internal/scheduler"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	activityTypes, err := closeapi.ParseActivityTypes(cfg.CloseActivityTypes)
	if err != nil {
		slog.Error("invalid CLOSE_ACTIVITY_TYPES", "error", err)
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.Level()}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Upstream clients
	closeClient := closeapi.New(cfg.CloseAPIKey, cfg.CloseBaseURL, cfg.FetchCap)
	if !closeClient.IsConfigured() {
		slog.Warn("CLOSE_API_KEY not set, CRM resources will not sync")
	}
	calendlyClient := calendly.New(cfg.CalendlyToken, cfg.CalendlyBaseURL)
	if !calendlyClient.IsConfigured() {
		slog.Warn("CALENDLY_API_TOKEN not set, scheduling events will not sync")
	}

	// Sync engine
	store := reconcile.NewStore(database.DB)
	orchestrator := reconcile.NewOrchestrator(database.DB, closeClient, calendlyClient, reconcile.Defaults{
		DaysBack:      cfg.SyncDaysBack,
		DaysForward:   cfg.SyncDaysForward,
		CallsDaysBack: cfg.CallsDaysBack,
		BatchSize:     cfg.SyncBatchSize,
		Budget:        cfg.SyncBudget,
		ActivityTypes: activityTypes,
	})

	schedulerDone := make(chan struct{})
	scheduler.Start(orchestrator, cfg.SyncInterval, schedulerDone)

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(orchestrator, store)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, healthHandler, syncHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(schedulerDone)
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
