package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/vantage/configs"
	"github.com/maheshrc27/vantage/internal/api"
	"github.com/maheshrc27/vantage/internal/api/handlers"
	"github.com/maheshrc27/vantage/internal/api/middleware"
	"github.com/maheshrc27/vantage/internal/client"
	job "github.com/maheshrc27/vantage/internal/jobs"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/queue"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := config.LoadConfig()
	if cfg.SecretKey == "" {
		fatal("SECRET_KEY is required")
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("failed to connect to database", "error", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		fatal("database is unreachable", "error", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    service.MaxMediaSize + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			slog.Error("unhandled request error", "path", c.Path(), "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	referenceRepo := repository.NewExternalReferenceRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)

	factory := client.NewFactory(client.FactoryConfig{
		Limits:     cfg.RateLimits,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		MaxWait:    cfg.RateLimitMaxWait,
	})
	registry := publisher.NewDefaultRegistry(factory)

	dispatcher := queue.NewDispatcher(asynqClient)
	r2Service := service.NewR2Service(cfg.R2)

	accountService := service.NewAccountService(socialAccountRepo, registry, cfg.SecretKey)
	deliveryService := service.NewDeliveryService(webhookRepo, deliveryRepo, dispatcher, &http.Client{})
	webhookService := service.NewWebhookService(webhookRepo, deliveryRepo, deliveryService, dispatcher, service.WebhookDefaults{
		RetryCount:     cfg.WebhookRetryCount,
		TimeoutSeconds: cfg.WebhookTimeoutSeconds,
	})
	publishingService := service.NewPublishingService(registry, referenceRepo, accountService, dispatcher, webhookService)
	inboundService := service.NewInboundService(cfg.InboundSecrets, cfg.MetaVerifyToken, referenceRepo, webhookService, r2Service)
	mediaService := service.NewMediaService(r2Service)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api.SetupRoutes(app, api.Handlers{
		Publications: handlers.NewPublicationHandler(publishingService),
		Media:        handlers.NewMediaHandler(mediaService),
		Webhooks:     handlers.NewWebhookHandler(webhookService),
		Inbound:      handlers.NewInboundHandler(inboundService),
		Accounts:     handlers.NewAccountHandler(accountService),
	}, authMiddleware.AuthMiddleware())

	// cron jobs
	c, err := job.Start(
		job.Spec{Name: "delivery sweep", Schedule: cfg.DeliverySweepSpec, Run: job.NewDeliverySweepJob(deliveryService).Run},
		job.Spec{Name: "status poll", Schedule: cfg.StatusPollSpec, Run: job.NewStatusPollJob(publishingService).Run},
	)
	if err != nil {
		fatal("failed to schedule jobs", "error", err)
	}
	defer c.Stop()

	// queue
	worker := queue.NewQueue(publishingService, deliveryService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Warn("task failed", "type", task.Type(), "error", err)
		}),
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)
	slog.Info("starting the asynq server")
	if err := server.Start(mux); err != nil {
		fatal("could not start asynq server", "error", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			fatal("failed to start server", "error", err)
		}
	}()
	slog.Info("server is running", "port", cfg.Port)

	gracefulShutdown(app, server)
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	server.Shutdown()
	slog.Info("server shutdown complete")
}
