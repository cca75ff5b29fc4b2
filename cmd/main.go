package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/api/middleware"
	"github.com/userpipe/userpipe/internal/api/v1/handlers"
	"github.com/userpipe/userpipe/internal/api/v1/routes"
	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/db"
	"github.com/userpipe/userpipe/internal/db/repos"
	"github.com/userpipe/userpipe/internal/logger"
	"github.com/userpipe/userpipe/internal/pipeline"
	"github.com/userpipe/userpipe/internal/queue"
	"github.com/userpipe/userpipe/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	logger.InitializeAndConfigure()

	if err := run(); err != nil {
		logger.Fatalf("Server exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.New(db.Options{
		Host:       cfg.DB.Host,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		DBName:     cfg.DB.Name,
		Port:       cfg.DB.Port,
		SSLEnabled: cfg.DB.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	q, closeQueue, err := buildQueue(database, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to set up queue transport: %w", err)
	}
	defer closeQueue()

	jobRepo := repos.NewJobRepository(database)
	users := services.NewUserService(repos.NewUserRepository(database))
	fetcher := services.NewFetcher(cfg.Fetch)

	stages := services.NewStageSet(jobRepo, users, fetcher, cfg.Delay)
	pipe, err := stages.Pipeline()
	if err != nil {
		return fmt.Errorf("invalid pipeline definition: %w", err)
	}
	jobs := services.NewJobService(jobRepo, pipe, q)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	pool := services.NewWorkerPool(q, pipe, pipeline.NewScopeRunner(database), pipeline.DefaultRetryPolicy(), cfg.Worker)
	pool.Start(ctx, &wg)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(middleware.Logger())
	routes.RegisterRoutes(app, handlers.NewHealthHandler(database), handlers.NewJobHandler(jobs), handlers.NewUserHandler(users))

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting HTTP server on %s", cfg.Server.ListenAddr)
		serverErr <- app.Listen(cfg.Server.ListenAddr)
	}()

	select {
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Errorf("HTTP server shutdown failed: %v", err)
	}
	wg.Wait()
	logger.Info("Shutdown complete")
	return nil
}

// buildQueue constructs the configured queue transport. The returned close
// function releases transport resources on shutdown.
func buildQueue(database *gorm.DB, cfg config.QueueConfig) (pipeline.Queue, func(), error) {
	switch cfg.Transport {
	case config.TransportPostgres:
		return queue.NewPostgresQueue(database, cfg), func() {}, nil
	case config.TransportAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		q, err := queue.NewAMQPQueue(conn, cfg)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.Errorf("Failed to close AMQP channel: %v", err)
			}
			if err := conn.Close(); err != nil {
				logger.Errorf("Failed to close AMQP connection: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue transport: %s", cfg.Transport)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
