package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/chickenify/internal/bootstrap"
	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/inference"
	"github.com/cuongbtq/chickenify/internal/storage"
	"github.com/cuongbtq/chickenify/internal/worker"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("DISPATCH_SERVICE_CONFIG_PATH", "configs/dispatch-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateDispatchConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting dispatch service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	objects, err := bootstrap.InitObjectStore(&cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	var statusWriter dispatch.StatusWriter
	cache, err := bootstrap.InitStatusCache(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize status cache: %w", err)
	}
	if cache != nil {
		defer cache.Close()
		statusWriter = cache
	}

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	inferClient := inference.NewClient(inference.Config{
		URL:     cfg.Inference.URL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	}, appLogger.Logger)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Jobs:              store,
		Inputs:            objects,
		Runner:            dispatch.NewDispatcher(inferClient, store, statusWriter, appLogger.Logger),
		Deliveries:        rabbitClient,
		WorkerID:          workerID(),
		QueueName:         cfg.RabbitMQ.Queue.Name,
		Concurrency:       cfg.Worker.Concurrency,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Dispatch service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		cancel()
		workerInstance.Stop(cfg.Worker.ShutdownTimeout) //nolint:errcheck
		return err
	}

	// Cancel context to stop consuming
	cancel()

	if err := workerInstance.Stop(cfg.Worker.ShutdownTimeout); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Dispatch service shutdown complete")
	return nil
}

// workerID is the hostname plus a random suffix, unique per process
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dispatch"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
