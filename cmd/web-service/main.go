package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/chickenify/internal/bootstrap"
	"github.com/cuongbtq/chickenify/internal/config"
	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/inference"
	"github.com/cuongbtq/chickenify/internal/storage"
	"github.com/cuongbtq/chickenify/internal/web/auth"
	"github.com/cuongbtq/chickenify/internal/web/handler"
	"github.com/cuongbtq/chickenify/internal/web/router"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("WEB_SERVICE_CONFIG_PATH", "configs/web-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateWebConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting web service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("dispatch_mode", cfg.Dispatch.Mode),
	)

	ctx := context.Background()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	deps := &handler.Dependencies{
		Logger: appLogger.Logger,
		Users:  store,
		Jobs:   store,
		Sessions: auth.NewSessionManager(auth.SessionConfig{
			Secret:     cfg.Session.Secret,
			CookieName: cfg.Session.CookieName,
			MaxAge:     cfg.Session.MaxAge,
			Secure:     cfg.Session.Secure,
		}),
		DB:             dbClient,
		DispatchMode:   cfg.Dispatch.Mode,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		PageSize:       cfg.Upload.PageSize,
		ServiceName:    cfg.App.Name,
	}

	// Uploads are kept in S3 whenever a bucket is configured
	if cfg.Storage.Configured() {
		objects, err := bootstrap.InitObjectStore(&cfg.Storage, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		deps.Inputs = objects
	}

	var statusWriter dispatch.StatusWriter
	cache, err := bootstrap.InitStatusCache(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize status cache: %w", err)
	}
	if cache != nil {
		defer cache.Close()
		deps.StatusCache = cache
		statusWriter = cache
	}

	inferClient := inference.NewClient(inference.Config{
		URL:     cfg.Inference.URL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	}, appLogger.Logger)
	deps.Runner = dispatch.NewDispatcher(inferClient, store, statusWriter, appLogger.Logger)

	if cfg.Dispatch.Mode == domain.DispatchModeQueue {
		rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		deps.Publisher = rabbitClient

		appLogger.Info("RabbitMQ connection established")
	}

	// Initialize router
	r, err := initRouter(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	appLogger.Info("Web service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter sets the gin mode and builds the router
func initRouter(cfg *config.Config, deps *handler.Dependencies) (*gin.Engine, error) {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
