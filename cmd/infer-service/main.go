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
	"github.com/cuongbtq/chickenify/internal/infer"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("INFER_SERVICE_CONFIG_PATH", "configs/infer-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateInferConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting infer service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("demucs_model", cfg.Pipeline.DemucsModel),
	)

	if err := os.MkdirAll(cfg.Pipeline.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	objects, err := bootstrap.InitObjectStore(&cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	pipeline := infer.NewPipeline(infer.PipelineConfig{
		FFmpegPath:       cfg.Pipeline.FFmpegPath,
		FFprobePath:      cfg.Pipeline.FFprobePath,
		DemucsPath:       cfg.Pipeline.DemucsPath,
		DemucsModel:      cfg.Pipeline.DemucsModel,
		SampleRate:       cfg.Pipeline.SampleRate,
		PitchFactor:      cfg.Pipeline.PitchFactor,
		VocalGain:        cfg.Pipeline.VocalGain,
		InstrumentalGain: cfg.Pipeline.InstrumentalGain,
	}, infer.ExecRunner{}, appLogger.Logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := infer.SetupRouter(&infer.Dependencies{
		Logger:         appLogger.Logger,
		Processor:      pipeline,
		Uploader:       objects,
		APIKey:         cfg.Inference.APIKey,
		WorkDir:        cfg.Pipeline.WorkDir,
		Concurrency:    cfg.Worker.Concurrency,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		PublicRead:     cfg.Storage.PublicRead,
	})

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

	appLogger.Info("Infer service is running",
		slog.String("address", addr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	appLogger.Info("Shutting down server...")

	// In-flight renders get the full shutdown timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
