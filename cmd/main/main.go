package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-id/wa-meter/internal/config"
	"github.com/arkivo-id/wa-meter/internal/observer"
	"github.com/arkivo-id/wa-meter/internal/server"
	"github.com/arkivo-id/wa-meter/internal/storage"
	"github.com/arkivo-id/wa-meter/internal/usecase"
	"github.com/arkivo-id/wa-meter/pkg/logger"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting WA Meter",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("signature_bypassed", cfg.SignatureBypassed()),
	)
	if cfg.SignatureBypassed() {
		logger.Log.Warn("WHATSAPP_APP_SECRET is not set: accepting unsigned webhook deliveries (development mode only)")
	}

	store, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize metadata store", zap.Error(err))
	}

	keepaliveCtx, cancelKeepalive := context.WithCancel(context.Background())
	store.StartKeepalive(keepaliveCtx, cfg.Database.FlushInterval)

	service, err := usecase.NewIngestService(cfg, store, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize ingest service", zap.Error(err))
	}

	srv := server.NewServer(cfg, service, logger.Log)
	srv.Start()

	logger.Log.Info("Endpoints available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/webhook", cfg.Server.Port)),
		zap.String("dashboard_api", fmt.Sprintf("http://localhost:%d/api", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	if stats, err := store.Stats(context.Background()); err == nil && stats.TotalMessages > 0 {
		logger.Log.Info("Existing metadata found",
			zap.Int64("messages", stats.TotalMessages),
			zap.Int64("chats", stats.TotalChats),
			zap.Int64("earliest", stats.Earliest),
			zap.Int64("latest", stats.Latest),
		)
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Log.Error("HTTP server shutdown error", zap.Error(err))
	}

	service.Stop()
	cancelKeepalive()

	if err := store.Close(shutdownCtx); err != nil {
		logger.Log.Error("Store close error", zap.Error(err))
	}

	logger.Log.Info("Shutdown complete")
}
