package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/api"
	"github.com/vision-stage-tracker/internal/config"
	"github.com/vision-stage-tracker/internal/logging"
	"github.com/vision-stage-tracker/internal/storage"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.New(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"driver": cfg.Storage.Driver,
	}).Info("Starting vision stage tracker API")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	server, err := api.NewServer(configManager, store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
