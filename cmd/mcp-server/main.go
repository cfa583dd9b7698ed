package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/config"
	"github.com/vision-stage-tracker/internal/logging"
	"github.com/vision-stage-tracker/internal/mcp"
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

	// stdout carries the protocol
	cfg := configManager.GetConfig()
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger := logging.New(cfg.Logging)
	logger.WithField("server_name", cfg.MCP.ServerName).Info("Starting vision stage tracker MCP server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	mcpServer, err := mcp.NewServer(configManager, store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	// Start MCP server
	if err := mcpServer.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("MCP server stopped")
}
