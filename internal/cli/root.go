// Package cli implements the visiontrack command-line tool.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/config"
	"github.com/vision-stage-tracker/internal/logging"
	"github.com/vision-stage-tracker/internal/service"
	"github.com/vision-stage-tracker/internal/storage"
)

// app carries the state shared by every subcommand of one invocation
type app struct {
	configFile string
	logLevel   string

	config *config.Manager
	logger *logrus.Logger
}

// NewRootCommand builds the visiontrack command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "visiontrack",
		Short:         "Track myopia treatment stages and eye examinations",
		Long:          "visiontrack keeps a registry of treatment stages, attaches each examination record to the stage covering its date, and summarizes interventions per stage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default searches ./config.yaml)")
	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "v", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		a.stageCommand(),
		a.recordCommand(),
		a.summaryCommand(),
		a.exportCommand(),
		a.importCommand(),
		a.migrateCommand(),
		a.serveCommand(),
		a.mcpCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger
func (a *app) setup() error {
	manager, err := config.NewManager(a.configFile)
	if err != nil {
		return err
	}
	manager.SetLogLevel(a.logLevel)
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	a.config = manager
	a.logger = logging.New(*manager.GetLoggingConfig())
	a.logger.WithFields(logrus.Fields{
		"config_file": manager.ConfigFileUsed(),
		"driver":      manager.GetStorageConfig().Driver,
	}).Debug("Configuration loaded")
	return nil
}

// withStore opens the configured store for the duration of fn
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, store storage.Store) error) error {
	ctx := cmd.Context()
	store, err := storage.Open(ctx, *a.config.GetStorageConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close store")
		}
	}()
	return fn(ctx, store)
}

// withTracker opens the store and wraps it in the tracker service
func (a *app) withTracker(cmd *cobra.Command, fn func(ctx context.Context, tracker *service.TrackerService) error) error {
	return a.withStore(cmd, func(ctx context.Context, store storage.Store) error {
		return fn(ctx, service.NewTrackerService(store, a.logger))
	})
}
