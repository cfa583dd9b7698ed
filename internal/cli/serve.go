package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/api"
	trackermcp "github.com/vision-stage-tracker/internal/mcp"
	"github.com/vision-stage-tracker/internal/storage"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withStore(cmd, func(_ context.Context, store storage.Store) error {
				server, err := api.NewServer(a.config, store, a.logger)
				if err != nil {
					return err
				}
				return server.Start(ctx)
			})
		},
	}
}

func (a *app) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol
			if a.config.GetLoggingConfig().Output == "stdout" {
				a.logger.SetOutput(os.Stderr)
			}

			return a.withStore(cmd, func(_ context.Context, store storage.Store) error {
				server, err := trackermcp.NewServer(a.config, store, a.logger)
				if err != nil {
					return err
				}
				return server.Start(ctx)
			})
		},
	}
}
