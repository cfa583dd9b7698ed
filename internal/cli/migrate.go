package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/database"
	"github.com/vision-stage-tracker/internal/domain"
)

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long:  "The migrate command applies the embedded schema migrations. It only applies to the postgres storage driver; SQLite creates its schema on open.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(runner *database.MigrationRunner) error {
					if err := runner.Up(cmd.Context()); err != nil {
						return err
					}
					return printVersion(cmd, runner)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(runner *database.MigrationRunner) error {
					if err := runner.Down(cmd.Context()); err != nil {
						return err
					}
					return printVersion(cmd, runner)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(runner *database.MigrationRunner) error {
					return printVersion(cmd, runner)
				})
			},
		},
	)
	return cmd
}

func (a *app) withMigrations(fn func(runner *database.MigrationRunner) error) error {
	cfg := a.config.GetStorageConfig()
	if cfg.Driver != domain.StorageDriverPostgres {
		return fmt.Errorf("migrations require the postgres storage driver, configured driver is %q", cfg.Driver)
	}

	runner, err := database.NewMigrationRunner(cfg.PostgresURL, a.logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return fn(runner)
}

func printVersion(cmd *cobra.Command, runner *database.MigrationRunner) error {
	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %s)\n", version, yesNo(dirty))
	return nil
}
