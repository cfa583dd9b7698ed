package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/database"
	"github.com/vision-stage-tracker/internal/domain"
)

// Open creates the store selected by cfg.Driver. For Postgres with
// AutoMigrate set, pending migrations are applied before the store is returned.
func Open(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case domain.StorageDriverSQLite, "":
		return NewSQLiteStore(cfg.SQLitePath, logger)

	case domain.StorageDriverPostgres:
		if cfg.AutoMigrate {
			if err := migrateUp(ctx, cfg.PostgresURL, logger); err != nil {
				return nil, err
			}
		}
		conn, err := database.NewConnection(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store, err := NewPostgresStore(conn.SQL, logger)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
}

func migrateUp(ctx context.Context, databaseURL string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
