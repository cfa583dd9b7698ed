package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
)

// DB wraps a lib/pq connection pool
type DB struct {
	SQL *sql.DB
	log *logrus.Logger
}

// NewConnection opens and verifies a Postgres connection pool
func NewConnection(ctx context.Context, config domain.StorageConfig, logger *logrus.Logger) (*DB, error) {
	if strings.TrimSpace(config.PostgresURL) == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool settings
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	host, name := describeURL(config.PostgresURL)
	logger.WithFields(logrus.Fields{
		"host":           host,
		"database":       name,
		"max_open_conns": config.MaxOpenConns,
		"max_idle_conns": config.MaxIdleConns,
	}).Info("Database connection pool established")

	return &DB{
		SQL: db,
		log: logger,
	}, nil
}

// describeURL extracts loggable parts of a connection URL, leaving credentials out
func describeURL(raw string) (host, name string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	return u.Host, strings.TrimPrefix(u.Path, "/")
}

// Close closes the database connection pool
func (db *DB) Close() error {
	if db.SQL == nil {
		return nil
	}
	err := db.SQL.Close()
	db.log.Info("Database connection pool closed")
	return err
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.SQL.Stats()
}
