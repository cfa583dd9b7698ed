// Package storage persists the stage registry and examination records.
// SQLite is the default single-user backend; Postgres serves shared deployments.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/vision-stage-tracker/internal/domain"
)

// ExportVersion is written into every JSON export
const ExportVersion = "1.0"

// Store defines the persistence operations of the tracker.
type Store interface {
	// ListStages returns the registry in creation order.
	ListStages(ctx context.Context) ([]domain.Stage, error)

	// GetStage returns a stage or an error wrapping domain.ErrNotFound.
	GetStage(ctx context.Context, id string) (*domain.Stage, error)

	// SaveStage inserts a stage or updates it in place, keeping its registry position.
	SaveStage(ctx context.Context, stage *domain.Stage) error

	// ListRecords returns every record ordered by examination date.
	ListRecords(ctx context.Context) ([]domain.ExamRecord, error)

	// GetRecord returns a record or an error wrapping domain.ErrNotFound.
	GetRecord(ctx context.Context, id string) (*domain.ExamRecord, error)

	// SaveRecord inserts or replaces a record.
	SaveRecord(ctx context.Context, record *domain.ExamRecord) error

	// SaveStageAssignments rewrites the derived stage columns of records in one transaction.
	SaveStageAssignments(ctx context.Context, records []domain.ExamRecord) error

	// DeleteRecord removes a record by ID.
	DeleteRecord(ctx context.Context, id string) error

	// ExportJSON writes the registry and every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads an export. Stages and records whose ID already exists
	// are skipped. Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// TrackerExport represents the JSON export format.
type TrackerExport struct {
	Version     string              `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	RecordCount int                 `json:"record_count"`
	StageCount  int                 `json:"stage_count"`
	Stages      []domain.Stage      `json:"stages"`
	Records     []domain.ExamRecord `json:"records"`
}
