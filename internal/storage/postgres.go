package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a new PostgreSQL tracker store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// ListStages returns the registry in creation order.
func (s *PostgresStore) ListStages(ctx context.Context) ([]domain.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer rows.Close()

	stages := []domain.Stage{}
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, *stage)
	}
	return stages, rows.Err()
}

// GetStage returns a stage by ID.
func (s *PostgresStore) GetStage(ctx context.Context, id string) (*domain.Stage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id)

	stage, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

// SaveStage inserts a new stage at the end of the registry or updates an existing one.
func (s *PostgresStore) SaveStage(ctx context.Context, stage *domain.Stage) error {
	if err := validateStage(stage); err != nil {
		return err
	}

	// Use upsert (INSERT ... ON CONFLICT)
	query := `
		INSERT INTO stages (` + stageColumns + `, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, (SELECT COALESCE(MAX(position), 0) + 1 FROM stages))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			main_plan = EXCLUDED.main_plan,
			goal = EXCLUDED.goal,
			doctor_advice = EXCLUDED.doctor_advice,
			memo = EXCLUDED.memo,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			enabled = EXCLUDED.enabled
	`

	if _, err := s.db.ExecContext(ctx, query, stageArgs(stage)...); err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}
	return nil
}

// ListRecords returns every record ordered by examination date.
func (s *PostgresStore) ListRecords(ctx context.Context) ([]domain.ExamRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM exam_records
		ORDER BY exam_date, created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []domain.ExamRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetRecord returns a record by ID.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*domain.ExamRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM exam_records WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// SaveRecord inserts or replaces a record.
func (s *PostgresStore) SaveRecord(ctx context.Context, record *domain.ExamRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	args, err := recordArgs(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exam_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			exam_date = EXCLUDED.exam_date,
			vision_left = EXCLUDED.vision_left,
			vision_right = EXCLUDED.vision_right,
			hyperopia_reserve_left = EXCLUDED.hyperopia_reserve_left,
			hyperopia_reserve_right = EXCLUDED.hyperopia_reserve_right,
			axial_length_left = EXCLUDED.axial_length_left,
			axial_length_right = EXCLUDED.axial_length_right,
			pupillary_distance = EXCLUDED.pupillary_distance,
			refraction_left = EXCLUDED.refraction_left,
			refraction_right = EXCLUDED.refraction_right,
			measurements = EXCLUDED.measurements,
			notes = EXCLUDED.notes,
			interventions = EXCLUDED.interventions,
			stage_matched = EXCLUDED.stage_matched,
			stage_id = EXCLUDED.stage_id,
			stage_name = EXCLUDED.stage_name,
			stage_plan = EXCLUDED.stage_plan,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// SaveStageAssignments rewrites the derived stage columns of records.
func (s *PostgresStore) SaveStageAssignments(ctx context.Context, records []domain.ExamRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE exam_records SET stage_matched = $1, stage_id = $2, stage_name = $3, stage_plan = $4
		WHERE id = $5
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment update: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Stage.Matched, rec.Stage.ID, rec.Stage.Name, rec.Stage.MainPlan, rec.ID); err != nil {
			return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignments: %w", err)
	}
	return nil
}

// DeleteRecord removes a record by ID.
func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM exam_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ExportJSON exports the registry and all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports stages and records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	imported, skipped, err = importJSON(ctx, s, reader)
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("JSON import finished")
	return imported, skipped, err
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
