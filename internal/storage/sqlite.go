package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/vision-stage-tracker/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite tracker store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite store opened")

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stages (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL,
		main_plan TEXT NOT NULL DEFAULT '',
		goal TEXT NOT NULL DEFAULT '',
		doctor_advice TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_records (
		id TEXT PRIMARY KEY,
		exam_date TEXT NOT NULL,
		vision_left REAL,
		vision_right REAL,
		hyperopia_reserve_left REAL,
		hyperopia_reserve_right REAL,
		axial_length_left REAL,
		axial_length_right REAL,
		pupillary_distance REAL,
		refraction_left TEXT NOT NULL DEFAULT '{}',
		refraction_right TEXT NOT NULL DEFAULT '{}',
		measurements TEXT NOT NULL DEFAULT '{}',
		notes TEXT NOT NULL DEFAULT '',
		interventions TEXT NOT NULL DEFAULT '{}',
		stage_matched INTEGER NOT NULL DEFAULT 0,
		stage_id TEXT NOT NULL DEFAULT '',
		stage_name TEXT NOT NULL DEFAULT '',
		stage_plan TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exam_records_date ON exam_records(exam_date);
	CREATE INDEX IF NOT EXISTS idx_exam_records_stage_name ON exam_records(stage_name);
	`

	_, err := db.Exec(schema)
	return err
}

// ListStages returns the registry in creation order.
func (s *SQLiteStore) ListStages(ctx context.Context) ([]domain.Stage, error) {
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
func (s *SQLiteStore) GetStage(ctx context.Context, id string) (*domain.Stage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = ?`, id)

	stage, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}
	return stage, nil
}

// SaveStage inserts a new stage at the end of the registry or updates an existing one.
func (s *SQLiteStore) SaveStage(ctx context.Context, stage *domain.Stage) error {
	if err := validateStage(stage); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (`+stageColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM stages))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			main_plan = excluded.main_plan,
			goal = excluded.goal,
			doctor_advice = excluded.doctor_advice,
			memo = excluded.memo,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			enabled = excluded.enabled
	`, stageArgs(stage)...)
	if err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}
	return nil
}

// ListRecords returns every record ordered by examination date.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]domain.ExamRecord, error) {
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
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*domain.ExamRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM exam_records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

// SaveRecord inserts or replaces a record.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *domain.ExamRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	args, err := recordArgs(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exam_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exam_date = excluded.exam_date,
			vision_left = excluded.vision_left,
			vision_right = excluded.vision_right,
			hyperopia_reserve_left = excluded.hyperopia_reserve_left,
			hyperopia_reserve_right = excluded.hyperopia_reserve_right,
			axial_length_left = excluded.axial_length_left,
			axial_length_right = excluded.axial_length_right,
			pupillary_distance = excluded.pupillary_distance,
			refraction_left = excluded.refraction_left,
			refraction_right = excluded.refraction_right,
			measurements = excluded.measurements,
			notes = excluded.notes,
			interventions = excluded.interventions,
			stage_matched = excluded.stage_matched,
			stage_id = excluded.stage_id,
			stage_name = excluded.stage_name,
			stage_plan = excluded.stage_plan,
			updated_at = excluded.updated_at
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// SaveStageAssignments rewrites the derived stage columns of records.
func (s *SQLiteStore) SaveStageAssignments(ctx context.Context, records []domain.ExamRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE exam_records SET stage_matched = ?, stage_id = ?, stage_name = ?, stage_plan = ?
		WHERE id = ?
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
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM exam_records WHERE id = ?", id)
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
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports stages and records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	imported, skipped, err = importJSON(ctx, s, reader)
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("JSON import finished")
	return imported, skipped, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
