package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vision-stage-tracker/internal/domain"
)

// Column lists shared by both backends, in scan order
const (
	stageColumns = `id, name, main_plan, goal, doctor_advice, memo,
		start_date, end_date, enabled, created_at`

	recordColumns = `id, exam_date,
		vision_left, vision_right,
		hyperopia_reserve_left, hyperopia_reserve_right,
		axial_length_left, axial_length_right, pupillary_distance,
		refraction_left, refraction_right, measurements, notes, interventions,
		stage_matched, stage_id, stage_name, stage_plan,
		created_at, updated_at`
)

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// dateValue scans a DATE column (Postgres) or YYYY-MM-DD text (SQLite)
type dateValue struct {
	t *time.Time
}

func (d *dateValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		d.t = nil
		return nil
	case time.Time:
		n := domain.NormalizeDate(v)
		d.t = &n
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("unsupported date value %T", src)
}

func (d *dateValue) parse(s string) error {
	if s == "" {
		d.t = nil
		return nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return err
	}
	d.t = &t
	return nil
}

// timestampValue scans TIMESTAMPTZ (Postgres) or RFC 3339 text (SQLite)
type timestampValue struct {
	t time.Time
}

func (ts *timestampValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		ts.t = time.Time{}
		return nil
	case time.Time:
		ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp value %T", src)
}

func (ts *timestampValue) parse(s string) error {
	if s == "" {
		ts.t = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ts.t = t.UTC()
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return domain.FormatDate(*t)
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func jsonArg(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// scanStage scans a row selected with stageColumns
func scanStage(s scanner) (*domain.Stage, error) {
	stage := &domain.Stage{}
	var start, end dateValue
	var created timestampValue

	err := s.Scan(
		&stage.ID, &stage.Name, &stage.MainPlan, &stage.Goal, &stage.DoctorAdvice, &stage.Memo,
		&start, &end, &stage.Enabled, &created,
	)
	if err != nil {
		return nil, err
	}

	stage.StartDate = start.t
	stage.EndDate = end.t
	stage.CreatedAt = created.t
	return stage, nil
}

// stageArgs returns the insert arguments of a stage in stageColumns order
func stageArgs(stage *domain.Stage) []interface{} {
	return []interface{}{
		stage.ID, stage.Name, stage.MainPlan, stage.Goal, stage.DoctorAdvice, stage.Memo,
		dateArg(stage.StartDate), dateArg(stage.EndDate), stage.Enabled, formatTimestamp(stage.CreatedAt),
	}
}

// scanRecord scans a row selected with recordColumns
func scanRecord(s scanner) (*domain.ExamRecord, error) {
	rec := &domain.ExamRecord{}
	var (
		date                                   dateValue
		visionLeft, visionRight                sql.NullFloat64
		reserveLeft, reserveRight              sql.NullFloat64
		axialLeft, axialRight, pd              sql.NullFloat64
		refrLeft, refrRight, measurements, ivs []byte
		created, updated                       timestampValue
	)

	err := s.Scan(
		&rec.ID, &date,
		&visionLeft, &visionRight,
		&reserveLeft, &reserveRight,
		&axialLeft, &axialRight, &pd,
		&refrLeft, &refrRight, &measurements, &rec.Notes, &ivs,
		&rec.Stage.Matched, &rec.Stage.ID, &rec.Stage.Name, &rec.Stage.MainPlan,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	if date.t != nil {
		rec.Date = *date.t
	}
	rec.VisionLeft = floatPtr(visionLeft)
	rec.VisionRight = floatPtr(visionRight)
	rec.HyperopiaReserveLeft = floatPtr(reserveLeft)
	rec.HyperopiaReserveRight = floatPtr(reserveRight)
	rec.AxialLengthLeft = floatPtr(axialLeft)
	rec.AxialLengthRight = floatPtr(axialRight)
	rec.PupillaryDistance = floatPtr(pd)
	rec.CreatedAt = created.t
	rec.UpdatedAt = updated.t

	if err := decodeJSON(refrLeft, &rec.RefractionLeft); err != nil {
		return nil, fmt.Errorf("record %s refraction_left: %w", rec.ID, err)
	}
	if err := decodeJSON(refrRight, &rec.RefractionRight); err != nil {
		return nil, fmt.Errorf("record %s refraction_right: %w", rec.ID, err)
	}
	if err := decodeJSON(measurements, &rec.Measurements); err != nil {
		return nil, fmt.Errorf("record %s measurements: %w", rec.ID, err)
	}
	if err := decodeJSON(ivs, &rec.Interventions); err != nil {
		return nil, fmt.Errorf("record %s interventions: %w", rec.ID, err)
	}
	if len(rec.Measurements) == 0 {
		rec.Measurements = nil
	}
	if len(rec.Interventions) == 0 {
		rec.Interventions = nil
	}
	return rec, nil
}

// recordArgs returns the insert arguments of a record in recordColumns order
func recordArgs(rec *domain.ExamRecord) ([]interface{}, error) {
	refrLeft, err := jsonArg(rec.RefractionLeft)
	if err != nil {
		return nil, fmt.Errorf("encoding refraction_left: %w", err)
	}
	refrRight, err := jsonArg(rec.RefractionRight)
	if err != nil {
		return nil, fmt.Errorf("encoding refraction_right: %w", err)
	}
	measurements := rec.Measurements
	if measurements == nil {
		measurements = map[string]string{}
	}
	measurementsJSON, err := jsonArg(measurements)
	if err != nil {
		return nil, fmt.Errorf("encoding measurements: %w", err)
	}
	interventions := rec.Interventions
	if interventions == nil {
		interventions = map[domain.InterventionKind]domain.InterventionUsage{}
	}
	interventionsJSON, err := jsonArg(interventions)
	if err != nil {
		return nil, fmt.Errorf("encoding interventions: %w", err)
	}

	return []interface{}{
		rec.ID, domain.FormatDate(rec.Date),
		floatArg(rec.VisionLeft), floatArg(rec.VisionRight),
		floatArg(rec.HyperopiaReserveLeft), floatArg(rec.HyperopiaReserveRight),
		floatArg(rec.AxialLengthLeft), floatArg(rec.AxialLengthRight), floatArg(rec.PupillaryDistance),
		refrLeft, refrRight, measurementsJSON, rec.Notes, interventionsJSON,
		rec.Stage.Matched, rec.Stage.ID, rec.Stage.Name, rec.Stage.MainPlan,
		formatTimestamp(rec.CreatedAt), formatTimestamp(rec.UpdatedAt),
	}, nil
}

func validateRecord(rec *domain.ExamRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if rec.Date.IsZero() {
		return fmt.Errorf("record %s has no examination date", rec.ID)
	}
	return nil
}

func validateStage(stage *domain.Stage) error {
	if stage.ID == "" {
		return fmt.Errorf("stage ID is required")
	}
	if stage.Name == "" {
		return fmt.Errorf("stage %s has no name", stage.ID)
	}
	return nil
}

// exportJSON writes every stage and record of s as a TrackerExport
func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	stages, err := s.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stages: %w", err)
	}
	records, err := s.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	export := &TrackerExport{
		Version:     ExportVersion,
		ExportedAt:  time.Now().UTC(),
		RecordCount: len(records),
		StageCount:  len(stages),
		Stages:      stages,
		Records:     records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importJSON loads a TrackerExport into s, skipping IDs that already exist.
// Stages are imported first so registry order follows the export.
func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export TrackerExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for i := range export.Stages {
		stage := &export.Stages[i]
		_, err := s.GetStage(ctx, stage.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing stage: %w", err)
		}
		if err := s.SaveStage(ctx, stage); err != nil {
			return imported, skipped, fmt.Errorf("failed to save stage: %w", err)
		}
		imported++
	}

	for i := range export.Records {
		rec := &export.Records[i]
		_, err := s.GetRecord(ctx, rec.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing record: %w", err)
		}
		if err := s.SaveRecord(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save record: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
