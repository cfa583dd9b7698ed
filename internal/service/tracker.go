package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
)

// RecordStore is the persistence the tracker needs for examination records
type RecordStore interface {
	ListRecords(ctx context.Context) ([]domain.ExamRecord, error)
	GetRecord(ctx context.Context, id string) (*domain.ExamRecord, error)
	SaveRecord(ctx context.Context, record *domain.ExamRecord) error
	SaveStageAssignments(ctx context.Context, records []domain.ExamRecord) error
	DeleteRecord(ctx context.Context, id string) error
}

// TrackerStore combines stage and record persistence
type TrackerStore interface {
	StageStore
	RecordStore
}

// Snapshot is the state produced by one refresh
type Snapshot struct {
	Records     []domain.ExamRecord               `json:"records"`
	Stages      []domain.Stage                    `json:"stages"`
	Summary     []domain.StageInterventionSummary `json:"summary"`
	RefreshedAt time.Time                         `json:"refreshed_at"`
}

// TrendQuery filters the trend series
type TrendQuery struct {
	Stages []string
	Last   int
}

// TrackerService runs the refresh pipeline: load, resolve stages, persist the
// assignments, then aggregate. Every refresh recomputes all records from the
// current registry so registry edits apply retroactively.
type TrackerService struct {
	store    TrackerStore
	registry *StageRegistry
	logger   *logrus.Logger

	// serializes writers; resolution itself is pure
	mu sync.Mutex
}

// NewTrackerService creates a new tracker service
func NewTrackerService(store TrackerStore, logger *logrus.Logger) *TrackerService {
	return &TrackerService{
		store:    store,
		registry: NewStageRegistry(store, logger),
		logger:   logger,
	}
}

// Stages returns the stage registry backed by the same store
func (t *TrackerService) Stages() *StageRegistry {
	return t.registry
}

// Refresh re-resolves every record against the registry and rebuilds the summary
func (t *TrackerService) Refresh(ctx context.Context) (*Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refresh(ctx)
}

func (t *TrackerService) refresh(ctx context.Context) (*Snapshot, error) {
	stages, err := t.store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	records, err := t.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	AnnotateRecords(records, stages)

	if len(records) > 0 {
		if err := t.store.SaveStageAssignments(ctx, records); err != nil {
			return nil, fmt.Errorf("failed to persist stage assignments: %w", err)
		}
	}

	summary := SummarizeStageInterventions(records)

	unmatched := 0
	for i := range records {
		if !records[i].Stage.Matched {
			unmatched++
			t.logger.WithFields(logrus.Fields{
				"record_id": records[i].ID,
				"date":      domain.FormatDate(records[i].Date),
			}).Debug("Record matched no enabled stage")
		}
	}

	t.logger.WithFields(logrus.Fields{
		"record_count": len(records),
		"stage_count":  len(stages),
		"summary_rows": len(summary),
		"unmatched":    unmatched,
	}).Info("Refreshed stage assignments")

	return &Snapshot{
		Records:     records,
		Stages:      stages,
		Summary:     summary,
		RefreshedAt: time.Now().UTC(),
	}, nil
}

// AddRecord validates the submission, resolves its stage and stores it
func (t *TrackerService) AddRecord(ctx context.Context, in RecordInput) (*domain.ExamRecord, error) {
	rec, err := ParseRecordInput(in)
	if err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stages, err := t.store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}

	now := time.Now().UTC()
	rec.ID = uuid.New().String()
	rec.Stage = ResolveStage(stages, rec.Date)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := t.store.SaveRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"record_id": rec.ID,
		"date":      domain.FormatDate(rec.Date),
		"stage":     rec.Stage.Name,
	}).Info("Examination record added")

	return rec, nil
}

// DeleteRecord removes a record
func (t *TrackerService) DeleteRecord(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.store.GetRecord(ctx, id); err != nil {
		return err
	}
	if err := t.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	t.logger.WithField("record_id", id).Info("Examination record deleted")
	return nil
}

// ResolveDate previews which stage a record dated date would join
func (t *TrackerService) ResolveDate(ctx context.Context, date time.Time) (domain.StageRef, error) {
	stages, err := t.store.ListStages(ctx)
	if err != nil {
		return domain.StageRef{}, fmt.Errorf("failed to load stages: %w", err)
	}
	return ResolveStage(stages, date), nil
}

// Summary refreshes and returns the stage-intervention summary
func (t *TrackerService) Summary(ctx context.Context) ([]domain.StageInterventionSummary, error) {
	snap, err := t.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Summary, nil
}

// Trends refreshes and returns the trend series for the requested stages
func (t *TrackerService) Trends(ctx context.Context, q TrendQuery) ([]domain.TrendPoint, error) {
	snap, err := t.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	var filter mapset.Set[string]
	if len(q.Stages) > 0 {
		filter = mapset.NewThreadUnsafeSet(q.Stages...)
	}
	return BuildTrendSeries(snap.Records, filter, q.Last), nil
}

// Latest refreshes and returns the most recent record, or nil when there are none
func (t *TrackerService) Latest(ctx context.Context) (*domain.ExamRecord, error) {
	snap, err := t.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return LatestRecord(snap.Records), nil
}
