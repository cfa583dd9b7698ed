package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-stage-tracker/internal/domain"
)

func seededStore() *memStore {
	return &memStore{
		stages: []domain.Stage{
			stage("20240101-01", "Stage A", "2024-01-01", "2024-03-31", true),
			stage("20240201-01", "Stage B", "2024-02-01", "", true),
		},
		records: []domain.ExamRecord{
			{ID: "r1", Date: day("2024-01-15"), Interventions: using(domain.InterventionAtropine, f64(100), nil)},
			{ID: "r2", Date: day("2024-02-15"), Interventions: using(domain.InterventionLenses, f64(80), nil)},
			{ID: "r3", Date: day("2023-12-01"), Interventions: using(domain.InterventionLenses, f64(60), nil)},
		},
	}
}

func TestTrackerService_Refresh(t *testing.T) {
	store := seededStore()
	tracker := NewTrackerService(store, quietLogger())

	// Act
	snap, err := tracker.Refresh(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, store.assignmentWrites)
	require.Len(t, snap.Records, 3)
	assert.Equal(t, domain.Unmatched(), snap.Records[0].Stage)
	assert.Equal(t, "Stage A", snap.Records[1].Stage.Name)
	assert.Equal(t, "Stage B", snap.Records[2].Stage.Name)
	assert.Equal(t, "Stage B", store.records[1].Stage.Name, "assignments are persisted")
	assert.False(t, snap.RefreshedAt.IsZero())

	require.Len(t, snap.Summary, 3)
	assert.Equal(t, "Stage A", snap.Summary[0].Stage)
	assert.Equal(t, "Stage B", snap.Summary[1].Stage)
	assert.Equal(t, domain.UnmatchedStageName, snap.Summary[2].Stage)
}

func TestTrackerService_RefreshIsRetroactive(t *testing.T) {
	store := seededStore()
	tracker := NewTrackerService(store, quietLogger())
	ctx := context.Background()

	_, err := tracker.Stages().SetEnabled(ctx, "20240201-01", false)
	require.NoError(t, err)

	snap, err := tracker.Refresh(ctx)

	require.NoError(t, err)
	assert.Equal(t, "Stage A", snap.Records[2].Stage.Name, "record falls back to the overlapping stage")
	for _, row := range snap.Summary {
		assert.NotEqual(t, "Stage B", row.Stage)
	}
}

func TestTrackerService_RefreshEmptyStore(t *testing.T) {
	store := &memStore{}
	tracker := NewTrackerService(store, quietLogger())

	snap, err := tracker.Refresh(context.Background())

	require.NoError(t, err)
	assert.Zero(t, store.assignmentWrites)
	assert.NotNil(t, snap.Summary)
	assert.Empty(t, snap.Summary)
}

func TestTrackerService_RefreshPropagatesStoreErrors(t *testing.T) {
	store := &memStore{failList: errors.New("disk on fire")}
	tracker := NewTrackerService(store, quietLogger())

	_, err := tracker.Refresh(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load stages")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestTrackerService_AddRecord(t *testing.T) {
	store := seededStore()
	tracker := NewTrackerService(store, quietLogger())
	ctx := context.Background()

	rec, err := tracker.AddRecord(ctx, RecordInput{
		Date:        "2024-03-10",
		VisionLeft:  "0.9",
		VisionRight: "0.9",
		Interventions: map[domain.InterventionKind]InterventionInput{
			domain.InterventionSupplement: {InUse: true, Frequencies: map[domain.FrequencyField]NumericInput{
				domain.FrequencyDailyCount: "2",
			}},
		},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Stage B", rec.Stage.Name)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Len(t, store.records, 4)

	_, err = tracker.AddRecord(ctx, RecordInput{Date: "2024-03-10", VisionLeft: "5"})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Len(t, store.records, 4, "invalid records are not stored")
}

func TestTrackerService_DeleteRecord(t *testing.T) {
	store := seededStore()
	tracker := NewTrackerService(store, quietLogger())
	ctx := context.Background()

	require.NoError(t, tracker.DeleteRecord(ctx, "r2"))
	assert.Len(t, store.records, 2)

	err := tracker.DeleteRecord(ctx, "r2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTrackerService_ResolveDate(t *testing.T) {
	tracker := NewTrackerService(seededStore(), quietLogger())

	ref, err := tracker.ResolveDate(context.Background(), day("2024-02-15"))

	require.NoError(t, err)
	assert.Equal(t, "20240201-01", ref.ID)
}

func TestTrackerService_Trends(t *testing.T) {
	tracker := NewTrackerService(seededStore(), quietLogger())

	points, err := tracker.Trends(context.Background(), TrendQuery{Stages: []string{"Stage B", "Stage A"}})

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "Stage A", points[0].Stage)
	assert.Equal(t, "low-dose atropine", points[0].Interventions)
	assert.Equal(t, "Stage B plan", points[1].StagePlan)
}

func TestTrackerService_Latest(t *testing.T) {
	tracker := NewTrackerService(seededStore(), quietLogger())

	latest, err := tracker.Latest(context.Background())

	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r2", latest.ID)
	assert.Equal(t, "Stage B", latest.Stage.Name)

	empty, err := NewTrackerService(&memStore{}, quietLogger()).Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestTrackerService_Summary(t *testing.T) {
	tracker := NewTrackerService(seededStore(), quietLogger())

	rows, err := tracker.Summary(context.Background())

	require.NoError(t, err)
	row := findRow(rows, "Stage B", domain.InterventionLenses)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.RecordCount)
	assert.Equal(t, 80.0, *row.MeanAdherence)
}
