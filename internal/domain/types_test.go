package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func f64(v float64) *float64 { return &v }

func TestInterventionTaxonomy(t *testing.T) {
	defs := Interventions()
	require.Len(t, defs, 6)

	expected := []struct {
		kind   InterventionKind
		fields []FrequencyField
	}{
		{InterventionAtropine, []FrequencyField{FrequencyWeeklyCount}},
		{InterventionLenses, []FrequencyField{FrequencyDailyHours, FrequencyWeeklyDays}},
		{InterventionLight, []FrequencyField{FrequencyDailyMinutes, FrequencyWeeklyDays}},
		{InterventionSupplement, []FrequencyField{FrequencyDailyCount}},
		{InterventionFlipper, []FrequencyField{FrequencyWeeklyCount, FrequencySessionMinutes}},
		{InterventionOther, []FrequencyField{FrequencyWeeklyCount, FrequencySessionMinutes}},
	}

	for i, want := range expected {
		t.Run(string(want.kind), func(t *testing.T) {
			assert.Equal(t, want.kind, defs[i].Kind)
			assert.Equal(t, i, InterventionOrder(want.kind))
			assert.NotEmpty(t, defs[i].Label)

			var fields []FrequencyField
			for _, spec := range defs[i].Frequencies {
				fields = append(fields, spec.Field)
				assert.LessOrEqual(t, spec.Min, spec.Max)
			}
			assert.Equal(t, want.fields, fields)
		})
	}

	assert.Equal(t, -1, InterventionOrder("unknown"))
	_, ok := LookupIntervention("unknown")
	assert.False(t, ok)
}

func TestInterventionsReturnsCopy(t *testing.T) {
	defs := Interventions()
	defs[0].Label = "changed"

	def, ok := LookupIntervention(InterventionAtropine)
	require.True(t, ok)
	assert.NotEqual(t, "changed", def.Label)
}

func TestStageCovers(t *testing.T) {
	closed := Stage{StartDate: dayPtr("2024-01-01"), EndDate: dayPtr("2024-03-31")}
	open := Stage{StartDate: dayPtr("2024-02-01")}
	undated := Stage{}

	tests := []struct {
		name  string
		stage Stage
		date  string
		want  bool
	}{
		{"start bound is inclusive", closed, "2024-01-01", true},
		{"end bound is inclusive", closed, "2024-03-31", true},
		{"inside", closed, "2024-02-15", true},
		{"before start", closed, "2023-12-31", false},
		{"after end", closed, "2024-04-01", false},
		{"open ended far future", open, "2099-12-31", true},
		{"open ended before start", open, "2024-01-31", false},
		{"missing start never covers", undated, "2024-02-15", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Covers(day(tt.date)))
		})
	}
}

func TestStageCoversIgnoresTimeOfDay(t *testing.T) {
	stage := Stage{StartDate: dayPtr("2024-01-01"), EndDate: dayPtr("2024-01-31")}

	lateOnLastDay := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	assert.True(t, stage.Covers(lateOnLastDay))
}

func TestPairMeans(t *testing.T) {
	rec := ExamRecord{
		VisionLeft:  f64(1.0),
		VisionRight: f64(0.8),
		RefractionLeft: Refraction{
			SphericalEquivalent: f64(-0.5),
		},
	}

	require.NotNil(t, rec.MeanAcuity())
	assert.InDelta(t, 0.9, *rec.MeanAcuity(), 1e-9)
	assert.Nil(t, rec.MeanSphericalEquivalent(), "one eye missing gives no mean")
}

func TestActiveKinds(t *testing.T) {
	rec := ExamRecord{
		Interventions: map[InterventionKind]InterventionUsage{
			InterventionOther:    {InUse: true},
			InterventionAtropine: {InUse: true},
			InterventionLenses:   {InUse: false, Detail: "stopped"},
		},
	}

	assert.Equal(t, []InterventionKind{InterventionAtropine, InterventionOther}, rec.ActiveKinds())
	assert.False(t, rec.Usage(InterventionLight).InUse)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-02-15", "2024-02-15", false},
		{" 2024-02-15 ", "2024-02-15", false},
		{"2024-02-15T00:00:00Z", "2024-02-15", false},
		{"2024-02-15T18:30:00+08:00", "2024-02-15", false},
		{"15/02/2024", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(got))
		})
	}
}

func TestFormatOptionalDate(t *testing.T) {
	assert.Equal(t, "", FormatOptionalDate(nil))
	assert.Equal(t, "2024-03-31", FormatOptionalDate(dayPtr("2024-03-31")))
	assert.Equal(t, "", FormatDate(time.Time{}))
}

func TestUnmatched(t *testing.T) {
	ref := Unmatched()
	assert.False(t, ref.Matched)
	assert.Equal(t, UnmatchedStageName, ref.Name)
	assert.Empty(t, ref.ID)
	assert.Empty(t, ref.MainPlan)
}
