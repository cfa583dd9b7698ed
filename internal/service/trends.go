package service

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/vision-stage-tracker/internal/domain"
)

// Limits of the "last N points" trend window
const (
	MinTrendPoints = 3
	MaxTrendPoints = 80
)

// NoInterventionTag marks records without any intervention in use
const NoInterventionTag = "none"

// InterventionTag joins the labels of the record's active interventions
func InterventionTag(rec *domain.ExamRecord) string {
	var labels []string
	for _, kind := range rec.ActiveKinds() {
		if def, ok := domain.LookupIntervention(kind); ok {
			labels = append(labels, def.Label)
		}
	}
	if len(labels) == 0 {
		return NoInterventionTag
	}
	return strings.Join(labels, ", ")
}

// BuildTrendSeries turns stage-annotated records into date-ordered trend points.
// A nil or empty stages set keeps every stage. When last is positive only the
// most recent last points are kept, with last clamped to the trend window limits.
func BuildTrendSeries(records []domain.ExamRecord, stages mapset.Set[string], last int) []domain.TrendPoint {
	sorted := make([]*domain.ExamRecord, 0, len(records))
	for i := range records {
		rec := &records[i]
		if rec.Date.IsZero() {
			continue
		}
		if stages != nil && stages.Cardinality() > 0 && !stages.Contains(stageGroupName(rec.Stage)) {
			continue
		}
		sorted = append(sorted, rec)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	if last > 0 {
		if last < MinTrendPoints {
			last = MinTrendPoints
		}
		if last > MaxTrendPoints {
			last = MaxTrendPoints
		}
		if len(sorted) > last {
			sorted = sorted[len(sorted)-last:]
		}
	}

	points := make([]domain.TrendPoint, 0, len(sorted))
	for _, rec := range sorted {
		points = append(points, domain.TrendPoint{
			Date:                     rec.Date,
			Stage:                    stageGroupName(rec.Stage),
			StagePlan:                rec.Stage.MainPlan,
			VisionLeft:               rec.VisionLeft,
			VisionRight:              rec.VisionRight,
			VisionMean:               rec.MeanAcuity(),
			SphericalEquivalentLeft:  rec.RefractionLeft.SphericalEquivalent,
			SphericalEquivalentRight: rec.RefractionRight.SphericalEquivalent,
			SphericalEquivalentMean:  rec.MeanSphericalEquivalent(),
			HyperopiaReserveLeft:     rec.HyperopiaReserveLeft,
			HyperopiaReserveRight:    rec.HyperopiaReserveRight,
			AxialLengthLeft:          rec.AxialLengthLeft,
			AxialLengthRight:         rec.AxialLengthRight,
			Interventions:            InterventionTag(rec),
		})
	}
	return points
}

// LatestRecord returns the record with the latest date, or nil for no records.
// Among records sharing that date the last one in input order wins.
func LatestRecord(records []domain.ExamRecord) *domain.ExamRecord {
	var latest *domain.ExamRecord
	for i := range records {
		if latest == nil || !records[i].Date.Before(latest.Date) {
			latest = &records[i]
		}
	}
	return latest
}

// StageNames lists the distinct stage group names of records, sorted
func StageNames(records []domain.ExamRecord) []string {
	names := mapset.NewThreadUnsafeSet[string]()
	for i := range records {
		names.Add(stageGroupName(records[i].Stage))
	}
	out := names.ToSlice()
	sort.Strings(out)
	return out
}
