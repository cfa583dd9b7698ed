package service

import (
	"time"

	"github.com/vision-stage-tracker/internal/domain"
)

// ResolveStage returns the stage applicable on date, or the unmatched sentinel.
//
// Only enabled stages with a start date are candidates, and a candidate must
// cover date with both bounds inclusive. Among candidates the latest start date
// wins; stages sharing that start date fall back to registry order, so the one
// listed first is chosen.
func ResolveStage(stages []domain.Stage, date time.Time) domain.StageRef {
	if date.IsZero() {
		return domain.Unmatched()
	}

	var best *domain.Stage
	for i := range stages {
		s := &stages[i]
		if !s.Enabled || !s.Covers(date) {
			continue
		}
		if best == nil || domain.NormalizeDate(*s.StartDate).After(domain.NormalizeDate(*best.StartDate)) {
			best = s
		}
	}

	if best == nil {
		return domain.Unmatched()
	}
	return best.Ref()
}

// AnnotateRecords overwrites the stage of every record from the registry.
// Any stage previously stored on a record is ignored.
func AnnotateRecords(records []domain.ExamRecord, stages []domain.Stage) {
	for i := range records {
		records[i].Stage = ResolveStage(stages, records[i].Date)
	}
}
