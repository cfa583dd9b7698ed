package service

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/montanaflynn/stats"

	"github.com/vision-stage-tracker/internal/domain"
)

// Presentation precision of summary means
const (
	adherencePrecision = 1
	measurePrecision   = 2
)

// SummarizeStageInterventions builds one row per (stage, intervention kind) pair
// that has at least one record with the intervention in use.
//
// Records are grouped by their resolved stage name, so unmatched records form
// their own group. Means skip missing values and are nil when nothing was
// recorded. Rounding is applied only to the final means. Rows are ordered by
// stage name, then by taxonomy order.
func SummarizeStageInterventions(records []domain.ExamRecord) []domain.StageInterventionSummary {
	if len(records) == 0 {
		return []domain.StageInterventionSummary{}
	}

	groups := make(map[string][]*domain.ExamRecord)
	names := mapset.NewThreadUnsafeSet[string]()
	for i := range records {
		name := stageGroupName(records[i].Stage)
		names.Add(name)
		groups[name] = append(groups[name], &records[i])
	}

	stageNames := names.ToSlice()
	sort.Strings(stageNames)

	summaries := []domain.StageInterventionSummary{}
	for _, name := range stageNames {
		for _, def := range domain.Interventions() {
			row, ok := summarizeKind(name, def, groups[name])
			if ok {
				summaries = append(summaries, row)
			}
		}
	}
	return summaries
}

func stageGroupName(ref domain.StageRef) string {
	if !ref.Matched || ref.Name == "" {
		return domain.UnmatchedStageName
	}
	return ref.Name
}

func summarizeKind(stage string, def domain.InterventionDefinition, group []*domain.ExamRecord) (domain.StageInterventionSummary, bool) {
	var (
		used      int
		adherence stats.Float64Data
		acuity    stats.Float64Data
		se        stats.Float64Data
	)
	frequencies := make([]stats.Float64Data, len(def.Frequencies))

	for _, rec := range group {
		usage := rec.Usage(def.Kind)
		if !usage.InUse {
			continue
		}
		used++

		if usage.AdherencePercent != nil {
			adherence = append(adherence, *usage.AdherencePercent)
		}
		for i, spec := range def.Frequencies {
			if v := usage.Frequency(spec.Field); v != nil {
				frequencies[i] = append(frequencies[i], *v)
			}
		}
		if v := rec.MeanAcuity(); v != nil {
			acuity = append(acuity, *v)
		}
		if v := rec.MeanSphericalEquivalent(); v != nil {
			se = append(se, *v)
		}
	}

	if used == 0 {
		return domain.StageInterventionSummary{}, false
	}

	row := domain.StageInterventionSummary{
		Stage:                   stage,
		Kind:                    def.Kind,
		KindLabel:               def.Label,
		RecordCount:             used,
		MeanAdherence:           roundedMean(adherence, adherencePrecision),
		FrequencyMeans:          make([]domain.FrequencyMean, 0, len(def.Frequencies)),
		MeanAcuity:              roundedMean(acuity, measurePrecision),
		MeanSphericalEquivalent: roundedMean(se, measurePrecision),
	}
	for i, spec := range def.Frequencies {
		row.FrequencyMeans = append(row.FrequencyMeans, domain.FrequencyMean{
			Field: spec.Field,
			Label: spec.Label,
			Mean:  roundedMean(frequencies[i], measurePrecision),
		})
	}
	return row, true
}

// roundedMean returns the mean of values rounded to places, or nil for no values.
func roundedMean(values stats.Float64Data, places int) *float64 {
	if len(values) == 0 {
		return nil
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	rounded, err := stats.Round(mean, places)
	if err != nil {
		return &mean
	}
	return &rounded
}

// SortSummaries orders rows by stage name, then taxonomy order
func SortSummaries(rows []domain.StageInterventionSummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Stage != rows[j].Stage {
			return rows[i].Stage < rows[j].Stage
		}
		return domain.InterventionOrder(rows[i].Kind) < domain.InterventionOrder(rows[j].Kind)
	})
}
