package domain

import "time"

// InterventionKind identifies one of the fixed treatment categories
type InterventionKind string

// Intervention kinds, declared in taxonomy order
const (
	InterventionAtropine   InterventionKind = "atropine"
	InterventionLenses     InterventionKind = "myopia_control_lenses"
	InterventionLight      InterventionKind = "light_therapy"
	InterventionSupplement InterventionKind = "supplement"
	InterventionFlipper    InterventionKind = "flipper_training"
	InterventionOther      InterventionKind = "other"
)

// FrequencyField names a numeric frequency or duration reading of an intervention
type FrequencyField string

const (
	FrequencyWeeklyCount    FrequencyField = "weekly_count"
	FrequencyDailyHours     FrequencyField = "daily_hours"
	FrequencyWeeklyDays     FrequencyField = "weekly_days"
	FrequencyDailyMinutes   FrequencyField = "daily_minutes"
	FrequencyDailyCount     FrequencyField = "daily_count"
	FrequencySessionMinutes FrequencyField = "session_minutes"
)

// FrequencySpec declares a frequency field together with its accepted input range.
// Integer fields are truncated toward zero at the input boundary.
type FrequencySpec struct {
	Field   FrequencyField `json:"field"`
	Label   string         `json:"label"`
	Min     float64        `json:"min"`
	Max     float64        `json:"max"`
	Integer bool           `json:"integer"`
}

// InterventionDefinition describes one kind of the taxonomy
type InterventionDefinition struct {
	Kind        InterventionKind `json:"kind"`
	Label       string           `json:"label"`
	DetailLabel string           `json:"detail_label"`
	Frequencies []FrequencySpec  `json:"frequencies"`
}

var interventionTaxonomy = []InterventionDefinition{
	{
		Kind:        InterventionAtropine,
		Label:       "low-dose atropine",
		DetailLabel: "concentration",
		Frequencies: []FrequencySpec{
			{Field: FrequencyWeeklyCount, Label: "doses per week", Min: 0, Max: 14, Integer: true},
		},
	},
	{
		Kind:        InterventionLenses,
		Label:       "myopia control lenses",
		DetailLabel: "lens type",
		Frequencies: []FrequencySpec{
			{Field: FrequencyDailyHours, Label: "hours worn per day", Min: 0, Max: 24},
			{Field: FrequencyWeeklyDays, Label: "days per week", Min: 0, Max: 7, Integer: true},
		},
	},
	{
		Kind:        InterventionLight,
		Label:       "light therapy device",
		DetailLabel: "device plan",
		Frequencies: []FrequencySpec{
			{Field: FrequencyDailyMinutes, Label: "minutes per day", Min: 0, Max: 300, Integer: true},
			{Field: FrequencyWeeklyDays, Label: "days per week", Min: 0, Max: 7, Integer: true},
		},
	},
	{
		Kind:        InterventionSupplement,
		Label:       "eye drop supplement",
		DetailLabel: "brand",
		Frequencies: []FrequencySpec{
			{Field: FrequencyDailyCount, Label: "doses per day", Min: 0, Max: 10, Integer: true},
		},
	},
	{
		Kind:        InterventionFlipper,
		Label:       "flipper training",
		DetailLabel: "training plan",
		Frequencies: []FrequencySpec{
			{Field: FrequencyWeeklyCount, Label: "sessions per week", Min: 0, Max: 21, Integer: true},
			{Field: FrequencySessionMinutes, Label: "minutes per session", Min: 0, Max: 180, Integer: true},
		},
	},
	{
		Kind:        InterventionOther,
		Label:       "other",
		DetailLabel: "content",
		Frequencies: []FrequencySpec{
			{Field: FrequencyWeeklyCount, Label: "times per week", Min: 0, Max: 21, Integer: true},
			{Field: FrequencySessionMinutes, Label: "minutes per session", Min: 0, Max: 180, Integer: true},
		},
	},
}

// Interventions returns the taxonomy in declaration order. The slice is a copy.
func Interventions() []InterventionDefinition {
	out := make([]InterventionDefinition, len(interventionTaxonomy))
	copy(out, interventionTaxonomy)
	return out
}

// LookupIntervention returns the definition for kind
func LookupIntervention(kind InterventionKind) (InterventionDefinition, bool) {
	for _, def := range interventionTaxonomy {
		if def.Kind == kind {
			return def, true
		}
	}
	return InterventionDefinition{}, false
}

// InterventionOrder returns the taxonomy position of kind, or -1 when unknown.
func InterventionOrder(kind InterventionKind) int {
	for i, def := range interventionTaxonomy {
		if def.Kind == kind {
			return i
		}
	}
	return -1
}

// InterventionUsage records how one intervention was followed as of an examination
type InterventionUsage struct {
	InUse            bool                       `json:"in_use"`
	Detail           string                     `json:"detail,omitempty"`
	FrequencyNote    string                     `json:"frequency_note,omitempty"`
	Frequencies      map[FrequencyField]float64 `json:"frequencies,omitempty"`
	AdherencePercent *float64                   `json:"adherence_percent,omitempty"`
	StartDate        *time.Time                 `json:"start_date,omitempty"`
	EndDate          *time.Time                 `json:"end_date,omitempty"`
	Feedback         string                     `json:"feedback,omitempty"`
}

// Frequency returns the value of field, or nil when it was not recorded.
func (u InterventionUsage) Frequency(field FrequencyField) *float64 {
	v, ok := u.Frequencies[field]
	if !ok {
		return nil
	}
	return &v
}
