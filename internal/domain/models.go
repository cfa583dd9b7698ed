package domain

import "time"

// StageInterventionSummary aggregates one (stage, intervention kind) pair.
// Means are nil when no record in the group carried a value.
type StageInterventionSummary struct {
	Stage                   string           `json:"stage"`
	Kind                    InterventionKind `json:"kind"`
	KindLabel               string           `json:"kind_label"`
	RecordCount             int              `json:"record_count"`
	MeanAdherence           *float64         `json:"mean_adherence"`
	FrequencyMeans          []FrequencyMean  `json:"frequency_means"`
	MeanAcuity              *float64         `json:"mean_acuity"`
	MeanSphericalEquivalent *float64         `json:"mean_spherical_equivalent"`
}

// FrequencyMean is the mean of one declared frequency field
type FrequencyMean struct {
	Field FrequencyField `json:"field"`
	Label string         `json:"label"`
	Mean  *float64       `json:"mean"`
}

// TrendPoint is one dated sample of the longitudinal measurements
type TrendPoint struct {
	Date                     time.Time `json:"date"`
	Stage                    string    `json:"stage"`
	StagePlan                string    `json:"stage_plan,omitempty"`
	VisionLeft               *float64  `json:"vision_left"`
	VisionRight              *float64  `json:"vision_right"`
	VisionMean               *float64  `json:"vision_mean"`
	SphericalEquivalentLeft  *float64  `json:"se_left"`
	SphericalEquivalentRight *float64  `json:"se_right"`
	SphericalEquivalentMean  *float64  `json:"se_mean"`
	HyperopiaReserveLeft     *float64  `json:"hyperopia_reserve_left"`
	HyperopiaReserveRight    *float64  `json:"hyperopia_reserve_right"`
	AxialLengthLeft          *float64  `json:"axial_length_left"`
	AxialLengthRight         *float64  `json:"axial_length_right"`
	Interventions            string    `json:"interventions"`
}
