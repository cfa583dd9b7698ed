package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by storage, query parameters and exports.
const DateLayout = "2006-01-02"

// UnmatchedStageName labels records whose date falls outside every enabled stage.
const UnmatchedStageName = "unmatched stage"

// ExamRecord represents one eye examination and the interventions active at the time
type ExamRecord struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`

	VisionLeft            *float64 `json:"vision_left,omitempty"`
	VisionRight           *float64 `json:"vision_right,omitempty"`
	HyperopiaReserveLeft  *float64 `json:"hyperopia_reserve_left,omitempty"`
	HyperopiaReserveRight *float64 `json:"hyperopia_reserve_right,omitempty"`
	AxialLengthLeft       *float64 `json:"axial_length_left,omitempty"`
	AxialLengthRight      *float64 `json:"axial_length_right,omitempty"`

	RefractionLeft    Refraction `json:"refraction_left"`
	RefractionRight   Refraction `json:"refraction_right"`
	PupillaryDistance *float64   `json:"pupillary_distance,omitempty"`

	// Free-text clinical readings (keratometry, pachymetry, IOP, binocular vision).
	// They are displayed and exported but never aggregated.
	Measurements map[string]string `json:"measurements,omitempty"`
	Notes        string            `json:"notes,omitempty"`

	Interventions map[InterventionKind]InterventionUsage `json:"interventions,omitempty"`

	// Stage is derived from Date and the stage registry on every refresh.
	Stage StageRef `json:"stage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Refraction holds one eye's prescription
type Refraction struct {
	Sphere              *float64 `json:"sphere,omitempty"`
	Cylinder            *float64 `json:"cylinder,omitempty"`
	Axis                *float64 `json:"axis,omitempty"`
	SphericalEquivalent *float64 `json:"spherical_equivalent,omitempty"`
}

// Usage returns the record's usage block for kind. Absent kinds are reported as not in use.
func (r *ExamRecord) Usage(kind InterventionKind) InterventionUsage {
	if r.Interventions == nil {
		return InterventionUsage{}
	}
	return r.Interventions[kind]
}

// ActiveKinds lists the kinds flagged in use, in taxonomy order.
func (r *ExamRecord) ActiveKinds() []InterventionKind {
	var kinds []InterventionKind
	for _, def := range Interventions() {
		if r.Usage(def.Kind).InUse {
			kinds = append(kinds, def.Kind)
		}
	}
	return kinds
}

// MeanAcuity returns (left+right)/2, or nil unless both eyes were measured.
func (r *ExamRecord) MeanAcuity() *float64 {
	return pairMean(r.VisionLeft, r.VisionRight)
}

// MeanSphericalEquivalent returns the two-eye spherical equivalent mean, or nil unless both are present.
func (r *ExamRecord) MeanSphericalEquivalent() *float64 {
	return pairMean(r.RefractionLeft.SphericalEquivalent, r.RefractionRight.SphericalEquivalent)
}

func pairMean(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := (*a + *b) / 2
	return &v
}

// StageRef is the resolved stage identity of a record.
// ID and MainPlan are empty when Matched is false.
type StageRef struct {
	Matched  bool   `json:"matched"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	MainPlan string `json:"main_plan,omitempty"`
}

// Unmatched returns the sentinel reference for dates covered by no enabled stage
func Unmatched() StageRef {
	return StageRef{Name: UnmatchedStageName}
}

// Stage represents a clinician-defined treatment period
type Stage struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MainPlan     string     `json:"main_plan,omitempty"`
	Goal         string     `json:"goal,omitempty"`
	DoctorAdvice string     `json:"doctor_advice,omitempty"`
	Memo         string     `json:"memo,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Ref returns the identity of the stage as attached to a record
func (s *Stage) Ref() StageRef {
	return StageRef{
		Matched:  true,
		ID:       s.ID,
		Name:     s.Name,
		MainPlan: s.MainPlan,
	}
}

// Covers reports whether d falls inside the stage's range. Both bounds are
// inclusive and a missing end date never closes the range.
func (s *Stage) Covers(d time.Time) bool {
	if s.StartDate == nil {
		return false
	}
	d = NormalizeDate(d)
	if d.Before(NormalizeDate(*s.StartDate)) {
		return false
	}
	if s.EndDate != nil && d.After(NormalizeDate(*s.EndDate)) {
		return false
	}
	return true
}

// NormalizeDate truncates t to its calendar date at UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return NormalizeDate(t), nil
}

// FormatDate renders a date as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatOptionalDate renders an optional date, or "" when absent.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}
