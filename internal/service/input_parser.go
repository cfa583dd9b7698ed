package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/vision-stage-tracker/internal/domain"
)

// NumericInput is a form value that may hold a number, blank text, or junk.
// It decodes from either a JSON number or a JSON string.
type NumericInput string

// UnmarshalJSON accepts numbers, strings and null
func (n *NumericInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericInput(s)
		return nil
	}
	*n = NumericInput(data)
	return nil
}

// Bounds is an optional inclusive range for numeric input
type Bounds struct {
	Min *float64
	Max *float64
}

// Between returns inclusive bounds [lo, hi]
func Between(lo, hi float64) Bounds {
	return Bounds{Min: &lo, Max: &hi}
}

// Unbounded accepts any finite number
var Unbounded = Bounds{}

// Input ranges for examination fields
var (
	VisionBounds            = Between(0.1, 2.0)
	HyperopiaReserveBounds  = Between(-10, 10)
	AxialLengthBounds       = Between(15, 30)
	PupillaryDistanceBounds = Between(40, 80)
	AxisBounds              = Between(0, 180)
	AdherenceBounds         = Between(0, 100)
)

// ParseOptionalFloat parses raw as a number within b. Blank input yields nil
// without error.
func ParseOptionalFloat(field, raw string, b Bounds) (*float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domain.NewValidationError(field, "must be a number", raw)
	}
	if err := checkBounds(field, raw, v, b); err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseOptionalInt parses raw as a number, truncates it toward zero and checks
// it against b. Blank input yields nil without error.
func ParseOptionalInt(field, raw string, b Bounds) (*int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domain.NewValidationError(field, "must be an integer", raw)
	}
	truncated := math.Trunc(v)
	if err := checkBounds(field, raw, truncated, b); err != nil {
		return nil, err
	}
	i := int(truncated)
	return &i, nil
}

func checkBounds(field, raw string, v float64, b Bounds) error {
	if b.Min != nil && v < *b.Min {
		return domain.NewValidationError(field, fmt.Sprintf("must not be less than %s", formatBound(*b.Min)), raw)
	}
	if b.Max != nil && v > *b.Max {
		return domain.NewValidationError(field, fmt.Sprintf("must not be greater than %s", formatBound(*b.Max)), raw)
	}
	return nil
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RefractionInput is the raw prescription of one eye
type RefractionInput struct {
	Sphere              NumericInput `json:"sphere"`
	Cylinder            NumericInput `json:"cylinder"`
	Axis                NumericInput `json:"axis"`
	SphericalEquivalent NumericInput `json:"spherical_equivalent"`
}

// InterventionInput is the raw usage block of one intervention kind
type InterventionInput struct {
	InUse            bool                                  `json:"in_use"`
	Detail           string                                `json:"detail"`
	FrequencyNote    string                                `json:"frequency_note"`
	Frequencies      map[domain.FrequencyField]NumericInput `json:"frequencies"`
	AdherencePercent NumericInput                          `json:"adherence_percent"`
	StartDate        string                                `json:"start_date"`
	EndDate          string                                `json:"end_date"`
	Feedback         string                                `json:"feedback"`
}

// RecordInput is an examination as submitted by the operator, before validation
type RecordInput struct {
	Date                  string                                        `json:"date"`
	VisionLeft            NumericInput                                  `json:"vision_left"`
	VisionRight           NumericInput                                  `json:"vision_right"`
	HyperopiaReserveLeft  NumericInput                                  `json:"hyperopia_reserve_left"`
	HyperopiaReserveRight NumericInput                                  `json:"hyperopia_reserve_right"`
	AxialLengthLeft       NumericInput                                  `json:"axial_length_left"`
	AxialLengthRight      NumericInput                                  `json:"axial_length_right"`
	RefractionLeft        RefractionInput                               `json:"refraction_left"`
	RefractionRight       RefractionInput                               `json:"refraction_right"`
	PupillaryDistance     NumericInput                                  `json:"pupillary_distance"`
	Measurements          map[string]string                             `json:"measurements"`
	Notes                 string                                        `json:"notes"`
	Interventions         map[domain.InterventionKind]InterventionInput `json:"interventions"`
}

// recordParser accumulates validation errors across one submission
type recordParser struct {
	errs domain.ValidationErrors
}

func (p *recordParser) float(field string, raw NumericInput, b Bounds) *float64 {
	v, err := ParseOptionalFloat(field, string(raw), b)
	if err != nil {
		p.errs = append(p.errs, err.(*domain.ValidationError))
		return nil
	}
	return v
}

func (p *recordParser) integer(field string, raw NumericInput, b Bounds) *int {
	v, err := ParseOptionalInt(field, string(raw), b)
	if err != nil {
		p.errs = append(p.errs, err.(*domain.ValidationError))
		return nil
	}
	return v
}

func (p *recordParser) date(field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := domain.ParseDate(raw)
	if err != nil {
		p.errs = append(p.errs, domain.NewValidationError(field, "must be a date formatted as YYYY-MM-DD", raw))
		return nil
	}
	return &t
}

func (p *recordParser) refraction(eye string, in RefractionInput) domain.Refraction {
	return domain.Refraction{
		Sphere:              p.float("refraction_"+eye+".sphere", in.Sphere, Unbounded),
		Cylinder:            p.float("refraction_"+eye+".cylinder", in.Cylinder, Unbounded),
		Axis:                p.float("refraction_"+eye+".axis", in.Axis, AxisBounds),
		SphericalEquivalent: p.float("refraction_"+eye+".spherical_equivalent", in.SphericalEquivalent, Unbounded),
	}
}

func (p *recordParser) intervention(def domain.InterventionDefinition, in InterventionInput) domain.InterventionUsage {
	prefix := "interventions." + string(def.Kind)
	usage := domain.InterventionUsage{
		InUse:            true,
		Detail:           strings.TrimSpace(in.Detail),
		FrequencyNote:    strings.TrimSpace(in.FrequencyNote),
		AdherencePercent: p.float(prefix+".adherence_percent", in.AdherencePercent, AdherenceBounds),
		StartDate:        p.date(prefix+".start_date", in.StartDate),
		EndDate:          p.date(prefix+".end_date", in.EndDate),
		Feedback:         strings.TrimSpace(in.Feedback),
	}
	if usage.StartDate != nil && usage.EndDate != nil && usage.EndDate.Before(*usage.StartDate) {
		p.errs = append(p.errs, domain.NewValidationError(prefix+".end_date", "end date must not be before start date", in.EndDate))
	}

	declared := make(map[domain.FrequencyField]bool, len(def.Frequencies))
	for _, spec := range def.Frequencies {
		declared[spec.Field] = true
		field := prefix + ".frequencies." + string(spec.Field)
		bounds := Between(spec.Min, spec.Max)

		var value *float64
		if spec.Integer {
			if i := p.integer(field, in.Frequencies[spec.Field], bounds); i != nil {
				f := float64(*i)
				value = &f
			}
		} else {
			value = p.float(field, in.Frequencies[spec.Field], bounds)
		}
		if value != nil {
			if usage.Frequencies == nil {
				usage.Frequencies = make(map[domain.FrequencyField]float64)
			}
			usage.Frequencies[spec.Field] = *value
		}
	}
	var undeclared []string
	for field, raw := range in.Frequencies {
		if !declared[field] && strings.TrimSpace(string(raw)) != "" {
			undeclared = append(undeclared, string(field))
		}
	}
	sort.Strings(undeclared)
	for _, field := range undeclared {
		raw := in.Frequencies[domain.FrequencyField(field)]
		p.errs = append(p.errs, domain.NewValidationError(prefix+".frequencies."+field, "is not recorded for this intervention", string(raw)))
	}
	return usage
}

// ParseRecordInput validates a submission and converts it to a typed record.
// Every invalid field is reported in a single domain.ValidationErrors.
// The returned record carries no ID and no stage.
func ParseRecordInput(in RecordInput) (*domain.ExamRecord, error) {
	p := &recordParser{}

	rec := &domain.ExamRecord{
		VisionLeft:            p.float("vision_left", in.VisionLeft, VisionBounds),
		VisionRight:           p.float("vision_right", in.VisionRight, VisionBounds),
		HyperopiaReserveLeft:  p.float("hyperopia_reserve_left", in.HyperopiaReserveLeft, HyperopiaReserveBounds),
		HyperopiaReserveRight: p.float("hyperopia_reserve_right", in.HyperopiaReserveRight, HyperopiaReserveBounds),
		AxialLengthLeft:       roundTo(p.float("axial_length_left", in.AxialLengthLeft, AxialLengthBounds), 2),
		AxialLengthRight:      roundTo(p.float("axial_length_right", in.AxialLengthRight, AxialLengthBounds), 2),
		RefractionLeft:        p.refraction("left", in.RefractionLeft),
		RefractionRight:       p.refraction("right", in.RefractionRight),
		PupillaryDistance:     p.float("pupillary_distance", in.PupillaryDistance, PupillaryDistanceBounds),
		Notes:                 strings.TrimSpace(in.Notes),
	}

	if strings.TrimSpace(in.Date) == "" {
		p.errs = append(p.errs, domain.NewValidationError("date", "examination date is required", in.Date))
	} else if d := p.date("date", in.Date); d != nil {
		rec.Date = *d
	}

	for key, value := range in.Measurements {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if rec.Measurements == nil {
			rec.Measurements = make(map[string]string)
		}
		rec.Measurements[key] = value
	}

	for _, def := range domain.Interventions() {
		usage, ok := in.Interventions[def.Kind]
		if !ok || !usage.InUse {
			continue
		}
		if rec.Interventions == nil {
			rec.Interventions = make(map[domain.InterventionKind]domain.InterventionUsage)
		}
		rec.Interventions[def.Kind] = p.intervention(def, usage)
	}
	var unknown []string
	for kind := range in.Interventions {
		if _, ok := domain.LookupIntervention(kind); !ok {
			unknown = append(unknown, string(kind))
		}
	}
	sort.Strings(unknown)
	for _, kind := range unknown {
		p.errs = append(p.errs, domain.NewValidationError("interventions."+kind, "unknown intervention kind", kind))
	}

	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return rec, nil
}

func roundTo(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r, err := stats.Round(*v, places)
	if err != nil {
		return v
	}
	return &r
}
