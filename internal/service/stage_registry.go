package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vision-stage-tracker/internal/domain"
)

// StageStore is the persistence the stage registry needs
type StageStore interface {
	ListStages(ctx context.Context) ([]domain.Stage, error)
	GetStage(ctx context.Context, id string) (*domain.Stage, error)
	SaveStage(ctx context.Context, stage *domain.Stage) error
}

// StageInput carries operator-supplied fields for a new stage.
// Enabled defaults to true when omitted.
type StageInput struct {
	Name         string     `json:"name"`
	MainPlan     string     `json:"main_plan,omitempty"`
	Goal         string     `json:"goal,omitempty"`
	DoctorAdvice string     `json:"doctor_advice,omitempty"`
	Memo         string     `json:"memo,omitempty"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Enabled      *bool      `json:"enabled,omitempty"`
}

// StageRegistry manages the lifecycle of treatment stages. Stages are created,
// toggled and have their end date edited; they are never deleted.
type StageRegistry struct {
	store  StageStore
	logger *logrus.Logger
}

// NewStageRegistry creates a new stage registry service
func NewStageRegistry(store StageStore, logger *logrus.Logger) *StageRegistry {
	return &StageRegistry{
		store:  store,
		logger: logger,
	}
}

// NextStageID derives the ID for a stage starting on start: the start date as
// YYYYMMDD followed by a two-digit sequence of stages already sharing that prefix.
func NextStageID(existing []domain.Stage, start time.Time) string {
	prefix := start.Format("20060102")
	taken := make(map[string]bool, len(existing))
	count := 0
	for _, s := range existing {
		taken[s.ID] = true
		if strings.HasPrefix(s.ID, prefix) {
			count++
		}
	}

	seq := count + 1
	id := fmt.Sprintf("%s-%02d", prefix, seq)
	// imported registries can leave gaps that collide with the count
	for taken[id] {
		seq++
		id = fmt.Sprintf("%s-%02d", prefix, seq)
	}
	return id
}

// ValidateStageInput checks the operator fields of a new stage
func ValidateStageInput(in StageInput) error {
	var errs domain.ValidationErrors
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, domain.NewValidationError("name", "stage name is required", in.Name))
	}
	if in.StartDate == nil {
		errs = append(errs, domain.NewValidationError("start_date", "start date is required", nil))
	}
	if in.StartDate != nil && in.EndDate != nil && domain.NormalizeDate(*in.EndDate).Before(domain.NormalizeDate(*in.StartDate)) {
		errs = append(errs, domain.NewValidationError("end_date", "end date must not be before start date", domain.FormatDate(*in.EndDate)))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateStage validates in, assigns an ID and persists the new stage
func (r *StageRegistry) CreateStage(ctx context.Context, in StageInput) (*domain.Stage, error) {
	if err := ValidateStageInput(in); err != nil {
		return nil, fmt.Errorf("invalid stage: %w", err)
	}

	existing, err := r.store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}

	start := domain.NormalizeDate(*in.StartDate)
	stage := &domain.Stage{
		ID:           NextStageID(existing, start),
		Name:         strings.TrimSpace(in.Name),
		MainPlan:     strings.TrimSpace(in.MainPlan),
		Goal:         strings.TrimSpace(in.Goal),
		DoctorAdvice: strings.TrimSpace(in.DoctorAdvice),
		Memo:         strings.TrimSpace(in.Memo),
		StartDate:    &start,
		Enabled:      in.Enabled == nil || *in.Enabled,
		CreatedAt:    time.Now().UTC(),
	}
	if in.EndDate != nil {
		end := domain.NormalizeDate(*in.EndDate)
		stage.EndDate = &end
	}

	if err := r.store.SaveStage(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to save stage: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"stage_id":   stage.ID,
		"stage_name": stage.Name,
		"start_date": domain.FormatDate(start),
		"end_date":   domain.FormatOptionalDate(stage.EndDate),
	}).Info("Stage created")

	return stage, nil
}

// SetEnabled enables or disables a stage
func (r *StageRegistry) SetEnabled(ctx context.Context, id string, enabled bool) (*domain.Stage, error) {
	stage, err := r.store.GetStage(ctx, id)
	if err != nil {
		return nil, err
	}

	stage.Enabled = enabled
	if err := r.store.SaveStage(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to save stage: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"stage_id": id,
		"enabled":  enabled,
	}).Info("Stage toggled")

	return stage, nil
}

// SetEndDate edits the end date of a stage. A nil end makes the stage open-ended.
func (r *StageRegistry) SetEndDate(ctx context.Context, id string, end *time.Time) (*domain.Stage, error) {
	stage, err := r.store.GetStage(ctx, id)
	if err != nil {
		return nil, err
	}

	if end == nil {
		stage.EndDate = nil
	} else {
		normalized := domain.NormalizeDate(*end)
		if stage.StartDate != nil && normalized.Before(domain.NormalizeDate(*stage.StartDate)) {
			return nil, domain.NewValidationError("end_date", "end date must not be before start date", domain.FormatDate(normalized))
		}
		stage.EndDate = &normalized
	}

	if err := r.store.SaveStage(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to save stage: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"stage_id": id,
		"end_date": domain.FormatOptionalDate(stage.EndDate),
	}).Info("Stage end date updated")

	return stage, nil
}

// ListStages returns the registry in creation order
func (r *StageRegistry) ListStages(ctx context.Context) ([]domain.Stage, error) {
	stages, err := r.store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return stages, nil
}

// stageSeedFile is the YAML layout accepted by ImportYAML
type stageSeedFile struct {
	Stages []StageDraft `yaml:"stages"`
}

// StageDraft is a stage as typed by an operator, with dates as YYYY-MM-DD text.
// It is the shape of YAML seed entries and of API and tool requests.
type StageDraft struct {
	Name         string `json:"name" yaml:"name"`
	StartDate    string `json:"start_date" yaml:"start_date"`
	EndDate      string `json:"end_date,omitempty" yaml:"end_date"`
	MainPlan     string `json:"main_plan,omitempty" yaml:"main_plan"`
	Goal         string `json:"goal,omitempty" yaml:"goal"`
	DoctorAdvice string `json:"doctor_advice,omitempty" yaml:"doctor_advice"`
	Memo         string `json:"memo,omitempty" yaml:"memo"`
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled"`
}

// ImportYAML creates the stages listed in a YAML document of the form
//
//	stages:
//	  - name: Atropine 0.01%
//	    start_date: 2024-01-01
//	    end_date: 2024-06-30
//
// Every entry is validated before any stage is created.
func (r *StageRegistry) ImportYAML(ctx context.Context, reader io.Reader) ([]domain.Stage, error) {
	var file stageSeedFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if err == io.EOF {
			return []domain.Stage{}, nil
		}
		return nil, fmt.Errorf("failed to decode stage file: %w", err)
	}

	inputs := make([]StageInput, 0, len(file.Stages))
	for i, draft := range file.Stages {
		in, err := draft.Input()
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if err := ValidateStageInput(in); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		inputs = append(inputs, in)
	}

	created := make([]domain.Stage, 0, len(inputs))
	for _, in := range inputs {
		stage, err := r.CreateStage(ctx, in)
		if err != nil {
			return created, err
		}
		created = append(created, *stage)
	}

	r.logger.WithField("stage_count", len(created)).Info("Stages imported")
	return created, nil
}

// Input parses the draft's dates. Field presence and ordering are checked
// later by ValidateStageInput.
func (s StageDraft) Input() (StageInput, error) {
	in := StageInput{
		Name:         s.Name,
		MainPlan:     s.MainPlan,
		Goal:         s.Goal,
		DoctorAdvice: s.DoctorAdvice,
		Memo:         s.Memo,
		Enabled:      s.Enabled,
	}
	if strings.TrimSpace(s.StartDate) != "" {
		start, err := domain.ParseDate(s.StartDate)
		if err != nil {
			return in, domain.NewValidationError("start_date", err.Error(), s.StartDate)
		}
		in.StartDate = &start
	}
	if strings.TrimSpace(s.EndDate) != "" {
		end, err := domain.ParseDate(s.EndDate)
		if err != nil {
			return in, domain.NewValidationError("end_date", err.Error(), s.EndDate)
		}
		in.EndDate = &end
	}
	return in, nil
}
