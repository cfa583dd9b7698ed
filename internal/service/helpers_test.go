package service

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"

	"github.com/vision-stage-tracker/internal/domain"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
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

func boolPtr(v bool) *bool { return &v }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func stage(id, name, start, end string, enabled bool) domain.Stage {
	s := domain.Stage{ID: id, Name: name, MainPlan: name + " plan", Enabled: enabled}
	if start != "" {
		s.StartDate = dayPtr(start)
	}
	if end != "" {
		s.EndDate = dayPtr(end)
	}
	return s
}

// memStore is an in-memory TrackerStore keeping registry order
type memStore struct {
	stages  []domain.Stage
	records []domain.ExamRecord

	assignmentWrites int
	failList         error
}

func (m *memStore) ListStages(ctx context.Context) ([]domain.Stage, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]domain.Stage, len(m.stages))
	copy(out, m.stages)
	return out, nil
}

func (m *memStore) GetStage(ctx context.Context, id string) (*domain.Stage, error) {
	for _, s := range m.stages {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("stage %s: %w", id, domain.ErrNotFound)
}

func (m *memStore) SaveStage(ctx context.Context, stage *domain.Stage) error {
	for i := range m.stages {
		if m.stages[i].ID == stage.ID {
			m.stages[i] = *stage
			return nil
		}
	}
	m.stages = append(m.stages, *stage)
	return nil
}

func (m *memStore) ListRecords(ctx context.Context) ([]domain.ExamRecord, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]domain.ExamRecord, len(m.records))
	copy(out, m.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) GetRecord(ctx context.Context, id string) (*domain.ExamRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
}

func (m *memStore) SaveRecord(ctx context.Context, record *domain.ExamRecord) error {
	for i := range m.records {
		if m.records[i].ID == record.ID {
			m.records[i] = *record
			return nil
		}
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memStore) SaveStageAssignments(ctx context.Context, records []domain.ExamRecord) error {
	m.assignmentWrites++
	for _, rec := range records {
		for i := range m.records {
			if m.records[i].ID == rec.ID {
				m.records[i].Stage = rec.Stage
			}
		}
	}
	return nil
}

func (m *memStore) DeleteRecord(ctx context.Context, id string) error {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// generator builds seeded random registries and records for property tests
type generator struct {
	fake  faker.Faker
	epoch time.Time
}

func newGenerator(seed int64) *generator {
	return &generator{
		fake:  faker.NewWithSeed(rand.NewSource(seed)),
		epoch: day("2023-01-01"),
	}
}

func (g *generator) date() time.Time {
	return g.epoch.AddDate(0, 0, g.fake.IntBetween(0, 720))
}

func (g *generator) stages(n int) []domain.Stage {
	stages := make([]domain.Stage, 0, n)
	for i := 0; i < n; i++ {
		s := domain.Stage{
			ID:      fmt.Sprintf("gen-%02d", i+1),
			Name:    fmt.Sprintf("%s-%d", g.fake.Lorem().Word(), i),
			Enabled: g.fake.IntBetween(0, 4) > 0,
		}
		if g.fake.IntBetween(0, 9) > 0 {
			start := g.date()
			s.StartDate = &start
			if g.fake.Bool() {
				end := start.AddDate(0, 0, g.fake.IntBetween(0, 240))
				s.EndDate = &end
			}
		}
		stages = append(stages, s)
	}
	return stages
}

func (g *generator) optional(lo, hi int, scale float64) *float64 {
	if g.fake.IntBetween(0, 3) == 0 {
		return nil
	}
	v := float64(g.fake.IntBetween(lo, hi)) / scale
	return &v
}

func (g *generator) records(n int) []domain.ExamRecord {
	records := make([]domain.ExamRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := domain.ExamRecord{
			ID:          fmt.Sprintf("rec-%03d", i),
			Date:        g.date(),
			VisionLeft:  g.optional(1, 20, 10),
			VisionRight: g.optional(1, 20, 10),
			RefractionLeft: domain.Refraction{
				SphericalEquivalent: g.optional(-600, 200, 100),
			},
			RefractionRight: domain.Refraction{
				SphericalEquivalent: g.optional(-600, 200, 100),
			},
			Interventions: map[domain.InterventionKind]domain.InterventionUsage{},
		}
		for _, def := range domain.Interventions() {
			if !g.fake.Bool() {
				continue
			}
			usage := domain.InterventionUsage{
				InUse:            g.fake.IntBetween(0, 2) > 0,
				AdherencePercent: g.optional(0, 100, 1),
				Frequencies:      map[domain.FrequencyField]float64{},
			}
			for _, spec := range def.Frequencies {
				if v := g.optional(int(spec.Min), int(spec.Max), 1); v != nil {
					usage.Frequencies[spec.Field] = *v
				}
			}
			rec.Interventions[def.Kind] = usage
		}
		records = append(records, rec)
	}
	return records
}
