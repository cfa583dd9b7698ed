// Package report renders a tracker snapshot as an Excel workbook.
package report

import (
	"fmt"
	"io"

	"github.com/tealeg/xlsx/v3"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

const (
	SheetNameSummary = "Summary"
	SheetNameRecords = "Records"
	SheetNameStages  = "Stages"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook builds the export of one snapshot
type Workbook struct {
	snapshot *service.Snapshot
}

// NewWorkbook creates a workbook builder for snap
func NewWorkbook(snap *service.Snapshot) Workbook {
	return Workbook{snapshot: snap}
}

// BuildWorkbook renders snap as an xlsx file
func BuildWorkbook(snap *service.Snapshot) (*xlsx.File, error) {
	return NewWorkbook(snap).Generate()
}

// WriteWorkbook renders snap and writes it to w
func WriteWorkbook(w io.Writer, snap *service.Snapshot) error {
	file, err := BuildWorkbook(snap)
	if err != nil {
		return err
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Generate builds every sheet
func (b Workbook) Generate() (*xlsx.File, error) {
	if b.snapshot == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	file := xlsx.NewFile()

	components := []func(file *xlsx.File) error{
		b.addSummarySheet,
		b.addRecordsSheet,
		b.addStagesSheet,
	}
	for _, fn := range components {
		if err := fn(file); err != nil {
			return nil, err
		}
	}

	return file, nil
}

func (b Workbook) addSummarySheet(file *xlsx.File) error {
	sh, err := file.AddSheet(SheetNameSummary)
	if err != nil {
		return err
	}

	addHeader(sh, "Stage", "Intervention", "Records", "Mean adherence %", "Frequency means", "Mean acuity", "Mean SE")

	for _, row := range b.snapshot.Summary {
		r := sh.AddRow()
		r.AddCell().SetString(row.Stage)
		r.AddCell().SetString(row.KindLabel)
		r.AddCell().SetInt(row.RecordCount)
		addOptionalFloat(r, row.MeanAdherence)
		r.AddCell().SetString(frequencyText(row.FrequencyMeans))
		addOptionalFloat(r, row.MeanAcuity)
		addOptionalFloat(r, row.MeanSphericalEquivalent)
	}
	return nil
}

func (b Workbook) addRecordsSheet(file *xlsx.File) error {
	sh, err := file.AddSheet(SheetNameRecords)
	if err != nil {
		return err
	}

	addHeader(sh, "Date", "Stage", "Plan",
		"Vision L", "Vision R", "SE L", "SE R",
		"Hyperopia reserve L", "Hyperopia reserve R",
		"Axial length L", "Axial length R", "Interventions", "Notes")

	for i := range b.snapshot.Records {
		rec := &b.snapshot.Records[i]
		r := sh.AddRow()
		r.AddCell().SetString(domain.FormatDate(rec.Date))
		r.AddCell().SetString(rec.Stage.Name)
		r.AddCell().SetString(rec.Stage.MainPlan)
		addOptionalFloat(r, rec.VisionLeft)
		addOptionalFloat(r, rec.VisionRight)
		addOptionalFloat(r, rec.RefractionLeft.SphericalEquivalent)
		addOptionalFloat(r, rec.RefractionRight.SphericalEquivalent)
		addOptionalFloat(r, rec.HyperopiaReserveLeft)
		addOptionalFloat(r, rec.HyperopiaReserveRight)
		addOptionalFloat(r, rec.AxialLengthLeft)
		addOptionalFloat(r, rec.AxialLengthRight)
		r.AddCell().SetString(service.InterventionTag(rec))
		r.AddCell().SetString(rec.Notes)
	}
	return nil
}

func (b Workbook) addStagesSheet(file *xlsx.File) error {
	sh, err := file.AddSheet(SheetNameStages)
	if err != nil {
		return err
	}

	addHeader(sh, "ID", "Name", "Start", "End", "Enabled", "Main plan", "Goal", "Doctor advice", "Memo")

	for i := range b.snapshot.Stages {
		s := &b.snapshot.Stages[i]
		r := sh.AddRow()
		r.AddCell().SetString(s.ID)
		r.AddCell().SetString(s.Name)
		r.AddCell().SetString(domain.FormatOptionalDate(s.StartDate))
		r.AddCell().SetString(domain.FormatOptionalDate(s.EndDate))
		r.AddCell().SetBool(s.Enabled)
		r.AddCell().SetString(s.MainPlan)
		r.AddCell().SetString(s.Goal)
		r.AddCell().SetString(s.DoctorAdvice)
		r.AddCell().SetString(s.Memo)
	}
	return nil
}

func addHeader(sh *xlsx.Sheet, titles ...string) {
	r := sh.AddRow()
	for _, title := range titles {
		r.AddCell().SetString(title)
	}
}

// addOptionalFloat appends a numeric cell, or a blank one for a missing value
func addOptionalFloat(r *xlsx.Row, v *float64) {
	cell := r.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

func frequencyText(means []domain.FrequencyMean) string {
	text := ""
	for _, m := range means {
		if m.Mean == nil {
			continue
		}
		if text != "" {
			text += "; "
		}
		text += fmt.Sprintf("%s %.2f", m.Label, *m.Mean)
	}
	return text
}
