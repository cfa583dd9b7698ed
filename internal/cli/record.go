package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

func (a *app) recordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Examination records",
		Long:  "The record command adds, lists and deletes examination records. Stages are attached automatically from the record date.",
	}
	cmd.AddCommand(
		a.recordAddCommand(),
		a.recordListCommand(),
		a.recordDeleteCommand(),
	)
	return cmd
}

// recordFlags holds the quick-entry flags of record add
type recordFlags struct {
	file        string
	date        string
	visionLeft  string
	visionRight string
	seLeft      string
	seRight     string
	axialLeft   string
	axialRight  string
	notes       string
	using       []string
	adherence   map[string]string
}

func (f *recordFlags) input() (service.RecordInput, error) {
	in := service.RecordInput{
		Date:             f.date,
		VisionLeft:       service.NumericInput(f.visionLeft),
		VisionRight:      service.NumericInput(f.visionRight),
		AxialLengthLeft:  service.NumericInput(f.axialLeft),
		AxialLengthRight: service.NumericInput(f.axialRight),
		RefractionLeft:   service.RefractionInput{SphericalEquivalent: service.NumericInput(f.seLeft)},
		RefractionRight:  service.RefractionInput{SphericalEquivalent: service.NumericInput(f.seRight)},
		Notes:            f.notes,
	}

	for _, kind := range f.using {
		if in.Interventions == nil {
			in.Interventions = make(map[domain.InterventionKind]service.InterventionInput)
		}
		in.Interventions[domain.InterventionKind(kind)] = service.InterventionInput{InUse: true}
	}
	for kind, pct := range f.adherence {
		usage, ok := in.Interventions[domain.InterventionKind(kind)]
		if !ok {
			return in, fmt.Errorf("--adherence %s requires --using %s", kind, kind)
		}
		usage.AdherencePercent = service.NumericInput(pct)
		in.Interventions[domain.InterventionKind(kind)] = usage
	}
	return in, nil
}

func readRecordFile(path string) (service.RecordInput, error) {
	var in service.RecordInput

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, fmt.Errorf("failed to open record file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return in, fmt.Errorf("failed to decode record file: %w", err)
	}
	return in, nil
}

func (a *app) recordAddCommand() *cobra.Command {
	f := &recordFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an examination record",
		Long:  "Add an examination record from flags, or from a JSON file with --file (use - for stdin) for the full set of fields.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in service.RecordInput
			var err error
			if f.file != "" {
				in, err = readRecordFile(f.file)
			} else {
				in, err = f.input()
			}
			if err != nil {
				return err
			}

			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				rec, err := tracker.AddRecord(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added record %s dated %s in stage %q\n",
					rec.ID, domain.FormatDate(rec.Date), rec.Stage.Name)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "JSON record file, - for stdin")
	flags.StringVar(&f.date, "date", "", "examination date (YYYY-MM-DD)")
	flags.StringVar(&f.visionLeft, "vision-left", "", "left eye visual acuity")
	flags.StringVar(&f.visionRight, "vision-right", "", "right eye visual acuity")
	flags.StringVar(&f.seLeft, "se-left", "", "left eye spherical equivalent")
	flags.StringVar(&f.seRight, "se-right", "", "right eye spherical equivalent")
	flags.StringVar(&f.axialLeft, "axial-left", "", "left eye axial length (mm)")
	flags.StringVar(&f.axialRight, "axial-right", "", "right eye axial length (mm)")
	flags.StringVar(&f.notes, "notes", "", "free-text notes")
	flags.StringSliceVar(&f.using, "using", nil, "intervention kinds in use, e.g. atropine,myopia_control_lenses")
	flags.StringToStringVar(&f.adherence, "adherence", nil, "adherence percent per kind, e.g. atropine=90")
	return cmd
}

func (a *app) recordListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List records with their current stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				snap, err := tracker.Refresh(ctx)
				if err != nil {
					return err
				}

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tDATE\tSTAGE\tVISION L/R\tSE L/R\tINTERVENTIONS")
				for i := range snap.Records {
					rec := &snap.Records[i]
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%s/%s\t%s\n",
						rec.ID, domain.FormatDate(rec.Date), rec.Stage.Name,
						optional(rec.VisionLeft), optional(rec.VisionRight),
						optional(rec.RefractionLeft.SphericalEquivalent), optional(rec.RefractionRight.SphericalEquivalent),
						service.InterventionTag(rec))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d records\n", len(snap.Records))
				return nil
			})
		},
	}
}

func (a *app) recordDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				if err := tracker.DeleteRecord(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %s\n", args[0])
				return nil
			})
		},
	}
}
