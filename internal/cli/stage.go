package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

func (a *app) stageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Treatment stages",
		Long:  "The stage command manages the registry of treatment stages. Stages are never deleted; disable them instead.",
	}
	cmd.AddCommand(
		a.stageAddCommand(),
		a.stageListCommand(),
		a.stageToggleCommand("enable", true),
		a.stageToggleCommand("disable", false),
		a.stageEndCommand(),
		a.stageImportCommand(),
	)
	return cmd
}

func (a *app) stageAddCommand() *cobra.Command {
	var draft service.StageDraft
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if disabled {
				enabled := false
				draft.Enabled = &enabled
			}
			in, err := draft.Input()
			if err != nil {
				return err
			}
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				stage, err := tracker.Stages().CreateStage(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created stage %s %q (%s .. %s)\n",
					stage.ID, stage.Name, optionalDate(stage.StartDate), optionalDate(stage.EndDate))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&draft.Name, "name", "", "stage name")
	flags.StringVar(&draft.StartDate, "start", "", "start date (YYYY-MM-DD)")
	flags.StringVar(&draft.EndDate, "end", "", "end date (YYYY-MM-DD); omit for an open-ended stage")
	flags.StringVar(&draft.MainPlan, "plan", "", "main treatment plan")
	flags.StringVar(&draft.Goal, "goal", "", "stage goal")
	flags.StringVar(&draft.DoctorAdvice, "advice", "", "doctor advice")
	flags.StringVar(&draft.Memo, "memo", "", "memo")
	flags.BoolVar(&disabled, "disabled", false, "create the stage disabled")
	return cmd
}

func (a *app) stageListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stages in registry order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				stages, err := tracker.Stages().ListStages(ctx)
				if err != nil {
					return err
				}

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tENABLED\tPLAN")
				for _, s := range stages {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						s.ID, s.Name, optionalDate(s.StartDate), optionalDate(s.EndDate), yesNo(s.Enabled), s.MainPlan)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d stages\n", len(stages))
				return nil
			})
		},
	}
}

func (a *app) stageToggleCommand(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <stage-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				stage, err := tracker.Stages().SetEnabled(ctx, args[0], enabled)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stage %s enabled: %s\n", stage.ID, yesNo(stage.Enabled))
				return nil
			})
		},
	}
}

func (a *app) stageEndCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end <stage-id> <YYYY-MM-DD|none>",
		Short: "Set or clear the end date of a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var end *time.Time
			if !strings.EqualFold(args[1], "none") {
				parsed, err := domain.ParseDate(args[1])
				if err != nil {
					return domain.NewValidationError("end_date", err.Error(), args[1])
				}
				end = &parsed
			}

			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				stage, err := tracker.Stages().SetEndDate(ctx, args[0], end)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stage %s now ends: %s\n", stage.ID, optionalDate(stage.EndDate))
				return nil
			})
		},
	}
}

func (a *app) stageImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <stages.yaml>",
		Short: "Create stages from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open stage file: %w", err)
			}
			defer f.Close()

			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				created, err := tracker.Stages().ImportYAML(ctx, f)
				if err != nil {
					return err
				}
				for _, s := range created {
					fmt.Fprintf(cmd.OutOrStdout(), "Created stage %s %q\n", s.ID, s.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d stages\n", len(created))
				return nil
			})
		},
	}
}
