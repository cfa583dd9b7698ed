package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

func (a *app) summaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize interventions per stage",
		Long:  "Re-resolve every record against the current stage registry and print one row per stage and intervention in use.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				rows, err := tracker.Summary(ctx)
				if err != nil {
					return err
				}

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "STAGE\tINTERVENTION\tRECORDS\tADHERENCE %\tFREQUENCY\tACUITY\tSE")
				for _, row := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
						row.Stage, row.KindLabel, row.RecordCount,
						optional(row.MeanAdherence), frequencyColumn(row.FrequencyMeans),
						optional(row.MeanAcuity), optional(row.MeanSphericalEquivalent))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d summary rows\n", len(rows))
				return nil
			})
		},
	}
}

func frequencyColumn(means []domain.FrequencyMean) string {
	parts := make([]string, 0, len(means))
	for _, m := range means {
		parts = append(parts, fmt.Sprintf("%s=%s", m.Field, optional(m.Mean)))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
