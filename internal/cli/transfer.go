package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vision-stage-tracker/internal/report"
	"github.com/vision-stage-tracker/internal/service"
	"github.com/vision-stage-tracker/internal/storage"
)

func (a *app) exportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stages and records",
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	jsonCmd := &cobra.Command{
		Use:   "json",
		Short: "Export as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, store storage.Store) error {
				return writeOutput(cmd, output, func(w io.Writer) error {
					return store.ExportJSON(ctx, w)
				})
			})
		},
	}

	xlsxCmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Export the summary, records and stages as an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd, func(ctx context.Context, tracker *service.TrackerService) error {
				snap, err := tracker.Refresh(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd, output, func(w io.Writer) error {
					return report.WriteWorkbook(w, snap)
				})
			})
		},
	}

	cmd.AddCommand(jsonCmd, xlsxCmd)
	return cmd
}

func (a *app) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import stages and records",
	}

	jsonCmd := &cobra.Command{
		Use:   "json <export.json>",
		Short: "Import a JSON export; entries whose ID already exists are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			return a.withStore(cmd, func(ctx context.Context, store storage.Store) error {
				imported, skipped, err := store.ImportJSON(ctx, f)
				if err != nil {
					return err
				}
				// re-attach imported records to this registry
				if _, err := service.NewTrackerService(store, a.logger).Refresh(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}

	cmd.AddCommand(jsonCmd)
	return cmd
}

// writeOutput runs write against stdout or a newly created file
func writeOutput(cmd *cobra.Command, path string, write func(w io.Writer) error) error {
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}
