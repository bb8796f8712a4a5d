package cmd

import (
	"fmt"
	"log/slog"

	"github.com/extractify-ai/extractify/internal/app"
	"github.com/extractify-ai/extractify/internal/batch"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var (
		output      string
		format      string
		concurrency int
		summarize   bool
		analyze     bool
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Extract text from every image in a directory",
		Long: `Runs OCR over every image directly inside a directory and writes one row
per image to a parquet file or a YAML report.`,
		Example: `  # Extract and summarize a folder of scans
  extractify batch ./scans --summary --output scans.parquet

  # Write a YAML report with four workers
  extractify batch ./scans --format yaml --output report.yaml --concurrency 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			paths, err := batch.Collect(args[0])
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no images found in %s", args[0])
			}
			slog.Info("Starting batch", "dir", args[0], "images", len(paths), "concurrency", concurrency)

			runner := &batch.Runner{
				Service:     a.Service,
				Concurrency: concurrency,
				MaxBytes:    cfg.MaxUploadBytes,
				Summarize:   summarize,
				Analyze:     analyze,
			}
			rows, err := runner.Run(cmd.Context(), paths)
			if err != nil {
				return err
			}

			report := batch.NewReport(cfg.Provider, cfg.Model, cfg.OCREngine, rows)
			if err := batch.SaveFile(output, format, report); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d images (%d succeeded, %d failed)\n",
				report.Stats.Total, report.Stats.Succeeded, report.Stats.Failed)
			fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "extractify.parquet", "Output file")
	cmd.Flags().StringVar(&format, "format", "parquet", "Output format: parquet or yaml")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "Images processed at once")
	cmd.Flags().BoolVar(&summarize, "summary", false, "Generate a summary for each image")
	cmd.Flags().BoolVar(&analyze, "analysis", false, "Generate an analysis for each image")

	return cmd
}
