package cmd

import (
	"log/slog"
	"os"

	"github.com/extractify-ai/extractify/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extractify",
		Short: "Extract text from images and summarize, analyze or chat about it",
		Long: `Extractify turns a photo or scan into text with OCR and sends the text to an
LLM for a structured summary, an analysis, or a question-and-answer chat.

Run "extractify serve" for the web interface, or use "extract" and "batch"
to process files from the command line.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("EXTRACTIFY_CONFIG"), "Path to a YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newBatchCmd())

	return cmd
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}
