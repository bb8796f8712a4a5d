package cmd

import (
	"fmt"
	"os"

	"github.com/extractify-ai/extractify/internal/app"
	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/session"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var (
		summarize bool
		analyze   bool
		region    []int
	)

	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Extract text from a single image",
		Long: `Runs OCR on one image file and prints the sanitized text. Optionally
crops a region first and prints a summary or analysis of the text.`,
		Example: `  # Print the text of a scan
  extractify extract receipt.jpg

  # Crop a region (x,y,width,height) and summarize it
  extractify extract page.png --region 40,80,600,400 --summary`,
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

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			img, err := imaging.Decode(f, cfg.MaxUploadBytes)
			f.Close()
			if err != nil {
				return err
			}

			sess := session.New(args[0])
			sess.SelectImage(img)
			if len(region) == 4 {
				_, err = sess.Crop(imaging.Region{X: region[0], Y: region[1], Width: region[2], Height: region[3]})
			} else if len(region) == 0 {
				_, err = sess.CropFull()
			} else {
				err = fmt.Errorf("--region needs four values, got %d", len(region))
			}
			if err != nil {
				return err
			}

			text, err := a.Service.ExtractText(cmd.Context(), sess)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, text)

			if summarize {
				res := a.Service.Summary(cmd.Context(), sess.State)
				if res.Err != nil {
					return res.Err
				}
				fmt.Fprintf(out, "\n## Summary\n\n%s\n", res.Text)
			}
			if analyze {
				res := a.Service.Answer(cmd.Context(), sess.State)
				if res.Err != nil {
					return res.Err
				}
				fmt.Fprintf(out, "\n## Analysis\n\n%s\n", res.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&summarize, "summary", false, "Also print a summary of the text")
	cmd.Flags().BoolVar(&analyze, "analysis", false, "Also print an analysis of the text")
	cmd.Flags().IntSliceVar(&region, "region", nil, "Crop region as x,y,width,height")

	return cmd
}
