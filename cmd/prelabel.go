package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/images"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
)

func newPrelabelCmd(opts *rootOptions) *cobra.Command {
	var (
		provider      string
		model         string
		dataset       string
		index         int
		minConfidence float64
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "prelabel",
		Short: "Ask a vision model for draft boxes on an image",
		Long: `Sends one dataset image to a vision model together with the dataset's
categories and adds the returned boxes as draft annotations, then saves them.

Providers:
  ollama   local models (OLLAMA_HOST, OLLAMA_MODEL)
  openai   OpenAI API (OPENAI_API_KEY, OPENAI_MODEL)
  gemini   Google Gemini (GEMINI_API_KEY, GEMINI_MODEL)`,
		Example: `  # Draft boxes for the first image awaiting annotation
  annotator prelabel --dataset bridges

  # Preview what gemini would propose for the third image
  annotator prelabel --dataset bridges --image 2 --provider gemini --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if provider != "" {
				cfg.Provider = provider
			}
			if model != "" {
				cfg.Model = model
			}
			if dataset != "" {
				cfg.DatasetID = dataset
			}
			if cfg.DatasetID == "" {
				return fmt.Errorf("no dataset: pass --dataset or set ANNOTATOR_DATASET")
			}

			svc, err := prelabel.NewService(cfg.Provider, cfg.Model, images.NewFetcher(cfg.APIURL, cfg.Token))
			if err != nil {
				return err
			}
			svc.MinConfidence = minConfidence

			w := newWorkspace(cfg, nil)
			defer w.Close()
			if err := w.Open(cmd.Context()); err != nil {
				return err
			}
			if index != 0 {
				if !w.GoTo(index) {
					return fmt.Errorf("image index %d out of range (%d images)", index, len(w.Store().Images()))
				}
				if err := w.Reload(cmd.Context()); err != nil {
					return err
				}
			}
			img, ok := w.Store().CurrentImage()
			if !ok {
				return fmt.Errorf("dataset %s has no images awaiting annotation", cfg.DatasetID)
			}

			if dryRun {
				proposals, err := svc.Propose(cmd.Context(), img, w.Categories())
				if err != nil {
					return err
				}
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(proposals)
			}

			added, err := w.Prelabel(cmd.Context(), svc)
			if err != nil {
				return err
			}
			if added == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No boxes proposed for %s\n", img.ID)
				return nil
			}
			result, err := w.Save(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("Saved proposals", "image", img.ID, "saved", result.Saved, "failed", result.Failed)
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d draft boxes to %s\n", added, img.ID)
			if result.Failed > 0 {
				return fmt.Errorf("%d annotations failed to save", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Model provider: ollama, openai or gemini (defaults to ANNOTATOR_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to the provider default)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset id (defaults to ANNOTATOR_DATASET)")
	cmd.Flags().IntVar(&index, "image", 0, "Index of the image in the awaiting-annotation listing")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Drop proposals below this confidence")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print proposals without adding or saving them")

	return cmd
}
