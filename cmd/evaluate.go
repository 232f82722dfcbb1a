package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/annotator/internal/evaluation"
	"github.com/lehigh-university-libraries/annotator/internal/export"
	"github.com/lehigh-university-libraries/annotator/internal/images"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		provider  string
		model     string
		dataset   string
		seed      string
		states    []string
		sample    int
		threshold float64
		workers   int
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score prelabel proposals against reviewed annotations",
		Long: `Runs the prelabel model over images that already carry reviewed boxes and
compares its proposals with them. A proposal is a hit when it has the same
category as an unmatched annotation and overlaps it by at least the IoU
threshold. Precision, recall, F1 and mean IoU are reported overall and per
category, and the full results are written as YAML under --out.`,
		Example: `  # Evaluate the default ollama model on 20 approved images from a seed file
  annotator evaluate --seed datasets.yaml --dataset bridges --sample 20

  # Compare gemini with a stricter overlap requirement
  annotator evaluate --seed datasets.yaml --dataset bridges --provider gemini --iou 0.7`,
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
			truthStates := make([]models.ReviewState, 0, len(states))
			for _, s := range states {
				st, err := models.ParseReviewState(s)
				if err != nil {
					return err
				}
				truthStates = append(truthStates, st)
			}

			var (
				ds  export.Dataset
				err error
			)
			if seed != "" {
				ds, err = datasetFromSeed(seed, cfg.DatasetID)
			} else {
				ds, err = datasetFromBackend(cmd.Context(), cfg, workers)
			}
			if err != nil {
				return err
			}

			truth := lo.GroupBy(
				lo.Filter(ds.Annotations, func(a models.Annotation, _ int) bool {
					return lo.Contains(truthStates, a.State)
				}),
				func(a models.Annotation) string { return a.ImageID },
			)
			imgs := lo.Filter(ds.Images, func(img models.Image, _ int) bool { return len(truth[img.ID]) > 0 })
			if sample > 0 && len(imgs) > sample {
				imgs = imgs[:sample]
			}
			if len(imgs) == 0 {
				return fmt.Errorf("dataset %s has no images with %v annotations", cfg.DatasetID, states)
			}

			svc, err := prelabel.NewService(cfg.Provider, cfg.Model, images.NewFetcher(cfg.APIURL, cfg.Token))
			if err != nil {
				return err
			}
			slog.Info("Evaluating prelabel model", "provider", cfg.Provider, "model", svc.Config.Model, "images", len(imgs))

			results := make([]evaluation.EvaluationResult, len(imgs))
			g, gctx := errgroup.WithContext(cmd.Context())
			if workers > 0 {
				g.SetLimit(workers)
			}
			for i, img := range imgs {
				g.Go(func() error {
					start := time.Now()
					result := evaluation.EvaluationResult{
						ImageID:  img.ID,
						Filename: img.Filename,
						Truth:    len(truth[img.ID]),
					}
					proposals, err := svc.Propose(gctx, img, ds.Categories)
					result.ProcessingTime = time.Since(start)
					if err != nil {
						slog.Warn("Prelabel failed", "image", img.ID, "err", err)
						result.Error = err.Error()
					} else {
						comparison := evaluation.Compare(proposals, truth[img.ID], threshold)
						result.Proposals = len(proposals)
						result.Comparison = &comparison
					}
					results[i] = result
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			agg := evaluation.Aggregate(results, cfg.Provider, svc.Config.Model, threshold)
			agg.PrintSummary(cmd.OutOrStdout())
			path, err := agg.SaveToYAML(outDir)
			if err != nil {
				return err
			}
			slog.Info("Evaluation results saved", "path", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Model provider: ollama, openai or gemini (defaults to ANNOTATOR_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to the provider default)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset id (defaults to ANNOTATOR_DATASET)")
	cmd.Flags().StringVar(&seed, "seed", "", "Read the dataset from this seed file instead of the backend")
	cmd.Flags().StringSliceVar(&states, "states", []string{"approved"}, "Review states that count as ground truth")
	cmd.Flags().IntVar(&sample, "sample", 0, "Evaluate at most this many images (0 for all)")
	cmd.Flags().Float64Var(&threshold, "iou", evaluation.DefaultIoUThreshold, "Minimum IoU for a proposal to count as a hit")
	cmd.Flags().IntVar(&workers, "workers", 2, "Concurrent model requests")
	cmd.Flags().StringVar(&outDir, "out", "evals", "Directory for the YAML results")

	return cmd
}
