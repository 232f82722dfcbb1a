package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/annotator/internal/config"
	"github.com/lehigh-university-libraries/annotator/internal/export"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/remote"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
	"github.com/lehigh-university-libraries/annotator/internal/yolo"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		out      string
		seed     string
		dataset  string
		valEvery int
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a dataset's annotations",
		Long: `Exports categories and annotations of a dataset.

Formats:
  yolo     labels/{train,val}/<image>.txt plus data.yaml under --out
  parquet  one row per annotation
  xlsx     review workbook with an annotation sheet and a summary sheet
  yaml     images with their annotations and per-category counts

The dataset is read from a seed file when --seed is given, otherwise from the
configured backend. The backend only lists images still awaiting annotation.`,
		Example: `  # YOLO labels from a seed file, every 5th image in val
  annotator export --seed datasets.yaml --dataset bridges --format yolo --out ./exports/bridges --val-every 5

  # Review workbook from the running backend
  annotator export --dataset bridges --format xlsx --out review.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			cfg := opts.cfg
			if dataset != "" {
				cfg.DatasetID = dataset
			}
			if cfg.DatasetID == "" {
				return fmt.Errorf("no dataset: pass --dataset or set ANNOTATOR_DATASET")
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

			if strings.EqualFold(format, "yolo") {
				result, err := yolo.Export(out, ds.Images, ds.Categories, ds.Annotations, yolo.ExportOptions{ValEvery: valEvery})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d label files with %d boxes to %s (%d skipped)\n", result.Files, result.Lines, out, result.Skipped)
				return nil
			}

			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := export.Write(f, out, ds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d annotations on %d images to %s\n", len(ds.Annotations), len(ds.Images), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yolo", "Export format: yolo, parquet, xlsx or yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (yolo) or file")
	cmd.Flags().StringVar(&seed, "seed", "", "Read the dataset from this seed file instead of the backend")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset id (defaults to ANNOTATOR_DATASET)")
	cmd.Flags().IntVar(&valEvery, "val-every", 0, "Put every Nth image in the val split (yolo)")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent annotation requests against the backend")

	return cmd
}

func datasetFromSeed(path, datasetID string) (export.Dataset, error) {
	store := storage.New()
	if err := store.LoadSeedFile(path); err != nil {
		return export.Dataset{}, err
	}
	imgs, err := store.Images(datasetID)
	if err != nil {
		return export.Dataset{}, err
	}
	cats, err := store.Categories(datasetID)
	if err != nil {
		return export.Dataset{}, err
	}
	anns, err := store.Annotations(datasetID, "")
	if err != nil {
		return export.Dataset{}, err
	}
	return export.Dataset{ID: datasetID, Images: imgs, Categories: cats, Annotations: anns}, nil
}

// datasetFromBackend pulls images and categories, then each image's
// annotations with at most workers requests in flight.
func datasetFromBackend(ctx context.Context, cfg config.Config, workers int) (export.Dataset, error) {
	client := remote.NewClient(cfg.APIURL, cfg.Token)
	imgs, err := client.ListAllImages(ctx, cfg.DatasetID, cfg.PageSize)
	if err != nil {
		return export.Dataset{}, err
	}
	cats, err := client.ListCategories(ctx, cfg.DatasetID)
	if err != nil {
		return export.Dataset{}, err
	}

	perImage := make([][]models.Annotation, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, img := range imgs {
		g.Go(func() error {
			anns, err := client.ListAnnotations(gctx, cfg.DatasetID, img.ID)
			if err != nil {
				return fmt.Errorf("failed to load annotations for %s: %w", img.ID, err)
			}
			perImage[i] = anns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return export.Dataset{}, err
	}

	var anns []models.Annotation
	for _, a := range perImage {
		anns = append(anns, a...)
	}
	slog.Info("Fetched dataset", "dataset", cfg.DatasetID, "images", len(imgs), "annotations", len(anns))
	return export.Dataset{ID: cfg.DatasetID, Images: imgs, Categories: cats, Annotations: anns}, nil
}
