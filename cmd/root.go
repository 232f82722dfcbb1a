package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/config"
)

// rootOptions are the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "annotator",
		Short: "Bounding-box annotation workspace for object-detection datasets",
		Long: `Annotator edits bounding-box annotations for object-detection datasets.

It runs scripted annotation sessions against a dataset backend, serves an
in-memory reference backend, validates and exports YOLO labels, and can ask a
vision model for draft boxes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSessionCmd(opts))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newPrelabelCmd(opts))
	cmd.AddCommand(newEvaluateCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}
