package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/config"
	"github.com/lehigh-university-libraries/annotator/internal/images"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
	"github.com/lehigh-university-libraries/annotator/internal/remote"
	"github.com/lehigh-university-libraries/annotator/internal/script"
	"github.com/lehigh-university-libraries/annotator/internal/workspace"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run annotation sessions against a dataset backend",
	}
	cmd.AddCommand(newSessionRunCmd(opts))
	return cmd
}

func newSessionRunCmd(opts *rootOptions) *cobra.Command {
	var withModel bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a scripted annotation session",
		Long: `Opens the dataset named in the script (or the configured one), replays its
steps against the workspace and prints the final state as YAML.

Steps are key presses ("d", "Escape", "ctrl+z"), pointer drags and clicks in
viewport pixels, category and image selection, review, save and reload.`,
		Example: `  # Draw a box on the first image and save it
  annotator session run draw.yaml

  # Allow prelabel steps using the configured model provider
  annotator session run prelabel.yaml --model`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}
			cfg := opts.cfg
			if s.Dataset != "" {
				cfg.DatasetID = s.Dataset
			}
			if s.User != "" {
				cfg.UserID = s.User
			}
			s.Dataset = cfg.DatasetID
			if cfg.DatasetID == "" {
				return fmt.Errorf("no dataset: set it in the script or ANNOTATOR_DATASET")
			}

			w := newWorkspace(cfg, s.ConfirmFunc())
			defer w.Close()
			if err := w.Open(cmd.Context()); err != nil {
				return err
			}

			runner := &script.Runner{Workspace: w}
			if withModel {
				svc, err := prelabel.NewService(cfg.Provider, cfg.Model, images.NewFetcher(cfg.APIURL, cfg.Token))
				if err != nil {
					return err
				}
				runner.Proposer = svc
			}

			summary, runErr := runner.Run(cmd.Context(), s)
			if runErr != nil {
				slog.Error("Session stopped", "err", runErr, "completed", summary.Steps)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("failed to encode summary: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&withModel, "model", false, "Enable prelabel steps with the configured provider")

	return cmd
}

// newWorkspace builds a workspace against the configured backend.
func newWorkspace(cfg config.Config, confirm func(string) bool) *workspace.Workspace {
	client := remote.NewClient(cfg.APIURL, cfg.Token)
	return workspace.New(client, workspace.Config{
		DatasetID:    cfg.DatasetID,
		UserID:       cfg.UserID,
		PageSize:     cfg.PageSize,
		PollInterval: cfg.PollInterval,
		Debounce:     cfg.Debounce,
		CacheTTL:     cfg.CacheTTL,
		MaxHistory:   cfg.MaxHistory,
		Confirm:      confirm,
	})
}
