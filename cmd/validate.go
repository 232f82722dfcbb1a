package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/yolo"
)

func newValidateCmd() *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "validate <dataset-dir>",
		Short: "Check YOLO label files for malformed lines",
		Long: `Scans labels/train and labels/val under the dataset directory and checks
every line of every .txt label file: five fields, an integer class id, and
center/size values inside [0, 1] that keep the box inside the image.`,
		Example: `  # Validate an exported dataset
  annotator validate ./exports/bridges

  # Keep a YAML report of the problems found
  annotator validate ./exports/bridges --report issues.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := yolo.ScanDataset(args[0])
			if err != nil {
				return err
			}

			for file, issues := range report.IssuesByFile() {
				slog.Warn("Invalid label file", "file", file, "issues", len(issues))
				for _, issue := range issues {
					fmt.Fprintln(cmd.OutOrStdout(), issue.String())
				}
			}

			if reportPath != "" {
				f, err := os.Create(reportPath)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				if err := report.WriteYAML(f); err != nil {
					return err
				}
				slog.Info("Wrote validation report", "path", reportPath)
			}

			slog.Info("Validation complete", "dataset", report.Dataset, "files", report.Files, "lines", report.Lines, "issues", len(report.Issues))
			if !report.Valid() {
				return fmt.Errorf("found %d invalid label lines", len(report.Issues))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML report to this file")

	return cmd
}
