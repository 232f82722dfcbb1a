package evaluation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EvaluationResult represents the outcome for a single image
type EvaluationResult struct {
	ImageID        string           `yaml:"imageId"`
	Filename       string           `yaml:"filename,omitempty"`
	Proposals      int              `yaml:"proposals"`
	Truth          int              `yaml:"truth"`
	Comparison     *ImageComparison `yaml:"comparison,omitempty"`
	ProcessingTime time.Duration    `yaml:"processingTime"`
	Error          string           `yaml:"error,omitempty"` // If the model call failed
}

// CategoryStats are the totals for one category.
type CategoryStats struct {
	CategoryID string  `yaml:"categoryId"`
	Counts     Counts  `yaml:",inline"`
	Precision  float64 `yaml:"precision"`
	Recall     float64 `yaml:"recall"`
	F1         float64 `yaml:"f1"`
}

// AggregateResults represents aggregated evaluation metrics
type AggregateResults struct {
	TotalImages  int `yaml:"totalImages"`
	SuccessCount int `yaml:"successCount"`
	FailureCount int `yaml:"failureCount"`

	Counts     Counts          `yaml:",inline"`
	Precision  float64         `yaml:"precision"`
	Recall     float64         `yaml:"recall"`
	F1         float64         `yaml:"f1"`
	MeanIoU    float64         `yaml:"meanIoU"`
	Categories []CategoryStats `yaml:"categories"`

	AverageProcessingTime time.Duration `yaml:"averageProcessingTime"`
	TotalProcessingTime   time.Duration `yaml:"totalProcessingTime"`

	EvaluationDate time.Time          `yaml:"evaluationDate"`
	Provider       string             `yaml:"provider"`
	Model          string             `yaml:"model"`
	IoUThreshold   float64            `yaml:"iouThreshold"`
	Results        []EvaluationResult `yaml:"results"`
}

// Aggregate totals per-image results. Failed images count toward
// FailureCount only.
func Aggregate(results []EvaluationResult, provider, model string, threshold float64) *AggregateResults {
	agg := &AggregateResults{
		TotalImages:    len(results),
		Results:        results,
		EvaluationDate: time.Now(),
		Provider:       provider,
		Model:          model,
		IoUThreshold:   threshold,
	}

	byCategory := make(map[string]*Counts)
	var iouSum float64
	var matches int
	var successDuration time.Duration

	for _, result := range results {
		agg.TotalProcessingTime += result.ProcessingTime
		if result.Error != "" {
			agg.FailureCount++
			continue
		}
		agg.SuccessCount++
		successDuration += result.ProcessingTime

		if result.Comparison == nil {
			continue
		}
		agg.Counts.add(result.Comparison.Counts())
		for _, m := range result.Comparison.Matches {
			iouSum += m.IoU
			matches++
		}
		for id, c := range result.Comparison.ByCategory {
			if byCategory[id] == nil {
				byCategory[id] = &Counts{}
			}
			byCategory[id].add(c)
		}
	}

	agg.Precision = agg.Counts.Precision()
	agg.Recall = agg.Counts.Recall()
	agg.F1 = agg.Counts.F1()
	if matches > 0 {
		agg.MeanIoU = iouSum / float64(matches)
	}
	if agg.SuccessCount > 0 {
		agg.AverageProcessingTime = successDuration / time.Duration(agg.SuccessCount)
	}

	for id, c := range byCategory {
		agg.Categories = append(agg.Categories, CategoryStats{
			CategoryID: id,
			Counts:     *c,
			Precision:  c.Precision(),
			Recall:     c.Recall(),
			F1:         c.F1(),
		})
	}
	sort.Slice(agg.Categories, func(i, j int) bool {
		return agg.Categories[i].CategoryID < agg.Categories[j].CategoryID
	})
	return agg
}

// PrintSummary writes a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary(w io.Writer) {
	rule := strings.Repeat("=", 70)
	dash := strings.Repeat("-", 70)

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, "PRELABEL EVALUATION SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Provider: %s\n", a.Provider)
	fmt.Fprintf(w, "Model: %s\n", a.Model)
	fmt.Fprintf(w, "IoU Threshold: %.2f\n", a.IoUThreshold)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROCESSING STATISTICS")
	fmt.Fprintln(w, dash)
	fmt.Fprintf(w, "Total Images: %d\n", a.TotalImages)
	if a.TotalImages > 0 {
		fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", a.SuccessCount, float64(a.SuccessCount)/float64(a.TotalImages)*100)
		fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", a.FailureCount, float64(a.FailureCount)/float64(a.TotalImages)*100)
	}
	fmt.Fprintf(w, "Average Processing Time: %s\n", a.AverageProcessingTime)
	fmt.Fprintf(w, "Total Processing Time: %s\n", a.TotalProcessingTime)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PER-CATEGORY")
	fmt.Fprintln(w, dash)
	for _, c := range a.Categories {
		fmt.Fprintf(w, "%-20s P %.3f  R %.3f  F1 %.3f  (TP %d, FP %d, FN %d)\n",
			c.CategoryID, c.Precision, c.Recall, c.F1,
			c.Counts.TruePositives, c.Counts.FalsePositives, c.Counts.FalseNegatives)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OVERALL")
	fmt.Fprintln(w, dash)
	fmt.Fprintf(w, "Precision: %.3f\n", a.Precision)
	fmt.Fprintf(w, "Recall: %.3f\n", a.Recall)
	fmt.Fprintf(w, "F1: %.3f\n", a.F1)
	fmt.Fprintf(w, "Mean IoU: %.3f\n", a.MeanIoU)
	fmt.Fprintln(w, rule)
}

// SaveToYAML writes the full results to dir/<model>-<timestamp>.yaml and
// returns the file path.
func (a *AggregateResults) SaveToYAML(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	timestamp := a.EvaluationDate.Format("2006-01-02_15-04-05")
	name := strings.NewReplacer("/", "_", ":", "_").Replace(a.Model)
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", name, timestamp))

	data, err := yaml.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}
