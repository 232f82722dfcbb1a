package evaluation

import (
	"bytes"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b models.BBox
		want float64
	}{
		{"identical", models.BBox{0.1, 0.1, 0.2, 0.2}, models.BBox{0.1, 0.1, 0.2, 0.2}, 1},
		{"disjoint", models.BBox{0, 0, 0.1, 0.1}, models.BBox{0.5, 0.5, 0.1, 0.1}, 0},
		{"touching edges", models.BBox{0, 0, 0.1, 0.1}, models.BBox{0.1, 0, 0.1, 0.1}, 0},
		{"half overlap", models.BBox{0, 0, 0.2, 0.2}, models.BBox{0.1, 0, 0.2, 0.2}, 0.02 / 0.06},
		{"contained", models.BBox{0, 0, 0.4, 0.4}, models.BBox{0.1, 0.1, 0.2, 0.2}, 0.25},
		{"zero area", models.BBox{0.1, 0.1, 0, 0}, models.BBox{0.1, 0.1, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IoU(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if got := IoU(tt.b, tt.a); !almostEqual(got, tt.want) {
				t.Errorf("Expected symmetric %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	truth := []models.Annotation{
		{ID: "t1", CategoryID: "crack", BBox: models.BBox{0.1, 0.1, 0.2, 0.2}},
		{ID: "t2", CategoryID: "crack", BBox: models.BBox{0.6, 0.6, 0.2, 0.2}},
		{ID: "t3", CategoryID: "spall", BBox: models.BBox{0.4, 0.1, 0.1, 0.1}},
	}
	proposals := []prelabel.Proposal{
		{CategoryID: "crack", BBox: models.BBox{0.11, 0.1, 0.2, 0.2}},
		{CategoryID: "crack", BBox: models.BBox{0.1, 0.1, 0.2, 0.2}},
		{CategoryID: "spall", BBox: models.BBox{0.6, 0.6, 0.2, 0.2}},
		{CategoryID: "spall", BBox: models.BBox{0.4, 0.1, 0.1, 0.1}},
	}

	c := Compare(proposals, truth, 0.5)
	if c.TruePositives != 2 || c.FalsePositives != 2 || c.FalseNegatives != 1 {
		t.Fatalf("Expected TP=2 FP=2 FN=1, got %+v", c.Counts())
	}
	if c.Matches[0].Proposal != 1 || c.Matches[0].AnnotationID != "t1" || !almostEqual(c.Matches[0].IoU, 1) {
		t.Errorf("Expected exact proposal to win t1, got %+v", c.Matches[0])
	}
	if len(c.Missed) != 1 || c.Missed[0] != "t2" {
		t.Errorf("Expected t2 missed across categories, got %v", c.Missed)
	}
	if got := c.ByCategory["crack"]; got != (Counts{TruePositives: 1, FalsePositives: 1, FalseNegatives: 1}) {
		t.Errorf("Unexpected crack counts %+v", got)
	}
	if got := c.ByCategory["spall"]; got != (Counts{TruePositives: 1, FalsePositives: 1}) {
		t.Errorf("Unexpected spall counts %+v", got)
	}
}

func TestCompareEmpty(t *testing.T) {
	c := Compare(nil, nil, 0)
	if c.Counts() != (Counts{}) || c.MeanIoU() != 0 {
		t.Errorf("Expected empty comparison, got %+v", c)
	}

	c = Compare(nil, []models.Annotation{{ID: "t1", CategoryID: "crack"}}, 0)
	if c.FalseNegatives != 1 || c.Counts().Recall() != 0 {
		t.Errorf("Expected one miss, got %+v", c)
	}
}

func TestCountsRatios(t *testing.T) {
	c := Counts{TruePositives: 3, FalsePositives: 1, FalseNegatives: 3}
	if !almostEqual(c.Precision(), 0.75) {
		t.Errorf("Expected precision 0.75, got %v", c.Precision())
	}
	if !almostEqual(c.Recall(), 0.5) {
		t.Errorf("Expected recall 0.5, got %v", c.Recall())
	}
	if !almostEqual(c.F1(), 0.6) {
		t.Errorf("Expected F1 0.6, got %v", c.F1())
	}
	if (Counts{}).F1() != 0 {
		t.Error("Expected zero F1 for empty counts")
	}
}

func TestAggregate(t *testing.T) {
	results := []EvaluationResult{
		{
			ImageID:        "img-1",
			ProcessingTime: 4 * time.Second,
			Comparison: &ImageComparison{
				TruePositives: 2, FalsePositives: 1, FalseNegatives: 0,
				Matches:    []BoxMatch{{IoU: 0.9, CategoryID: "crack"}, {IoU: 0.7, CategoryID: "spall"}},
				ByCategory: map[string]Counts{"crack": {TruePositives: 1, FalsePositives: 1}, "spall": {TruePositives: 1}},
			},
		},
		{
			ImageID:        "img-2",
			ProcessingTime: 2 * time.Second,
			Comparison: &ImageComparison{
				TruePositives: 1, FalseNegatives: 1,
				Matches:    []BoxMatch{{IoU: 0.5, CategoryID: "crack"}},
				ByCategory: map[string]Counts{"crack": {TruePositives: 1, FalseNegatives: 1}},
			},
		},
		{
			ImageID:        "img-3",
			Error:          "model timed out",
			ProcessingTime: time.Second,
		},
	}

	agg := Aggregate(results, "ollama", "qwen2.5vl:7b", 0.5)

	if agg.TotalImages != 3 || agg.SuccessCount != 2 || agg.FailureCount != 1 {
		t.Errorf("Expected 3/2/1 images, got %d/%d/%d", agg.TotalImages, agg.SuccessCount, agg.FailureCount)
	}
	if agg.Counts != (Counts{TruePositives: 3, FalsePositives: 1, FalseNegatives: 1}) {
		t.Errorf("Unexpected totals %+v", agg.Counts)
	}
	if !almostEqual(agg.Precision, 0.75) || !almostEqual(agg.Recall, 0.75) {
		t.Errorf("Expected precision and recall 0.75, got %v %v", agg.Precision, agg.Recall)
	}
	if !almostEqual(agg.MeanIoU, 0.7) {
		t.Errorf("Expected mean IoU 0.7, got %v", agg.MeanIoU)
	}
	if agg.AverageProcessingTime != 3*time.Second || agg.TotalProcessingTime != 7*time.Second {
		t.Errorf("Unexpected timing avg=%s total=%s", agg.AverageProcessingTime, agg.TotalProcessingTime)
	}
	if len(agg.Categories) != 2 || agg.Categories[0].CategoryID != "crack" {
		t.Fatalf("Expected crack then spall, got %+v", agg.Categories)
	}
	if crack := agg.Categories[0]; crack.Counts.TruePositives != 2 || !almostEqual(crack.Precision, 2.0/3.0) {
		t.Errorf("Unexpected crack stats %+v", crack)
	}
}

func TestAggregateNoResults(t *testing.T) {
	agg := Aggregate(nil, "gemini", "gemini-2.5-flash", 0.5)
	if agg.TotalImages != 0 || agg.Precision != 0 || agg.AverageProcessingTime != 0 {
		t.Errorf("Expected zero results, got %+v", agg)
	}
	var buf bytes.Buffer
	agg.PrintSummary(&buf)
	if !strings.Contains(buf.String(), "PRELABEL EVALUATION SUMMARY") {
		t.Error("Expected summary header")
	}
}

func TestSaveToYAML(t *testing.T) {
	agg := Aggregate([]EvaluationResult{{ImageID: "img-1", Comparison: &ImageComparison{TruePositives: 1}}}, "ollama", "qwen2.5vl:7b", 0.5)

	path, err := agg.SaveToYAML(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(path, "qwen2.5vl_7b-") {
		t.Errorf("Expected model in file name, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "truePositives: 1") || !strings.Contains(string(data), "imageId: img-1") {
		t.Errorf("Unexpected report:\n%s", data)
	}
}
