package yolo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

func TestValidateLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"valid", "0 0.5 0.5 0.2 0.2", ""},
		{"blank", "   ", ""},
		{"touching edges", "3 0.5 0.5 1 1", ""},
		{"too few values", "0 0.5 0.5 0.2", "expected exactly 5 values, found 4"},
		{"too many values", "0 0.5 0.5 0.2 0.2 0.1", "expected exactly 5 values, found 6"},
		{"class not integer", "1.0 0.5 0.5 0.2 0.2", "class_id must be integer"},
		{"negative class", "-1 0.5 0.5 0.2 0.2", "class_id must be non-negative"},
		{"bad number", "0 abc 0.5 0.2 0.2", "invalid numeric value for center_x"},
		{"nan", "0 0.5 nan 0.2 0.2", "center_y is NaN"},
		{"infinity", "0 0.5 0.5 inf 0.2", "width is Infinity"},
		{"zero width", "0 0.5 0.5 0 0.2", "width must be > 0"},
		{"negative height", "0 0.5 0.5 0.2 -0.1", "height must be > 0"},
		{"center x out of range", "0 1.2 0.5 0.2 0.2", "center_x must be in [0, 1]"},
		{"center y out of range", "0 0.5 -0.1 0.2 0.2", "center_y must be in [0, 1]"},
		{"left edge", "0 0.05 0.5 0.2 0.2", "exceeds left edge"},
		{"right edge", "0 0.95 0.5 0.2 0.2", "exceeds right edge"},
		{"top edge", "0 0.5 0.05 0.2 0.2", "exceeds top edge"},
		{"bottom edge", "0 0.5 0.95 0.2 0.2", "exceeds bottom edge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLine(tt.line)
			if tt.reason == "" {
				if err != nil {
					t.Errorf("Expected valid line, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("Expected %q, got %v", tt.reason, err)
			}
		})
	}
}

func TestValidateData(t *testing.T) {
	data := []byte("0 0.5 0.5 0.2 0.2\r\n\n1 0.95 0.5 0.2 0.2\n")
	issues, lines := ValidateData("a.txt", data)
	if lines != 2 {
		t.Errorf("Expected 2 non-blank lines, got %d", lines)
	}
	if len(issues) != 1 || issues[0].Line != 3 || issues[0].Content != "1 0.95 0.5 0.2 0.2" {
		t.Fatalf("Expected one issue on line 3, got %+v", issues)
	}
	if got := issues[0].String(); !strings.HasPrefix(got, "a.txt:3 | '1 0.95 0.5 0.2 0.2' | ERROR: ") {
		t.Errorf("Unexpected issue text %q", got)
	}

	issues, _ = ValidateData("empty.txt", nil)
	if len(issues) != 0 {
		t.Errorf("Expected empty file to be valid, got %+v", issues)
	}

	issues, _ = ValidateData("bad.txt", []byte{0xff, 0xfe})
	if len(issues) != 1 || issues[0].Line != 0 || !strings.Contains(issues[0].Reason, "UTF-8") {
		t.Errorf("Expected encoding issue, got %+v", issues)
	}
}

func TestScanFS(t *testing.T) {
	fsys := fstest.MapFS{
		"labels/train/a.txt":     {Data: []byte("0 0.5 0.5 0.2 0.2\n1 0.2 0.2 0.1 0.1\n")},
		"labels/train/sub/b.txt": {Data: []byte("0 0.5 0.5 0.2 0.2\n0 0.5 0.5 0.2\n")},
		"labels/train/bad.txt":   {Data: []byte{0xff}},
		"labels/train/notes.md":  {Data: []byte("ignored")},
	}
	report, err := ScanFS(fsys)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Files != 3 {
		t.Errorf("Expected 3 label files, got %d", report.Files)
	}
	if report.Lines != 4 {
		t.Errorf("Expected 4 lines, got %d", report.Lines)
	}
	if report.Valid() || len(report.Issues) != 2 {
		t.Fatalf("Expected 2 issues, got %+v", report.Issues)
	}
	byFile := report.IssuesByFile()
	if got := byFile["labels/train/sub/b.txt"]; len(got) != 1 || got[0].Line != 2 {
		t.Errorf("Expected issue on line 2 of b.txt, got %+v", got)
	}
	if len(report.Splits) != 2 || report.Splits[0].Files != 3 || !report.Splits[1].Missing {
		t.Errorf("Expected train with 3 files and missing val, got %+v", report.Splits)
	}

	var buf bytes.Buffer
	if err := report.WriteYAML(&buf); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "reason: expected exactly 5 values, found 4") {
		t.Errorf("Expected reason in YAML report, got:\n%s", buf.String())
	}
}

func TestScanDatasetMissingRoot(t *testing.T) {
	if _, err := ScanDataset(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing dataset")
	}
}

func TestLineAlwaysValidates(t *testing.T) {
	boxes := []models.BBox{
		{0, 0, 1, 1},
		{0.3333333, 0.2, 0.6666667, 0.5},
		{0.9999996, 0.9999996, 0.0000004, 0.0000004},
		{-0.2, 0.5, 0.4, 0.7},
		{0.123456789, 0.987654321, 0.0123456789, 0.0123456789},
	}
	for x := 0.0; x < 1; x += 0.071 {
		for w := 0.013; x+w <= 1; w += 0.097 {
			boxes = append(boxes, models.BBox{x, 1 - x - w/3, w, w / 3})
		}
	}

	for _, b := range boxes {
		line, ok := Line(2, b)
		if !ok {
			continue
		}
		if err := ValidateLine(line); err != nil {
			t.Errorf("Line(%v) = %q is invalid: %v", b, line, err)
		}
	}

	line, ok := Line(0, models.BBox{0, 0, 1, 1})
	if !ok || line != "0 0.500000 0.500000 1.000000 1.000000" {
		t.Errorf("Expected full-image line, got %q", line)
	}
	if _, ok := Line(0, models.BBox{0.5, 0.5, 0, 0.1}); ok {
		t.Error("Expected zero-width box to be dropped")
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	images := []models.Image{
		{ID: "img-1", Filename: "photos/a.jpg"},
		{ID: "img-2"},
	}
	cats := []models.Category{
		{ID: "spall", Name: "Spall", Order: 1},
		{ID: "crack", Name: "Crack", Order: 0},
	}
	anns := []models.Annotation{
		{ID: "1", ImageID: "img-1", CategoryID: "spall", BBox: models.BBox{0.1, 0.2, 0.2, 0.4}},
		{ID: "2", ImageID: "img-1", CategoryID: "ghost", BBox: models.BBox{0.1, 0.1, 0.1, 0.1}},
		{ID: "3", ImageID: "img-1", CategoryID: "crack", BBox: models.BBox{0.1, 0.1, 0, 0.1}},
	}

	result, err := Export(dir, images, cats, anns, ExportOptions{ValEvery: 2})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Files != 2 || result.Lines != 1 || result.Skipped != 2 {
		t.Errorf("Expected 2 files, 1 line, 2 skipped, got %+v", result)
	}

	got, err := os.ReadFile(filepath.Join(dir, "labels", "train", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "1 0.200000 0.400000 0.200000 0.400000\n"; string(got) != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if _, err := os.Stat(filepath.Join(dir, "labels", "val", "img-2.txt")); err != nil {
		t.Errorf("Expected empty label file for img-2 in val, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "data.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "nc: 2") || !strings.Contains(string(data), "- Crack\n    - Spall") {
		t.Errorf("Unexpected data.yaml:\n%s", data)
	}

	report, err := ScanDataset(dir)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !report.Valid() || report.Files != 2 || report.Lines != 1 {
		t.Errorf("Expected exported labels to validate, got %+v", report)
	}
}
