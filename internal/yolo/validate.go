// Package yolo reads and writes Ultralytics YOLO detection labels: one
// "class cx cy w h" line per box, coordinates normalized to the image.
package yolo

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Splits are the label directories a dataset scan looks at.
var Splits = []string{"train", "val"}

// Issue is one problem found in a label file. Line is 0 for file-level
// problems.
type Issue struct {
	File    string `yaml:"file"`
	Line    int    `yaml:"line,omitempty"`
	Content string `yaml:"content,omitempty"`
	Reason  string `yaml:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s:%d | '%s' | ERROR: %s", i.File, i.Line, i.Content, i.Reason)
}

var coordNames = [4]string{"center_x", "center_y", "width", "height"}

// ValidateLine checks one label line. Blank lines are valid.
func ValidateLine(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	if len(parts) != 5 {
		return fmt.Errorf("expected exactly 5 values, found %d", len(parts))
	}

	classID, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("class_id must be integer, found: '%s'", parts[0])
	}
	if classID < 0 {
		return fmt.Errorf("class_id must be non-negative integer, found: %d", classID)
	}

	var v [4]float64
	for i, s := range parts[1:] {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value for %s: '%s'", coordNames[i], s)
		}
		v[i] = f
	}
	for i, f := range v {
		if math.IsNaN(f) {
			return fmt.Errorf("%s is NaN", coordNames[i])
		}
		if math.IsInf(f, 0) {
			return fmt.Errorf("%s is Infinity", coordNames[i])
		}
	}

	cx, cy, w, h := v[0], v[1], v[2], v[3]
	switch {
	case w <= 0:
		return fmt.Errorf("width must be > 0, found: %g", w)
	case h <= 0:
		return fmt.Errorf("height must be > 0, found: %g", h)
	case cx < 0 || cx > 1:
		return fmt.Errorf("center_x must be in [0, 1], found: %g", cx)
	case cy < 0 || cy > 1:
		return fmt.Errorf("center_y must be in [0, 1], found: %g", cy)
	}

	if xMin := cx - w/2; xMin < 0 {
		return fmt.Errorf("bounding box exceeds left edge: x_min=%.6f < 0", xMin)
	}
	if xMax := cx + w/2; xMax > 1 {
		return fmt.Errorf("bounding box exceeds right edge: x_max=%.6f > 1", xMax)
	}
	if yMin := cy - h/2; yMin < 0 {
		return fmt.Errorf("bounding box exceeds top edge: y_min=%.6f < 0", yMin)
	}
	if yMax := cy + h/2; yMax > 1 {
		return fmt.Errorf("bounding box exceeds bottom edge: y_max=%.6f > 1", yMax)
	}
	return nil
}

// ValidateData checks the contents of one label file named name. It also
// returns the number of non-blank lines.
func ValidateData(name string, data []byte) ([]Issue, int) {
	if !utf8.Valid(data) {
		return []Issue{{File: name, Reason: "file encoding error: not valid UTF-8"}}, 0
	}

	var issues []Issue
	lines := 0
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		if err := ValidateLine(line); err != nil {
			issues = append(issues, Issue{File: name, Line: i + 1, Content: line, Reason: err.Error()})
		}
	}
	return issues, lines
}

// SplitSummary counts what a scan found under labels/<split>.
type SplitSummary struct {
	Name    string `yaml:"name"`
	Missing bool   `yaml:"missing,omitempty"`
	Files   int    `yaml:"files"`
}

// Report is the outcome of a dataset scan.
type Report struct {
	Dataset string         `yaml:"dataset"`
	Splits  []SplitSummary `yaml:"splits"`
	Files   int            `yaml:"files"`
	Lines   int            `yaml:"lines"`
	Issues  []Issue        `yaml:"issues,omitempty"`
}

// Valid reports whether the scan found no issues.
func (r Report) Valid() bool { return len(r.Issues) == 0 }

// IssuesByFile groups issues by file name.
func (r Report) IssuesByFile() map[string][]Issue {
	out := make(map[string][]Issue)
	for _, issue := range r.Issues {
		out[issue.File] = append(out[issue.File], issue)
	}
	return out
}

// WriteYAML writes the report as YAML.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// ScanDataset validates every .txt file under labels/train and labels/val of
// the dataset at root, recursing into subdirectories.
func ScanDataset(root string) (Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("dataset path %s is not a directory", root)
	}
	report, err := ScanFS(os.DirFS(root))
	report.Dataset = root
	return report, err
}

// ScanFS is ScanDataset over an fs.FS rooted at the dataset directory.
func ScanFS(fsys fs.FS) (Report, error) {
	var report Report
	for _, split := range Splits {
		dir := path.Join("labels", split)
		summary := SplitSummary{Name: split}
		if st, err := fs.Stat(fsys, dir); err != nil || !st.IsDir() {
			slog.Warn("Label directory not found", "dir", dir)
			summary.Missing = true
			report.Splits = append(report.Splits, summary)
			continue
		}

		matches, err := doublestar.Glob(fsys, dir+"/**/*.txt", doublestar.WithFilesOnly())
		if err != nil {
			return report, fmt.Errorf("failed to list labels in %s: %w", dir, err)
		}
		sort.Strings(matches)
		slog.Debug("Scanning labels", "dir", dir, "files", len(matches))

		for _, name := range matches {
			summary.Files++
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				report.Issues = append(report.Issues, Issue{File: name, Reason: "file read error: " + err.Error()})
				continue
			}
			issues, lines := ValidateData(name, data)
			report.Issues = append(report.Issues, issues...)
			report.Lines += lines
		}
		report.Files += summary.Files
		report.Splits = append(report.Splits, summary)
	}
	return report, nil
}
