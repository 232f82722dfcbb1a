// Package export writes a dataset's annotations to flat files for review
// and analysis: parquet, xlsx and yaml.
package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Format names an export file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
	FormatYAML    Format = "yaml"
)

// ParseFormat accepts a format name or a file name with a known extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(s); ext != "" {
		s = strings.TrimPrefix(ext, ".")
	}
	switch s {
	case "parquet":
		return FormatParquet, nil
	case "xlsx":
		return FormatXLSX, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported export format: %s (supported: parquet, xlsx, yaml)", s)
}

// Dataset is everything an export needs.
type Dataset struct {
	ID          string
	Images      []models.Image
	Categories  []models.Category
	Annotations []models.Annotation
}

// Row is one annotation flattened together with its image.
type Row struct {
	DatasetID    string  `json:"dataset_id" parquet:"dataset_id"`
	ImageID      string  `json:"image_id" parquet:"image_id"`
	Filename     string  `json:"filename" parquet:"filename"`
	AnnotationID string  `json:"annotation_id" parquet:"annotation_id"`
	CategoryID   string  `json:"category_id" parquet:"category_id"`
	CategoryName string  `json:"category_name" parquet:"category_name"`
	X            float64 `json:"x" parquet:"x"`
	Y            float64 `json:"y" parquet:"y"`
	Width        float64 `json:"width" parquet:"width"`
	Height       float64 `json:"height" parquet:"height"`
	State        string  `json:"state" parquet:"state"`
	CreatedBy    string  `json:"created_by" parquet:"created_by"`
	UpdatedBy    string  `json:"updated_by" parquet:"updated_by"`
	ReviewedBy   string  `json:"reviewed_by" parquet:"reviewed_by"`
	ApprovedBy   string  `json:"approved_by" parquet:"approved_by"`
	CreatedAt    string  `json:"created_at" parquet:"created_at"`
	UpdatedAt    string  `json:"updated_at" parquet:"updated_at"`
}

// Rows flattens the dataset's annotations in image order. Annotations on
// unknown images come last.
func Rows(ds Dataset) []Row {
	order := make(map[string]int, len(ds.Images))
	filenames := make(map[string]string, len(ds.Images))
	for i, img := range ds.Images {
		order[img.ID] = i
		filenames[img.ID] = img.Filename
	}

	anns := append([]models.Annotation(nil), ds.Annotations...)
	sort.SliceStable(anns, func(i, j int) bool {
		oi, ok := order[anns[i].ImageID]
		if !ok {
			oi = len(order)
		}
		oj, ok := order[anns[j].ImageID]
		if !ok {
			oj = len(order)
		}
		return oi < oj
	})

	rows := make([]Row, 0, len(anns))
	for _, a := range anns {
		state := a.State
		if state == "" {
			state = models.StateDraft
		}
		rows = append(rows, Row{
			DatasetID:    ds.ID,
			ImageID:      a.ImageID,
			Filename:     filenames[a.ImageID],
			AnnotationID: a.ID,
			CategoryID:   a.CategoryID,
			CategoryName: a.CategoryName,
			X:            a.BBox[0],
			Y:            a.BBox[1],
			Width:        a.BBox[2],
			Height:       a.BBox[3],
			State:        string(state),
			CreatedBy:    a.CreatedBy,
			UpdatedBy:    a.UpdatedBy,
			ReviewedBy:   a.ReviewedBy,
			ApprovedBy:   a.ApprovedBy,
			CreatedAt:    formatTime(a.CreatedAt),
			UpdatedAt:    formatTime(a.UpdatedAt),
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// CategoryCount is the per-category tally in a summary.
type CategoryCount struct {
	CategoryID   string         `yaml:"categoryId"`
	CategoryName string         `yaml:"categoryName"`
	Total        int            `yaml:"total"`
	ByState      map[string]int `yaml:"byState"`
}

// Summarize counts annotations per category and review state, in category
// order. Categories without annotations are included.
func Summarize(ds Dataset) []CategoryCount {
	cats := append([]models.Category(nil), ds.Categories...)
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })

	counts := make([]CategoryCount, 0, len(cats))
	index := make(map[string]int, len(cats))
	for _, c := range cats {
		index[c.ID] = len(counts)
		counts = append(counts, CategoryCount{CategoryID: c.ID, CategoryName: c.Name, ByState: map[string]int{}})
	}
	for _, row := range Rows(ds) {
		i, ok := index[row.CategoryID]
		if !ok {
			i = len(counts)
			index[row.CategoryID] = i
			counts = append(counts, CategoryCount{CategoryID: row.CategoryID, CategoryName: row.CategoryName, ByState: map[string]int{}})
		}
		counts[i].Total++
		counts[i].ByState[row.State]++
	}
	return counts
}

// Write exports ds to path in the given format.
func Write(format Format, path string, ds Dataset) error {
	switch format {
	case FormatParquet:
		return WriteParquet(path, Rows(ds))
	case FormatXLSX:
		return WriteXLSX(path, ds)
	case FormatYAML:
		return WriteYAML(path, ds)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}
