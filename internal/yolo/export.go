package yolo

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/geometry"
	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// ClassIndex maps category ids to YOLO class ids, following category order.
func ClassIndex(categories []models.Category) map[string]int {
	cats := sortedCategories(categories)
	idx := make(map[string]int, len(cats))
	for i, c := range cats {
		idx[c.ID] = i
	}
	return idx
}

func sortedCategories(categories []models.Category) []models.Category {
	cats := append([]models.Category(nil), categories...)
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })
	return cats
}

// Line converts a top-left normalized box into a label line. The box is
// clamped and shrunk as needed so the line always passes ValidateLine; ok is
// false when nothing of the box survives.
func Line(class int, b models.BBox) (string, bool) {
	b = geometry.ClampBbox(b)
	cx := round6(b[0] + b[2]/2)
	cy := round6(b[1] + b[3]/2)
	w := floor6(math.Min(b[2], 2*math.Min(cx, 1-cx)))
	h := floor6(math.Min(b[3], 2*math.Min(cy, 1-cy)))

	for w > 0 && h > 0 {
		line := fmt.Sprintf("%d %.6f %.6f %.6f %.6f", class, cx, cy, w, h)
		if ValidateLine(line) == nil {
			return line, true
		}
		w = floor6(w - 1e-6)
		h = floor6(h - 1e-6)
	}
	return "", false
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
func floor6(v float64) float64 { return math.Floor(v*1e6) / 1e6 }

// ExportOptions controls Export.
type ExportOptions struct {
	// ValEvery sends every Nth image to the val split. Zero puts all images
	// in train.
	ValEvery int
}

// ExportResult counts what Export wrote.
type ExportResult struct {
	Files   int
	Lines   int
	Skipped int
}

type dataFile struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// Export writes labels/<split>/<image>.txt for every image plus data.yaml
// under dir. Images without annotations get an empty label file. Annotations
// with an unknown category or no area left after clamping are skipped.
func Export(dir string, images []models.Image, categories []models.Category, anns []models.Annotation, opts ExportOptions) (ExportResult, error) {
	var result ExportResult
	classes := ClassIndex(categories)

	byImage := make(map[string][]models.Annotation)
	for _, a := range anns {
		byImage[a.ImageID] = append(byImage[a.ImageID], a)
	}

	for _, split := range Splits {
		if err := os.MkdirAll(filepath.Join(dir, "labels", split), 0755); err != nil {
			return result, fmt.Errorf("failed to create labels directory: %w", err)
		}
	}

	for i, img := range images {
		split := "train"
		if opts.ValEvery > 0 && (i+1)%opts.ValEvery == 0 {
			split = "val"
		}

		var lines []string
		for _, a := range byImage[img.ID] {
			class, ok := classes[a.CategoryID]
			if !ok {
				slog.Warn("Skipping annotation with unknown category", "annotation", a.ID, "category", a.CategoryID)
				result.Skipped++
				continue
			}
			line, ok := Line(class, a.BBox)
			if !ok {
				slog.Warn("Skipping annotation without area", "annotation", a.ID)
				result.Skipped++
				continue
			}
			lines = append(lines, line)
		}

		content := strings.Join(lines, "\n")
		if content != "" {
			content += "\n"
		}
		name := filepath.Join(dir, "labels", split, labelName(img))
		if err := os.WriteFile(name, []byte(content), 0644); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", name, err)
		}
		result.Files++
		result.Lines += len(lines)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	names := make([]string, 0, len(categories))
	for _, c := range sortedCategories(categories) {
		names = append(names, c.Name)
	}
	data, err := yaml.Marshal(dataFile{
		Path:  absDir,
		Train: "images/train",
		Val:   "images/val",
		NC:    len(names),
		Names: names,
	})
	if err != nil {
		return result, fmt.Errorf("failed to encode data.yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.yaml"), data, 0644); err != nil {
		return result, fmt.Errorf("failed to write data.yaml: %w", err)
	}

	slog.Info("Exported YOLO labels", "dir", dir, "files", result.Files, "lines", result.Lines, "skipped", result.Skipped)
	return result, nil
}

// labelName is the label file name for img: its file name with a .txt
// extension, or its id when it has no file name.
func labelName(img models.Image) string {
	base := filepath.Base(img.Filename)
	if img.Filename == "" || base == "." || base == "/" {
		return img.ID + ".txt"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}
